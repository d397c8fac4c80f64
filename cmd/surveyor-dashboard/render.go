package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/theoremus-urban-solutions/surveyor-tracking/dashboard"
	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
)

// textRenderer prints snapshots as plain text.
type textRenderer struct {
	out io.Writer
}

func (r *textRenderer) Render(s dashboard.Snapshot) {
	fmt.Fprintf(r.out, "[%s] mode=%s\n", s.UpdatedAt.Format(time.TimeOnly), s.Mode)

	if s.StatusLoaded {
		online := 0
		for _, st := range s.Status {
			if st == model.Online {
				online++
			}
		}
		fmt.Fprintf(r.out, "  status: %d/%d online%s\n", online, len(s.Status), staleMark(s.StatusStale))
	}

	switch {
	case s.Mode.Kind == dashboard.LiveAll && s.LatestLoaded:
		markers := append([]dashboard.Marker(nil), s.Latest...)
		sort.Slice(markers, func(i, j int) bool { return markers[i].Fix.SurveyorID < markers[j].Fix.SurveyorID })
		fmt.Fprintf(r.out, "  latest: %d surveyors%s\n", len(markers), staleMark(s.LatestStale))
		for _, m := range markers {
			fmt.Fprintf(r.out, "    %-10s %-20s %9.5f %10.5f  %s  %s\n",
				m.Fix.SurveyorID, m.Name, m.Fix.Latitude, m.Fix.Longitude, m.Fix.Timestamp, m.State)
		}
	case s.Mode.Kind == dashboard.LiveSingle && s.LiveLoaded:
		if s.Live == nil {
			fmt.Fprintf(r.out, "  %s: no location yet%s\n", s.Mode.SurveyorID, staleMark(s.LiveStale))
			break
		}
		m := s.Live
		fmt.Fprintf(r.out, "  %s %s: %.5f, %.5f at %s (%s)%s\n",
			m.Fix.SurveyorID, m.Name, m.Fix.Latitude, m.Fix.Longitude, m.Fix.Timestamp, m.State, staleMark(s.LiveStale))
	case s.Mode.Kind == dashboard.Historical:
		fmt.Fprintf(r.out, "  route: %d points, %.2f km, %s\n", s.Route.Points, s.Route.LengthKM, s.Route.Duration())
	}
	if s.SessionExpired {
		fmt.Fprintln(r.out, "  session expired")
	}
}

func (r *textRenderer) Notify(n dashboard.Notice) {
	if n.Err != nil {
		fmt.Fprintf(r.out, "! %s: %s (%v)\n", n.Op, n.Message, n.Err)
		return
	}
	fmt.Fprintf(r.out, "! %s\n", n.Message)
}

func staleMark(stale bool) string {
	if stale {
		return " (stale)"
	}
	return ""
}
