package backend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/theoremus-urban-solutions/surveyor-tracking/dashboard"
	"github.com/theoremus-urban-solutions/surveyor-tracking/feed"
	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
	"github.com/theoremus-urban-solutions/surveyor-tracking/utils"
)

type healthResponse struct {
	Status    string `json:"status"`
	Surveyors int    `json:"surveyors"`
	Time      string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Surveyors: len(s.trackable()),
		Time:      utils.FormatFixTimestamp(s.clock.Now()),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonResponse(w, http.StatusBadRequest, model.LoginResponse{Message: "Invalid request body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		jsonResponse(w, http.StatusBadRequest, model.LoginResponse{Message: "Username and password are required"})
		return
	}

	sv, err := s.dir.Authenticate(req.Username, req.Password)
	if err != nil {
		s.logger.Info("login rejected", "username", req.Username)
		jsonResponse(w, http.StatusUnauthorized, model.LoginResponse{Message: "Invalid username or password"})
		return
	}
	s.logger.Info("login accepted", "username", req.Username, "surveyor_id", sv.ID)
	jsonResponse(w, http.StatusOK, model.LoginResponse{Success: true, Surveyor: &sv, Message: "Login successful"})
}

func (s *Server) handleLocationUpdate(w http.ResponseWriter, r *http.Request) {
	var msg model.LiveLocationMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(msg); err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if sv, ok := authenticated(r.Context()); ok && sv.ID != msg.SurveyorID {
		errorResponse(w, http.StatusForbidden, "credentials do not belong to "+msg.SurveyorID)
		return
	}

	fix := msg.Fix()
	if fix.Timestamp == "" {
		fix.Timestamp = utils.FormatFixTimestamp(s.clock.Now())
	} else {
		t, err := utils.ParseTimestamp(fix.Timestamp)
		if err != nil {
			errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		fix.Timestamp = utils.FormatFixTimestamp(t)
	}

	if err := s.store.SaveFix(r.Context(), fix); err != nil {
		s.logger.Error("failed to store fix", "surveyor_id", fix.SurveyorID, "error", err)
		errorResponse(w, http.StatusInternalServerError, "failed to store location")
		return
	}
	s.cache.invalidate()
	s.logger.Debug("location updated", "surveyor_id", fix.SurveyorID, "timestamp", fix.Timestamp)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Location updated"))
}

func (s *Server) handleSurveyors(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, s.trackable())
}

func (s *Server) handleSurveyorFilter(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jsonResponse(w, http.StatusOK, dashboard.FilterSurveyors(s.trackable(), q.Get("city"), q.Get("project")))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.statuses(r.Context())
	if err != nil {
		s.logger.Error("failed to compute status", "error", err)
		errorResponse(w, http.StatusInternalServerError, "failed to compute status")
		return
	}
	jsonResponse(w, http.StatusOK, status)
}

func (s *Server) handleLatestAll(w http.ResponseWriter, r *http.Request) {
	fixes, err := s.latestTrackable(r)
	if err != nil {
		s.logger.Error("failed to load latest fixes", "error", err)
		errorResponse(w, http.StatusInternalServerError, "failed to load locations")
		return
	}
	jsonResponse(w, http.StatusOK, fixes)
}

// latestTrackable is LatestAll without fixes of admin accounts.
func (s *Server) latestTrackable(r *http.Request) ([]model.LocationFix, error) {
	fixes, err := s.store.LatestAll(r.Context())
	if err != nil {
		return nil, err
	}
	out := fixes[:0]
	for _, f := range fixes {
		if sv, ok := s.dir.Get(f.SurveyorID); ok && !sv.IsTrackable() {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	fix, err := s.store.Latest(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to load latest fix", "surveyor_id", id, "error", err)
		errorResponse(w, http.StatusInternalServerError, "failed to load location")
		return
	}
	if fix == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	jsonResponse(w, http.StatusOK, fix)
}

var errRange = errors.New("start and end are required ISO-8601 instants")

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	q := r.URL.Query()
	start, err1 := utils.ParseTimestamp(q.Get("start"))
	end, err2 := utils.ParseTimestamp(q.Get("end"))
	if err1 != nil || err2 != nil {
		errorResponse(w, http.StatusBadRequest, errRange.Error())
		return
	}
	if start.After(end) {
		errorResponse(w, http.StatusBadRequest, "start must not be after end")
		return
	}

	fixes, err := s.store.Track(r.Context(), id, start, end)
	if err != nil {
		s.logger.Error("failed to load track", "surveyor_id", id, "error", err)
		errorResponse(w, http.StatusInternalServerError, "failed to load track")
		return
	}
	if len(fixes) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	jsonResponse(w, http.StatusOK, fixes)
}

// vehicles joins the latest fixes with the directory and status, filtered
// by the vehicleref and lineref query parameters.
func (s *Server) vehicles(r *http.Request) ([]feed.Vehicle, error) {
	fixes, err := s.latestTrackable(r)
	if err != nil {
		return nil, err
	}
	status, err := s.statuses(r.Context())
	if err != nil {
		return nil, err
	}
	all := feed.Vehicles(fixes, s.trackable(), status)

	q := r.URL.Query()
	vehRef := strings.ToLower(q.Get("vehicleref"))
	lineRef := strings.ToLower(q.Get("lineref"))
	if vehRef == "" && lineRef == "" {
		return all, nil
	}
	out := make([]feed.Vehicle, 0, len(all))
	for _, v := range all {
		if vehRef != "" && !refMatches(vehRef, s.agencyID, v.Fix.SurveyorID) {
			continue
		}
		if lineRef != "" && !refMatches(lineRef, s.agencyID, v.Project) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// refMatches accepts a bare ref or one qualified with the agency, like
// AGENCY_SUR001.
func refMatches(want, agency, ref string) bool {
	ref = strings.ToLower(ref)
	if want == ref {
		return true
	}
	return agency != "" && want == strings.ToLower(agency)+"_"+ref
}

func (s *Server) serveFeed(w http.ResponseWriter, r *http.Request, format, contentType string, render func([]feed.Vehicle) ([]byte, error)) {
	q := r.URL.Query()
	key := memoKey(format, strings.ToLower(q.Get("vehicleref")), strings.ToLower(q.Get("lineref")))
	now := s.clock.Now()

	data, gen, ok := s.cache.get(key, now)
	if !ok {
		vehicles, err := s.vehicles(r)
		if err != nil {
			s.logger.Error("failed to build feed", "format", format, "error", err)
			errorResponse(w, http.StatusInternalServerError, "failed to build feed")
			return
		}
		if data, err = render(vehicles); err != nil {
			s.logger.Error("failed to render feed", "format", format, "error", err)
			errorResponse(w, http.StatusInternalServerError, "failed to render feed")
			return
		}
		if !s.cache.put(key, data, now, gen) {
			s.logger.Debug("feed changed while rendering, not cached", "format", format)
		}
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleVehiclePositions(w http.ResponseWriter, r *http.Request) {
	s.serveFeed(w, r, "pb", "application/x-protobuf", func(v []feed.Vehicle) ([]byte, error) {
		return feed.EncodeVehiclePositions(v, s.clock.Now())
	})
}

func (s *Server) handleVehicleMonitoring(w http.ResponseWriter, r *http.Request) {
	format := mux.Vars(r)["format"]
	contentType := "application/json"
	if format == "xml" {
		contentType = "application/xml"
	}
	s.serveFeed(w, r, format, contentType, func(v []feed.Vehicle) ([]byte, error) {
		res := feed.BuildVehicleMonitoring(v, feed.VMOptions{
			AgencyID:     s.agencyID,
			ReadInterval: s.feedTTL,
			Now:          s.clock.Now(),
		})
		if format == "xml" {
			return res.XML()
		}
		return res.JSON()
	})
}
