package dashboard

import (
	"fmt"
	"time"

	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
	"github.com/theoremus-urban-solutions/surveyor-tracking/polling"
)

// ModeKind discriminates ViewMode.
type ModeKind int

const (
	LiveAll ModeKind = iota
	LiveSingle
	Historical
)

func (k ModeKind) String() string {
	switch k {
	case LiveAll:
		return "live-all"
	case LiveSingle:
		return "live-single"
	case Historical:
		return "historical"
	}
	return fmt.Sprintf("ModeKind(%d)", int(k))
}

// ViewMode is what the dashboard is showing. SurveyorID is set for
// LiveSingle and Historical; From and To only for Historical.
type ViewMode struct {
	Kind       ModeKind
	SurveyorID string
	From, To   time.Time
}

// LiveAllMode is the initial mode.
func LiveAllMode() ViewMode { return ViewMode{Kind: LiveAll} }

// LiveSingleMode follows one surveyor.
func LiveSingleMode(surveyorID string) ViewMode {
	return ViewMode{Kind: LiveSingle, SurveyorID: surveyorID}
}

// HistoricalMode shows a recorded range.
func HistoricalMode(surveyorID string, from, to time.Time) ViewMode {
	return ViewMode{Kind: Historical, SurveyorID: surveyorID, From: from, To: to}
}

// Selection is the surveyor picker value for the mode: a surveyor id or
// model.AllSurveyors.
func (m ViewMode) Selection() string {
	if m.Kind == LiveAll {
		return model.AllSurveyors
	}
	return m.SurveyorID
}

func (m ViewMode) String() string {
	switch m.Kind {
	case LiveSingle:
		return fmt.Sprintf("live-single(%s)", m.SurveyorID)
	case Historical:
		return fmt.Sprintf("historical(%s, %s..%s)", m.SurveyorID,
			m.From.UTC().Format(time.RFC3339), m.To.UTC().Format(time.RFC3339))
	}
	return m.Kind.String()
}

// loops returns the polling loops valid in mode kind.
func loopsFor(k ModeKind) []polling.Kind {
	switch k {
	case LiveSingle:
		return []polling.Kind{polling.Status, polling.SingleLive}
	case Historical:
		return []polling.Kind{polling.Status}
	}
	return []polling.Kind{polling.Status, polling.AllLatest}
}

// ReturnPolicy decides where ReturnToLive goes from Historical.
type ReturnPolicy int

const (
	// ReturnToAll drops the surveyor selection and goes to LiveAll.
	ReturnToAll ReturnPolicy = iota
	// ReturnToSelection follows the historical surveyor live.
	ReturnToSelection
)

// ParseReturnPolicy maps the configuration values "all" and "selection".
func ParseReturnPolicy(s string) (ReturnPolicy, error) {
	switch s {
	case "", "all":
		return ReturnToAll, nil
	case "selection":
		return ReturnToSelection, nil
	}
	return ReturnToAll, fmt.Errorf("unknown return policy %q", s)
}
