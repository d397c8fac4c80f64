package feed

import (
	"sort"

	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
)

// Vehicle is one surveyor's latest fix with the context a feed needs.
type Vehicle struct {
	Fix     model.LocationFix
	Name    string
	Project string
	State   model.OnlineState
}

// Vehicles joins fixes with surveyor records and online state. Fixes of
// unknown surveyors are kept with empty names.
func Vehicles(fixes []model.LocationFix, surveyors []model.Surveyor, status map[string]model.OnlineState) []Vehicle {
	byID := make(map[string]model.Surveyor, len(surveyors))
	for _, s := range surveyors {
		byID[s.ID] = s
	}
	out := make([]Vehicle, 0, len(fixes))
	for _, f := range fixes {
		s := byID[f.SurveyorID]
		out = append(out, Vehicle{Fix: f, Name: s.Name, Project: s.ProjectName, State: status[f.SurveyorID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fix.SurveyorID < out[j].Fix.SurveyorID })
	return out
}
