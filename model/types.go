package model

import (
	"strings"
	"time"

	"github.com/theoremus-urban-solutions/surveyor-tracking/utils"
)

// AllSurveyors is the selector value meaning "every surveyor" in the dashboard.
const AllSurveyors = "ALL"

// Surveyor is a field worker record as served by GET /api/surveyors.
type Surveyor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	City        string `json:"city"`
	ProjectName string `json:"projectName"`
	Username    string `json:"username"`
	Password    string `json:"password,omitempty"`
}

// IsTrackable reports whether the record belongs to a field surveyor rather
// than an administrative account. Admin accounts never appear in status maps.
func (s Surveyor) IsTrackable() bool {
	if s.ID == "" || !strings.HasPrefix(s.ID, "SUR") {
		return false
	}
	if strings.Contains(strings.ToLower(s.ID), "admin") {
		return false
	}
	return !strings.Contains(strings.ToLower(s.Username), "admin")
}

// LocationFix is a single timestamped observation of a surveyor's position.
type LocationFix struct {
	SurveyorID string   `json:"surveyorId"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Timestamp  string   `json:"timestamp"`
	Accuracy   *float64 `json:"accuracy,omitempty"`
}

// NewLocationFix stamps a fix with t in UTC at second precision.
func NewLocationFix(surveyorID string, lat, lon float64, t time.Time) LocationFix {
	return LocationFix{
		SurveyorID: surveyorID,
		Latitude:   lat,
		Longitude:  lon,
		Timestamp:  utils.FormatFixTimestamp(t),
	}
}

// Time parses the fix timestamp.
func (f LocationFix) Time() (time.Time, error) {
	return utils.ParseTimestamp(f.Timestamp)
}

// Message converts the fix into the body of POST /api/location/update.
func (f LocationFix) Message() LiveLocationMessage {
	return LiveLocationMessage{
		SurveyorID: f.SurveyorID,
		Latitude:   f.Latitude,
		Longitude:  f.Longitude,
		Timestamp:  f.Timestamp,
	}
}

// LiveLocationMessage is the wire body pushed by the mobile agent.
type LiveLocationMessage struct {
	SurveyorID string  `json:"surveyorId" validate:"required"`
	Latitude   float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude  float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Timestamp  string  `json:"timestamp"`
}

// Fix converts a pushed message back into a LocationFix.
func (m LiveLocationMessage) Fix() LocationFix {
	return LocationFix{
		SurveyorID: m.SurveyorID,
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		Timestamp:  m.Timestamp,
	}
}

// OnlineState is the backend's view of whether a surveyor is reporting.
type OnlineState string

const (
	Online  OnlineState = "Online"
	Offline OnlineState = "Offline"
)

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned by POST /api/login.
type LoginResponse struct {
	Success  bool      `json:"success"`
	Surveyor *Surveyor `json:"surveyor,omitempty"`
	Message  string    `json:"message,omitempty"`
}
