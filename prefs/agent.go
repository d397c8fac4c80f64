package prefs

import (
	"context"
	"errors"
	"time"

	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
)

// Keys written by the capture agent.
const (
	KeyCurrentSurveyor       = "current_surveyor"
	KeyTrackingActive        = "is_tracking_active"
	KeyLastTrackedSurveyorID = "last_tracked_surveyor_id"
)

// StoredSession is what the agent needs to sign back in after a restart.
// The password is kept because the Basic credential is derived from it.
type StoredSession struct {
	Username string         `json:"username"`
	Password string         `json:"password"`
	Surveyor model.Surveyor `json:"surveyor"`
	SavedAt  time.Time      `json:"savedAt"`
}

// TrackingState records whether capture was running when the agent last
// changed state.
type TrackingState struct {
	Active     bool
	SurveyorID string
}

// SaveSession stores the signed-in user.
func (s *Store) SaveSession(ctx context.Context, sess StoredSession) error {
	if sess.SavedAt.IsZero() {
		sess.SavedAt = time.Now().UTC()
	}
	return s.Put(ctx, KeyCurrentSurveyor, sess)
}

// LoadSession returns the stored session or ErrNotFound.
func (s *Store) LoadSession(ctx context.Context) (StoredSession, error) {
	var sess StoredSession
	if err := s.Get(ctx, KeyCurrentSurveyor, &sess); err != nil {
		return StoredSession{}, err
	}
	return sess, nil
}

// ClearSession forgets the user and the tracking flag.
func (s *Store) ClearSession(ctx context.Context) error {
	return s.Delete(ctx, KeyCurrentSurveyor, KeyTrackingActive)
}

// SetTracking records the tracking flag and, when active, the surveyor
// being tracked. The last surveyor id is kept when tracking stops.
func (s *Store) SetTracking(ctx context.Context, active bool, surveyorID string) error {
	values := map[string]any{KeyTrackingActive: active}
	if active && surveyorID != "" {
		values[KeyLastTrackedSurveyorID] = surveyorID
	}
	return s.putMany(ctx, values)
}

// Tracking returns the persisted tracking state. A store that has never
// recorded one reports inactive.
func (s *Store) Tracking(ctx context.Context) (TrackingState, error) {
	var state TrackingState
	if err := s.Get(ctx, KeyTrackingActive, &state.Active); err != nil && !errors.Is(err, ErrNotFound) {
		return TrackingState{}, err
	}
	if err := s.Get(ctx, KeyLastTrackedSurveyorID, &state.SurveyorID); err != nil && !errors.Is(err, ErrNotFound) {
		return TrackingState{}, err
	}
	return state, nil
}
