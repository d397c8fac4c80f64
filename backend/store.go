package backend

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
)

// Store persists location fixes.
type Store interface {
	SaveFix(ctx context.Context, fix model.LocationFix) error
	// Latest returns the newest fix of surveyorID, or nil.
	Latest(ctx context.Context, surveyorID string) (*model.LocationFix, error)
	// LatestAll returns the newest fix of every surveyor.
	LatestAll(ctx context.Context) ([]model.LocationFix, error)
	// Track returns fixes of surveyorID with from <= time <= to, oldest first.
	Track(ctx context.Context, surveyorID string, from, to time.Time) ([]model.LocationFix, error)
}

type storedFix struct {
	fix model.LocationFix
	at  time.Time
}

// MemoryStore keeps fixes in memory, ordered by time per surveyor.
type MemoryStore struct {
	mu    sync.RWMutex
	fixes map[string][]storedFix
	// MaxPerSurveyor bounds the history per surveyor; oldest fixes are
	// dropped first. Zero keeps everything.
	MaxPerSurveyor int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fixes: map[string][]storedFix{}}
}

func (m *MemoryStore) SaveFix(ctx context.Context, fix model.LocationFix) error {
	at, err := fix.Time()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.fixes[fix.SurveyorID]
	i := sort.Search(len(list), func(i int) bool { return list[i].at.After(at) })
	list = append(list, storedFix{})
	copy(list[i+1:], list[i:])
	list[i] = storedFix{fix: fix, at: at}
	if m.MaxPerSurveyor > 0 && len(list) > m.MaxPerSurveyor {
		list = append([]storedFix(nil), list[len(list)-m.MaxPerSurveyor:]...)
	}
	m.fixes[fix.SurveyorID] = list
	return nil
}

func (m *MemoryStore) Latest(ctx context.Context, surveyorID string) (*model.LocationFix, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.fixes[surveyorID]
	if len(list) == 0 {
		return nil, nil
	}
	f := list[len(list)-1].fix
	return &f, nil
}

func (m *MemoryStore) LatestAll(ctx context.Context) ([]model.LocationFix, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.LocationFix, 0, len(m.fixes))
	for _, list := range m.fixes {
		if len(list) > 0 {
			out = append(out, list[len(list)-1].fix)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SurveyorID < out[j].SurveyorID })
	return out, nil
}

func (m *MemoryStore) Track(ctx context.Context, surveyorID string, from, to time.Time) ([]model.LocationFix, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.fixes[surveyorID]
	start := sort.Search(len(list), func(i int) bool { return !list[i].at.Before(from) })
	out := []model.LocationFix{}
	for _, sf := range list[start:] {
		if sf.at.After(to) {
			break
		}
		out = append(out, sf.fix)
	}
	return out, nil
}
