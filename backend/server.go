package backend

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/theoremus-urban-solutions/surveyor-tracking/clock"
	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
)

// Defaults.
const (
	DefaultOfflineThreshold = 5 * time.Minute
	DefaultFeedTTL          = 30 * time.Second
)

// Server is the REST backend.
type Server struct {
	store            Store
	dir              *Directory
	clock            clock.Clock
	logger           *slog.Logger
	validate         *validator.Validate
	offlineThreshold time.Duration
	requireReadAuth  bool
	agencyID         string
	feedTTL          time.Duration
	cache            *feedCache
	router           *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the time source used for status and default timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithOfflineThreshold sets how old a surveyor's latest fix may be for it
// to count as Online.
func WithOfflineThreshold(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.offlineThreshold = d
		}
	}
}

// WithReadAuth requires Basic credentials on every read endpoint as well.
func WithReadAuth(required bool) Option {
	return func(s *Server) { s.requireReadAuth = required }
}

// WithFeed sets the agency used in feed refs and how long a rendered feed
// is reused. A ttl of zero disables reuse.
func WithFeed(agencyID string, ttl time.Duration) Option {
	return func(s *Server) {
		s.agencyID = agencyID
		s.feedTTL = ttl
	}
}

// NewServer wires the routes over store and dir.
func NewServer(store Store, dir *Directory, opts ...Option) *Server {
	s := &Server{
		store:            store,
		dir:              dir,
		clock:            clock.Real(),
		logger:           slog.Default(),
		validate:         validator.New(),
		offlineThreshold: DefaultOfflineThreshold,
		feedTTL:          DefaultFeedTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = newFeedCache(s.feedTTL)
	s.routes()
	return s
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(withLogging(s.logger))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/location/update", s.requireAuth(s.handleLocationUpdate)).Methods(http.MethodPost)

	read := func(h http.HandlerFunc) http.HandlerFunc {
		if s.requireReadAuth {
			return s.requireAuth(h)
		}
		return h
	}
	api.HandleFunc("/surveyors", read(s.handleSurveyors)).Methods(http.MethodGet)
	api.HandleFunc("/surveyors/filter", read(s.handleSurveyorFilter)).Methods(http.MethodGet)
	api.HandleFunc("/surveyors/status", read(s.handleStatus)).Methods(http.MethodGet)
	api.HandleFunc("/location/latest/all", read(s.handleLatestAll)).Methods(http.MethodGet)
	api.HandleFunc("/location/{id}/latest", read(s.handleLatest)).Methods(http.MethodGet)
	api.HandleFunc("/location/{id}/track", read(s.handleTrack)).Methods(http.MethodGet)
	api.HandleFunc("/feeds/vehicle-positions.pb", read(s.handleVehiclePositions)).Methods(http.MethodGet)
	api.HandleFunc("/feeds/vehicle-monitoring.{format:json|xml}", read(s.handleVehicleMonitoring)).Methods(http.MethodGet)

	s.router = r
}

// Handler returns the HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return withCORS(s.router)
}

type ctxKey int

const surveyorKey ctxKey = iota

// requireAuth validates the Basic credential and stores the account in the
// request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="surveyor-tracking"`)
			errorResponse(w, http.StatusUnauthorized, "missing credentials")
			return
		}
		sv, err := s.dir.Authenticate(username, password)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="surveyor-tracking"`)
			errorResponse(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), surveyorKey, sv)))
	}
}

func authenticated(ctx context.Context) (model.Surveyor, bool) {
	sv, ok := ctx.Value(surveyorKey).(model.Surveyor)
	return sv, ok
}

// trackable returns the directory without admin accounts.
func (s *Server) trackable() []model.Surveyor {
	all := s.dir.List()
	out := make([]model.Surveyor, 0, len(all))
	for _, sv := range all {
		if sv.IsTrackable() {
			out = append(out, sv)
		}
	}
	return out
}

// statuses marks a surveyor Online when its latest fix is newer than the
// offline threshold.
func (s *Server) statuses(ctx context.Context) (map[string]model.OnlineState, error) {
	cutoff := s.clock.Now().Add(-s.offlineThreshold)
	out := map[string]model.OnlineState{}
	for _, sv := range s.trackable() {
		state := model.Offline
		fix, err := s.store.Latest(ctx, sv.ID)
		if err != nil {
			return nil, err
		}
		if fix != nil {
			if t, err := fix.Time(); err == nil && t.After(cutoff) {
				state = model.Online
			}
		}
		out[sv.ID] = state
	}
	return out, nil
}
