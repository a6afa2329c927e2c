// Package session keeps one form controller per browser, keyed by a cookie.
// Sessions live in memory only and are dropped after an idle period.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lumiverse/lumiverse/form"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type contextKey struct{}

type entry struct {
	ctrl     *form.Controller
	lastSeen time.Time
}

// Store is a concurrency-safe map of session id to form controller.
type Store struct {
	newController func() *form.Controller
	logger        *zap.Logger
	gauge         prometheus.Gauge

	mu       sync.Mutex
	sessions map[string]*entry
	idle     time.Duration
	max      int
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithGauge reports the number of live sessions on g.
func WithGauge(g prometheus.Gauge) Option {
	return func(s *Store) { s.gauge = g }
}

// WithMaxSessions caps the number of live sessions. Zero means no cap.
func WithMaxSessions(n int) Option {
	return func(s *Store) { s.max = n }
}

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a store whose sessions expire after idle. newController
// builds the controller for each new session.
func NewStore(idle time.Duration, newController func() *form.Controller, opts ...Option) *Store {
	s := &Store{
		newController: newController,
		logger:        zap.NewNop(),
		sessions:      make(map[string]*entry),
		idle:          idle,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the controller for id and marks the session as used.
func (s *Store) Get(id string) (*form.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = s.now()
	return e.ctrl, true
}

// Create starts a new session. When the store is full the least recently
// used idle session is evicted first.
func (s *Store) Create() (string, *form.Controller) {
	id := uuid.New().String()
	ctrl := s.newController()

	s.mu.Lock()
	evicted := ""
	if s.max > 0 && len(s.sessions) >= s.max {
		evicted = s.evictOldestLocked()
	}
	s.sessions[id] = &entry{ctrl: ctrl, lastSeen: s.now()}
	n := len(s.sessions)
	s.mu.Unlock()

	s.report(n)
	if evicted != "" {
		s.logger.Info("session limit reached, evicted least recently used",
			zap.String("evicted_session_id", evicted),
			zap.Int("max_sessions", s.maxSessions()),
		)
	}
	s.logger.Debug("session created", zap.String("session_id", id))
	return id, ctrl
}

// evictOldestLocked drops the least recently seen session that has no
// submission in flight and returns its id, or "" if every session is busy.
func (s *Store) evictOldestLocked() string {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, e := range s.sessions {
		if e.ctrl.State().Loading {
			continue
		}
		if oldestID == "" || e.lastSeen.Before(oldest) {
			oldestID, oldest = id, e.lastSeen
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
	}
	return oldestID
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SetIdleTimeout changes the expiry used by subsequent sweeps.
func (s *Store) SetIdleTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idle = d
}

// SetMaxSessions changes the session cap used by subsequent Creates.
// Sessions already over a lowered cap are not evicted.
func (s *Store) SetMaxSessions(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.max = n
}

func (s *Store) maxSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.max
}

// Sweep removes idle sessions. A session with a submission in flight is
// kept regardless of age.
func (s *Store) Sweep() int {
	s.mu.Lock()
	cutoff := s.now().Add(-s.idle)
	removed := 0
	for id, e := range s.sessions {
		if e.lastSeen.Before(cutoff) && !e.ctrl.State().Loading {
			delete(s.sessions, id)
			removed++
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	s.report(n)
	if removed > 0 {
		s.logger.Debug("expired sessions removed", zap.Int("removed", removed), zap.Int("remaining", n))
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store) report(n int) {
	if s.gauge != nil {
		s.gauge.Set(float64(n))
	}
}

// Middleware attaches the caller's controller to the request context,
// creating a session and setting the cookie when there is none.
func (s *Store) Middleware(cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ctrl *form.Controller
			if c, err := r.Cookie(cookieName); err == nil {
				ctrl, _ = s.Get(c.Value)
			}
			if ctrl == nil {
				var id string
				id, ctrl = s.Create()
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, ctrl)))
		})
	}
}

// FromContext returns the controller stored by Middleware.
func FromContext(ctx context.Context) (*form.Controller, bool) {
	ctrl, ok := ctx.Value(contextKey{}).(*form.Controller)
	return ctrl, ok
}
