package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lakestack/hometrace/internal/calendar"
	"github.com/lakestack/hometrace/internal/models"
	"github.com/lakestack/hometrace/internal/sessionstore"
	"go.uber.org/zap"
)

// serviceStore adapts the appointment service to one viewer's calendar
type serviceStore struct {
	svc    AppointmentService
	viewer models.Viewer
}

func (s serviceStore) Load(ctx context.Context, w calendar.Window) ([]models.Appointment, error) {
	list, _, err := s.svc.Query(ctx, s.viewer, models.AppointmentFilter{StartDate: w.From, EndDate: w.To})
	return list, err
}

func (s serviceStore) Update(ctx context.Context, ch calendar.PendingChange) (calendar.UpdateOutcome, error) {
	at := ch.NewDateTime
	upd := models.AppointmentUpdate{AgentScheduledAt: &at}
	if ch.Status != "" {
		status := ch.Status
		upd.Status = &status
	}
	res, err := s.svc.Update(ctx, s.viewer, ch.AppointmentID, upd)
	if err != nil {
		return calendar.UpdateOutcome{}, err
	}
	return calendar.UpdateOutcome{NotificationSent: res.ProposalEmailSent, AgentScheduledAt: res.AgentScheduledAt}, nil
}

// CalendarSessions keeps one live calendar session per user and mirrors
// each session's snapshot into a session store.
type CalendarSessions struct {
	mu   sync.Mutex
	live map[uuid.UUID]*calendar.Session

	svc       AppointmentService
	store     sessionstore.Store
	weekStart time.Weekday
	ttl       time.Duration
	now       func() time.Time
	afterFunc calendar.AfterFunc
	log       *zap.Logger
}

type CalendarSessionsConfig struct {
	Service   AppointmentService
	Store     sessionstore.Store
	WeekStart time.Weekday
	TTL       time.Duration
	Now       func() time.Time
	AfterFunc calendar.AfterFunc
	Log       *zap.Logger
}

func NewCalendarSessions(cfg CalendarSessionsConfig) *CalendarSessions {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CalendarSessions{
		live:      make(map[uuid.UUID]*calendar.Session),
		svc:       cfg.Service,
		store:     cfg.Store,
		weekStart: cfg.WeekStart,
		ttl:       cfg.TTL,
		now:       cfg.Now,
		afterFunc: cfg.AfterFunc,
		log:       cfg.Log.Named("calendar_sessions"),
	}
}

// Get returns the viewer's session, creating it from the stored snapshot
// and loading it on first use.
func (r *CalendarSessions) Get(ctx context.Context, viewer models.Viewer) (*calendar.Session, error) {
	r.mu.Lock()
	if s, ok := r.live[viewer.UserID]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	s := calendar.NewSession(calendar.Options{
		Store:     serviceStore{svc: r.svc, viewer: viewer},
		Location:  r.svc.Location(),
		WeekStart: r.weekStart,
		Now:       r.now,
		AfterFunc: r.afterFunc,
		Log:       r.log.With(zap.String("user_id", viewer.UserID.String())),
		OnChange: func(s *calendar.Session) {
			r.Persist(context.Background(), viewer.UserID, s)
		},
	})

	snap, err := r.store.Get(ctx, viewer.UserID)
	if err != nil {
		r.log.Warn("session snapshot unavailable", zap.String("user_id", viewer.UserID.String()), zap.Error(err))
	} else if snap != nil {
		s.Restore(*snap)
	}
	if err := s.Load(ctx, nil); err != nil {
		s.Close()
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.live[viewer.UserID]; ok {
		s.Close()
		return existing, nil
	}
	r.live[viewer.UserID] = s
	return s, nil
}

// Persist stores the session snapshot. Failures are logged only.
func (r *CalendarSessions) Persist(ctx context.Context, userID uuid.UUID, s *calendar.Session) {
	if err := r.store.Put(ctx, userID, s.Snapshot(), r.ttl); err != nil {
		r.log.Warn("persist session snapshot", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// Discard drops the live session and its stored snapshot
func (r *CalendarSessions) Discard(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	s, ok := r.live[userID]
	delete(r.live, userID)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
	return r.store.Delete(ctx, userID)
}

// Close stops every live session, persisting each one first
func (r *CalendarSessions) Close(ctx context.Context) {
	r.mu.Lock()
	live := r.live
	r.live = make(map[uuid.UUID]*calendar.Session)
	r.mu.Unlock()

	for userID, s := range live {
		r.Persist(ctx, userID, s)
		s.Close()
	}
}
