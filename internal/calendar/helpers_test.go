package calendar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lakestack/hometrace/internal/models"
	"go.uber.org/zap"
)

// 2025-03-01 is a Saturday
var testNow = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func candidates(pairs ...string) []models.PreferredDate {
	var out []models.PreferredDate
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.PreferredDate{Date: pairs[i], Time: pairs[i+1]})
	}
	return out
}

func appointment(dates []models.PreferredDate, scheduled *time.Time) models.Appointment {
	return models.Appointment{
		ID:               uuid.New(),
		Customer:         models.Customer{FirstName: "Jane", LastName: "Doe"},
		PreferredDates:   dates,
		AgentScheduledAt: scheduled,
		Status:           models.StatusPending,
	}
}

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

// fakeStore applies updates to an in-memory list
type fakeStore struct {
	mu      sync.Mutex
	order   []uuid.UUID
	byID    map[uuid.UUID]*models.Appointment
	updates []PendingChange
	fail    map[uuid.UUID]error
	loadErr error

	// when set, Update signals started and waits on release
	started chan struct{}
	release chan struct{}
}

func newFakeStore(appts ...models.Appointment) *fakeStore {
	s := &fakeStore{byID: map[uuid.UUID]*models.Appointment{}, fail: map[uuid.UUID]error{}}
	for i := range appts {
		a := appts[i]
		s.order = append(s.order, a.ID)
		s.byID[a.ID] = &a
	}
	return s
}

func (s *fakeStore) Load(context.Context, Window) ([]models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make([]models.Appointment, 0, len(s.order))
	for _, id := range s.order {
		if a, ok := s.byID[id]; ok {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *fakeStore) Update(_ context.Context, ch PendingChange) (UpdateOutcome, error) {
	if s.started != nil {
		s.started <- struct{}{}
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, ch)
	if err := s.fail[ch.AppointmentID]; err != nil {
		return UpdateOutcome{}, err
	}
	a, ok := s.byID[ch.AppointmentID]
	if !ok {
		return UpdateOutcome{}, errors.New("appointment not found")
	}
	sent := a.AgentScheduledAt == nil || !a.AgentScheduledAt.Equal(ch.NewDateTime)
	t := ch.NewDateTime.UTC()
	a.AgentScheduledAt = &t
	if ch.Status != "" {
		a.Status = ch.Status
	}
	return UpdateOutcome{NotificationSent: sent, AgentScheduledAt: &t}, nil
}

func newTestSession(t *testing.T, store Store) *Session {
	t.Helper()
	s := NewSession(Options{
		Store:     store,
		Location:  time.UTC,
		WeekStart: time.Sunday,
		Now:       fixedClock,
		AfterFunc: func(time.Duration, func()) Timer { return stubTimer{} },
		Log:       zap.NewNop(),
	})
	if err := s.Load(context.Background(), nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

type stubTimer struct{}

func (stubTimer) Stop() bool { return true }

func countFor(events []Event, id uuid.UUID) int {
	n := 0
	for _, ev := range events {
		if ev.AppointmentID() == id {
			n++
		}
	}
	return n
}
