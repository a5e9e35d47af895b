package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lakestack/hometrace/internal/appointments"
	"github.com/lakestack/hometrace/internal/auth"
	"github.com/lakestack/hometrace/internal/calendar"
	"github.com/lakestack/hometrace/internal/models"
	"github.com/lakestack/hometrace/internal/repository"
	"github.com/lakestack/hometrace/internal/sessionstore"
)

var testNow = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

type fakeService struct {
	mu      sync.Mutex
	appts   map[uuid.UUID]*models.Appointment
	filters []models.AppointmentFilter
	updates []models.AppointmentUpdate
	created []models.CreateAppointmentRequest
	deleted []uuid.UUID
	cleanup models.CleanupResult
}

func newFakeService(appts ...models.Appointment) *fakeService {
	f := &fakeService{appts: map[uuid.UUID]*models.Appointment{}}
	for i := range appts {
		a := appts[i]
		f.appts[a.ID] = &a
	}
	return f
}

func (f *fakeService) Location() *time.Location { return time.UTC }

func (f *fakeService) Query(_ context.Context, viewer models.Viewer, flt models.AppointmentFilter) ([]models.Appointment, models.Pagination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !viewer.IsAdmin() && !viewer.IsAgent() {
		return nil, models.Pagination{}, appointments.ErrForbidden
	}
	if viewer.IsAgent() {
		flt.AgentID = &viewer.UserID
	}
	f.filters = append(f.filters, flt)
	var out []models.Appointment
	for _, a := range f.appts {
		if flt.AgentID != nil && (a.AgentID == nil || *a.AgentID != *flt.AgentID) {
			continue
		}
		out = append(out, *a)
	}
	return out, models.NewPagination(flt.Page, flt.Limit, len(out)), nil
}

func (f *fakeService) ListForProperty(_ context.Context, propertyID *uuid.UUID, page, limit int) ([]models.Appointment, models.Pagination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Appointment
	for _, a := range f.appts {
		if propertyID == nil || a.PropertyID == *propertyID {
			out = append(out, *a)
		}
	}
	return out, models.NewPagination(page, limit, len(out)), nil
}

func (f *fakeService) Get(_ context.Context, _ models.Viewer, id uuid.UUID) (*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return nil, repository.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeService) Update(_ context.Context, _ models.Viewer, id uuid.UUID, upd models.AppointmentUpdate) (*models.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return nil, repository.ErrAppointmentNotFound
	}
	f.updates = append(f.updates, upd)
	if upd.Status != nil && !models.ValidStatus(*upd.Status) {
		return nil, &appointments.ValidationError{Msg: "Invalid status"}
	}
	if upd.Status != nil {
		a.Status = *upd.Status
	}
	sent := false
	switch {
	case upd.ClearSchedule:
		a.AgentScheduledAt = nil
	case upd.AgentScheduledAt != nil:
		sent = a.AgentScheduledAt == nil || !a.AgentScheduledAt.Equal(*upd.AgentScheduledAt)
		t := upd.AgentScheduledAt.UTC()
		a.AgentScheduledAt = &t
	}
	cp := *a
	return &models.UpdateResult{Appointment: &cp, ProposalEmailSent: sent, AgentScheduledAt: cp.AgentScheduledAt}, nil
}

func (f *fakeService) Create(_ context.Context, req models.CreateAppointmentRequest) (*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := appointments.ValidatePreferredDates(req.PreferredDates); err != nil {
		return nil, err
	}
	f.created = append(f.created, req)
	a := &models.Appointment{
		ID:             uuid.New(),
		PropertyID:     req.PropertyID,
		Customer:       models.Customer{FirstName: req.FirstName, LastName: req.LastName, Email: req.Email, Phone: req.Phone},
		PreferredDates: req.PreferredDates,
		Status:         models.StatusPending,
	}
	f.appts[a.ID] = a
	return a, nil
}

func (f *fakeService) Respond(_ context.Context, id uuid.UUID, action string) (*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var status string
	switch action {
	case "accept":
		status = models.StatusConfirmed
	case "decline":
		status = models.StatusCancelled
	default:
		return nil, appointments.ErrInvalidAction
	}
	a, ok := f.appts[id]
	if !ok {
		return nil, repository.ErrAppointmentNotFound
	}
	if a.AgentScheduledAt == nil {
		return nil, appointments.ErrNoProposedTime
	}
	a.Status = status
	cp := *a
	return &cp, nil
}

func (f *fakeService) Delete(_ context.Context, viewer models.Viewer, id uuid.UUID) error {
	if !viewer.IsAdmin() {
		return appointments.ErrForbidden
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.appts[id]; !ok {
		return repository.ErrAppointmentNotFound
	}
	delete(f.appts, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeService) CleanupLegacy(context.Context) (models.CleanupResult, error) {
	return f.cleanup, nil
}

func (f *fakeService) Stats(_ context.Context, viewer models.Viewer) (models.DashboardStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stats models.DashboardStats
	for _, a := range f.appts {
		if viewer.IsAgent() && (a.AgentID == nil || *a.AgentID != viewer.UserID) {
			continue
		}
		stats.TotalAppointments++
		if a.Status == models.StatusPending {
			stats.PendingAppointments++
		}
	}
	return stats, nil
}

func (f *fakeService) get(id uuid.UUID) models.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.appts[id]
}

type fakeUsers struct {
	byID map[uuid.UUID]*models.User
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{byID: map[uuid.UUID]*models.User{}}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) Create(_ context.Context, u *models.User) error {
	for _, existing := range f.byID {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrEmailTaken
		}
	}
	u.ID = uuid.New()
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUsers) List(_ context.Context, role string) ([]models.User, error) {
	out := []models.User{}
	for _, u := range f.byID {
		if role == "" || u.Role == role {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUsers) Update(_ context.Context, id uuid.UUID, upd models.UserUpdate) (*models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	if upd.Email != nil {
		for _, other := range f.byID {
			if other.ID != id && strings.EqualFold(other.Email, *upd.Email) {
				return nil, repository.ErrEmailTaken
			}
		}
		u.Email = *upd.Email
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.byID[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeProperties struct {
	created []*models.Property
}

func (f *fakeProperties) Create(_ context.Context, p *models.Property) error {
	p.ID = uuid.New()
	f.created = append(f.created, p)
	return nil
}

type testServer struct {
	router   *gin.Engine
	svc      *fakeService
	users    *fakeUsers
	props    *fakeProperties
	jwt      *auth.JWTService
	store    *sessionstore.Memory
	sessions *CalendarSessions
	admin    *models.User
	agent    *models.User
}

func newTestServer(t *testing.T, appts ...models.Appointment) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := auth.HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	ts := &testServer{
		svc:   newFakeService(appts...),
		props: &fakeProperties{},
		jwt:   auth.NewJWTService("test-secret", "hometrace", time.Hour),
		store: sessionstore.NewMemory(),
		admin: &models.User{ID: uuid.New(), Email: "admin@example.com", Role: models.RoleAdmin, FirstName: "Ada", LastName: "Admin", PasswordHash: &hash},
		agent: &models.User{ID: agentID, Email: "agent@example.com", Role: models.RoleAgent, FirstName: "Sam", LastName: "Agent", PasswordHash: &hash},
	}
	ts.users = newFakeUsers(ts.admin, ts.agent)
	ts.sessions = NewCalendarSessions(CalendarSessionsConfig{
		Service:   ts.svc,
		Store:     ts.store,
		WeekStart: time.Sunday,
		TTL:       time.Hour,
		Now:       fixedNow,
		AfterFunc: func(time.Duration, func()) calendar.Timer { return stubTimer{} },
	})
	t.Cleanup(func() { ts.sessions.Close(context.Background()) })

	ts.router = gin.New()
	Register(ts.router, Deps{
		Appointments: ts.svc,
		Users:        ts.users,
		Properties:   ts.props,
		JWT:          ts.jwt,
		Sessions:     ts.sessions,
		PublicURL:    "https://hometrace.example",
	})
	return ts
}

type stubTimer struct{}

func (stubTimer) Stop() bool { return true }

func (ts *testServer) token(t *testing.T, u *models.User) string {
	t.Helper()
	tok, err := ts.jwt.GenerateToken(u.ID, u.Email, u.Role)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func (ts *testServer) do(t *testing.T, method, path string, as *models.User, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+ts.token(t, as))
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body %s", w.Code, want, w.Body.String())
	}
}

var (
	agentID    = uuid.MustParse("7d3c4a4e-3c1f-4d5e-9a0b-1f2e3d4c5b6a")
	propertyID = uuid.MustParse("0b8f6f4c-2a59-4f3e-8d3e-5a1c2b3d4e5f")
)

func ptr[T any](v T) *T { return &v }

func scheduledAppointment(at time.Time) models.Appointment {
	return models.Appointment{
		ID:               uuid.New(),
		PropertyID:       propertyID,
		Property:         &models.PropertySnapshot{ID: propertyID, Address: models.Address{Street: "1 Harbour St", Suburb: "Sydney"}},
		AgentID:          ptr(agentID),
		Customer:         models.Customer{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com", Phone: "0400000000"},
		PreferredDates:   []models.PreferredDate{{Date: "2025-03-10", Time: "10:00"}},
		AgentScheduledAt: ptr(at),
		Status:           models.StatusPending,
	}
}

func candidateAppointment(dates ...models.PreferredDate) models.Appointment {
	a := scheduledAppointment(time.Time{})
	a.AgentScheduledAt = nil
	a.PreferredDates = dates
	return a
}
