package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lakestack/hometrace/internal/models"
	"github.com/lakestack/hometrace/internal/notify"
	"github.com/lakestack/hometrace/internal/repository"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeAppointments struct {
	byID       map[uuid.UUID]*models.Appointment
	lastFilter models.AppointmentFilter
}

func newFakeAppointments(list ...*models.Appointment) *fakeAppointments {
	f := &fakeAppointments{byID: map[uuid.UUID]*models.Appointment{}}
	for _, a := range list {
		f.byID[a.ID] = a
	}
	return f
}

func clone(a *models.Appointment) *models.Appointment {
	c := *a
	c.PreferredDates = append([]models.PreferredDate(nil), a.PreferredDates...)
	return &c
}

func (f *fakeAppointments) List(_ context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	f.lastFilter = filter
	var out []models.Appointment
	for _, a := range f.byID {
		if filter.AgentID != nil && (a.AgentID == nil || *a.AgentID != *filter.AgentID) {
			continue
		}
		out = append(out, *clone(a))
	}
	return out, len(out), nil
}

func (f *fakeAppointments) GetByID(_ context.Context, id uuid.UUID) (*models.Appointment, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrAppointmentNotFound
	}
	return clone(a), nil
}

func (f *fakeAppointments) Create(_ context.Context, a *models.Appointment) error {
	a.ID = uuid.New()
	f.byID[a.ID] = clone(a)
	return nil
}

func (f *fakeAppointments) Update(_ context.Context, id uuid.UUID, mutate func(*models.Appointment) error) (*models.Appointment, *models.Appointment, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, nil, repository.ErrAppointmentNotFound
	}
	before := clone(a)
	after := clone(a)
	if err := mutate(after); err != nil {
		return nil, nil, err
	}
	f.byID[id] = clone(after)
	return before, after, nil
}

func (f *fakeAppointments) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.byID[id]; !ok {
		return repository.ErrAppointmentNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeAppointments) ListMissingPreferredDates(context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, a := range f.byID {
		if len(a.PreferredDates) == 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeAppointments) SetPreferredDates(_ context.Context, id uuid.UUID, dates []models.PreferredDate) error {
	a, ok := f.byID[id]
	if !ok {
		return repository.ErrAppointmentNotFound
	}
	a.PreferredDates = dates
	return nil
}

func (f *fakeAppointments) Counts(_ context.Context, agentID *uuid.UUID) (int, int, error) {
	total, pending := 0, 0
	for _, a := range f.byID {
		if agentID != nil && (a.AgentID == nil || *a.AgentID != *agentID) {
			continue
		}
		total++
		if a.Status == models.StatusPending {
			pending++
		}
	}
	return total, pending, nil
}

type fakeProperties map[uuid.UUID]*models.Property

func (f fakeProperties) Count(_ context.Context, agentID *uuid.UUID) (int, error) {
	n := 0
	for _, p := range f {
		if agentID == nil || (p.AgentID != nil && *p.AgentID == *agentID) {
			n++
		}
	}
	return n, nil
}

func (f fakeProperties) GetByID(_ context.Context, id uuid.UUID) (*models.Property, error) {
	if p, ok := f[id]; ok {
		return p, nil
	}
	return nil, repository.ErrPropertyNotFound
}

type fakeUsers map[uuid.UUID]*models.User

func (f fakeUsers) Count(context.Context) (int, error) { return len(f), nil }

func (f fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

type recordingNotifier struct {
	err       error
	created   []notify.NewAppointmentMessage
	proposals []notify.TimeProposalMessage
	updates   []notify.AppointmentUpdateMessage
	responses []notify.CustomerResponseMessage
}

func (n *recordingNotifier) NewAppointment(_ context.Context, m notify.NewAppointmentMessage) error {
	n.created = append(n.created, m)
	return n.err
}

func (n *recordingNotifier) TimeProposal(_ context.Context, m notify.TimeProposalMessage) error {
	n.proposals = append(n.proposals, m)
	return n.err
}

func (n *recordingNotifier) AppointmentUpdate(_ context.Context, m notify.AppointmentUpdateMessage) error {
	n.updates = append(n.updates, m)
	return n.err
}

func (n *recordingNotifier) CustomerResponse(_ context.Context, m notify.CustomerResponseMessage) error {
	n.responses = append(n.responses, m)
	return n.err
}

type fixture struct {
	svc      *Service
	appts    *fakeAppointments
	notifier *recordingNotifier
	logs     *observer.ObservedLogs
	agent    *models.User
	other    *models.User
	property *models.Property
	appt     *models.Appointment
}

var fixedNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	agent := &models.User{ID: uuid.New(), Email: "sam@hometrace.test", FirstName: "Sam", LastName: "Agent", Role: models.RoleAgent}
	other := &models.User{ID: uuid.New(), Email: "kim@hometrace.test", FirstName: "Kim", LastName: "Agent", Role: models.RoleAgent}
	property := &models.Property{
		ID:      uuid.New(),
		Address: models.Address{Street: "1 George St", Suburb: "Sydney", State: "NSW", Postcode: "2000"},
		AgentID: &agent.ID,
	}
	appt := &models.Appointment{
		ID:             uuid.New(),
		PropertyID:     property.ID,
		AgentID:        &agent.ID,
		Customer:       models.Customer{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com", Phone: "0400"},
		PreferredDates: []models.PreferredDate{{Date: "2025-03-11", Time: "10:00"}},
		Status:         models.StatusPending,
	}

	core, logs := observer.New(zapcore.InfoLevel)
	appts := newFakeAppointments(appt)
	notifier := &recordingNotifier{}
	svc := NewService(Params{
		Appointments: appts,
		Properties:   fakeProperties{property.ID: property},
		Users:        fakeUsers{agent.ID: agent, other.ID: other},
		Notifier:     notifier,
		Location:     time.UTC,
		PublicURL:    "https://hometrace.test",
		Log:          zap.New(core),
		Now:          func() time.Time { return fixedNow },
	})
	return &fixture{svc, appts, notifier, logs, agent, other, property, appt}
}

func (f *fixture) agentViewer() models.Viewer {
	return models.Viewer{UserID: f.agent.ID, Role: models.RoleAgent}
}

func TestQueryScopesAgents(t *testing.T) {
	f := newFixture(t)
	otherID := f.other.ID
	_, _, err := f.svc.Query(context.Background(), f.agentViewer(), models.AppointmentFilter{AgentID: &otherID})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if f.appts.lastFilter.AgentID == nil || *f.appts.lastFilter.AgentID != f.agent.ID {
		t.Fatal("agent query must be forced to the agent's own id")
	}

	_, _, err = f.svc.Query(context.Background(), models.Viewer{Role: models.RoleCustomer}, models.AppointmentFilter{})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for customers, got %v", err)
	}
}

func TestQueryRejectsBadRange(t *testing.T) {
	f := newFixture(t)
	start := fixedNow
	end := fixedNow.Add(-time.Hour)
	_, _, err := f.svc.Query(context.Background(), models.Viewer{Role: models.RoleAdmin},
		models.AppointmentFilter{StartDate: &start, EndDate: &end})
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestUpdateSendsProposalWhenScheduleSet(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC)

	res, err := f.svc.Update(context.Background(), f.agentViewer(), f.appt.ID, models.AppointmentUpdate{AgentScheduledAt: &at})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !res.ProposalEmailSent {
		t.Fatal("expected proposal email")
	}
	if res.AgentScheduledAt == nil || !res.AgentScheduledAt.Equal(at) {
		t.Fatalf("unexpected scheduled time %v", res.AgentScheduledAt)
	}
	if len(f.notifier.proposals) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(f.notifier.proposals))
	}
	p := f.notifier.proposals[0]
	want := "https://hometrace.test/api/appointments/" + f.appt.ID.String() + "/respond?action=accept"
	if p.AcceptURL != want {
		t.Fatalf("accept url = %q, want %q", p.AcceptURL, want)
	}

	// same time again is not a change
	res, err = f.svc.Update(context.Background(), f.agentViewer(), f.appt.ID, models.AppointmentUpdate{AgentScheduledAt: &at})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.ProposalEmailSent || len(f.notifier.proposals) != 1 {
		t.Fatal("unchanged schedule must not send another proposal")
	}
}

func TestUpdateNotificationFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")
	at := time.Date(2025, 3, 11, 14, 15, 0, 0, time.UTC)

	res, err := f.svc.Update(context.Background(), f.agentViewer(), f.appt.ID, models.AppointmentUpdate{AgentScheduledAt: &at})
	if err != nil {
		t.Fatalf("Update should succeed, got %v", err)
	}
	if res.ProposalEmailSent {
		t.Fatal("ProposalEmailSent must be false when delivery failed")
	}
	if f.logs.FilterMessage("time proposal email failed").Len() != 1 {
		t.Fatal("delivery failure should be logged")
	}
	stored := f.appts.byID[f.appt.ID]
	if stored.AgentScheduledAt == nil || !stored.AgentScheduledAt.Equal(at) {
		t.Fatal("update must persist despite email failure")
	}
}

func TestUpdateRejectsOtherAgents(t *testing.T) {
	f := newFixture(t)
	status := models.StatusConfirmed
	_, err := f.svc.Update(context.Background(), models.Viewer{UserID: f.other.ID, Role: models.RoleAgent},
		f.appt.ID, models.AppointmentUpdate{Status: &status})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if f.appts.byID[f.appt.ID].Status != models.StatusPending {
		t.Fatal("forbidden update must not change the record")
	}
}

func TestUpdateValidates(t *testing.T) {
	f := newFixture(t)
	bad := "archived"
	off := time.Date(2025, 3, 11, 14, 10, 0, 0, time.UTC)
	late := time.Date(2025, 3, 11, 19, 0, 0, 0, time.UTC)

	for name, upd := range map[string]models.AppointmentUpdate{
		"status":    {Status: &bad},
		"off grid":  {AgentScheduledAt: &off},
		"too late":  {AgentScheduledAt: &late},
		"bad dates": {PreferredDates: []models.PreferredDate{{Date: "2025-3-11", Time: "10:00"}}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Update(context.Background(), f.agentViewer(), f.appt.ID, upd)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestUpdateRepairsLegacyRecord(t *testing.T) {
	f := newFixture(t)
	f.appts.byID[f.appt.ID].PreferredDates = nil
	status := models.StatusConfirmed

	res, err := f.svc.Update(context.Background(), models.Viewer{Role: models.RoleAdmin}, f.appt.ID, models.AppointmentUpdate{Status: &status})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	got := res.Appointment.PreferredDates
	if len(got) != 1 || got[0] != (models.PreferredDate{Date: "2025-03-11", Time: "10:00"}) {
		t.Fatalf("expected tomorrow 10:00, got %+v", got)
	}
}

func TestUpdateSendNotification(t *testing.T) {
	f := newFixture(t)
	status := models.StatusConfirmed
	_, err := f.svc.Update(context.Background(), f.agentViewer(), f.appt.ID,
		models.AppointmentUpdate{Status: &status, SendNotification: true})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(f.notifier.updates) != 1 {
		t.Fatalf("expected update email, got %d", len(f.notifier.updates))
	}
	line := f.notifier.updates[0].Appointments[0]
	if line.Status != models.StatusConfirmed || line.PropertyAddress != "1 George St, Sydney" {
		t.Fatalf("unexpected update line %+v", line)
	}
}

func TestCreateInheritsAgent(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.Create(context.Background(), models.CreateAppointmentRequest{
		PropertyID:     f.property.ID,
		FirstName:      "Lee",
		LastName:       "Buyer",
		Email:          "lee@example.com",
		Phone:          "0411",
		PreferredDates: []models.PreferredDate{{Date: "2025-03-12", Time: "09:30"}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.AgentID == nil || *a.AgentID != f.agent.ID {
		t.Fatal("appointment should inherit the property's agent")
	}
	if a.Status != models.StatusPending {
		t.Fatalf("status = %q", a.Status)
	}
	if len(f.notifier.created) != 1 || f.notifier.created[0].AgentEmail != f.agent.Email {
		t.Fatal("agent should be notified")
	}
}

func TestCreateUnknownProperty(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), models.CreateAppointmentRequest{
		PropertyID:     uuid.New(),
		PreferredDates: []models.PreferredDate{{Date: "2025-03-12", Time: "09:30"}},
	})
	if !errors.Is(err, repository.ErrPropertyNotFound) {
		t.Fatalf("expected ErrPropertyNotFound, got %v", err)
	}
}

func TestRespond(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Respond(context.Background(), f.appt.ID, "accept"); !errors.Is(err, ErrNoProposedTime) {
		t.Fatalf("expected ErrNoProposedTime, got %v", err)
	}
	if _, err := f.svc.Respond(context.Background(), f.appt.ID, "maybe"); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}

	at := time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC)
	f.appts.byID[f.appt.ID].AgentScheduledAt = &at

	a, err := f.svc.Respond(context.Background(), f.appt.ID, "decline")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if a.Status != models.StatusCancelled {
		t.Fatalf("status = %q", a.Status)
	}
	if len(f.notifier.responses) != 1 || f.notifier.responses[0].AgentEmail != f.agent.Email {
		t.Fatal("agent should hear about the response")
	}
}

func TestDeleteAdminOnly(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.Delete(context.Background(), f.agentViewer(), f.appt.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := f.svc.Delete(context.Background(), models.Viewer{Role: models.RoleAdmin}, f.appt.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := f.appts.byID[f.appt.ID]; ok {
		t.Fatal("appointment should be gone")
	}
}

func TestCleanupLegacy(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2025, 3, 14, 15, 45, 0, 0, time.UTC)
	legacy := &models.Appointment{ID: uuid.New(), PropertyID: f.property.ID, AgentScheduledAt: &at, Status: models.StatusPending}
	f.appts.byID[legacy.ID] = legacy

	res, err := f.svc.CleanupLegacy(context.Background())
	if err != nil {
		t.Fatalf("CleanupLegacy: %v", err)
	}
	if res.TotalProblematic != 1 || res.Fixed != 1 || res.Deleted != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	got := f.appts.byID[legacy.ID].PreferredDates
	if len(got) != 1 || got[0] != (models.PreferredDate{Date: "2025-03-14", Time: "15:45"}) {
		t.Fatalf("expected date derived from schedule, got %+v", got)
	}
}

func TestStatsScopesAgents(t *testing.T) {
	f := newFixture(t)
	theirs := clone(f.appt)
	theirs.ID = uuid.New()
	theirs.AgentID = &f.other.ID
	theirs.Status = models.StatusConfirmed
	f.appts.byID[theirs.ID] = theirs

	stats, err := f.svc.Stats(context.Background(), f.agentViewer())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := models.DashboardStats{TotalProperties: 1, TotalAppointments: 1, PendingAppointments: 1}
	if stats != want {
		t.Fatalf("agent stats = %+v, want %+v", stats, want)
	}

	stats, err = f.svc.Stats(context.Background(), models.Viewer{Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want = models.DashboardStats{TotalProperties: 1, TotalAppointments: 2, PendingAppointments: 1, TotalUsers: 2}
	if stats != want {
		t.Fatalf("admin stats = %+v, want %+v", stats, want)
	}

	if _, err := f.svc.Stats(context.Background(), models.Viewer{Role: models.RoleCustomer}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
