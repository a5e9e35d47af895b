// Package appointments is the appointment record store: role-scoped
// queries, validated partial updates and the notifications they trigger.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lakestack/hometrace/internal/models"
	"github.com/lakestack/hometrace/internal/notify"
	"go.uber.org/zap"
)

var (
	ErrForbidden      = errors.New("forbidden")
	ErrNoProposedTime = errors.New("no proposed time found for this appointment")
	ErrInvalidAction  = errors.New(`invalid action. Must be "accept" or "decline"`)
	ErrInvalidRange   = errors.New("invalid date range provided")
)

// AppointmentRepository is the persistence the service needs
type AppointmentRepository interface {
	List(ctx context.Context, f models.AppointmentFilter) ([]models.Appointment, int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error)
	Create(ctx context.Context, a *models.Appointment) error
	Update(ctx context.Context, id uuid.UUID, mutate func(*models.Appointment) error) (before, after *models.Appointment, err error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListMissingPreferredDates(ctx context.Context) ([]uuid.UUID, error)
	SetPreferredDates(ctx context.Context, id uuid.UUID, dates []models.PreferredDate) error
	Counts(ctx context.Context, agentID *uuid.UUID) (total, pending int, err error)
}

type PropertyRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Property, error)
	Count(ctx context.Context, agentID *uuid.UUID) (int, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Count(ctx context.Context) (int, error)
}

// Params wires a Service
type Params struct {
	Appointments AppointmentRepository
	Properties   PropertyRepository
	Users        UserRepository
	Notifier     notify.Notifier
	Location     *time.Location
	PublicURL    string
	Log          *zap.Logger
	Now          func() time.Time
}

type Service struct {
	appointments AppointmentRepository
	properties   PropertyRepository
	users        UserRepository
	notifier     notify.Notifier
	loc          *time.Location
	publicURL    string
	log          *zap.Logger
	now          func() time.Time
}

func NewService(p Params) *Service {
	if p.Location == nil {
		p.Location = time.UTC
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Log == nil {
		p.Log = zap.NewNop()
	}
	return &Service{
		appointments: p.Appointments,
		properties:   p.Properties,
		users:        p.Users,
		notifier:     p.Notifier,
		loc:          p.Location,
		publicURL:    p.PublicURL,
		log:          p.Log.Named("appointments"),
		now:          p.Now,
	}
}

// Location is the zone candidate wall-clock times are interpreted in
func (s *Service) Location() *time.Location { return s.loc }

// Query returns the appointments visible to viewer. Agents only ever see
// their own; admins may narrow by agent.
func (s *Service) Query(ctx context.Context, viewer models.Viewer, f models.AppointmentFilter) ([]models.Appointment, models.Pagination, error) {
	switch {
	case viewer.IsAgent():
		f.AgentID = &viewer.UserID
	case viewer.IsAdmin():
	default:
		return nil, models.Pagination{}, ErrForbidden
	}
	if (f.StartDate == nil) != (f.EndDate == nil) {
		return nil, models.Pagination{}, ErrInvalidRange
	}
	if f.StartDate != nil && f.EndDate.Before(*f.StartDate) {
		return nil, models.Pagination{}, ErrInvalidRange
	}
	if f.Limit > 0 && f.Page < 1 {
		f.Page = 1
	}

	list, total, err := s.appointments.List(ctx, f)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return list, models.NewPagination(f.Page, f.Limit, total), nil
}

// ListForProperty is the public, unscoped listing used on property pages
func (s *Service) ListForProperty(ctx context.Context, propertyID *uuid.UUID, page, limit int) ([]models.Appointment, models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	list, total, err := s.appointments.List(ctx, models.AppointmentFilter{PropertyID: propertyID, Page: page, Limit: limit})
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return list, models.NewPagination(page, limit, total), nil
}

// Get returns one appointment if viewer may see it
func (s *Service) Get(ctx context.Context, viewer models.Viewer, id uuid.UUID) (*models.Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(viewer, a) {
		return nil, ErrForbidden
	}
	return a, nil
}

func canManage(viewer models.Viewer, a *models.Appointment) bool {
	if viewer.IsAdmin() {
		return true
	}
	return viewer.IsAgent() && a.AgentID != nil && *a.AgentID == viewer.UserID
}

func (s *Service) validateUpdate(upd models.AppointmentUpdate) error {
	if upd.Status != nil && !models.ValidStatus(*upd.Status) {
		return &ValidationError{Msg: fmt.Sprintf("Invalid status %q", *upd.Status)}
	}
	if upd.PreferredDates != nil {
		if err := ValidatePreferredDates(upd.PreferredDates); err != nil {
			return err
		}
	}
	if upd.AgentScheduledAt != nil {
		if err := ValidateScheduledTime(*upd.AgentScheduledAt, s.loc); err != nil {
			return err
		}
	}
	return nil
}

// Update applies a partial change. A time-proposal email goes out when the
// agent-scheduled time is newly set or changed; its outcome is reported in
// ProposalEmailSent and never fails the update.
func (s *Service) Update(ctx context.Context, viewer models.Viewer, id uuid.UUID, upd models.AppointmentUpdate) (*models.UpdateResult, error) {
	if !viewer.IsAdmin() && !viewer.IsAgent() {
		return nil, ErrForbidden
	}
	if err := s.validateUpdate(upd); err != nil {
		return nil, err
	}

	before, after, err := s.appointments.Update(ctx, id, func(a *models.Appointment) error {
		if !canManage(viewer, a) {
			return ErrForbidden
		}
		if len(a.PreferredDates) == 0 {
			a.PreferredDates = []models.PreferredDate{s.defaultPreferredDate(a)}
			s.log.Warn("repaired appointment without preferred dates", zap.String("appointment_id", a.ID.String()))
		}
		if upd.Status != nil {
			a.Status = *upd.Status
		}
		if upd.Message != nil {
			a.Message = upd.Message
		}
		if upd.PreferredDates != nil {
			a.PreferredDates = upd.PreferredDates
		}
		if upd.ClearSchedule {
			a.AgentScheduledAt = nil
		} else if upd.AgentScheduledAt != nil {
			t := upd.AgentScheduledAt.UTC()
			a.AgentScheduledAt = &t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &models.UpdateResult{Appointment: after, AgentScheduledAt: after.AgentScheduledAt}

	if scheduleChanged(before.AgentScheduledAt, after.AgentScheduledAt) {
		result.ProposalEmailSent = s.sendProposal(ctx, after)
	}
	if upd.SendNotification {
		s.sendUpdate(ctx, after)
	}

	s.log.Info("appointment updated",
		zap.String("appointment_id", id.String()),
		zap.String("status", after.Status),
		zap.Bool("proposal_email_sent", result.ProposalEmailSent))
	return result, nil
}

// scheduleChanged reports whether a new scheduled time was set or an
// existing one moved. Clearing the time does not count.
func scheduleChanged(old, updated *time.Time) bool {
	if updated == nil {
		return false
	}
	return old == nil || !old.Equal(*updated)
}

// defaultPreferredDate derives a single candidate for legacy records: the
// scheduled time if any, else tomorrow at 10:00.
func (s *Service) defaultPreferredDate(a *models.Appointment) models.PreferredDate {
	if a.AgentScheduledAt != nil {
		t := a.AgentScheduledAt.In(s.loc)
		return models.PreferredDate{Date: t.Format(models.DateLayout), Time: t.Format(models.TimeLayout)}
	}
	tomorrow := s.now().In(s.loc).AddDate(0, 0, 1)
	return models.PreferredDate{Date: tomorrow.Format(models.DateLayout), Time: "10:00"}
}

func (s *Service) lookupParties(ctx context.Context, a *models.Appointment) (*models.Property, *models.User, error) {
	property, err := s.properties.GetByID(ctx, a.PropertyID)
	if err != nil {
		return nil, nil, fmt.Errorf("load property: %w", err)
	}
	if a.AgentID == nil {
		return nil, nil, errors.New("appointment has no agent")
	}
	agent, err := s.users.GetByID(ctx, *a.AgentID)
	if err != nil {
		return nil, nil, fmt.Errorf("load agent: %w", err)
	}
	return property, agent, nil
}

func (s *Service) respondURL(id uuid.UUID, action string) string {
	return fmt.Sprintf("%s/api/appointments/%s/respond?action=%s", s.publicURL, id, action)
}

func (s *Service) sendProposal(ctx context.Context, a *models.Appointment) bool {
	property, agent, err := s.lookupParties(ctx, a)
	if err != nil {
		s.log.Warn("skipping time proposal email", zap.String("appointment_id", a.ID.String()), zap.Error(err))
		return false
	}
	err = s.notifier.TimeProposal(ctx, notify.TimeProposalMessage{
		CustomerEmail:   a.Email,
		CustomerName:    a.FullName(),
		AppointmentID:   a.ID,
		PropertyAddress: property.Address.Short(),
		ProposedAt:      *a.AgentScheduledAt,
		AgentName:       agent.FullName(),
		AgentEmail:      agent.Email,
		AcceptURL:       s.respondURL(a.ID, "accept"),
		DeclineURL:      s.respondURL(a.ID, "decline"),
	})
	if err != nil {
		s.log.Warn("time proposal email failed", zap.String("appointment_id", a.ID.String()), zap.Error(err))
		return false
	}
	return true
}

func (s *Service) sendUpdate(ctx context.Context, a *models.Appointment) {
	property, agent, err := s.lookupParties(ctx, a)
	if err != nil {
		s.log.Warn("skipping update email", zap.String("appointment_id", a.ID.String()), zap.Error(err))
		return
	}
	when := a.AgentScheduledAt
	if when == nil && len(a.PreferredDates) > 0 {
		if t, err := a.PreferredDates[0].In(s.loc); err == nil {
			when = &t
		}
	}
	if when == nil {
		return
	}
	err = s.notifier.AppointmentUpdate(ctx, notify.AppointmentUpdateMessage{
		CustomerEmail: a.Email,
		CustomerName:  a.FullName(),
		Appointments: []notify.UpdatedAppointment{{
			AppointmentID:   a.ID,
			PropertyAddress: property.Address.Short(),
			NewDateTime:     *when,
			Status:          a.Status,
			AgentName:       agent.FullName(),
		}},
	})
	if err != nil {
		s.log.Warn("update email failed", zap.String("appointment_id", a.ID.String()), zap.Error(err))
	}
}

// Create records a customer's viewing request. The appointment inherits the
// property's agent, who is notified.
func (s *Service) Create(ctx context.Context, req models.CreateAppointmentRequest) (*models.Appointment, error) {
	if err := ValidatePreferredDates(req.PreferredDates); err != nil {
		return nil, err
	}
	property, err := s.properties.GetByID(ctx, req.PropertyID)
	if err != nil {
		return nil, err
	}

	a := &models.Appointment{
		PropertyID: property.ID,
		Property:   &models.PropertySnapshot{ID: property.ID, Address: property.Address},
		AgentID:    property.AgentID,
		Customer: models.Customer{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Phone:     req.Phone,
		},
		PreferredDates: req.PreferredDates,
		Status:         models.StatusPending,
		Message:        req.Message,
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, err
	}

	if property.AgentID != nil {
		if agent, err := s.users.GetByID(ctx, *property.AgentID); err != nil {
			s.log.Warn("agent lookup failed", zap.String("appointment_id", a.ID.String()), zap.Error(err))
		} else {
			msg := ""
			if req.Message != nil {
				msg = *req.Message
			}
			err := s.notifier.NewAppointment(ctx, notify.NewAppointmentMessage{
				AgentEmail:      agent.Email,
				AgentName:       agent.FullName(),
				CustomerName:    a.FullName(),
				CustomerEmail:   a.Email,
				CustomerPhone:   a.Phone,
				PropertyAddress: property.Address.Full(),
				PropertyID:      property.ID,
				AppointmentID:   a.ID,
				Times:           a.PreferredDates,
				Message:         msg,
			})
			if err != nil {
				s.log.Warn("new appointment email failed", zap.String("appointment_id", a.ID.String()), zap.Error(err))
			}
		}
	}
	return a, nil
}

// Respond records the customer's answer to a proposed time: accept confirms,
// decline cancels.
func (s *Service) Respond(ctx context.Context, id uuid.UUID, action string) (*models.Appointment, error) {
	var status string
	switch action {
	case "accept":
		status = models.StatusConfirmed
	case "decline":
		status = models.StatusCancelled
	default:
		return nil, ErrInvalidAction
	}

	_, after, err := s.appointments.Update(ctx, id, func(a *models.Appointment) error {
		if a.AgentScheduledAt == nil {
			return ErrNoProposedTime
		}
		a.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	if property, agent, err := s.lookupParties(ctx, after); err == nil {
		err := s.notifier.CustomerResponse(ctx, notify.CustomerResponseMessage{
			AgentEmail:      agent.Email,
			AgentName:       agent.FullName(),
			CustomerName:    after.FullName(),
			CustomerEmail:   after.Email,
			PropertyAddress: property.Address.Short(),
			ScheduledAt:     *after.AgentScheduledAt,
			Status:          after.Status,
		})
		if err != nil {
			s.log.Warn("customer response email failed", zap.String("appointment_id", id.String()), zap.Error(err))
		}
	}
	return after, nil
}

// Delete removes an appointment. Admin only.
func (s *Service) Delete(ctx context.Context, viewer models.Viewer, id uuid.UUID) error {
	if !viewer.IsAdmin() {
		return ErrForbidden
	}
	return s.appointments.Delete(ctx, id)
}

// Stats counts listings and appointments for the dashboard. Agents get
// their own numbers; only admins see the user count.
func (s *Service) Stats(ctx context.Context, viewer models.Viewer) (models.DashboardStats, error) {
	var agentID *uuid.UUID
	switch {
	case viewer.IsAgent():
		agentID = &viewer.UserID
	case viewer.IsAdmin():
	default:
		return models.DashboardStats{}, ErrForbidden
	}

	var stats models.DashboardStats
	var err error
	if stats.TotalProperties, err = s.properties.Count(ctx, agentID); err != nil {
		return models.DashboardStats{}, fmt.Errorf("count properties: %w", err)
	}
	if stats.TotalAppointments, stats.PendingAppointments, err = s.appointments.Counts(ctx, agentID); err != nil {
		return models.DashboardStats{}, fmt.Errorf("count appointments: %w", err)
	}
	if viewer.IsAdmin() {
		if stats.TotalUsers, err = s.users.Count(ctx); err != nil {
			return models.DashboardStats{}, fmt.Errorf("count users: %w", err)
		}
	}
	return stats, nil
}

// CleanupLegacy gives every appointment without candidate dates a single
// derived one.
func (s *Service) CleanupLegacy(ctx context.Context) (models.CleanupResult, error) {
	ids, err := s.appointments.ListMissingPreferredDates(ctx)
	if err != nil {
		return models.CleanupResult{}, err
	}

	result := models.CleanupResult{TotalProblematic: len(ids)}
	for _, id := range ids {
		a, err := s.appointments.GetByID(ctx, id)
		if err != nil {
			s.log.Warn("cleanup: load failed", zap.String("appointment_id", id.String()), zap.Error(err))
			continue
		}
		if err := s.appointments.SetPreferredDates(ctx, id, []models.PreferredDate{s.defaultPreferredDate(a)}); err != nil {
			s.log.Warn("cleanup: repair failed", zap.String("appointment_id", id.String()), zap.Error(err))
			continue
		}
		result.Fixed++
	}
	s.log.Info("legacy cleanup finished",
		zap.Int("total", result.TotalProblematic),
		zap.Int("fixed", result.Fixed))
	return result, nil
}
