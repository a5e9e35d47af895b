package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lakestack/hometrace/internal/models"
	"go.uber.org/zap"
)

var (
	ErrSaveInProgress = errors.New("a save is already in progress")
	ErrNothingToSave  = errors.New("no changes to save")
)

// SaveTimeout bounds one batch save together with the reload that follows it
const SaveTimeout = 2 * time.Minute

// Window bounds the appointments a session loads. Zero means everything
// visible to the viewer.
type Window struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// UpdateOutcome is what the store reports for one applied change
type UpdateOutcome struct {
	NotificationSent bool
	AgentScheduledAt *time.Time
}

// Store is the appointment store as the calendar sees it
type Store interface {
	Load(ctx context.Context, w Window) ([]models.Appointment, error)
	Update(ctx context.Context, change PendingChange) (UpdateOutcome, error)
}

// Failure is one change the store rejected
type Failure struct {
	AppointmentID uuid.UUID `json:"appointmentId"`
	Error         string    `json:"error"`
}

// Summary aggregates a batch save into one user-facing result
type Summary struct {
	AppointmentsUpdated int       `json:"appointmentsUpdated"`
	NotificationsSent   int       `json:"notificationsSent"`
	Failed              int       `json:"failed"`
	Failures            []Failure `json:"failures,omitempty"`
	Message             string    `json:"message"`
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func summaryMessage(updated, sent, failed int) string {
	if updated == 0 {
		if failed > 0 {
			return "Failed to save changes"
		}
		return "No changes to save"
	}
	msg := fmt.Sprintf("%d %s updated successfully", updated, plural(updated, "appointment"))
	if sent > 0 {
		msg += fmt.Sprintf(" and %d proposal %s sent to %s", sent, plural(sent, "email"), plural(sent, "customer"))
	}
	if failed > 0 {
		msg += fmt.Sprintf("; %d %s failed", failed, plural(failed, "update"))
	}
	return msg
}

// Coordinator applies a batch of pending changes one at a time. Only one
// batch may run at once.
type Coordinator struct {
	store  Store
	log    *zap.Logger
	saving atomic.Bool
}

func NewCoordinator(store Store, log *zap.Logger) *Coordinator {
	return &Coordinator{store: store, log: log.Named("save")}
}

// Saving reports whether a batch is running
func (c *Coordinator) Saving() bool { return c.saving.Load() }

func (c *Coordinator) begin() bool { return c.saving.CompareAndSwap(false, true) }

func (c *Coordinator) end() { c.saving.Store(false) }

// apply sends every change in order. A failed change does not stop the
// batch. The changes that the store accepted are returned alongside the
// summary.
func (c *Coordinator) apply(ctx context.Context, changes []PendingChange) (Summary, []PendingChange) {
	var (
		sum     Summary
		applied []PendingChange
	)
	for _, ch := range changes {
		out, err := c.store.Update(ctx, ch)
		if err != nil {
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{AppointmentID: ch.AppointmentID, Error: err.Error()})
			c.log.Warn("appointment update failed",
				zap.String("appointment_id", ch.AppointmentID.String()),
				zap.Error(err))
			continue
		}
		sum.AppointmentsUpdated++
		if out.NotificationSent {
			sum.NotificationsSent++
		}
		applied = append(applied, ch)
	}
	sum.Message = summaryMessage(sum.AppointmentsUpdated, sum.NotificationsSent, sum.Failed)
	c.log.Info("calendar changes saved",
		zap.Int("updated", sum.AppointmentsUpdated),
		zap.Int("notifications", sum.NotificationsSent),
		zap.Int("failed", sum.Failed))
	return sum, applied
}
