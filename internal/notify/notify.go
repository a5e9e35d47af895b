// Package notify delivers customer and agent emails about viewing
// appointments. Callers treat delivery as best effort.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lakestack/hometrace/internal/models"
)

// Notifier sends appointment emails
type Notifier interface {
	NewAppointment(ctx context.Context, msg NewAppointmentMessage) error
	TimeProposal(ctx context.Context, msg TimeProposalMessage) error
	AppointmentUpdate(ctx context.Context, msg AppointmentUpdateMessage) error
	CustomerResponse(ctx context.Context, msg CustomerResponseMessage) error
}

// NewAppointmentMessage tells an agent about a fresh viewing request
type NewAppointmentMessage struct {
	AgentEmail      string
	AgentName       string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	PropertyAddress string
	PropertyID      uuid.UUID
	AppointmentID   uuid.UUID
	Times           []models.PreferredDate
	Message         string
}

// TimeProposalMessage asks a customer to accept or decline an agent's time
type TimeProposalMessage struct {
	CustomerEmail   string
	CustomerName    string
	AppointmentID   uuid.UUID
	PropertyAddress string
	ProposedAt      time.Time
	AgentName       string
	AgentEmail      string
	AcceptURL       string
	DeclineURL      string
}

// UpdatedAppointment is one line of an update email
type UpdatedAppointment struct {
	AppointmentID   uuid.UUID
	PropertyAddress string
	NewDateTime     time.Time
	Status          string
	AgentName       string
}

// AppointmentUpdateMessage summarises changed appointments for a customer
type AppointmentUpdateMessage struct {
	CustomerEmail string
	CustomerName  string
	Appointments  []UpdatedAppointment
}

// CustomerResponseMessage tells the agent how the customer answered
type CustomerResponseMessage struct {
	AgentEmail      string
	AgentName       string
	CustomerName    string
	CustomerEmail   string
	PropertyAddress string
	ScheduledAt     time.Time
	Status          string
}
