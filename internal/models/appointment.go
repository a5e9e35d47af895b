package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Appointment statuses
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Date and time layouts used for customer preferred dates
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// MaxPreferredDates caps how many candidate times a customer may submit
const MaxPreferredDates = 3

// ValidStatus reports whether s is one of the appointment statuses
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// PreferredDate is a customer-submitted candidate date/time
type PreferredDate struct {
	Date string `json:"date" db:"date"` // YYYY-MM-DD
	Time string `json:"time" db:"time"` // HH:MM
}

// In resolves the candidate to a wall-clock instant in loc
func (p PreferredDate) In(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, p.Date+" "+p.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid preferred date %s %s: %w", p.Date, p.Time, err)
	}
	return t, nil
}

// Customer holds the contact details of the person requesting a viewing
type Customer struct {
	FirstName string `json:"firstName" db:"first_name"`
	LastName  string `json:"lastName" db:"last_name"`
	Email     string `json:"email" db:"email"`
	Phone     string `json:"phone" db:"phone"`
}

// FullName returns "First Last"
func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// PropertySnapshot is the address-bearing part of a property used for display
type PropertySnapshot struct {
	ID      uuid.UUID `json:"id"`
	Address Address   `json:"address"`
}

// Appointment is a viewing request for a property
type Appointment struct {
	ID               uuid.UUID         `json:"id" db:"id"`
	PropertyID       uuid.UUID         `json:"propertyId" db:"property_id"`
	Property         *PropertySnapshot `json:"property,omitempty"`
	AgentID          *uuid.UUID        `json:"agentId,omitempty" db:"agent_id"`
	Customer                           // first/last/email/phone
	PreferredDates   []PreferredDate   `json:"customerPreferredDates"`
	AgentScheduledAt *time.Time        `json:"agentScheduledDateTime,omitempty" db:"agent_scheduled_at"`
	Status           string            `json:"status" db:"status"`
	Message          *string           `json:"message,omitempty" db:"message"`
	CreatedAt        time.Time         `json:"createdAt" db:"created_at"`
}

// PropertyAddress returns "street, suburb" or a placeholder when the
// property reference is unresolved
func (a *Appointment) PropertyAddress() string {
	if a.Property == nil || a.Property.Address.Street == "" {
		return "Property address not available"
	}
	return a.Property.Address.Short()
}

// AppointmentFilter narrows an appointment query
type AppointmentFilter struct {
	AgentID    *uuid.UUID
	PropertyID *uuid.UUID
	Status     string
	Search     string
	StartDate  *time.Time
	EndDate    *time.Time
	Page       int
	Limit      int // 0 means unpaged
}

// Pagination is returned alongside paged queries
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalCount  int  `json:"totalCount"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// NewPagination computes page metadata from a total count
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalCount:  total,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

// AppointmentUpdate is a partial update. Nil fields are left untouched.
// ClearSchedule removes the agent-scheduled time.
type AppointmentUpdate struct {
	Status           *string         `json:"status,omitempty"`
	Message          *string         `json:"message,omitempty"`
	PreferredDates   []PreferredDate `json:"customerPreferredDates,omitempty"`
	AgentScheduledAt *time.Time      `json:"agentScheduledDateTime,omitempty"`
	ClearSchedule    bool            `json:"-"`
	SendNotification bool            `json:"sendNotification,omitempty"`
}

// UpdateResult reports the outcome of a store update
type UpdateResult struct {
	Appointment       *Appointment `json:"data"`
	ProposalEmailSent bool         `json:"proposalEmailSent"`
	AgentScheduledAt  *time.Time   `json:"agentScheduledDateTime"`
}

// CreateAppointmentRequest is the public viewing request body
type CreateAppointmentRequest struct {
	PropertyID     uuid.UUID       `json:"propertyId" binding:"required"`
	FirstName      string          `json:"firstName" binding:"required"`
	LastName       string          `json:"lastName" binding:"required"`
	Email          string          `json:"email" binding:"required"`
	Phone          string          `json:"phone" binding:"required"`
	PreferredDates []PreferredDate `json:"customerPreferredDates" binding:"required"`
	Message        *string         `json:"message,omitempty"`
}

// CleanupResult summarises a legacy data repair run
type CleanupResult struct {
	TotalProblematic int `json:"totalProblematic"`
	Fixed            int `json:"fixed"`
	Deleted          int `json:"deleted"`
}

// DashboardStats are the headline counts on the admin dashboard. Agents see
// only their own listings and appointments, and no user count.
type DashboardStats struct {
	TotalProperties     int `json:"totalProperties"`
	TotalAppointments   int `json:"totalAppointments"`
	PendingAppointments int `json:"pendingAppointments"`
	TotalUsers          int `json:"totalUsers"`
}
