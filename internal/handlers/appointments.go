package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lakestack/hometrace/internal/appointments"
	"github.com/lakestack/hometrace/internal/middleware"
	"github.com/lakestack/hometrace/internal/models"
)

// AppointmentService is the appointment store as seen by the HTTP layer
type AppointmentService interface {
	Location() *time.Location
	Query(ctx context.Context, viewer models.Viewer, f models.AppointmentFilter) ([]models.Appointment, models.Pagination, error)
	ListForProperty(ctx context.Context, propertyID *uuid.UUID, page, limit int) ([]models.Appointment, models.Pagination, error)
	Get(ctx context.Context, viewer models.Viewer, id uuid.UUID) (*models.Appointment, error)
	Update(ctx context.Context, viewer models.Viewer, id uuid.UUID, upd models.AppointmentUpdate) (*models.UpdateResult, error)
	Create(ctx context.Context, req models.CreateAppointmentRequest) (*models.Appointment, error)
	Respond(ctx context.Context, id uuid.UUID, action string) (*models.Appointment, error)
	Delete(ctx context.Context, viewer models.Viewer, id uuid.UUID) error
	CleanupLegacy(ctx context.Context) (models.CleanupResult, error)
	Stats(ctx context.Context, viewer models.Viewer) (models.DashboardStats, error)
}

const defaultPageSize = 20

func viewerFrom(c *gin.Context) (models.Viewer, bool) {
	viewer, ok := middleware.GetViewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return models.Viewer{}, false
	}
	return viewer, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name, "details": err.Error()})
		return uuid.Nil, false
	}
	return id, true
}

func pageParams(c *gin.Context) (page, limit int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit < 1 {
		limit = defaultPageSize
	}
	return page, limit
}

// parseDay accepts YYYY-MM-DD (interpreted in loc) or RFC 3339. A bare
// date used as an upper bound covers the whole day.
func parseDay(value string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if t, err := time.ParseInLocation(models.DateLayout, value, loc); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

// CreateAppointment handles the public viewing request form
func CreateAppointment(svc AppointmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CreateAppointmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields", "details": err.Error()})
			return
		}

		appt, err := svc.Create(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, appt)
	}
}

// ListAppointments is the public listing, optionally for one property
func ListAppointments(svc AppointmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit := pageParams(c)

		var propertyID *uuid.UUID
		if raw := c.Query("propertyId"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid propertyId", "details": err.Error()})
				return
			}
			propertyID = &id
		}

		list, pagination, err := svc.ListForProperty(c.Request.Context(), propertyID, page, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": list, "pagination": pagination})
	}
}

var respondPage = template.Must(template.New("respond").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Appointment Response - HomeTrace</title>
</head>
<body>
  <h1>{{.Heading}}</h1>
  <p>{{.Text}}</p>
  <p><strong>Status:</strong> {{.Status}}</p>
  <p><strong>Time:</strong> {{.When}}</p>
  <p><a href="{{.ReturnURL}}">Return to HomeTrace</a></p>
</body>
</html>
`))

type respondPageData struct {
	Heading   string
	Text      string
	Status    string
	When      string
	ReturnURL string
}

// RespondToAppointment records a customer's accept or decline from the
// link in a time-proposal email and renders a confirmation page.
func RespondToAppointment(svc AppointmentService, publicURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		action := c.Query("action")

		appt, err := svc.Respond(c.Request.Context(), id, action)
		if err != nil {
			respondError(c, err)
			return
		}

		data := respondPageData{
			Heading:   "Appointment Confirmed!",
			Text:      "Thank you for confirming your appointment. We look forward to seeing you!",
			Status:    strings.ToUpper(appt.Status),
			ReturnURL: publicURL,
		}
		if action == "decline" {
			data.Heading = "Appointment Declined"
			data.Text = "Your appointment has been cancelled. If you would like to reschedule, please contact your agent directly."
		}
		if appt.AgentScheduledAt != nil {
			data.When = appt.AgentScheduledAt.In(svc.Location()).Format("Monday, 2 January 2006 at 3:04 PM")
		}

		var buf bytes.Buffer
		if err := respondPage.Execute(&buf, data); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render page", "details": err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
	}
}

// AdminListAppointments lists appointments for agents and admins.
// Agents always see only their own.
func AdminListAppointments(svc AppointmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, ok := viewerFrom(c)
		if !ok {
			return
		}
		page, limit := pageParams(c)
		f := models.AppointmentFilter{
			Status: c.Query("status"),
			Search: strings.TrimSpace(c.Query("search")),
			Page:   page,
			Limit:  limit,
		}
		if f.Status == "all" {
			f.Status = ""
		}

		if raw := c.Query("agentId"); raw != "" && raw != "all" && viewer.IsAdmin() {
			id, err := uuid.Parse(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid agentId", "details": err.Error()})
				return
			}
			f.AgentID = &id
		}

		if start, end := c.Query("startDate"), c.Query("endDate"); start != "" && end != "" {
			loc := svc.Location()
			from, err1 := parseDay(start, loc, false)
			to, err2 := parseDay(end, loc, true)
			if err1 != nil || err2 != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date range provided"})
				return
			}
			f.StartDate, f.EndDate = &from, &to
		}

		list, pagination, err := svc.Query(c.Request.Context(), viewer, f)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": list, "pagination": pagination})
	}
}

// AdminGetAppointment returns one appointment
func AdminGetAppointment(svc AppointmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, ok := viewerFrom(c)
		if !ok {
			return
		}
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		appt, err := svc.Get(c.Request.Context(), viewer, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": appt})
	}
}

// UpdateAppointmentRequest is the PATCH body. agentScheduledDateTime is kept
// raw so an explicit null can clear the time.
type UpdateAppointmentRequest struct {
	Status                 *string                `json:"status"`
	Message                *string                `json:"message"`
	CustomerPreferredDates []models.PreferredDate `json:"customerPreferredDates"`
	AgentScheduledDateTime json.RawMessage        `json:"agentScheduledDateTime"`
	SendNotification       bool                   `json:"sendNotification"`
}

func (r UpdateAppointmentRequest) toUpdate() (models.AppointmentUpdate, error) {
	upd := models.AppointmentUpdate{
		Status:           r.Status,
		Message:          r.Message,
		PreferredDates:   r.CustomerPreferredDates,
		SendNotification: r.SendNotification,
	}
	switch raw := bytes.TrimSpace(r.AgentScheduledDateTime); {
	case len(raw) == 0:
	case bytes.Equal(raw, []byte("null")):
		upd.ClearSchedule = true
	default:
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			return upd, err
		}
		upd.AgentScheduledAt = &t
	}
	return upd, nil
}

// AdminUpdateAppointment applies a partial update and reports whether a
// time proposal went out to the customer.
func AdminUpdateAppointment(svc AppointmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, ok := viewerFrom(c)
		if !ok {
			return
		}
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
			return
		}
		upd, err := req.toUpdate()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid agentScheduledDateTime", "details": err.Error()})
			return
		}

		result, err := svc.Update(c.Request.Context(), viewer, id, upd)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":                true,
			"data":                   result.Appointment,
			"proposalEmailSent":      result.ProposalEmailSent,
			"agentScheduledDateTime": result.AgentScheduledAt,
		})
	}
}

// AdminDeleteAppointment removes an appointment
func AdminDeleteAppointment(svc AppointmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, ok := viewerFrom(c)
		if !ok {
			return
		}
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		if err := svc.Delete(c.Request.Context(), viewer, id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Appointment deleted successfully"})
	}
}

// CleanupAppointments repairs legacy appointments on demand
func CleanupAppointments(svc AppointmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := svc.CleanupLegacy(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":          true,
			"message":          "Cleanup completed",
			"totalProblematic": result.TotalProblematic,
			"fixed":            result.Fixed,
			"deleted":          result.Deleted,
		})
	}
}

// DashboardStats returns the caller's dashboard counts
func DashboardStats(svc AppointmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, ok := viewerFrom(c)
		if !ok {
			return
		}
		stats, err := svc.Stats(c.Request.Context(), viewer)
		if errors.Is(err, appointments.ErrForbidden) {
			respondError(c, err)
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to fetch statistics", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
	}
}
