package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lakestack/hometrace/internal/appointments"
	"github.com/lakestack/hometrace/internal/calendar"
	"github.com/lakestack/hometrace/internal/repository"
)

// respondError maps domain errors onto HTTP status codes
func respondError(c *gin.Context, err error) {
	var verr *appointments.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, appointments.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
	case errors.Is(err, repository.ErrAppointmentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Appointment not found"})
	case errors.Is(err, repository.ErrPropertyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
	case errors.Is(err, repository.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, appointments.ErrInvalidAction):
		c.JSON(http.StatusBadRequest, gin.H{"error": `Invalid action. Must be "accept" or "decline"`})
	case errors.Is(err, appointments.ErrNoProposedTime):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No proposed time found for this appointment"})
	case errors.Is(err, appointments.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date range provided"})
	case errors.Is(err, calendar.ErrSaveInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "A save is already in progress"})
	case errors.Is(err, calendar.ErrEventNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found", "details": err.Error()})
	case errors.Is(err, calendar.ErrNothingToSave),
		errors.Is(err, calendar.ErrNoActiveDrag),
		errors.Is(err, calendar.ErrInvalidSlot),
		errors.Is(err, calendar.ErrInvalidDay),
		errors.Is(err, calendar.ErrInvalidStatus),
		errors.Is(err, calendar.ErrBadEventID),
		errors.Is(err, calendar.ErrUnknownNavAction):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "details": err.Error()})
	}
}
