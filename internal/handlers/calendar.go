package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lakestack/hometrace/internal/calendar"
	"github.com/lakestack/hometrace/internal/icsexport"
)

// requestError marks a body or query the handler could not parse
type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }

func badRequest(err error) error { return &requestError{err: err} }

type calendarOp func(c *gin.Context, s *calendar.Session) (gin.H, error)

// calendarHandler resolves the caller's session, runs op, persists the
// session and answers with the refreshed view plus any extra fields.
func calendarHandler(reg *CalendarSessions, op calendarOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, ok := viewerFrom(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		s, err := reg.Get(ctx, viewer)
		if err != nil {
			respondError(c, err)
			return
		}

		extra, err := op(c, s)
		if err != nil {
			var rerr *requestError
			if errors.As(err, &rerr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": rerr.Error()})
				return
			}
			respondError(c, err)
			return
		}
		reg.Persist(context.WithoutCancel(ctx), viewer.UserID, s)

		resp := gin.H{"success": true, "data": s.View()}
		for k, v := range extra {
			resp[k] = v
		}
		c.JSON(http.StatusOK, resp)
	}
}

func eventRefParam(c *gin.Context) (calendar.EventRef, error) {
	return calendar.ParseEventRef(c.Param("eventId"))
}

// CalendarView returns the displayed week, staging area and pending changes
func CalendarView(reg *CalendarSessions) gin.HandlerFunc {
	return calendarHandler(reg, func(*gin.Context, *calendar.Session) (gin.H, error) {
		return nil, nil
	})
}

type calendarLoadRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// CalendarLoad reloads appointments, optionally for a new date window.
// An empty body keeps the current window.
func CalendarLoad(reg *CalendarSessions) gin.HandlerFunc {
	return calendarHandler(reg, func(c *gin.Context, s *calendar.Session) (gin.H, error) {
		var req calendarLoadRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				return nil, badRequest(err)
			}
		}
		if (req.From == "") != (req.To == "") {
			return nil, badRequest(errors.New("from and to must be given together"))
		}

		var window *calendar.Window
		if req.From != "" {
			loc := reg.svc.Location()
			from, err := parseDay(req.From, loc, false)
			if err != nil {
				return nil, badRequest(err)
			}
			to, err := parseDay(req.To, loc, true)
			if err != nil {
				return nil, badRequest(err)
			}
			if to.Before(from) {
				return nil, badRequest(errors.New("invalid date range provided"))
			}
			window = &calendar.Window{From: &from, To: &to}
		}
		return nil, s.Load(c.Request.Context(), window)
	})
}

type calendarNavigateRequest struct {
	Action string `json:"action" binding:"required"`
	Date   string `json:"date"`
	Weeks  int    `json:"weeks"`
}

// CalendarNavigate moves the displayed week
func CalendarNavigate(reg *CalendarSessions) gin.HandlerFunc {
	return calendarHandler(reg, func(c *gin.Context, s *calendar.Session) (gin.H, error) {
		var req calendarNavigateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, badRequest(err)
		}
		var target time.Time
		if calendar.NavAction(req.Action) == calendar.NavJump {
			t, err := parseDay(req.Date, reg.svc.Location(), false)
			if err != nil {
				return nil, badRequest(err)
			}
			target = t
		}
		anchor, err := s.Navigate(calendar.NavAction(req.Action), target, req.Weeks)
		if err != nil {
			return nil, err
		}
		return gin.H{"anchor": anchor}, nil
	})
}

type dragStartRequest struct {
	EventID string `json:"eventId" binding:"required"`
}

// DragStart picks up an event from the grid or the staging area
func DragStart(reg *CalendarSessions) gin.HandlerFunc {
	return calendarHandler(reg, func(c *gin.Context, s *calendar.Session) (gin.H, error) {
		var req dragStartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, badRequest(err)
		}
		ref, err := calendar.ParseEventRef(req.EventID)
		if err != nil {
			return nil, err
		}
		return nil, s.StartDrag(ref)
	})
}

type dragHoverRequest struct {
	Day *int `json:"day" binding:"required"`
}

// DragHover reports the day column under the dragged event. Resting on
// the first or last column turns the week after a delay.
func DragHover(reg *CalendarSessions) gin.HandlerFunc {
	return calendarHandler(reg, func(c *gin.Context, s *calendar.Session) (gin.H, error) {
		var req dragHoverRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, badRequest(err)
		}
		return nil, s.Hover(*req.Day)
	})
}

// DragLeave reports that the pointer left the grid
func DragLeave(reg *CalendarSessions) gin.HandlerFunc {
	return calendarHandler(reg, func(_ *gin.Context, s *calendar.Session) (gin.H, error) {
		s.Leave()
		return nil, nil
	})
}

type dragDropRequest struct {
	Day  *int `json:"day" binding:"required"`
	Slot *int `json:"slot" binding:"required"`
}

// DragDrop releases the dragged event onto a grid cell of the shown week
func DragDrop(reg *CalendarSessions) gin.HandlerFunc {
	return calendarHandler(reg, func(c *gin.Context, s *calendar.Session) (gin.H, error) {
		var req dragDropRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, badRequest(err)
		}
		result, err := s.Drop(*req.Day, *req.Slot)
		if err != nil {
			return nil, err
		}
		return gin.H{"result": result.String()}, nil
	})
}

// DragToStaging parks the dragged event in the staging area
func DragToStaging(reg *CalendarSessions) gin.HandlerFunc {
	return calendarHandler(reg, func(_ *gin.Context, s *calendar.Session) (gin.H, error) {
		return nil, s.DropToStaging()
	})
}

// DragCancel abandons the current drag
func DragCancel(reg *CalendarSessions) gin.HandlerFunc {
	return calendarHandler(reg, func(_ *gin.Context, s *calendar.Session) (gin.H, error) {
		s.CancelDrag()
		return nil, nil
	})
}

type eventStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ChangeEventStatus records a status edit for a grid event
func ChangeEventStatus(reg *CalendarSessions) gin.HandlerFunc {
	return calendarHandler(reg, func(c *gin.Context, s *calendar.Session) (gin.H, error) {
		ref, err := eventRefParam(c)
		if err != nil {
			return nil, err
		}
		var req eventStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, badRequest(err)
		}
		return nil, s.ChangeStatus(ref, req.Status)
	})
}

// RemoveFromStaging drops a staged entry without saving anything
func RemoveFromStaging(reg *CalendarSessions) gin.HandlerFunc {
	return calendarHandler(reg, func(c *gin.Context, s *calendar.Session) (gin.H, error) {
		ref, err := eventRefParam(c)
		if err != nil {
			return nil, err
		}
		return nil, s.RemoveFromStaging(ref)
	})
}

// SaveCalendar pushes every pending change to the appointment store
func SaveCalendar(reg *CalendarSessions) gin.HandlerFunc {
	return calendarHandler(reg, func(c *gin.Context, s *calendar.Session) (gin.H, error) {
		summary, err := s.Save(c.Request.Context())
		if err != nil {
			return nil, err
		}
		return gin.H{"summary": summary, "message": summary.Message}, nil
	})
}

// DiscardCalendar throws away the caller's session, unsaved edits included
func DiscardCalendar(reg *CalendarSessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, ok := viewerFrom(c)
		if !ok {
			return
		}
		if err := reg.Discard(c.Request.Context(), viewer.UserID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// CalendarICS exports one week of the caller's calendar as iCalendar.
// ?week=YYYY-MM-DD picks the week containing that day.
func CalendarICS(reg *CalendarSessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, ok := viewerFrom(c)
		if !ok {
			return
		}
		s, err := reg.Get(c.Request.Context(), viewer)
		if err != nil {
			respondError(c, err)
			return
		}

		anchor := s.Anchor()
		if raw := c.Query("week"); raw != "" {
			day, err := parseDay(raw, reg.svc.Location(), false)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid week", "details": err.Error()})
				return
			}
			anchor = calendar.StartOfWeek(day.In(reg.svc.Location()), reg.weekStart)
		}

		body := icsexport.Week(anchor, s.Events(), reg.now())
		c.Header("Content-Disposition", `attachment; filename="hometrace-`+anchor.Format("2006-01-02")+`.ics"`)
		c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(body))
	}
}
