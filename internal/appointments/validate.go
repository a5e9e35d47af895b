package appointments

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/lakestack/hometrace/internal/models"
)

// Business hours for viewings. The last bookable slot starts at 18:45.
const (
	OpeningHour   = 9
	ClosingHour   = 18
	MaxCandidates = models.MaxPreferredDates
	SlotMinutes   = 15
)

var (
	dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRegex = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// ValidationError is returned for malformed input. Item is 1-based and
// zero when the error is not tied to a list item.
type ValidationError struct {
	Item int
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Item > 0 {
		return fmt.Sprintf("%s. Issue with item %d", e.Msg, e.Item)
	}
	return e.Msg
}

// ValidatePreferredDates checks count, format, the quarter-hour grid and
// business hours for every candidate.
func ValidatePreferredDates(dates []models.PreferredDate) error {
	if len(dates) == 0 {
		return &ValidationError{Msg: "At least one preferred date is required"}
	}
	if len(dates) > MaxCandidates {
		return &ValidationError{Msg: fmt.Sprintf("At most %d preferred dates are allowed", MaxCandidates)}
	}

	for i, pd := range dates {
		item := i + 1
		if pd.Date == "" || pd.Time == "" {
			return &ValidationError{Item: item, Msg: "Each preferred date must have date and time"}
		}
		if !dateRegex.MatchString(pd.Date) {
			return &ValidationError{Item: item, Msg: "Invalid date format. Expected YYYY-MM-DD format"}
		}
		if _, err := time.Parse(models.DateLayout, pd.Date); err != nil {
			return &ValidationError{Item: item, Msg: "Invalid calendar date"}
		}
		if !timeRegex.MatchString(pd.Time) {
			return &ValidationError{Item: item, Msg: "Invalid time format. Expected HH:MM format"}
		}
		hours, _ := strconv.Atoi(pd.Time[:2])
		minutes, _ := strconv.Atoi(pd.Time[3:])
		if err := checkWallClock(hours, minutes); err != nil {
			err.Item = item
			return err
		}
	}
	return nil
}

// ValidateScheduledTime checks that an agent-chosen instant falls on the
// quarter-hour grid within business hours in loc.
func ValidateScheduledTime(t time.Time, loc *time.Location) error {
	if t.IsZero() {
		return &ValidationError{Msg: "Invalid agentScheduledDateTime format"}
	}
	local := t.In(loc)
	if local.Second() != 0 || local.Nanosecond() != 0 {
		return &ValidationError{Msg: "Scheduled time must be on a whole minute"}
	}
	if err := checkWallClock(local.Hour(), local.Minute()); err != nil {
		return err
	}
	return nil
}

func checkWallClock(hours, minutes int) *ValidationError {
	if minutes%SlotMinutes != 0 || minutes > 59 {
		return &ValidationError{Msg: "Time must be in 15-minute intervals (e.g., 10:00, 10:15, 10:30, 10:45)"}
	}
	if hours < OpeningHour || hours > ClosingHour {
		return &ValidationError{Msg: "Time must be between 9:00 AM and 6:00 PM"}
	}
	return nil
}
