// Package icsexport renders a calendar week as an iCalendar feed
package icsexport

import (
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/lakestack/hometrace/internal/calendar"
	"github.com/lakestack/hometrace/internal/models"
)

const productID = "-//hometrace//viewing calendar//EN"

func objectStatus(status string) ical.ObjectStatus {
	switch status {
	case models.StatusConfirmed:
		return ical.ObjectStatusConfirmed
	case models.StatusCancelled:
		return ical.ObjectStatusCancelled
	}
	return ical.ObjectStatusTentative
}

// Week serialises every event starting in the seven days from anchor,
// including ones hidden behind an overflow marker on the grid.
func Week(anchor time.Time, events []calendar.Event, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	end := anchor.AddDate(0, 0, calendar.DaysPerWeek)
	for _, ev := range events {
		if ev.Start.Before(anchor) || !ev.Start.Before(end) {
			continue
		}
		vev := cal.AddEvent(ev.Ref.DisplayID() + "@hometrace")
		vev.SetDtStampTime(stamp)
		vev.SetStartAt(ev.Start)
		vev.SetEndAt(ev.End())
		vev.SetSummary("Viewing: " + ev.CustomerName)
		vev.SetLocation(ev.PropertyAddress)
		vev.SetStatus(objectStatus(ev.Status))
		if ev.IsOriginal {
			vev.SetDescription("Customer preferred time")
		} else {
			vev.SetDescription("Agent scheduled time")
		}
	}
	return cal.Serialize()
}
