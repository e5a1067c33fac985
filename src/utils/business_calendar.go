package utils

import (
	"log"
	"time"

	"github.com/scmhub/calendar"
)

// BusinessCalendar answers whether a periodic recompute should run on a given
// day. Deployments that do not want weekend/holiday refreshes pick a market
// calendar by MIC code (ISO 10383); without one we fall back to Mon-Fri.
type BusinessCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

func NewBusinessCalendar(mic string) *BusinessCalendar {
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		// Fallback to xnys if the MIC is unknown
		cal = calendar.GetCalendar("xnys")
	}

	if cal == nil {
		log.Printf("WARNING: Failed to load calendar for MIC '%s' and fallback 'xnys'. Using simple Mon-Fri fallback.", mic)
		return &BusinessCalendar{Fallback: true, Timezone: time.UTC}
	}

	return &BusinessCalendar{Calendar: cal, Fallback: false, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (bc *BusinessCalendar) IsBusinessDay(date time.Time) bool {
	// Normalize to timezone if available
	if bc.Timezone != nil {
		date = date.In(bc.Timezone)
	}

	if bc.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return bc.Calendar.IsBusinessDay(date)
}
