// Package present holds read-time projections over cached data: day sections,
// read receipts, clock labels and media classification. Nothing here mutates
// the cache.
package present

import (
	"time"

	"github.com/and161185/sociallink/internal/model"
)

// DaySection is a run of consecutive messages sharing a calendar date.
type DaySection struct {
	Day      time.Time // midnight of the date in the grouping location
	Messages []model.Message
}

// GroupByDay splits a transcript into sections by the calendar date of
// created_at in loc. Input order is preserved; a date that reappears after a
// different one starts a new section. Same input, same output.
func GroupByDay(msgs []model.Message, loc *time.Location) []DaySection {
	if loc == nil {
		loc = time.Local
	}
	var out []DaySection
	for _, m := range msgs {
		d := DayOf(m.CreatedAt, loc)
		if n := len(out); n > 0 && out[n-1].Day.Equal(d) {
			out[n-1].Messages = append(out[n-1].Messages, m)
			continue
		}
		out = append(out, DaySection{Day: d, Messages: []model.Message{m}})
	}
	return out
}

// DayOf returns midnight of t's calendar date in loc.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, mo, d := t.In(loc).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, loc)
}

// DayLabel renders a section header relative to now.
func DayLabel(day, now time.Time) string {
	today := DayOf(now, day.Location())
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	case day.Year() == today.Year():
		return day.Format("Mon, Jan 2")
	default:
		return day.Format("Jan 2, 2006")
	}
}

// FormatClock renders a 12-hour clock label such as "09:41 PM".
func FormatClock(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("03:04 PM")
}
