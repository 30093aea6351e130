package foia

import (
	"sort"
	"time"

	"github.com/newsapps/foiatracker/calendar"
)

// Status is where a request stands after an event
type Status string

// Request statuses
const (
	Pending                   Status = "pending"
	Kicked                    Status = "kicked"
	Denied                    Status = "denied"
	ReleasedByATG             Status = "relatg"
	PartiallyReleasedByAgency Status = "paragc"
	ReleasedByAgency          Status = "relagc"
	Withdrawn                 Status = "wthdrwn"
	NoRecords                 Status = "norecs"
)

// ResponseDays is how many business days an agency has to respond
const ResponseDays = 11

// ReminderDays is how many business days after sending the default reminder goes out
const ReminderDays = 10

var statusLabels = map[Status]string{
	Pending:                   "Awaiting agency response",
	Kicked:                    "Kicked to attorney general",
	Denied:                    "Denied by attorney general",
	ReleasedByATG:             "Released by attorney general",
	PartiallyReleasedByAgency: "Partially released by agency",
	ReleasedByAgency:          "Released by agency",
	NoRecords:                 "No responsive records",
	Withdrawn:                 "Withdrawn",
}

// Statuses lists every status in display order
var Statuses = []Status{Pending, Kicked, Denied, ReleasedByATG, PartiallyReleasedByAgency, ReleasedByAgency, NoRecords, Withdrawn}

// Label returns the human readable status
func (s Status) Label() string {
	return statusLabels[s]
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// IsComplete reports whether no further agency action is expected
func (s Status) IsComplete() bool {
	switch s {
	case Denied, ReleasedByAgency, Withdrawn, NoRecords:
		return true
	}
	return false
}

// SortEvents orders events newest first: by update date, then creation time, then id
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.UpdateDate.Equal(b.UpdateDate) {
			return a.UpdateDate.After(b.UpdateDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

// CurrentStatus returns the status of the latest event. A request without events is pending.
func CurrentStatus(events []Event) (Status, string) {
	if len(events) == 0 {
		return Pending, Pending.Label()
	}

	sorted := make([]Event, len(events))
	copy(sorted, events)
	SortEvents(sorted)

	return sorted[0].Status, sorted[0].Status.Label()
}

// DueDate returns the day the agency's response is due
func DueDate(c *calendar.Calendar, r Request) time.Time {
	return c.AddBusinessDays(ResponseDays, Date(r.Sent))
}

// ElapsedBusinessDays returns how many business days passed between the request being sent and the event
func ElapsedBusinessDays(c *calendar.Calendar, r Request, e Event) int {
	return c.BusinessDaysBetween(Date(r.Sent), Date(e.UpdateDate))
}

// DefaultReminderTime is 10am local time, ReminderDays business days after the request was sent
func DefaultReminderTime(c *calendar.Calendar, r Request, loc *time.Location) time.Time {
	d := c.AddBusinessDays(ReminderDays, Date(r.Sent))
	y, m, day := d.Date()
	return time.Date(y, m, day, 10, 0, 0, 0, loc).UTC()
}
