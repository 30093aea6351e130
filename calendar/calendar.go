package calendar

import (
	"sync"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
)

// Calendar does business day arithmetic for a single jurisdiction. A business day is any weekday
// that isn't in the jurisdiction's holiday set for that year.
type Calendar struct {
	holidays []*cal.Holiday
	extra    map[civilDate]bool
	derived  []func(year int) []time.Time

	m     sync.Mutex
	years map[int]map[civilDate]bool
}

type civilDate struct {
	y int
	m time.Month
	d int
}

func dateOf(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{y, m, d}
}

// Texas state holidays that are observed by state agencies in addition to the federal ones.
var (
	ConfederateHeroesDay   = &cal.Holiday{Name: "Confederate Heroes Day", Month: time.January, Day: 19, Func: cal.CalcDayOfMonth}
	IndependenceDayTexas   = &cal.Holiday{Name: "Texas Independence Day", Month: time.March, Day: 2, Func: cal.CalcDayOfMonth}
	SanJacintoDay          = &cal.Holiday{Name: "San Jacinto Day", Month: time.April, Day: 21, Func: cal.CalcDayOfMonth}
	EmancipationDayTexas   = &cal.Holiday{Name: "Emancipation Day In Texas", Month: time.June, Day: 19, Func: cal.CalcDayOfMonth}
	LyndonBainesJohnsonDay = &cal.Holiday{Name: "Lyndon Baines Johnson Day", Month: time.August, Day: 27, Func: cal.CalcDayOfMonth}
	ChristmasEve           = &cal.Holiday{Name: "Christmas Eve", Month: time.December, Day: 24, Func: cal.CalcDayOfMonth}
	DayAfterChristmas      = &cal.Holiday{Name: "Day After Christmas", Month: time.December, Day: 26, Func: cal.CalcDayOfMonth}
)

// New returns a calendar using the given holidays. extra holds additional one-off closures.
func New(holidays []*cal.Holiday, extra []time.Time) *Calendar {
	c := &Calendar{
		holidays: holidays,
		extra:    make(map[civilDate]bool),
		years:    make(map[int]map[civilDate]bool),
	}

	for _, e := range extra {
		c.extra[dateOf(e)] = true
	}

	return c
}

// Texas returns the calendar used by Texas public bodies: federal holidays plus the state ones.
func Texas(extra []time.Time) *Calendar {
	c := New([]*cal.Holiday{
		us.NewYear,
		us.MlkDay,
		us.PresidentsDay,
		us.MemorialDay,
		us.Juneteenth,
		us.IndependenceDay,
		us.LaborDay,
		us.ColumbusDay,
		us.VeteransDay,
		us.ThanksgivingDay,
		us.ChristmasDay,
		ConfederateHeroesDay,
		IndependenceDayTexas,
		SanJacintoDay,
		EmancipationDayTexas,
		LyndonBainesJohnsonDay,
		ChristmasEve,
		DayAfterChristmas,
	}, extra)

	c.derived = append(c.derived, func(year int) []time.Time {
		thanksgiving, _ := us.ThanksgivingDay.Calc(year)
		return []time.Time{thanksgiving.AddDate(0, 0, 1)}
	})

	return c
}

// holidaysFor returns the set of holiday dates for the given year, computing it on first use.
func (c *Calendar) holidaysFor(year int) map[civilDate]bool {
	c.m.Lock()
	defer c.m.Unlock()

	if set, ok := c.years[year]; ok {
		return set
	}

	set := make(map[civilDate]bool)
	for _, h := range c.holidays {
		actual, observed := h.Calc(year)
		if !actual.IsZero() {
			set[dateOf(actual)] = true
		}
		if !observed.IsZero() {
			set[dateOf(observed)] = true
		}
	}

	for _, f := range c.derived {
		for _, d := range f(year) {
			set[dateOf(d)] = true
		}
	}

	for d := range c.extra {
		if d.y == year {
			set[d] = true
		}
	}

	c.years[year] = set
	return set
}

// IsHoliday tells whether t falls on a holiday in the calendar. The following year is checked too
// because a New Year's Day on a Saturday is observed on the 31st of December.
func (c *Calendar) IsHoliday(t time.Time) bool {
	d := dateOf(t)
	return c.holidaysFor(t.Year())[d] || c.holidaysFor(t.Year() + 1)[d]
}

// IsBusinessDay tells whether t is a weekday that isn't a holiday
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	return !c.IsHoliday(t)
}

// AddBusinessDays walks forward from from one calendar day at a time and returns the date on which
// n business days have passed. The time of day of from is kept. n <= 0 returns from.
func (c *Calendar) AddBusinessDays(n int, from time.Time) time.Time {
	d := from
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if !c.IsBusinessDay(d) {
			continue
		}
		n--
	}

	return d
}

// BusinessDaysBetween counts the business days in (start, end]. It returns 0 when end isn't after start.
func (c *Calendar) BusinessDaysBetween(start, end time.Time) int {
	s := Midnight(start)
	e := Midnight(end)

	count := 0
	for d := s.AddDate(0, 0, 1); !d.After(e); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			count++
		}
	}

	return count
}

// Midnight truncates t to the start of its calendar day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
