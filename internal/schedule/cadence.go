package schedule

import (
	"fmt"
	"time"

	"mindagrowAPI/config"
)

// Cadence decides when a job fires next.
type Cadence interface {
	Next(now time.Time) time.Time
	String() string
}

// Daily fires once per UTC day at Hour:Minute.
type Daily struct {
	Hour   int
	Minute int
}

func DailyAt(clock string) (Daily, error) {
	h, m, err := config.ParseClock(clock)
	if err != nil {
		return Daily{}, err
	}
	return Daily{Hour: h, Minute: m}, nil
}

func (d Daily) Next(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), d.Hour, d.Minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (d Daily) String() string {
	return fmt.Sprintf("daily at %02d:%02d UTC", d.Hour, d.Minute)
}

// Every fires at a fixed interval from the previous check.
type Every time.Duration

func (e Every) Next(now time.Time) time.Time {
	return now.Add(time.Duration(e))
}

func (e Every) String() string {
	return "every " + time.Duration(e).String()
}
