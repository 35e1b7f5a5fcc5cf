// Package ticker handles race market ticker parsing, validation, and
// derivation of the betting deadline from the race date.
package ticker

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// DefaultStartHourUTC is the assumed race start when a ticker carries
// only a date. Bets close when the race starts.
const DefaultStartHourUTC = 14

// tickerRegex matches: RACE-{event}-{YYYYMMDD}
// Example: RACE-MONACO-20260307
var tickerRegex = regexp.MustCompile(
	`^RACE-([A-Z0-9]{3,24})-(\d{8})$`,
)

var (
	ErrInvalidTicker = errors.New("ticker: invalid ticker format")
	ErrInvalidDate   = errors.New("ticker: invalid race date")
)

// Race represents a parsed race market ticker.
type Race struct {
	Ticker   string    `json:"ticker"`
	Event    string    `json:"event"`
	RaceDate time.Time `json:"race_date"`
}

// Parse parses and validates a race market ticker string.
// Format: RACE-{event}-{YYYYMMDD}
func Parse(ticker string) (*Race, error) {
	matches := tickerRegex.FindStringSubmatch(ticker)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected RACE-{event}-{YYYYMMDD})",
			ErrInvalidTicker, ticker)
	}

	event := matches[1]
	dateStr := matches[2]

	raceDate, err := time.Parse("20060102", dateStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDate, dateStr)
	}

	return &Race{
		Ticker:   ticker,
		Event:    event,
		RaceDate: raceDate,
	}, nil
}

// EndTime returns the betting deadline for the race: race day at
// startHourUTC. Pass DefaultStartHourUTC unless the event publishes a
// different start.
func (r *Race) EndTime(startHourUTC int) time.Time {
	if startHourUTC < 0 || startHourUTC > 23 {
		startHourUTC = DefaultStartHourUTC
	}
	return time.Date(
		r.RaceDate.Year(), r.RaceDate.Month(), r.RaceDate.Day(),
		startHourUTC, 0, 0, 0, time.UTC,
	)
}
