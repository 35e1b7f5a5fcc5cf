package ticker

import (
	"testing"
	"time"
)

func TestParse_Valid(t *testing.T) {
	r, err := Parse("RACE-MONACO-20260307")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Event != "MONACO" {
		t.Errorf("expected event=MONACO, got %s", r.Event)
	}
	expected := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	if !r.RaceDate.Equal(expected) {
		t.Errorf("expected race date=%v, got %v", expected, r.RaceDate)
	}
}

func TestParse_InvalidFormat(t *testing.T) {
	tests := []string{
		"",
		"INVALID",
		"RACE-MONACO",
		"RACE-MONACO-notadate",
		"RACE-monaco-20260307",        // lowercase event
		"RACE-MO-20260307",            // event too short
		"BET-MONACO-20260307",         // wrong prefix
		"RACE-MONACO-20260307-EXTRA",  // trailing segment
	}
	for _, tk := range tests {
		if _, err := Parse(tk); err == nil {
			t.Errorf("expected error for ticker %q", tk)
		}
	}
}

func TestParse_InvalidDate(t *testing.T) {
	_, err := Parse("RACE-MONACO-20261345")
	if err == nil {
		t.Error("expected error for month 13")
	}
}

func TestEndTime_DefaultStart(t *testing.T) {
	r, err := Parse("RACE-SUZUKA-20260412")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	end := r.EndTime(DefaultStartHourUTC)
	expected := time.Date(2026, 4, 12, 14, 0, 0, 0, time.UTC)
	if !end.Equal(expected) {
		t.Errorf("expected end=%v, got %v", expected, end)
	}
}

func TestEndTime_ClampsBadHour(t *testing.T) {
	r, _ := Parse("RACE-SUZUKA-20260412")
	if got := r.EndTime(27); got.Hour() != DefaultStartHourUTC {
		t.Errorf("out-of-range hour should fall back to default, got %v", got)
	}
}
