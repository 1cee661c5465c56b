package dialer

import (
	"testing"
	"time"

	"github.com/acme/outbound-dialer/internal/config"
)

func TestWindowContains(t *testing.T) {
	w, err := ParseWindow(config.CallingHours{TimeZone: "UTC", Start: "09:00", End: "17:00", Days: []string{"monday"}})
	if err != nil {
		t.Fatalf("parse window: %v", err)
	}

	mondayMorning := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if !w.Contains(mondayMorning) {
		t.Fatalf("expected %v to be within calling hours", mondayMorning)
	}

	mondayNight := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	if w.Contains(mondayNight) {
		t.Fatalf("expected %v to be outside calling hours", mondayNight)
	}

	tuesdayMorning := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	if w.Contains(tuesdayMorning) {
		t.Fatalf("expected %v to be outside calling hours (wrong day)", tuesdayMorning)
	}
}

func TestWindowSpanningMidnight(t *testing.T) {
	w, err := ParseWindow(config.CallingHours{TimeZone: "UTC", Start: "22:00", End: "02:00", Days: []string{"mon"}})
	if err != nil {
		t.Fatalf("parse window: %v", err)
	}

	night := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	if !w.Contains(night) {
		t.Fatalf("expected %v to be within cross-midnight window", night)
	}

	earlyMorning := time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC)
	if !w.Contains(earlyMorning) {
		t.Fatalf("expected %v to be within cross-midnight window", earlyMorning)
	}

	sundayNight := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	if w.Contains(sundayNight) {
		t.Fatalf("expected %v to be outside window opened on Sunday", sundayNight)
	}
}

func TestWindowUsesTimeZone(t *testing.T) {
	w, err := ParseWindow(config.CallingHours{TimeZone: "Europe/Madrid", Start: "09:00", End: "21:00"})
	if err != nil {
		t.Fatalf("parse window: %v", err)
	}
	// 08:30 UTC in January is 09:30 in Madrid.
	if !w.Contains(time.Date(2024, 1, 3, 8, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected Madrid morning to be open")
	}
	// 20:30 UTC is 21:30 in Madrid.
	if w.Contains(time.Date(2024, 1, 3, 20, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected Madrid evening to be closed")
	}
}

func TestParseWindowDisabled(t *testing.T) {
	w, err := ParseWindow(config.CallingHours{})
	if err != nil {
		t.Fatalf("parse window: %v", err)
	}
	if !w.Contains(time.Now()) {
		t.Fatalf("expected nil window to always be open")
	}
}

func TestParseWindowRejectsBadInput(t *testing.T) {
	if _, err := ParseWindow(config.CallingHours{Start: "9am", End: "17:00"}); err == nil {
		t.Fatalf("expected bad start to fail")
	}
	if _, err := ParseWindow(config.CallingHours{Start: "09:00", End: "17:00", Days: []string{"funday"}}); err == nil {
		t.Fatalf("expected unknown day to fail")
	}
	if _, err := ParseWindow(config.CallingHours{TimeZone: "Mars/Olympus", Start: "09:00", End: "17:00"}); err == nil {
		t.Fatalf("expected unknown zone to fail")
	}
}
