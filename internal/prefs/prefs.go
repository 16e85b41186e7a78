// Package prefs holds the phone user's location and unit preferences and
// formats temperatures for display.
package prefs

import (
	"fmt"
	"math"
	"strings"
)

// Units is the temperature unit system.
type Units string

const (
	Metric   Units = "metric"
	Imperial Units = "imperial"
)

// ParseUnits accepts "metric" or "imperial" (case-insensitive).
func ParseUnits(s string) (Units, error) {
	switch Units(strings.ToLower(strings.TrimSpace(s))) {
	case Metric:
		return Metric, nil
	case Imperial:
		return Imperial, nil
	}
	return "", fmt.Errorf("unknown units %q", s)
}

// User is the active preference set for the phone.
type User struct {
	Location string
	Units    Units
}

// FormatTemperature renders a Celsius reading as a whole-degree string, for
// example "21°". Imperial converts to Fahrenheit first. Halves round away from zero.
func FormatTemperature(celsius float64, units Units) string {
	t := celsius
	if units == Imperial {
		t = celsius*9/5 + 32
	}
	t = math.Round(t)
	if t == 0 {
		t = 0 // drop negative zero
	}
	return fmt.Sprintf("%.0f°", t)
}

// Source supplies the current user preferences.
type Source interface {
	Current() User
}

// Static is a fixed Source.
type Static User

func (s Static) Current() User { return User(s) }
