// Package validation checks user-supplied names at the edges: preference
// updates, config and host time zone changes.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	ErrEmpty        = errors.New("value is required")
	ErrTooLong      = errors.New("value too long")
	ErrInvalidChars = errors.New("value contains invalid characters")
)

const (
	MaxLocationLen = 100
	MaxTimeZoneLen = 64
)

// Location trims input and accepts the forecast query forms: a city with
// optional state and country ("Mountain View,CA,US"), a postal code
// ("94043") or a postal code with country ("94043,us").
func Location(input string) (string, error) {
	return check("location", input, MaxLocationLen, func(r rune) bool {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
		return strings.ContainsRune(" ,-.'", r)
	})
}

// TimeZoneName accepts IANA-shaped names such as "America/Los_Angeles" or
// "Etc/GMT+5". Whether the zone exists is left to time.LoadLocation.
func TimeZoneName(input string) (string, error) {
	name, err := check("time zone", input, MaxTimeZoneLen, func(r rune) bool {
		return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("/_-+", r))
	})
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
		return "", fmt.Errorf("time zone: %w", ErrInvalidChars)
	}
	return name, nil
}

func check(what, input string, maxLen int, allowed func(rune) bool) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", fmt.Errorf("%s: %w", what, ErrEmpty)
	}
	if len(r) > maxLen {
		return "", fmt.Errorf("%s: %w (max %d)", what, ErrTooLong, maxLen)
	}
	for _, c := range r {
		if !allowed(c) {
			return "", fmt.Errorf("%s: %w", what, ErrInvalidChars)
		}
	}
	return s, nil
}
