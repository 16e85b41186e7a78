package prefs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/sunshine-wear/internal/settings"
)

// Preference keys in the phone's settings file.
const (
	KeyLocation = "location"
	KeyUnits    = "units"
)

// Stored reads preferences from a settings file, falling back to defaults for
// missing or unreadable values.
type Stored struct {
	prefs  *settings.Preferences
	def    User
	logger *zap.Logger
}

func NewStored(p *settings.Preferences, def User, logger *zap.Logger) *Stored {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stored{prefs: p, def: def, logger: logger}
}

func (s *Stored) Current() User {
	u := s.def
	if loc, err := s.prefs.GetString(KeyLocation, s.def.Location); err != nil {
		s.logger.Warn("stored location unreadable", zap.Error(err))
	} else if loc != "" {
		u.Location = loc
	}
	raw, err := s.prefs.GetString(KeyUnits, string(s.def.Units))
	if err != nil {
		s.logger.Warn("stored units unreadable", zap.Error(err))
		return u
	}
	if units, err := ParseUnits(raw); err == nil {
		u.Units = units
	}
	return u
}

// Save validates and persists u.
func (s *Stored) Save(ctx context.Context, u User) error {
	if u.Location == "" {
		return fmt.Errorf("location is required")
	}
	units, err := ParseUnits(string(u.Units))
	if err != nil {
		return err
	}
	return s.prefs.Edit().
		PutString(KeyLocation, u.Location).
		PutString(KeyUnits, string(units)).
		Commit(ctx)
}
