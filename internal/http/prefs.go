package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/kjstillabower/sunshine-wear/internal/observability"
	"github.com/kjstillabower/sunshine-wear/internal/prefs"
	"github.com/kjstillabower/sunshine-wear/internal/validation"
)

// PrefsStore reads and persists the phone user's preferences.
type PrefsStore interface {
	Current() prefs.User
	Save(ctx context.Context, u prefs.User) error
}

type prefsBody struct {
	Location string `json:"location"`
	Units    string `json:"units"`
}

// WithPrefs enables GET/PUT /v1/prefs.
func (h *Handler) WithPrefs(store PrefsStore) *Handler {
	h.prefs = store
	return h
}

// GetPrefs handles GET /v1/prefs.
func (h *Handler) GetPrefs(w http.ResponseWriter, r *http.Request) {
	if h.prefs == nil {
		writeError(w, r, http.StatusNotFound, "PREFS_UNAVAILABLE", "preferences are not stored")
		return
	}
	u := h.prefs.Current()
	writeJSON(w, http.StatusOK, prefsBody{Location: u.Location, Units: string(u.Units)})
}

// PutPrefs handles PUT /v1/prefs. A successful save republishes the forecast
// so the watch picks up new units right away.
func (h *Handler) PutPrefs(w http.ResponseWriter, r *http.Request) {
	if h.prefs == nil {
		writeError(w, r, http.StatusNotFound, "PREFS_UNAVAILABLE", "preferences are not stored")
		return
	}
	var body prefsBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPutBody)).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "body must be a JSON preference object")
		return
	}
	location, err := validation.Location(body.Location)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}
	units, err := prefs.ParseUnits(body.Units)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_UNITS", err.Error())
		return
	}
	u := prefs.User{Location: location, Units: units}
	log := observability.LoggerFrom(r.Context(), h.logger)
	if err := h.prefs.Save(r.Context(), u); err != nil {
		log.Warn("saving preferences failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "PREFS_SAVE_FAILED", "unable to save preferences")
		return
	}
	log.Info("preferences updated", zap.String("location", u.Location), zap.String("units", string(u.Units)))
	if h.publisher != nil {
		if err := h.publisher.Publish(r.Context(), true); err != nil {
			log.Warn("publish after preference change failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, prefsBody{Location: u.Location, Units: string(u.Units)})
}
