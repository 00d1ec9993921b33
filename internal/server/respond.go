package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/manash/pixshop/internal/imaging"
	"github.com/manash/pixshop/internal/provider"
	"github.com/manash/pixshop/internal/session"
	"github.com/manash/pixshop/pkg/models"
)

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps a domain error onto a status code.
func respondErr(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNoSession),
		errors.Is(err, session.ErrNothingToUndo),
		errors.Is(err, session.ErrNothingToRedo):
		return http.StatusConflict
	case errors.Is(err, provider.ErrAPIKeyRequired):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrEmptyPrompt),
		errors.Is(err, models.ErrNoImageData),
		errors.Is(err, models.ErrInvalidHotspot),
		errors.Is(err, models.ErrMissingHotspot),
		errors.Is(err, models.ErrUnknownOperation),
		errors.Is(err, models.ErrInvalidDataURL),
		errors.Is(err, imaging.ErrEmptySelection),
		errors.Is(err, imaging.ErrUnsupportedAngle),
		errors.Is(err, imaging.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrRequestBlocked),
		errors.Is(err, provider.ErrGenerationStopped),
		errors.Is(err, provider.ErrNoImageReturned),
		errors.Is(err, provider.ErrNoTextReturned),
		errors.Is(err, provider.ErrAPI),
		errors.Is(err, models.ErrInvalidMesh):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func respondArtifact(w http.ResponseWriter, a *models.Artifact) {
	w.Header().Set("Content-Type", a.MimeType())
	w.Header().Set("Content-Length", strconv.Itoa(a.Size()))
	w.Header().Set("X-Artifact-Name", a.Name())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(a.Bytes()); err != nil {
		log.Warn().Err(err).Msg("failed to write image")
	}
}
