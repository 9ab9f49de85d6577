package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"carebridge/internal/models"

	"github.com/go-chi/chi/v5"
)

const (
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   models.Kind `json:"error"`
	Message string      `json:"message"`
}

var statusByKind = map[models.Kind]int{
	models.KindNotFound:                 http.StatusNotFound,
	models.KindUnavailable:              http.StatusConflict,
	models.KindOutOfRange:               http.StatusUnprocessableEntity,
	models.KindSelfConflict:             http.StatusConflict,
	models.KindSlotTaken:                http.StatusConflict,
	models.KindIllegalTransition:        http.StatusConflict,
	models.KindCancellationWindowPassed: http.StatusConflict,
	models.KindForbidden:                http.StatusForbidden,
	models.KindValidation:               http.StatusBadRequest,
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps err to a status code. Internal errors are logged and
// answered without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := models.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		s.logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: models.KindInternal, Message: "internal error"})
		return
	}
	writeJSON(w, status, ErrorResponse{Error: kind, Message: err.Error()})
}

func decode(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", models.ErrValidation, err)
	}
	return nil
}

// actorFrom reads the identity set by the gateway in front of the service.
func actorFrom(r *http.Request) (models.Actor, error) {
	rawID, rawRole := r.Header.Get(headerActorID), r.Header.Get(headerActorRole)
	if rawID == "" || rawRole == "" {
		return models.Actor{}, fmt.Errorf("%w: %s and %s headers are required", models.ErrValidation, headerActorID, headerActorRole)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: %s must be an integer", models.ErrValidation, headerActorID)
	}
	role, err := models.ParseRole(rawRole)
	if err != nil {
		return models.Actor{}, err
	}
	return models.Actor{ID: id, Role: role}, nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", models.ErrValidation, name)
	}
	return id, nil
}

// dateQuery parses an optional YYYY-MM-DD query parameter.
func dateQuery(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
