package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"linkkeeper/internal/apperr"
)

type errResponse struct {
	Error  string       `json:"error"`
	Fields []fieldError `json:"fields,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

func writeJSON(w http.ResponseWriter, log logrus.FieldLogger, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("json encode failed")
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, log logrus.FieldLogger, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, log, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConstraintViolation):
		writeJSON(w, log, http.StatusConflict, errorBody("already saved"))
	case errors.Is(err, apperr.ErrInvalidURL), errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, log, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrStorageUnavailable):
		writeJSON(w, log, http.StatusServiceUnavailable, errorBody("storage unavailable"))
	default:
		log.WithError(err).WithField("op", op).Error("Request failed")
		writeJSON(w, log, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
