package api

import (
	"encoding/json"
	"net/http"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
)

// errorEnvelope mirrors spec.md §6's wire format:
// {error: {type, exception_message, status_code}}.
type errorEnvelope struct {
	Error struct {
		Type             string `json:"type"`
		ExceptionMessage string `json:"exception_message"`
		StatusCode       int    `json:"status_code"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		jobmonlog.Logger.Error().Err(err).Msg("failed to encode response body")
	}
}

// writeError maps an error to the spec.md §6 envelope and its status code.
// Unrecognized errors default to 500 — the handler forgot to classify it,
// not the caller's fault.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	jmErr, ok := jobmonerrors.As(err)
	status := http.StatusInternalServerError
	kind := "InternalError"
	msg := err.Error()
	if ok {
		status = jmErr.Status
		kind = string(jmErr.Kind)
		msg = jmErr.Error()
	}

	requestLogger(r).Error().Err(err).Int("status_code", status).Msg("request failed")

	var env errorEnvelope
	env.Error.Type = kind
	env.Error.ExceptionMessage = msg
	env.Error.StatusCode = status
	writeJSON(w, status, env)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return jobmonerrors.InvalidUsage("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return jobmonerrors.InvalidUsage("invalid request body: " + err.Error())
	}
	return nil
}
