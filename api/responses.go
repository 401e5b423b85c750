package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"vendor-desk/gateway"
	"vendor-desk/lead"
	"vendor-desk/services"
	"vendor-desk/utils"
)

type successEnvelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// requestError is a client mistake reported verbatim.
type requestError struct {
	status  int
	code    string
	message string
	details any
}

func (e *requestError) Error() string { return e.message }

func badRequest(message string, details any) error {
	return &requestError{status: http.StatusBadRequest, code: "validation", message: message, details: details}
}

func notFound(message string) error {
	return &requestError{status: http.StatusNotFound, code: "not_found", message: message}
}

func (s *server) writeSuccess(w http.ResponseWriter, r *http.Request, data any) {
	s.writeSuccessStatus(w, r, http.StatusOK, data)
}

func (s *server) writeSuccessStatus(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(s.Logger, w, r, status, successEnvelope{Data: data})
}

func writeError(logger *utils.Logger, w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("[api] %s %s: %v", r.Method, r.URL.Path, err)
	} else {
		logger.Debug("[api] %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(logger, w, r, status, errorEnvelope{Error: body})
}

func classify(err error) (int, apiError) {
	var re *requestError
	switch {
	case errors.As(err, &re):
		return re.status, apiError{Code: re.code, Message: re.message, Details: re.details}
	case errors.Is(err, services.ErrOrderNotFound):
		return http.StatusNotFound, apiError{Code: "not_found", Message: "order not found"}
	case errors.Is(err, services.ErrOTPMismatch):
		return http.StatusUnprocessableEntity, apiError{Code: "otp_mismatch", Message: "otp does not match"}
	case errors.Is(err, lead.ErrOfferActive):
		return http.StatusConflict, apiError{Code: "offer_active", Message: "order already has an open offer"}
	case errors.Is(err, lead.ErrNotAwaiting):
		return http.StatusConflict, apiError{Code: "not_awaiting", Message: "offer is not awaiting a decision"}
	case errors.Is(err, lead.ErrClosed):
		return http.StatusGone, apiError{Code: "offer_closed", Message: "offer already closed"}
	case errors.Is(err, lead.ErrPartialCommit):
		return http.StatusBadGateway, apiError{Code: "partial_commit", Message: err.Error()}
	case errors.Is(err, gateway.ErrTransport), errors.Is(err, gateway.ErrMalformedPayload):
		return http.StatusBadGateway, apiError{Code: "gateway", Message: err.Error()}
	default:
		return http.StatusInternalServerError, apiError{Code: "internal", Message: "unexpected error"}
	}
}

// writeJSON encodes before writing the header so an unencodable payload
// becomes a 500 instead of an empty 200.
func writeJSON(logger *utils.Logger, w http.ResponseWriter, r *http.Request, status int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		logger.Error("[api] %s %s: encode response: %v", r.Method, r.URL.Path, err)
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(errorEnvelope{Error: apiError{Code: "internal", Message: "unexpected error"}})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Debug("[api] %s %s: write response: %v", r.Method, r.URL.Path, err)
	}
}
