package handlers

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/giygas/cnas-api/apperrors"
	"github.com/giygas/cnas-api/logging"
)

// Minimum response size to consider compression (1KB)
const compressionThreshold = 1024

// maxBodyBytes bounds JSON request bodies when the server middleware did not
const maxBodyBytes = 1 << 20

// RespondWithJSON writes a JSON response, gzip compressed when the client
// accepts it and the payload is large enough to benefit
func RespondWithJSON(w http.ResponseWriter, r *http.Request, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err, "payload_type", fmt.Sprintf("%T", payload))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	w.Header().Add("Vary", "Accept-Encoding")

	if len(data) < compressionThreshold || !acceptsGzip(r) {
		w.WriteHeader(code)
		_, _ = w.Write(data)
		return
	}

	w.Header().Set("Content-Encoding", "gzip")
	w.WriteHeader(code)
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := gz.Write(data); err != nil {
		logging.Warn("Failed to write compressed response", "error", err)
	}
}

// RespondWithError writes a JSON error response
func RespondWithError(w http.ResponseWriter, r *http.Request, code int, message string) {
	RespondWithJSON(w, r, code, map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	})
}

// RespondWithAppError maps an engine error to its HTTP status
func RespondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		logging.Error("Unexpected handler error", "error", err, "path", r.URL.Path)
		RespondWithError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	message := appErr.Message
	if message == "" {
		message = string(appErr.Type)
	}
	RespondWithError(w, r, statusFor(appErr.Type), message)
}

func statusFor(t apperrors.ErrorType) int {
	switch t {
	case apperrors.ErrorTypeInvalidInput:
		return http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeAmbiguousMatch:
		return http.StatusConflict
	case apperrors.ErrorTypeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func acceptsGzip(r *http.Request) bool {
	return r != nil && strings.Contains(strings.ToLower(r.Header.Get("Accept-Encoding")), "gzip")
}

// decodeJSON reads a single JSON object from the request body. Unknown
// fields and trailing data are rejected as invalid input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperrors.NewInvalidInputError("request body exceeds %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return apperrors.NewInvalidInputError("request body is empty")
		default:
			return apperrors.NewInvalidInputError("malformed JSON body: %v", err)
		}
	}
	if dec.More() {
		return apperrors.NewInvalidInputError("request body must contain a single JSON object")
	}
	return nil
}
