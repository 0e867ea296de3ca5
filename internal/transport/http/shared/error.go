// Package shared centralizes the translation of domain errors to HTTP
// responses so every handler produces the same error envelope.
package shared

import (
	"errors"
	"fmt"
	"net/http"

	"memberd/internal/ratelimit"
	"memberd/internal/transport/http/json"
	dErrors "memberd/pkg/domain-errors"
)

// WriteError translates err into the JSON error envelope. 401 responses get
// a WWW-Authenticate challenge distinguishing expired from malformed tokens;
// 429 responses get Retry-After.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		json.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"error": string(dErrors.CodeInternal),
		})
		return
	}

	switch domainErr.Code {
	case dErrors.CodeTokenExpired:
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="The access token expired"`)
	case dErrors.CodeTokenInvalid, dErrors.CodeUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	case dErrors.CodeRateLimited:
		var denied *ratelimit.DeniedError
		if errors.As(err, &denied) && denied.Result.RetryAfter > 0 {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", denied.Result.RetryAfter))
		}
	}

	response := map[string]string{"error": string(domainErr.Code)}
	if domainErr.Message != "" {
		response["error_description"] = domainErr.Message
	}
	json.WriteJSON(w, statusOf(domainErr.Code), response)
}

func statusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthorized, dErrors.CodeTokenExpired, dErrors.CodeTokenInvalid:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
