// Copyright 2026 The Relockd Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// APIError represents a non-2xx response from the GitHub API. GitHub
// returns structured JSON error bodies with a message and optional
// field-level validation errors.
type APIError struct {
	// StatusCode is the HTTP response status code.
	StatusCode int

	// Message is the top-level error description from GitHub.
	Message string

	// Errors contains field-level validation failures. Present only
	// on 422 Unprocessable Entity responses.
	Errors []ValidationError
}

// ValidationError describes a specific validation failure on a
// resource field, returned on 422 responses.
type ValidationError struct {
	Resource string `json:"resource"`
	Code     string `json:"code"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

func (err *APIError) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "github: HTTP %d: %s", err.StatusCode, err.Message)
	for _, validation := range err.Errors {
		detail := validation.Message
		if detail == "" {
			detail = validation.Code
		}
		fmt.Fprintf(&builder, "; %s.%s: %s", validation.Resource, validation.Field, detail)
	}
	return builder.String()
}

// IsNotFound reports whether err is a 404 Not Found response.
func IsNotFound(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == 404
}

// IsConflict reports whether err is a 409 Conflict response. The git
// ref endpoints return 409 when a non-force update is not a
// fast-forward.
func IsConflict(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == 409
}

// IsUnprocessable reports whether err is a 422 response. The pulls
// endpoint returns 422 when a PR already exists for the branch pair.
func IsUnprocessable(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == 422
}

// parseAPIError builds an *APIError from a status code and response
// body.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiError := &APIError{StatusCode: statusCode}

	var wire struct {
		Message string            `json:"message"`
		Errors  []ValidationError `json:"errors"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Message != "" {
		apiError.Message = wire.Message
		apiError.Errors = wire.Errors
	} else {
		apiError.Message = string(body)
	}
	return apiError
}

// isRateLimitResponse checks whether a non-2xx response indicates
// rate limiting. GitHub returns 403 for the primary limit and 429
// for secondary (abuse) limits.
func isRateLimitResponse(statusCode int, body []byte) bool {
	if statusCode == 429 {
		return true
	}
	if statusCode != 403 {
		return false
	}
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "abuse detection")
}
