// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// Error type discriminators carried in the error envelope.
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeUnauthorized   = "unauthorized"
	ErrorTypeRateLimited    = "rate_limit_exceeded"
	ErrorTypeInternal       = "internal_error"
)

// ErrorBody is the inner error object.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ErrorEnvelope is the uniform error response shape:
// {"error":{"message":..., "type":...}}.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// NewErrorEnvelope builds the envelope for one error.
func NewErrorEnvelope(errorType, message string) ErrorEnvelope {
	return ErrorEnvelope{Error: ErrorBody{Message: message, Type: errorType}}
}
