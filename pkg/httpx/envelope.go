// Package httpx provides the JSON response envelope shared by the gateway and
// the backend services.
//
// Success: {"success": true, "data": ...} with an optional pagination object.
// Error:   {"success": false, "error": {"code": "...", "message": "..."}}
package httpx

import (
	"encoding/json"
	"net/http"
)

// Stable machine-readable error codes.
const (
	CodeValidationError    = "validation_error"
	CodeInvalidTransition  = "invalid_transition"
	CodeMissingToken       = "missing_token"
	CodeInvalidToken       = "invalid_token"
	CodeMissingIdentity    = "missing_identity"
	CodeInvalidCredentials = "invalid_credentials"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeUserExists         = "user_exists"
	CodeRateLimited        = "rate_limited"
	CodeInternalError      = "internal_error"
	CodeServiceUnavailable = "service_unavailable"
)

// ErrorBody is the error half of the response envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Pagination describes the page window of a list response.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *ErrorBody  `json:"error,omitempty"`
}

// NewPagination computes totalPages from total and limit.
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}

// WriteSuccess writes a success envelope with the given payload.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	write(w, status, envelope{Success: true, Data: data})
}

// WritePage writes a success envelope with a pagination object alongside data.
func WritePage(w http.ResponseWriter, status int, data any, p Pagination) {
	write(w, status, envelope{Success: true, Data: data, Pagination: &p})
}

// WriteError writes an error envelope. Message is client-facing: callers must
// not pass internal error detail here.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	write(w, status, envelope{Success: false, Error: &ErrorBody{Code: code, Message: message}})
}

func write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
