// Package errors defines the lifecycle engine's error taxonomy. Every failure
// surfaced by the services carries one of these codes so transports can map it
// to a status without string matching.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure class.
type Code string

const (
	CodeTokenNotFound           Code = "token_not_found"
	CodeTokenExpired            Code = "token_expired"
	CodeTokenAlreadyOutstanding Code = "token_already_outstanding"
	CodeNotOwner                Code = "not_owner"
	CodeListingNotFound         Code = "listing_not_found"
	CodeAlreadyActive           Code = "already_active"
	CodeStoreUnavailable        Code = "store_unavailable"
)

// ServiceError is the concrete error type carried through the engine.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.cause }

// WithCause attaches an underlying error.
func (e *ServiceError) WithCause(err error) *ServiceError {
	clone := *e
	clone.cause = err
	return &clone
}

// Is matches on code so sentinel comparisons work through wrapping.
func (e *ServiceError) Is(target error) bool {
	var se *ServiceError
	if errors.As(target, &se) {
		return se.Code == e.Code
	}
	return false
}

func newError(code Code, status int, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status}
}

// TokenNotFound indicates no listing holds the presented token.
func TokenNotFound() *ServiceError {
	return newError(CodeTokenNotFound, http.StatusNotFound, "validation token not found")
}

// TokenExpired indicates the presented token's expiry has passed.
func TokenExpired() *ServiceError {
	return newError(CodeTokenExpired, http.StatusGone, "validation token has expired")
}

// TokenAlreadyOutstanding indicates an unexpired challenge already exists.
func TokenAlreadyOutstanding(listingID string) *ServiceError {
	return newError(CodeTokenAlreadyOutstanding, http.StatusConflict,
		fmt.Sprintf("listing %s already has an outstanding validation challenge", listingID))
}

// NotOwner indicates the caller does not own the listing.
func NotOwner(listingID string) *ServiceError {
	return newError(CodeNotOwner, http.StatusForbidden,
		fmt.Sprintf("caller does not own listing %s", listingID))
}

// ListingNotFound indicates the listing id did not resolve.
func ListingNotFound(listingID string) *ServiceError {
	return newError(CodeListingNotFound, http.StatusNotFound,
		fmt.Sprintf("listing %s not found", listingID))
}

// AlreadyActive indicates a reactivation request against an active listing.
func AlreadyActive(listingID string) *ServiceError {
	return newError(CodeAlreadyActive, http.StatusOK,
		fmt.Sprintf("listing %s is already active", listingID))
}

// StoreUnavailable indicates a transient persistence failure.
func StoreUnavailable(err error) *ServiceError {
	return newError(CodeStoreUnavailable, http.StatusServiceUnavailable,
		"listing store unavailable").WithCause(err)
}

// CodeOf extracts the taxonomy code from an error, or empty when it is not a
// ServiceError.
func CodeOf(err error) Code {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// HTTPStatusOf maps an error to a response status, defaulting to 500.
func HTTPStatusOf(err error) int {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}
