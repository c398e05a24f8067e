package models

import (
	"fmt"
	"net/http"
)

// MalformedPayloadError reports a forecast payload that is missing required
// structure or carries an unparsable timestamp
type MalformedPayloadError struct {
	Reason string
	Err    error
}

func (e *MalformedPayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed forecast payload: %s: %v", e.Reason, e.Err)
	}
	return "malformed forecast payload: " + e.Reason
}

func (e *MalformedPayloadError) Unwrap() error {
	return e.Err
}

// IsTransient returns false: refetching the same payload fails the same way
func (e *MalformedPayloadError) IsTransient() bool {
	return false
}

// FetchError reports a non-200 response or a transport failure from the
// forecast API
type FetchError struct {
	OfficeCode string
	StatusCode int // 0 for transport failures
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch forecast %s: unexpected status %d %s", e.OfficeCode, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch forecast %s: %v", e.OfficeCode, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether a later attempt could succeed
func (e *FetchError) IsTransient() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// StorageError wraps a persistence failure; it aborts the operation
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsTransient returns false; storage failures are not retried
func (e *StorageError) IsTransient() bool {
	return false
}
