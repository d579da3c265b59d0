package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups that found no matching post.
var ErrNotFound = errors.New("post not found")

// ConfigurationError reports a missing or invalid identifier or credential
// for a backing store. It aborts a listing.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("configuration error: %s is not defined", e.Field)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// TransientFetchError wraps a network or backing-store failure.
type TransientFetchError struct {
	Op  string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// MalformedContentWarning records a field that was defaulted because the
// source record lacked it. It is logged, never returned.
type MalformedContentWarning struct {
	PostID string
	Field  string
}

func (w MalformedContentWarning) String() string {
	return fmt.Sprintf("post %s: missing or malformed %q, using default", w.PostID, w.Field)
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
