package errx

import (
	"errors"
	"net/http"
)

// configSentinel marks configuration errors so callers can distinguish
// deployment defects from transient failures with errors.Is.
var configSentinel = errors.New("configuration error")

// ErrConfig is the sentinel matched by IsConfig.
var ErrConfig = configSentinel

type configError struct {
	inner *Error
}

func (e *configError) Error() string {
	return e.inner.Error()
}

func (e *configError) Unwrap() error {
	return e.inner.Unwrap()
}

func (e *configError) As(target any) bool {
	return e.inner.As(target)
}

func (e *configError) Is(target error) bool {
	if target == configSentinel {
		return true
	}
	return e.inner.Is(target)
}

// WrapConfig wraps a configuration defect. Configuration errors are the only
// error class allowed to fail a conversation turn.
func WrapConfig(err error) error {
	if err == nil {
		return nil
	}
	return &configError{inner: New(err, http.StatusInternalServerError, ConfigErrorMessage)}
}

// IsConfig reports whether err is (or wraps) a configuration error.
func IsConfig(err error) bool {
	return errors.Is(err, configSentinel)
}
