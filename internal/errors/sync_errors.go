package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Abort-class reconciliation errors. Each aborts a run before any catalog
// write; per-product errors are aggregated in the run summary instead.
var (
	// ErrLicenseInvalid gates every run; the grace period does not apply here
	ErrLicenseInvalid = errors.New("invalid or expired license")
	// ErrEmptyFeed signals a zero-length body or a feed without data rows
	ErrEmptyFeed = errors.New("feed is empty")
	// ErrRunInProgress rejects a run while the running lease is held
	ErrRunInProgress = errors.New("sync already running")
)

// ConfigMissingError signals an unset required runtime setting
type ConfigMissingError struct {
	Setting string
}

func (e *ConfigMissingError) Error() string {
	return fmt.Sprintf("%s is not configured", e.Setting)
}

// NewConfigMissing creates a ConfigMissingError for the named setting
func NewConfigMissing(setting string) *ConfigMissingError {
	return &ConfigMissingError{Setting: setting}
}

// FetchError signals a transport failure or a non-2xx feed response
type FetchError struct {
	StatusCode int
	Reason     string
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch feed: HTTP status %d", e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch feed: %s", e.Reason)
}

// ColumnNotFoundError signals a configured column missing from the feed
// header, carrying the discovered headers for diagnostics.
type ColumnNotFoundError struct {
	Which     string
	Column    string
	Available []string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("%s column %q not found in feed. Available columns: %s",
		e.Which, e.Column, strings.Join(e.Available, ", "))
}

// APIErrorFor maps a run error to its HTTP representation
func APIErrorFor(err error) *APIError {
	var apiErr *APIError
	var configErr *ConfigMissingError
	var fetchErr *FetchError
	var columnErr *ColumnNotFoundError

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, ErrLicenseInvalid):
		return ErrLicenseGate
	case errors.Is(err, ErrRunInProgress):
		return ErrSyncBusy
	case errors.Is(err, ErrEmptyFeed):
		return New(http.StatusUnprocessableEntity, "EMPTY_FEED", err.Error())
	case errors.As(err, &configErr):
		return New(http.StatusBadRequest, "CONFIG_MISSING", err.Error())
	case errors.As(err, &fetchErr):
		return New(http.StatusBadGateway, "FETCH_FAILED", err.Error())
	case errors.As(err, &columnErr):
		return NewWithDetails(http.StatusUnprocessableEntity, "COLUMN_NOT_FOUND", err.Error(), columnErr.Available)
	default:
		return NewInternalError(err.Error())
	}
}
