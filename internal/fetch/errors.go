// Package fetch executes source fetch calls under rate-limit and
// retry/backoff discipline.
//
// Retry decisions are driven exclusively by the structured error category a
// source collaborator attaches to its failures. The executor never inspects
// error text.
package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

type (
	// Category classifies a fetch failure for retry purposes. The set is
	// closed: sources must map their failures onto one of these values.
	Category string

	// Error is the structured failure a source collaborator returns when a
	// fetch attempt fails. It carries the category the executor keys its
	// retry decision on and wraps the underlying cause.
	Error struct {
		// Source is the registry name of the failing source.
		Source string

		// Category drives the retry decision.
		Category Category

		// Status is the HTTP status code when the failure came from an HTTP
		// response, 0 otherwise.
		Status int

		// Err is the underlying cause.
		Err error
	}
)

const (
	// CategoryRateLimited marks an upstream throttle response (HTTP 429).
	// Retried with exponential backoff.
	CategoryRateLimited Category = "rate_limited"

	// CategoryTransientServer marks upstream 5xx responses and transport
	// failures that may heal on their own. Retried with exponential backoff.
	CategoryTransientServer Category = "transient_server"

	// CategoryClientError marks request errors (4xx other than 429) that no
	// retry can fix. Never retried.
	CategoryClientError Category = "client_error"

	// CategoryUnknown marks failures without a structured category, such as
	// payload decoding bugs. Never retried: repeating an unclassified
	// failure cannot make it succeed.
	CategoryUnknown Category = "unknown"
)

// ValidCategories returns every category in the closed set.
func ValidCategories() []Category {
	return []Category{CategoryRateLimited, CategoryTransientServer, CategoryClientError, CategoryUnknown}
}

// IsValid checks whether the category is a member of the closed set.
func (c Category) IsValid() bool {
	switch c {
	case CategoryRateLimited, CategoryTransientServer, CategoryClientError, CategoryUnknown:
		return true
	default:
		return false
	}
}

// Retryable reports whether the executor may retry a failure of this
// category.
func (c Category) Retryable() bool {
	return c == CategoryRateLimited || c == CategoryTransientServer
}

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// Error renders the source, category, status when present, and cause.
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.Source, e.Category, e.Status, e.Err)
	}

	return fmt.Sprintf("fetch %s: %s: %v", e.Source, e.Category, e.Err)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a structured fetch error with an explicit category.
func NewError(source string, category Category, err error) *Error {
	return &Error{Source: source, Category: category, Err: err}
}

// StatusError builds a structured fetch error from an HTTP response status,
// classifying it with Classify.
func StatusError(source string, status int, err error) *Error {
	return &Error{Source: source, Category: Classify(status), Status: status, Err: err}
}

// TransportError builds a structured fetch error for a network-level failure
// that produced no HTTP response. Transport failures are transient: the
// request may succeed once the connection heals.
func TransportError(source string, err error) *Error {
	return &Error{Source: source, Category: CategoryTransientServer, Err: err}
}

// Classify maps an HTTP status code onto the closed category set.
//
//	429        -> CategoryRateLimited
//	5xx        -> CategoryTransientServer
//	other 4xx  -> CategoryClientError
//	anything else -> CategoryUnknown
func Classify(status int) Category {
	switch {
	case status == http.StatusTooManyRequests:
		return CategoryRateLimited
	case status >= 500 && status <= 599:
		return CategoryTransientServer
	case status >= 400 && status <= 499:
		return CategoryClientError
	default:
		return CategoryUnknown
	}
}

// CategoryOf extracts the structured category from an error chain.
// Errors without a *fetch.Error in the chain are CategoryUnknown.
func CategoryOf(err error) Category {
	var fetchErr *Error
	if errors.As(err, &fetchErr) {
		return fetchErr.Category
	}

	return CategoryUnknown
}

// IsRateLimited reports whether the error chain carries a rate-limit
// category.
func IsRateLimited(err error) bool {
	return CategoryOf(err) == CategoryRateLimited
}

// IsClientError reports whether the error chain carries a client-error
// category.
func IsClientError(err error) bool {
	return CategoryOf(err) == CategoryClientError
}
