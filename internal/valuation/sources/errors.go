package sources

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Category is the normalized failure taxonomy shared by all adapters.
type Category string

const (
	// CategoryTimeout indicates the source did not answer within its deadline
	CategoryTimeout Category = "timeout"

	// CategoryRateLimited indicates the source asked us to back off
	CategoryRateLimited Category = "rate_limited"

	// CategoryEmptyResult indicates the source answered but had nothing for the query
	CategoryEmptyResult Category = "empty_result"

	// CategoryTransient indicates a failure that may succeed on a later query
	CategoryTransient Category = "transient"

	// CategoryFatal indicates a failure that will not fix itself (bad contract, bad credentials)
	CategoryFatal Category = "fatal"
)

// SourceError wraps adapter failures with a normalized category.
type SourceError struct {
	Category   Category
	Source     string
	Message    string
	RetryAfter time.Duration // only meaningful for CategoryRateLimited
	Underlying error
}

func (e *SourceError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("source %s [%s]: %s: %v", e.Source, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("source %s [%s]: %s", e.Source, e.Category, e.Message)
}

func (e *SourceError) Unwrap() error {
	return e.Underlying
}

// NewSourceError creates a normalized source error.
func NewSourceError(category Category, source, message string, underlying error) *SourceError {
	return &SourceError{
		Category:   category,
		Source:     source,
		Message:    message,
		Underlying: underlying,
	}
}

// RateLimited creates a rate-limit error carrying the source's requested back-off.
func RateLimited(source string, retryAfter time.Duration, message string) *SourceError {
	e := NewSourceError(CategoryRateLimited, source, message, nil)
	e.RetryAfter = retryAfter
	return e
}

// Empty creates an empty-result error.
func Empty(source, message string) *SourceError {
	return NewSourceError(CategoryEmptyResult, source, message, nil)
}

// CategoryOf extracts the category of err. Unclassified errors are transient.
func CategoryOf(err error) Category {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Category
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTimeout
	}
	return CategoryTransient
}

// RetryAfterOf returns the back-off requested by a rate-limited source, or zero.
func RetryAfterOf(err error) time.Duration {
	var se *SourceError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}

// Classify returns err as a *SourceError attributed to source, categorizing
// errors that adapters left unwrapped.
func Classify(source string, err error) *SourceError {
	if err == nil {
		return nil
	}
	var se *SourceError
	if errors.As(err, &se) {
		return se
	}
	return NewSourceError(CategoryOf(err), source, "unclassified failure", err)
}
