package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents network-related errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeParsing represents HTML or API payload parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypePersistence represents database errors
	ErrorTypePersistence ErrorType = "persistence"
)

// CollectionError represents an error raised while collecting notices from a source
type CollectionError struct {
	Type    ErrorType
	Source  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *CollectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Source, e.Message)
}

// Unwrap returns the underlying error
func (e *CollectionError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *CollectionError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypePersistence:
		return true
	default:
		return false
	}
}

// New creates a new CollectionError
func New(errType ErrorType, source, message string, err error) *CollectionError {
	return &CollectionError{
		Type:    errType,
		Source:  source,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(source, message string, err error) *CollectionError {
	return New(ErrorTypeNetwork, source, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(source, message string, err error) *CollectionError {
	return New(ErrorTypeParsing, source, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(source string, duration time.Duration) *CollectionError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, source, message, nil)
}

// NewCache creates a new cache error
func NewCache(source, message string, err error) *CollectionError {
	return New(ErrorTypeCache, source, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(source, message string, err error) *CollectionError {
	return New(ErrorTypePublisher, source, message, err)
}

// NewValidation creates a new validation error
func NewValidation(source, message string) *CollectionError {
	return New(ErrorTypeValidation, source, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *CollectionError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// NewPersistence creates a new persistence error
func NewPersistence(source, message string, err error) *CollectionError {
	return New(ErrorTypePersistence, source, message, err)
}

// IsType reports whether err is a CollectionError of the given type
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		if ce, ok := err.(*CollectionError); ok && ce.Type == errType {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
