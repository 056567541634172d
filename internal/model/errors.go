package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable category of a failure
type ErrorKind string

const (
	KindInvalidConfiguration   ErrorKind = "InvalidConfiguration"
	KindEmbeddingUnavailable   ErrorKind = "EmbeddingUnavailable"
	KindCollectionEmpty        ErrorKind = "CollectionEmpty"
	KindUpstreamUnavailable    ErrorKind = "UpstreamUnavailable"
	KindMalformedModelResponse ErrorKind = "MalformedModelResponse"
	KindCitationNotFound       ErrorKind = "CitationNotFound"
	KindInternal               ErrorKind = "Internal"
)

// Sentinel errors, one per kind. Match with errors.Is.
var (
	ErrInvalidConfiguration   = errors.New("invalid configuration")
	ErrEmbeddingUnavailable   = errors.New("embedding backend unavailable")
	ErrCollectionEmpty        = errors.New("regulatory collection is empty")
	ErrUpstreamUnavailable    = errors.New("vision model unavailable")
	ErrMalformedModelResponse = errors.New("malformed model response")
	ErrCitationNotFound       = errors.New("citation not found")
)

var kindSentinels = map[ErrorKind]error{
	KindInvalidConfiguration:   ErrInvalidConfiguration,
	KindEmbeddingUnavailable:   ErrEmbeddingUnavailable,
	KindCollectionEmpty:        ErrCollectionEmpty,
	KindUpstreamUnavailable:    ErrUpstreamUnavailable,
	KindMalformedModelResponse: ErrMalformedModelResponse,
	KindCitationNotFound:       ErrCitationNotFound,
}

// AnalysisError attaches a kind and the failing operation to an error
type AnalysisError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with a kind. A nil err is replaced by the kind's sentinel.
func NewError(kind ErrorKind, op string, err error) *AnalysisError {
	if err == nil {
		err = kindSentinels[kind]
	}
	return &AnalysisError{Kind: kind, Op: op, Err: err}
}

// Errorf builds an AnalysisError from a format string
func Errorf(kind ErrorKind, op, format string, args ...interface{}) *AnalysisError {
	return NewError(kind, op, fmt.Errorf(format, args...))
}

func (e *AnalysisError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the kind's sentinel even when Err is a different error
func (e *AnalysisError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// KindOf extracts the kind of err. Context errors count as upstream failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUpstreamUnavailable
	}
	return KindInternal
}

// IsRetryable reports whether the failure may succeed on a later attempt
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindUpstreamUnavailable, KindEmbeddingUnavailable:
		return true
	}
	return false
}
