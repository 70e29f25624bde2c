package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// ErrorKind classifies failures recorded on jobs and returned by the boundaries.
type ErrorKind string

const (
	KindInvalidDocument   ErrorKind = "InvalidDocument"
	KindDocumentTooLarge  ErrorKind = "DocumentTooLarge"
	KindRecognitionFailed ErrorKind = "RecognitionFailed"
	KindJobNotFound       ErrorKind = "JobNotFound"
	KindOutputNotReady    ErrorKind = "OutputNotReady"
	KindOutputMissing     ErrorKind = "OutputMissing"
	KindPipelineFailure   ErrorKind = "PipelineFailure"
)

// One sentinel per kind; match with errors.Is.
var (
	ErrInvalidDocument   = errors.New("invalid document")
	ErrDocumentTooLarge  = errors.New("document too large")
	ErrRecognitionFailed = errors.New("recognition failed")
	ErrJobNotFound       = errors.New("job not found")
	ErrOutputNotReady    = errors.New("output not ready")
	ErrOutputMissing     = errors.New("output missing")
	ErrPipelineFailure   = errors.New("pipeline failure")

	ErrInvalidInput = errors.New("invalid input")
)

var kindSentinels = []struct {
	kind ErrorKind
	err  error
}{
	{KindInvalidDocument, ErrInvalidDocument},
	{KindDocumentTooLarge, ErrDocumentTooLarge},
	{KindRecognitionFailed, ErrRecognitionFailed},
	{KindJobNotFound, ErrJobNotFound},
	{KindOutputNotReady, ErrOutputNotReady},
	{KindOutputMissing, ErrOutputMissing},
	{KindPipelineFailure, ErrPipelineFailure},
}

// Sentinel returns the sentinel error for a kind.
func (k ErrorKind) Sentinel() error {
	for _, ks := range kindSentinels {
		if ks.kind == k {
			return ks.err
		}
	}
	return ErrPipelineFailure
}

// kindError carries a kind sentinel and an optional cause; both match errors.Is.
type kindError struct {
	kind   ErrorKind
	detail string
	cause  error
}

func (e *kindError) Error() string {
	msg := e.kind.Sentinel().Error()
	if e.detail != "" {
		msg += ": " + e.detail
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *kindError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind.Sentinel()}
	}
	return []error{e.kind.Sentinel(), e.cause}
}

// NewKindError builds an error of the given kind. cause may be nil.
func NewKindError(kind ErrorKind, detail string, cause error) error {
	return &kindError{kind: kind, detail: detail, cause: cause}
}

// KindErrorf is NewKindError with a formatted detail and no cause.
func KindErrorf(kind ErrorKind, format string, args ...any) error {
	return &kindError{kind: kind, detail: fmt.Sprintf(format, args...)}
}

// KindOf classifies err. Unclassified errors are PipelineFailure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, ks := range kindSentinels {
		if errors.Is(err, ks.err) {
			return ks.kind
		}
	}
	return KindPipelineFailure
}

// NewAppError builds an AppError.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
