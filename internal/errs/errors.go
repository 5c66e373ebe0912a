// Package errs holds the error taxonomy shared by every pipeline stage.
package errs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind int

const (
	Unknown Kind = iota
	InvalidSegment
	IndexOutOfRange
	SynthesisFailed
	TranscriptionFailed
	TranslationFailed
	InvalidTimestamp
	MixInputMismatch
	NotFound
	Unsupported
	Config
	Canceled
	StyleAnalysisFailed
)

func (k Kind) String() string {
	switch k {
	case InvalidSegment:
		return "InvalidSegment"
	case IndexOutOfRange:
		return "IndexOutOfRange"
	case SynthesisFailed:
		return "SynthesisFailed"
	case TranscriptionFailed:
		return "TranscriptionFailed"
	case TranslationFailed:
		return "TranslationFailed"
	case InvalidTimestamp:
		return "InvalidTimestamp"
	case MixInputMismatch:
		return "MixInputMismatch"
	case NotFound:
		return "NotFound"
	case Unsupported:
		return "Unsupported"
	case Config:
		return "Config"
	case Canceled:
		return "Canceled"
	case StyleAnalysisFailed:
		return "StyleAnalysisFailed"
	default:
		return "Unknown"
	}
}

// Fatal reports whether an error of this kind aborts a whole job.
// Per-segment kinds are collected and reported instead.
func (k Kind) Fatal() bool {
	switch k {
	case SynthesisFailed, StyleAnalysisFailed, InvalidTimestamp, InvalidSegment:
		return false
	default:
		return true
	}
}

type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: make(map[string]any),
	}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

func Wrap(err error, kind Kind, message string) *Error {
	e := New(kind, message)
	e.Cause = err
	return e
}

func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("[%s] %s", e.Kind, e.Message)}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, "context: "+strings.Join(ctxParts, ", "))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// KindOf returns the kind of the outermost *Error in the chain. Context
// cancellation maps to Canceled.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Canceled
	}
	return Unknown
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Advice returns a hint for the operator of the CLI.
func Advice(err error) string {
	switch KindOf(err) {
	case NotFound:
		return "Check that the URL points to a public post that still contains a video"
	case Unsupported:
		return "Only x.com / twitter.com status URLs and YouTube URLs are supported"
	case TranscriptionFailed:
		return "Check GROQ_API_KEY and that the video has an audible speech track"
	case TranslationFailed:
		return "Check GEMINI_API_KEY or the LLM endpoint, or reduce the translation batch size"
	case SynthesisFailed:
		return "Speech synthesis failed for some segments; they are left silent. Retry later or lower the worker count"
	case StyleAnalysisFailed:
		return "Style analysis failed for some segments; they are spoken in the default style"
	case MixInputMismatch:
		return "The extracted or synthesized audio could not be read; make sure ffmpeg is installed and the video has an audio stream"
	case InvalidSegment, InvalidTimestamp:
		return "The transcript contained segments with invalid timings; they were skipped"
	case Config:
		return "Check the configuration file and environment variables"
	case Canceled:
		return "The job was canceled before it finished"
	default:
		return "Review the detailed error and the job log"
	}
}
