// Package loaderr defines the uniform error raised by catalog item loaders.
// Every failure carries a title and message suitable for showing to a user,
// the sender that raised it, and optionally the nested causes that led to it.
// Errors are classified into configuration, network, parse and multi-source
// kinds so callers can react without matching on message text.
package loaderr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a loader error.
type Kind int

const (
	KindGeneric     Kind = iota // Anything not covered below
	KindConfig                  // Required trait missing or invalid; raised before any I/O
	KindNetwork                 // Fetch failed, timed out or returned a non-success status
	KindParse                   // Payload fetched but not valid for the expected format
	KindMultiSource             // One of several nested loads failed
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindNetwork:
		return "network"
	case KindParse:
		return "parse"
	case KindMultiSource:
		return "multi-source"
	default:
		return "generic"
	}
}

// Sentinel errors matched by errors.Is against an *Error of the same kind.
var (
	// ErrConfig matches configuration errors.
	ErrConfig = errors.New("configuration error")
	// ErrNetwork matches network request errors.
	ErrNetwork = errors.New("network request error")
	// ErrParse matches parse and format errors.
	ErrParse = errors.New("parse error")
	// ErrMultiSource matches errors combining several failed nested loads.
	ErrMultiSource = errors.New("multi-source load error")
)

// Severity says whether a result is still usable.
type Severity int

const (
	SeverityError   Severity = iota // The load produced nothing usable
	SeverityWarning                 // The load produced a result but something was off
)

// Error is the error type stored by the load lifecycle. It is safe to
// compare with errors.Is against the Err* sentinels and to unwrap into its
// causes with errors.As.
type Error struct {
	Kind     Kind
	Title    string
	Message  string
	Sender   string
	Severity Severity
	Causes   []error
}

// Error renders the title, message and first cause on one line.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Sender != "" {
		b.WriteString(e.Sender)
		b.WriteString(": ")
	}
	b.WriteString(e.Title)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Causes) > 0 && e.Causes[0] != nil {
		b.WriteString(": ")
		b.WriteString(e.Causes[0].Error())
		if n := len(e.Causes) - 1; n > 0 {
			fmt.Fprintf(&b, " (and %d more)", n)
		}
	}
	return b.String()
}

// Unwrap exposes the nested causes.
func (e *Error) Unwrap() []error {
	return e.Causes
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfig:
		return e.Kind == KindConfig
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrParse:
		return e.Kind == KindParse
	case ErrMultiSource:
		return e.Kind == KindMultiSource
	}
	return false
}

// New builds an error of the given kind without a cause.
func New(kind Kind, sender, title, message string) *Error {
	return &Error{Kind: kind, Sender: sender, Title: title, Message: message}
}

// MissingTrait reports that a required trait has no value. The message names
// both the trait and the item so the user can find the faulty definition.
func MissingTrait(sender, itemName, trait string) *Error {
	return &Error{
		Kind:    KindConfig,
		Sender:  sender,
		Title:   "Invalid configuration",
		Message: fmt.Sprintf("`%s` must be set for %s", trait, itemName),
	}
}

// Network wraps a transport failure.
func Network(sender string, cause error, title, message string) *Error {
	return &Error{Kind: KindNetwork, Sender: sender, Title: title, Message: message, Causes: nonNil(cause)}
}

// Parse wraps a payload that could not be interpreted.
func Parse(sender, title, message string, cause error) *Error {
	return &Error{Kind: KindParse, Sender: sender, Title: title, Message: message, Causes: nonNil(cause)}
}

// Combine folds several errors from concurrent nested loads into one. Nil
// errors are dropped; if nothing remains Combine returns nil.
func Combine(sender, title string, errs ...error) error {
	causes := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			causes = append(causes, err)
		}
	}
	if len(causes) == 0 {
		return nil
	}
	return &Error{
		Kind:    KindMultiSource,
		Sender:  sender,
		Title:   title,
		Message: fmt.Sprintf("%d of the requested sources failed to load", len(causes)),
		Causes:  causes,
	}
}

// AsWarning marks e as a warning and returns it.
func (e *Error) AsWarning() *Error {
	e.Severity = SeverityWarning
	return e
}

// IsWarning reports whether err is a loader error of warning severity.
func IsWarning(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Severity == SeverityWarning
	}
	return false
}

// From coerces any error into an *Error, keeping an existing one intact and
// otherwise wrapping it with the given title.
func From(err error, sender, title string) *Error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	return &Error{Kind: KindGeneric, Sender: sender, Title: title, Message: err.Error(), Causes: []error{err}}
}

// Messages flattens the error tree into "title: message" lines, depth first.
func Messages(err error) []string {
	var out []string
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		var le *Error
		if !errors.As(err, &le) {
			out = append(out, err.Error())
			return
		}
		line := le.Title
		if le.Message != "" {
			line += ": " + le.Message
		}
		out = append(out, line)
		for _, c := range le.Causes {
			walk(c)
		}
	}
	walk(err)
	return out
}

func nonNil(err error) []error {
	if err == nil {
		return nil
	}
	return []error{err}
}
