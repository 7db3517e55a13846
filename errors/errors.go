// Package errors classifies faults for the sensor-fusion transport layer.
// Every non-fatal fault offered to an error policy is a ClassifiedError so
// policies branch on class instead of message text.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass tells a caller what to do with a failure.
type ErrorClass int

const (
	ErrorTransient ErrorClass = iota // retry or keep going
	ErrorInvalid                     // bad input; skip it
	ErrorFatal                       // stop the component
)

var classNames = [...]string{"transient", "invalid", "fatal"}

func (ec ErrorClass) String() string {
	if ec < 0 || int(ec) >= len(classNames) {
		return "unknown"
	}
	return classNames[ec]
}

// Lifecycle.
var (
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrAlreadyStopped = errors.New("component already stopped")
	ErrStopTimeout    = errors.New("stop timed out")
)

// Sockets and sessions.
var (
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrPeerClosed        = errors.New("peer closed connection")
	ErrBindFailed        = errors.New("bind failed")
	ErrDialFailed        = errors.New("dial failed")
)

// Payloads and frames.
var (
	ErrInvalidData     = errors.New("invalid data format")
	ErrParsingFailed   = errors.New("parsing failed")
	ErrEncodingFailed  = errors.New("encoding failed")
	ErrTopicMismatch   = errors.New("topic mismatch")
	ErrNilPayload      = errors.New("nil payload")
	ErrFrameRejected   = errors.New("frame rejected")
	ErrFrameIncomplete = errors.New("data received but frame still incomplete")
)

// Callbacks and configuration.
var (
	ErrHandlerFailed = errors.New("message handler failed")
	ErrPolicyFailed  = errors.New("error policy failed")

	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
	ErrUnknownDriver = errors.New("no driver registered for scheme")
)

// sentinelClass gives unclassified sentinels an implied class. Order
// matters: fatal sentinels are checked first.
var sentinelClass = []struct {
	class ErrorClass
	errs  []error
}{
	{ErrorFatal, []error{ErrInvalidConfig, ErrMissingConfig, ErrUnknownDriver}},
	{ErrorInvalid, []error{ErrInvalidData, ErrParsingFailed, ErrEncodingFailed, ErrFrameRejected, ErrNilPayload}},
	{ErrorTransient, []error{
		ErrConnectionTimeout, ErrConnectionLost, ErrPeerClosed, ErrNoConnection,
		context.DeadlineExceeded, context.Canceled,
	}},
}

// transientHints match OS and library errors that never reach a sentinel.
var transientHints = []string{
	"timeout", "connection", "network", "temporary",
	"unavailable", "refused", "reset by peer", "broken pipe",
}

// ClassifiedError carries a class plus where the failure happened.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message == "" {
		return ce.Err.Error()
	}
	return ce.Message
}

func (ce *ClassifiedError) Unwrap() error { return ce.Err }

// explicit returns the class of the outermost ClassifiedError in err's chain.
func explicit(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return 0, false
}

// implied returns the class of the first sentinel err matches.
func implied(err error) (ErrorClass, bool) {
	for _, group := range sentinelClass {
		for _, s := range group.errs {
			if errors.Is(err, s) {
				return group.class, true
			}
		}
	}
	return 0, false
}

// is reports whether err belongs to class. Explicit classification wins;
// after that only sentinels of the same class count.
func is(err error, class ErrorClass) bool {
	if err == nil {
		return false
	}
	if c, ok := explicit(err); ok {
		return c == class
	}
	for _, group := range sentinelClass {
		if group.class != class {
			continue
		}
		for _, s := range group.errs {
			if errors.Is(err, s) {
				return true
			}
		}
	}
	return false
}

// IsTransient reports whether err is worth retrying. Besides classified
// errors and connection sentinels it recognises common network messages.
func IsTransient(err error) bool {
	if is(err, ErrorTransient) {
		return true
	}
	if err == nil {
		return false
	}
	if _, ok := explicit(err); ok {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// IsFatal reports whether err should stop processing.
func IsFatal(err error) bool { return is(err, ErrorFatal) }

// IsInvalid reports whether err stems from bad input.
func IsInvalid(err error) bool { return is(err, ErrorInvalid) }

// Classify returns err's class. Unknown errors are transient so loops keep
// going; nil is transient too.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}
	if c, ok := explicit(err); ok {
		return c
	}
	if c, ok := implied(err); ok {
		return c
	}
	return ErrorTransient
}

// Wrap adds "component.method: action failed:" context to err.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapAs(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	inner := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       inner,
		Message:   inner.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps err with context and marks it transient.
func WrapTransient(err error, component, method, action string) error {
	return wrapAs(ErrorTransient, err, component, method, action)
}

// WrapInvalid wraps err with context and marks it invalid.
func WrapInvalid(err error, component, method, action string) error {
	return wrapAs(ErrorInvalid, err, component, method, action)
}

// WrapFatal wraps err with context and marks it fatal.
func WrapFatal(err error, component, method, action string) error {
	return wrapAs(ErrorFatal, err, component, method, action)
}

// FromPanic turns a recovered value into an error, keeping error chains.
func FromPanic(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
