package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrConnRequired        = sterrors.New("uskit: connection is required")
	ErrHandlerRequired     = sterrors.New("uskit: handler function is required")
	ErrMessageTypeRequired = sterrors.New("uskit: message type is required")
	ErrLoginClientRequired = sterrors.New("uskit: login transaction client is required")
	ErrConfigRequired      = sterrors.New("uskit: configuration is required")
	ErrDialerRequired      = sterrors.New("uskit: transport dialer is required")
	ErrNotConnected        = sterrors.New("uskit: session is not connected")
	ErrSessionClosed       = sterrors.New("uskit: session is closed")
	ErrAlreadyOpen         = sterrors.New("uskit: session is already open")
	ErrLinkClosed          = sterrors.New("uskit: transport link is closed")
)

// Reasons reported by UnmatchedResponseError.
const (
	ReasonMissingMessageType = "missing_message_type"
	ReasonNoObserver         = "no_observer"
)

// UnmatchedResponseError describes an ack/nack the session could not route to
// any transaction or query client.
type UnmatchedResponseError struct {
	Reason      string
	MessageType string
	ReplyTo     string
}

func (e *UnmatchedResponseError) Error() string {
	if e.MessageType == "" {
		return fmt.Sprintf("uskit: unmatched response (%s, reply_to=%q)", e.Reason, e.ReplyTo)
	}
	return fmt.Sprintf("uskit: unmatched response for %s (%s)", e.MessageType, e.Reason)
}

// HandlerError wraps a failure raised by one subscriber during fan-out.
type HandlerError struct {
	Channel string
	Index   int
	Err     error
	Panic   any
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("uskit: handler %d on %q panicked: %v", e.Index, e.Channel, e.Panic)
	}
	return fmt.Sprintf("uskit: handler %d on %q failed: %v", e.Index, e.Channel, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// ConfigValidationError is returned when the session configuration is invalid.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "uskit: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
