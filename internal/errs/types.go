package errs

import (
	"fmt"
)

// Validationf builds an ErrValidation-wrapped error with a caller-facing message.
func Validationf(format string, args ...any) error {
	return &MessageError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// Configurationf builds an ErrConfiguration-wrapped error with a caller-facing message.
func Configurationf(format string, args ...any) error {
	return &MessageError{kind: ErrConfiguration, msg: fmt.Sprintf(format, args...)}
}

// MessageError carries a message meant for the API caller together with its sentinel kind.
type MessageError struct {
	kind error
	msg  string
}

func (e *MessageError) Error() string { return e.msg }

// Is reports whether target is the sentinel this error belongs to.
func (e *MessageError) Is(target error) bool { return target == e.kind }

// Window names a quota counting period.
type Window string

const (
	WindowDaily   Window = "daily"
	WindowMonthly Window = "monthly"
)

// QuotaExceededError reports which window ran out.
type QuotaExceededError struct {
	Window Window
	Limit  int
}

func (e *QuotaExceededError) Error() string {
	switch e.Window {
	case WindowMonthly:
		return fmt.Sprintf("Monthly limit of %d requests reached. Add your personal API key for unlimited usage.", e.Limit)
	default:
		return fmt.Sprintf("Daily limit of %d requests reached. Add your personal API key for unlimited usage.", e.Limit)
	}
}

// Is makes QuotaExceededError match ErrQuotaExceeded.
func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// UpstreamKind classifies provider failures.
type UpstreamKind string

const (
	UpstreamAuth        UpstreamKind = "auth"
	UpstreamForbidden   UpstreamKind = "forbidden"
	UpstreamRateLimited UpstreamKind = "rate_limited"
	UpstreamBadRequest  UpstreamKind = "bad_request"
	UpstreamEmpty       UpstreamKind = "empty"
	UpstreamStatus      UpstreamKind = "status"
	UpstreamNetwork     UpstreamKind = "network"
)

// UpstreamError is a normalized AI provider failure. Message is safe to show to users.
type UpstreamError struct {
	Provider   string
	Kind       UpstreamKind
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string { return e.Message }

// Unwrap exposes the transport error, if any.
func (e *UpstreamError) Unwrap() error { return e.Err }

// Is makes UpstreamError match ErrUpstream.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }
