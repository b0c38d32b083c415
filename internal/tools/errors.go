package tools

import (
	"errors"
	"fmt"

	"github.com/wolfman30/medassist/internal/appointments"
	"github.com/wolfman30/medassist/internal/llm"
	"github.com/wolfman30/medassist/internal/notify"
	"github.com/wolfman30/medassist/internal/reports"
	"github.com/wolfman30/medassist/internal/session"
)

var (
	// ErrAuthorization is returned when a caller lacks the role a tool requires.
	ErrAuthorization = errors.New("tools: not authorized")

	// ErrUnknownTool is returned for a call naming no registered tool.
	ErrUnknownTool = errors.New("tools: unknown tool")
)

// ExternalError marks a failure of an outbound provider.
type ExternalError struct {
	Service string
	Err     error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

func external(service string, err error) error {
	return &ExternalError{Service: service, Err: err}
}

// Kind classifies errors for tool results and HTTP responses.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindSlotTaken        Kind = "slot_taken"
	KindAlreadyCancelled Kind = "already_cancelled"
	KindAuthorization    Kind = "authorization"
	KindExternal         Kind = "external_service"
	KindInternal         Kind = "internal"
)

// KindOf maps an error onto the taxonomy. Unrecognized errors are internal.
func KindOf(err error) Kind {
	var ext *ExternalError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, appointments.ErrValidation),
		errors.Is(err, ErrUnknownTool),
		errors.Is(err, reports.ErrNoPhone):
		return KindValidation
	case errors.Is(err, appointments.ErrNotFound), errors.Is(err, session.ErrNotFound):
		return KindNotFound
	case errors.Is(err, appointments.ErrSlotTaken):
		return KindSlotTaken
	case errors.Is(err, appointments.ErrAlreadyCancelled):
		return KindAlreadyCancelled
	case errors.Is(err, ErrAuthorization):
		return KindAuthorization
	case errors.As(err, &ext),
		errors.Is(err, notify.ErrNotConfigured),
		errors.Is(err, llm.ErrUnavailable):
		return KindExternal
	default:
		return KindInternal
	}
}

// PublicMessage is the user-safe description of err. Internal failures are
// never described beyond their kind.
func PublicMessage(err error) string {
	var verr *appointments.ValidationError
	switch KindOf(err) {
	case KindValidation:
		if errors.As(err, &verr) {
			return fmt.Sprintf("invalid %s: %s", verr.Field, verr.Reason)
		}
		if errors.Is(err, reports.ErrNoPhone) {
			return "the doctor has no phone number on file"
		}
		return err.Error()
	case KindNotFound:
		var nf *appointments.NotFoundError
		switch {
		case errors.As(err, &nf):
			return nf.Describe()
		case errors.Is(err, session.ErrNotFound):
			return "the chat session was not found or has expired"
		default:
			return "the requested record was not found"
		}
	case KindSlotTaken:
		return "that time slot has already been booked, please choose another time"
	case KindAlreadyCancelled:
		return "this appointment is already cancelled"
	case KindAuthorization:
		return "this action requires the doctor role"
	case KindExternal:
		var ext *ExternalError
		if errors.As(err, &ext) {
			return ext.Service + " is currently unavailable"
		}
		return "an external service is not configured or unavailable"
	case "":
		return ""
	default:
		return "an internal error occurred, please try again"
	}
}
