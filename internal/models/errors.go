package models

import "errors"

// Kind classifies an error for callers that need to decide what to do next.
type Kind string

const (
	KindNotFound                 Kind = "not_found"
	KindUnavailable              Kind = "unavailable"
	KindOutOfRange               Kind = "out_of_range"
	KindSelfConflict             Kind = "self_conflict"
	KindSlotTaken                Kind = "slot_taken"
	KindIllegalTransition        Kind = "illegal_transition"
	KindCancellationWindowPassed Kind = "cancellation_window_passed"
	KindForbidden                Kind = "forbidden"
	KindValidation               Kind = "validation"
	KindInternal                 Kind = "internal"
)

var (
	ErrNotFound                 = errors.New("not found")
	ErrUnavailable              = errors.New("provider is not accepting bookings")
	ErrOutOfRange               = errors.New("date outside bookable range")
	ErrSelfConflict             = errors.New("requester already has an overlapping appointment")
	ErrSlotTaken                = errors.New("slot is not available")
	ErrIllegalTransition        = errors.New("illegal status transition")
	ErrCancellationWindowPassed = errors.New("appointment can no longer be cancelled")
	ErrForbidden                = errors.New("actor is not allowed to perform this action")
	ErrValidation               = errors.New("invalid input")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrNotFound, KindNotFound},
	{ErrUnavailable, KindUnavailable},
	{ErrOutOfRange, KindOutOfRange},
	{ErrSelfConflict, KindSelfConflict},
	{ErrSlotTaken, KindSlotTaken},
	{ErrIllegalTransition, KindIllegalTransition},
	{ErrCancellationWindowPassed, KindCancellationWindowPassed},
	{ErrForbidden, KindForbidden},
	{ErrValidation, KindValidation},
}

// KindOf returns the kind of err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
