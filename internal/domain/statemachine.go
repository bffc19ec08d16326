package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidTransition is wrapped by transition failures; the message carries
// the current and requested status.
var ErrInvalidTransition = errors.New("invalid status transition")

// transitions is the sole authority for legal booking status changes.
// completed, cancelled and no-show are terminal.
var transitions = map[BookingStatus][]BookingStatus{
	BookingPending:    {BookingConfirmed, BookingCancelled},
	BookingConfirmed:  {BookingInProgress, BookingCancelled},
	BookingInProgress: {BookingCompleted, BookingCancelled},
	BookingCompleted:  {},
	BookingCancelled:  {},
	BookingNoShow:     {},
}

// CanTransition reports whether the status change is allowed by the
// transition table.
func CanTransition(from, to BookingStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status changes are possible.
func IsTerminal(s BookingStatus) bool {
	return len(transitions[s]) == 0
}

// ApplyTransition validates the requested status change against the
// transition table and returns an updated copy of the booking together with
// the history entry that must be appended. The input booking is not modified;
// the caller persists the returned state and the history entry atomically.
// Permission checks are the caller's responsibility.
func ApplyTransition(b Booking, to BookingStatus, actorID int64, reason, comments string, now time.Time) (Booking, StatusChange, error) {
	if !CanTransition(b.Status, to) {
		return b, StatusChange{}, fmt.Errorf("%w: cannot change status from %s to %s", ErrInvalidTransition, b.Status, to)
	}

	updated := b
	updated.StatusHistory = copyHistory(b.StatusHistory)
	if b.WorkSummary != nil {
		ws := *b.WorkSummary
		updated.WorkSummary = &ws
	}

	switch to {
	case BookingCancelled:
		at := now
		updated.CancellationDate = &at
		updated.CancellationReason = reason

	case BookingInProgress:
		if updated.WorkSummary == nil {
			updated.WorkSummary = &WorkSummary{}
		}
		if updated.WorkSummary.WorkStartTime == nil {
			start := now
			updated.WorkSummary.WorkStartTime = &start
		}

	case BookingCompleted:
		if updated.WorkSummary != nil && updated.WorkSummary.WorkEndTime == nil {
			end := now
			updated.WorkSummary.WorkEndTime = &end
			if updated.WorkSummary.WorkStartTime != nil {
				mins := end.Sub(*updated.WorkSummary.WorkStartTime).Minutes()
				updated.ActualDuration = int(math.Round(mins))
			}
		}
	}

	change := StatusChange{
		Status:    to,
		ChangedBy: actorID,
		ChangedAt: now,
		Reason:    reason,
		Comments:  comments,
	}
	updated.Status = to
	updated.StatusHistory = append(updated.StatusHistory, change)

	return updated, change, nil
}

func copyHistory(h []StatusChange) []StatusChange {
	out := make([]StatusChange, len(h), len(h)+1)
	copy(out, h)
	return out
}
