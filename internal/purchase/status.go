package purchase

import (
	"errors"
	"fmt"
)

// Status of a purchase order
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusConfirmed Status = "confirmed"
	StatusShipping  Status = "shipping"
	StatusShipped   Status = "shipped"
	StatusReceived  Status = "received"
	StatusCancelled Status = "cancelled"
)

// transitions lists, for each status, the statuses it may move to
var transitions = map[Status][]Status{
	StatusDraft:     {StatusSent, StatusShipping, StatusCancelled},
	StatusSent:      {StatusConfirmed, StatusShipping, StatusReceived, StatusCancelled},
	StatusConfirmed: {StatusShipping, StatusCancelled},
	StatusShipping:  {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusReceived, StatusCancelled},
	StatusReceived:  nil,
	StatusCancelled: nil,
}

var ErrUnknownStatus = errors.New("unknown purchase order status")

// ParseStatus accepts only the known statuses
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	next, known := transitions[s]
	return known && len(next) == 0
}

// TransitionError is returned for any move not in the transition table
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move purchase order from %s to %s", e.From, e.To)
}
