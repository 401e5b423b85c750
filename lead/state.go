package lead

import (
	"errors"
	"time"

	"vendor-desk/models"
)

// State is a step of the lead offer lifecycle.
type State int32

const (
	Idle State = iota
	Fetching
	Awaiting
	Accepting
	Declining
	AutoDeclining
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Awaiting:
		return "awaiting"
	case Accepting:
		return "accepting"
	case Declining:
		return "declining"
	case AutoDeclining:
		return "auto_declining"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Mutating reports whether a gateway commit is in flight in this state.
func (s State) Mutating() bool {
	return s == Accepting || s == Declining || s == AutoDeclining
}

// Action is what ended an offer.
type Action string

const (
	ActionAccept      Action = "accept"
	ActionDecline     Action = "decline"
	ActionAutoDecline Action = "auto_decline"
	ActionClose       Action = "close"
)

var (
	// ErrNotAwaiting is returned for accept/decline before the countdown runs.
	ErrNotAwaiting = errors.New("lead: offer is not awaiting a decision")
	// ErrClosed is returned for any call after the offer closed.
	ErrClosed = errors.New("lead: offer closed")
	// ErrPartialCommit marks an accept whose status mutation persisted but
	// whose lead commit failed. It is not rolled back.
	ErrPartialCommit = errors.New("lead: status mutated but lead commit failed")
	// ErrOfferActive is returned when the order already has an open offer.
	ErrOfferActive = errors.New("lead: order already has an open offer")
)

// AcceptResult reports both halves of the two-step accept commit.
type AcceptResult struct {
	StatusMutated bool  `json:"statusMutated"`
	LeadCommitted bool  `json:"leadCommitted"`
	Err           error `json:"-"`
}

// Committed reports whether both steps succeeded.
func (r AcceptResult) Committed() bool {
	return r.StatusMutated && r.LeadCommitted
}

// Partial reports the status-mutated-but-not-committed case that needs
// manual reconciliation.
func (r AcceptResult) Partial() bool {
	return r.StatusMutated && !r.LeadCommitted
}

// Outcome is delivered to the owner exactly once when an offer closes.
type Outcome struct {
	Offer    models.LeadOffer
	Action   Action
	Accept   *AcceptResult
	Err      error
	ClosedAt time.Time
}

// Decision converts the outcome into its journal record.
func (o Outcome) Decision(vendorPhone string) models.LeadDecision {
	d := models.LeadDecision{
		OfferID:     o.Offer.OfferID,
		OrderID:     o.Offer.OrderID,
		VendorPhone: vendorPhone,
		Action:      string(o.Action),
		ArrivedAt:   o.Offer.ArrivedAt,
		DecidedAt:   o.ClosedAt,
	}
	switch {
	case o.Accept != nil:
		d.StatusMutated = o.Accept.StatusMutated
		d.LeadCommitted = o.Accept.LeadCommitted
	case o.Action == ActionDecline || o.Action == ActionAutoDecline:
		d.LeadCommitted = o.Err == nil
	}
	if o.Err != nil {
		d.Error = o.Err.Error()
	}
	return d
}
