package auction

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the recoverable command rejection reasons. Every kind
// is safe to surface to the issuing client.
type ErrorKind string

const (
	KindInvalidTransition ErrorKind = "InvalidTransition"
	KindNotYourTurn       ErrorKind = "NotYourTurn"
	KindStaleBid          ErrorKind = "StaleBid"
	KindBelowMinimum      ErrorKind = "BelowMinimum"
	KindSelfOutbid        ErrorKind = "SelfOutbid"
	KindNotAuctioneer     ErrorKind = "NotAuctioneer"
	KindAuctionNotFound   ErrorKind = "AuctionNotFound"
)

// Error is a rejected command. The command had no effect; Snapshot carries
// the authoritative state at rejection time so the client can resync.
type Error struct {
	Kind     ErrorKind
	Message  string
	Snapshot *Snapshot
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the rejection kind from err, or "" if err is not a
// command rejection.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// SnapshotOf extracts the resync snapshot attached to a rejection, if any.
func SnapshotOf(err error) *Snapshot {
	var e *Error
	if errors.As(err, &e) {
		return e.Snapshot
	}
	return nil
}
