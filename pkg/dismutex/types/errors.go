package types

import "github.com/pkg/errors"

var (
	// ErrCommunication covers every transport level failure: the peer
	// could not be reached, the connection broke, or the payload was
	// malformed. Callers inside the membership and lock machinery
	// recover from it locally.
	ErrCommunication = errors.New("communication failure")

	// ErrPeerNotFound is returned when unregistering a peer that is not
	// in the directory, or by the name service for an unknown or
	// mismatched registration.
	ErrPeerNotFound = errors.New("no such peer")

	// ErrInvalidAddress means the host name resolved to no usable
	// interface. Fatal at startup.
	ErrInvalidAddress = errors.New("invalid address to listen to")

	// ErrUnexpectedReply is the generic protocol violation: a reply
	// carrying neither result nor error, or an unrecognized error name.
	ErrUnexpectedReply = errors.New("Unexpected server reply")
)

// Wire names for the abstract error kinds. The set is a closed
// whitelist; reconstructing arbitrary names from the wire is exactly
// the hazard the registry dispatch exists to avoid.
const (
	WireErrCommunication = "CommunicationError"
	WireErrNotFound      = "NotFoundError"
	WireErrGeneric       = "Error"
)

// ErrorName maps a local error to the kind name written on the wire.
func ErrorName(err error) string {
	switch errors.Cause(err) {
	case ErrCommunication:
		return WireErrCommunication
	case ErrPeerNotFound:
		return WireErrNotFound
	default:
		return WireErrGeneric
	}
}

// NamedError rebuilds a local error from a wire error kind. Unknown
// names collapse to ErrUnexpectedReply per the whitelist rule.
func NamedError(w *WireError) error {
	msg := ""
	if len(w.Args) > 0 {
		msg = w.Args[0]
	}
	switch w.Name {
	case WireErrCommunication:
		return errors.Wrap(ErrCommunication, msg)
	case WireErrNotFound:
		return errors.Wrap(ErrPeerNotFound, msg)
	case WireErrGeneric:
		return errors.New(msg)
	default:
		return ErrUnexpectedReply
	}
}
