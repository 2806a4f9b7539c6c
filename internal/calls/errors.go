package calls

import "errors"

// Authorization failures.
var (
	ErrNotRoomMember  = errors.New("calls: not a member of this room")
	ErrBanned         = errors.New("calls: banned from this room")
	ErrNotParticipant = errors.New("calls: not a participant of this call")
	ErrNotCaller      = errors.New("calls: only the caller can do this")
)

// Precondition failures.
var (
	ErrCallingDisabled    = errors.New("calls: calling is disabled")
	ErrPeerBusy           = errors.New("calls: peer is busy in another call")
	ErrInvalidTransition  = errors.New("calls: invalid call status for this action")
	ErrCallerCannotAccept = errors.New("calls: caller cannot accept their own ringing call")
	ErrNotDirectCall      = errors.New("calls: action only valid for direct calls")
)

// Reachability failures.
var ErrPeerDeviceOffline = errors.New("calls: peer device offline")

// Lookup failures.
var (
	ErrCallNotFound = errors.New("calls: call not found")
	ErrRoomNotFound = errors.New("calls: room not found")
)

var ErrInvalidArgument = errors.New("calls: invalid argument")

// ErrStaleStatus is returned by repositories when a compare-and-set update lost the race.
var ErrStaleStatus = errors.New("calls: call status changed concurrently")

func IsAuthorization(err error) bool {
	return errors.Is(err, ErrNotRoomMember) || errors.Is(err, ErrBanned) ||
		errors.Is(err, ErrNotParticipant) || errors.Is(err, ErrNotCaller)
}

func IsPrecondition(err error) bool {
	return errors.Is(err, ErrCallingDisabled) || errors.Is(err, ErrPeerBusy) ||
		errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrCallerCannotAccept) ||
		errors.Is(err, ErrNotDirectCall) || errors.Is(err, ErrStaleStatus)
}

func IsReachability(err error) bool {
	return errors.Is(err, ErrPeerDeviceOffline)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrCallNotFound) || errors.Is(err, ErrRoomNotFound)
}
