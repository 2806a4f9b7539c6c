package calls

import "fmt"

// Action is a request to move a call out of its current status.
type Action string

const (
	ActionAccept  Action = "accept"
	ActionReject  Action = "reject"
	ActionCancel  Action = "cancel"
	ActionEnd     Action = "end"
	ActionTimeout Action = "timeout"
	ActionOffline Action = "offline"
)

type transitionKey struct {
	from   CallStatus
	action Action
}

// transitions is the complete call state graph. Anything not listed is rejected.
// InCall+accept is a self-edge: late joiners of a running call do not change its status.
var transitions = map[transitionKey]CallStatus{
	{CallStatusRing, ActionAccept}:   CallStatusInCall,
	{CallStatusInCall, ActionAccept}: CallStatusInCall,
	{CallStatusRing, ActionReject}:   CallStatusRejected,
	{CallStatusRing, ActionCancel}:   CallStatusCanceled,
	{CallStatusRing, ActionTimeout}:  CallStatusTimeout,
	{CallStatusRing, ActionOffline}:  CallStatusOffline,
	{CallStatusInCall, ActionEnd}:    CallStatusFinished,
}

// Next returns the status reached by applying action to from.
func Next(from CallStatus, action Action) (CallStatus, error) {
	to, ok := transitions[transitionKey{from, action}]
	if !ok {
		return "", fmt.Errorf("%w: cannot %s a call in status %q", ErrInvalidTransition, action, from)
	}
	return to, nil
}

// Sources lists every status from which action is allowed.
// Repositories use it as the compare-and-set condition of a status update.
func Sources(action Action) []CallStatus {
	var out []CallStatus
	for _, s := range []CallStatus{CallStatusRing, CallStatusInCall} {
		if _, ok := transitions[transitionKey{s, action}]; ok {
			out = append(out, s)
		}
	}
	return out
}
