package coordinator

import (
	"context"
	"errors"

	"call-signaling/internal/calls"
	"call-signaling/internal/notify"
)

// systemActor is recorded as the actor of transitions nobody requested.
const systemActor = "system"

// EndAction reports what EndCallV2 ended up doing.
type EndAction string

const (
	EndActionCanceled EndAction = "canceled"
	EndActionRejected EndAction = "rejected"
	EndActionEnded    EndAction = "ended"
	EndActionNone     EndAction = "none"
)

// RejectCall declines a ringing direct call. Only the callee may reject.
func (c *Coordinator) RejectCall(ctx context.Context, actor Actor, callID string) (calls.Call, error) {
	call, err := c.loadForActor(ctx, actor, callID)
	if err != nil {
		return calls.Call{}, err
	}
	return c.reject(ctx, call, actor)
}

// CancelCall withdraws a ringing call. Only the caller may cancel.
func (c *Coordinator) CancelCall(ctx context.Context, actor Actor, callID string) (calls.Call, error) {
	call, err := c.loadForActor(ctx, actor, callID)
	if err != nil {
		return calls.Call{}, err
	}
	return c.cancel(ctx, call, actor)
}

// EndCall hangs up a running call for everyone.
func (c *Coordinator) EndCall(ctx context.Context, actor Actor, callID string) (calls.Call, error) {
	call, err := c.loadForActor(ctx, actor, callID)
	if err != nil {
		return calls.Call{}, err
	}
	return c.end(ctx, call, actor)
}

// EndCallV2 picks cancel, reject or end from the call's current status and the
// actor's role. Group calls can only be canceled, by their caller, while
// ringing; anything else is a no-op that only frees the actor.
func (c *Coordinator) EndCallV2(ctx context.Context, actor Actor, callID string) (EndAction, calls.Call, error) {
	call, err := c.loadForActor(ctx, actor, callID)
	if err != nil {
		return EndActionNone, calls.Call{}, err
	}
	// Invited third parties and group members only free themselves.
	if call.IsGroup() || (actor.UserID != call.CallerID && actor.UserID != call.CalleeID) {
		c.release(ctx, call.ID, actor.UserID)
	} else {
		c.release(ctx, call.ID, call.CallerID, call.CalleeID)
	}

	action, updated, err := c.dispatchEnd(ctx, call, actor)
	if !isStale(err) {
		return action, updated, err
	}
	// Someone else moved the call first; decide again from what they left.
	call, err = c.history.Get(ctx, callID)
	if err != nil {
		return EndActionNone, calls.Call{}, err
	}
	return c.dispatchEnd(ctx, call, actor)
}

func (c *Coordinator) dispatchEnd(ctx context.Context, call calls.Call, actor Actor) (EndAction, calls.Call, error) {
	isCaller := call.CallerID == actor.UserID
	switch {
	case call.Status == calls.CallStatusRing && isCaller:
		updated, err := c.cancel(ctx, call, actor)
		return EndActionCanceled, updated, err
	case call.IsGroup():
		return EndActionNone, call, nil
	case call.Status == calls.CallStatusRing && call.CalleeID == actor.UserID:
		updated, err := c.reject(ctx, call, actor)
		return EndActionRejected, updated, err
	case call.Status == calls.CallStatusInCall:
		updated, err := c.end(ctx, call, actor)
		return EndActionEnded, updated, err
	default:
		return EndActionNone, call, nil
	}
}

func (c *Coordinator) loadForActor(ctx context.Context, actor Actor, callID string) (calls.Call, error) {
	call, err := c.history.Get(ctx, callID)
	if err != nil {
		return calls.Call{}, err
	}
	if !call.HasParticipant(actor.UserID) {
		return calls.Call{}, calls.ErrNotParticipant
	}
	if err := c.authorizeForCall(ctx, call, actor.UserID); err != nil {
		return calls.Call{}, err
	}
	return call, nil
}

func (c *Coordinator) reject(ctx context.Context, call calls.Call, actor Actor) (calls.Call, error) {
	if call.IsGroup() {
		return calls.Call{}, calls.ErrNotDirectCall
	}
	if call.CalleeID != actor.UserID {
		return calls.Call{}, calls.ErrInvalidTransition
	}
	updated, err := c.transition(ctx, call, calls.ActionReject, actor.UserID)
	if err != nil {
		return calls.Call{}, err
	}
	c.scheduler.Disarm(call.ID)
	c.release(ctx, call.ID, updated.CallerID, updated.CalleeID)

	c.notify.ToUser(ctx, updated.CallerID, notify.EventCallRejected, notify.CallSignal{CallID: updated.ID, RoomID: updated.RoomID})
	c.notify.PostToRoom(ctx, callMessage(updated, actor.UserID, "📞"))
	return updated, nil
}

func (c *Coordinator) cancel(ctx context.Context, call calls.Call, actor Actor) (calls.Call, error) {
	if call.CallerID != actor.UserID {
		return calls.Call{}, calls.ErrNotCaller
	}
	updated, err := c.transition(ctx, call, calls.ActionCancel, actor.UserID)
	if err != nil {
		return calls.Call{}, err
	}
	c.scheduler.Disarm(call.ID)
	c.release(ctx, call.ID, updated.Participants...)

	caller := c.profile(ctx, updated.CallerID)
	signal := notify.CallSignal{CallID: updated.ID, RoomID: updated.RoomID, Canceled: true}
	if updated.IsGroup() {
		c.notify.ToRoom(ctx, updated.RoomID, notify.EventCallRejected, signal)
		c.notify.PostToRoom(ctx, callMessage(updated, updated.CallerID, groupMissedText(caller.FullName, updated.WithVideo)))
		return updated, nil
	}

	c.notify.ToUser(ctx, updated.CalleeID, notify.EventCallRejected, signal)
	room, err := c.rooms.Room(ctx, updated.RoomID)
	if err != nil {
		c.log(ctx).Warn("room lookup failed", "call_id", updated.ID, "room_id", updated.RoomID, "err", err)
	}
	_, data := c.ringPayloads(updated, room, caller)
	c.notify.RingPush(ctx, updated.CalleeID, data)
	c.notify.PostToRoom(ctx, callMessage(updated, updated.CallerID, missedText(caller.FullName, updated.WithVideo)))
	return updated, nil
}

func (c *Coordinator) end(ctx context.Context, call calls.Call, actor Actor) (calls.Call, error) {
	if call.IsGroup() && call.CallerID != actor.UserID {
		return calls.Call{}, calls.ErrNotCaller
	}
	updated, err := c.transition(ctx, call, calls.ActionEnd, actor.UserID)
	if err != nil {
		return calls.Call{}, err
	}
	c.release(ctx, call.ID, updated.Participants...)

	c.notify.ToRoom(ctx, updated.RoomID, notify.EventCallEnded, notify.CallSignal{CallID: updated.ID, RoomID: updated.RoomID})
	c.notify.PostToRoom(ctx, callMessage(updated, actor.UserID, "📞"))
	return updated, nil
}

// timeoutRing runs when a direct ring deadline passes. It acts only if the
// call is still ringing at that moment.
func (c *Coordinator) timeoutRing(ctx context.Context, callID string) {
	call, err := c.history.Get(ctx, callID)
	if err != nil {
		c.log(ctx).Warn("ring timeout lookup failed", "call_id", callID, "err", err)
		return
	}
	if call.Status != calls.CallStatusRing {
		c.metrics.RingTimeout(false)
		return
	}
	updated, err := c.transition(ctx, call, calls.ActionTimeout, systemActor)
	if err != nil {
		c.metrics.RingTimeout(false)
		if !errors.Is(err, calls.ErrStaleStatus) {
			c.log(ctx).Warn("ring timeout transition failed", "call_id", callID, "err", err)
		}
		return
	}
	c.metrics.RingTimeout(true)
	c.release(ctx, call.ID, updated.CallerID, updated.CalleeID)

	caller := c.profile(ctx, updated.CallerID)
	missed := missedText(caller.FullName, updated.WithVideo)
	c.notify.PostToRoom(ctx, callMessage(updated, updated.CallerID, missed))
	c.notify.ToRoom(ctx, updated.RoomID, notify.EventCallTimeout, notify.CallSignal{CallID: updated.ID, RoomID: updated.RoomID})
	c.notify.ChatPush(ctx, updated.RoomID, updated.CalleeID, caller.FullName, missed)
}
