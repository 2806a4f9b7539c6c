package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"call-signaling/internal/calls"
	"call-signaling/internal/notify"
)

// AcceptCall joins actor to a ringing or running call.
//
// For direct calls the caller's device must still be reachable; otherwise the
// call moves to Offline and ErrPeerDeviceOffline is returned.
func (c *Coordinator) AcceptCall(ctx context.Context, actor Actor, callID string, peerAnswer json.RawMessage) (calls.Call, error) {
	call, err := c.history.Get(ctx, callID)
	if err != nil {
		return calls.Call{}, err
	}
	if err := c.authorizeForCall(ctx, call, actor.UserID); err != nil {
		return calls.Call{}, err
	}
	if _, err := calls.Next(call.Status, calls.ActionAccept); err != nil {
		return calls.Call{}, err
	}
	if call.Status == calls.CallStatusRing && call.CallerID == actor.UserID {
		return calls.Call{}, calls.ErrCallerCannotAccept
	}

	if !call.HasParticipant(actor.UserID) {
		call, err = c.history.AddParticipants(ctx, call.ID, []string{actor.UserID}, c.now())
		if err != nil {
			return calls.Call{}, fmt.Errorf("coordinator: add participant: %w", err)
		}
	}
	c.recordMembership(ctx, call, actor)

	if !call.IsGroup() && call.Status == calls.CallStatusRing {
		reachable, err := c.callerReachable(ctx, call)
		if err != nil {
			return calls.Call{}, err
		}
		if !reachable {
			return calls.Call{}, c.markOffline(ctx, call, actor.UserID)
		}
	}

	updated, err := c.transition(ctx, call, calls.ActionAccept, actor.UserID)
	if err != nil {
		return calls.Call{}, err
	}
	c.scheduler.Disarm(call.ID)

	if updated.IsGroup() {
		err = c.presence.Set(ctx, actor.UserID, calls.GlobalStatus{
			CallID:       updated.ID,
			PeerOrRoomID: updated.RoomID,
			RoomID:       updated.RoomID,
			StartedAt:    c.now(),
		})
		if err != nil {
			c.log(ctx).Warn("presence set failed", "call_id", updated.ID, "user_id", actor.UserID, "err", err)
		}
	}

	c.notifyAccepted(ctx, updated, actor.UserID, peerAnswer)
	return updated, nil
}

// callerReachable checks the device the caller rang from. Other joined
// participants are not consulted.
func (c *Coordinator) callerReachable(ctx context.Context, call calls.Call) (bool, error) {
	m, ok, err := c.members.LatestDevice(ctx, call.ID, call.CallerID)
	if err != nil {
		return false, fmt.Errorf("coordinator: caller device lookup: %w", err)
	}
	if !ok {
		return false, nil
	}
	online, err := c.devices.IsOnline(ctx, m.UserDeviceID)
	if err != nil {
		return false, fmt.Errorf("coordinator: caller device presence: %w", err)
	}
	return online, nil
}

func (c *Coordinator) markOffline(ctx context.Context, call calls.Call, actorID string) error {
	updated, err := c.transition(ctx, call, calls.ActionOffline, actorID)
	if err != nil {
		return err
	}
	c.scheduler.Disarm(call.ID)
	c.release(ctx, call.ID, updated.CallerID, updated.CalleeID)

	c.notify.ToRoom(ctx, updated.RoomID, notify.EventCallEnded, notify.CallSignal{CallID: updated.ID, RoomID: updated.RoomID})
	return calls.ErrPeerDeviceOffline
}

func (c *Coordinator) notifyAccepted(ctx context.Context, call calls.Call, userID string, peerAnswer json.RawMessage) {
	roster := c.roster(ctx, call.Participants)
	joined := notify.Participant{UserID: userID, Name: c.profile(ctx, userID).FullName}

	if !call.IsGroup() {
		c.notify.ToUsers(ctx, call.Participants, notify.EventCallAccepted, notify.CallAcceptedEvent{
			MeetID:         call.ID,
			RoomID:         call.RoomID,
			PeerAnswer:     peerAnswer,
			Participants:   roster,
			NewParticipant: joined,
		})
	}
	c.notify.ToUsers(ctx, call.Participants, notify.EventParticipantJoined, notify.ParticipantJoinedEvent{
		CallID:          call.ID,
		RoomID:          call.RoomID,
		Participant:     joined,
		AllParticipants: roster,
	})
	if !call.IsGroup() {
		c.notify.PostToRoom(ctx, callMessage(call, userID, answeredText(joined.Name)))
	}
}

func isStale(err error) bool { return errors.Is(err, calls.ErrStaleStatus) }
