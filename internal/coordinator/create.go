package coordinator

import (
	"context"
	"fmt"
	"slices"

	"call-signaling/internal/calls"
	"call-signaling/internal/directory"
	"call-signaling/internal/notify"
)

type CreateRequest struct {
	RoomID    string
	WithVideo bool
	Platform  calls.MeetPlatform
}

// CreateCall starts ringing the other member of a direct room, or every member of a group room.
//
// A caller already holding a live call gets that call's id back instead of a new call.
func (c *Coordinator) CreateCall(ctx context.Context, actor Actor, req CreateRequest) (string, error) {
	settings, err := c.settings.CallSettings(ctx)
	if err != nil {
		return "", fmt.Errorf("coordinator: load call settings: %w", err)
	}
	if !settings.Enabled {
		return "", calls.ErrCallingDisabled
	}
	if req.Platform == "" {
		req.Platform = calls.MeetPlatformWebRTC
	}
	if !req.Platform.Valid() {
		return "", fmt.Errorf("%w: unknown meet platform %q", calls.ErrInvalidArgument, req.Platform)
	}

	access, err := c.guard.Authorize(ctx, req.RoomID, actor.UserID)
	if err != nil {
		return "", err
	}
	room := access.Room

	peerID := ""
	if room.Type != calls.RoomTypeGroup {
		peerID, err = c.rooms.Peer(ctx, room.ID, actor.UserID)
		if err != nil {
			return "", err
		}
	}

	now := c.now()
	callID := c.newID()
	mine := calls.GlobalStatus{
		IsCaller:     true,
		CallID:       callID,
		PeerOrRoomID: peerID,
		RoomID:       room.ID,
		StartedAt:    now,
	}
	if room.Type == calls.RoomTypeGroup {
		mine.PeerOrRoomID = room.ID
	}

	existing, claimed, err := c.claim(ctx, actor.UserID, mine)
	if err != nil {
		return "", err
	}
	if !claimed {
		c.log(ctx).Info("caller already in a call", "user_id", actor.UserID, "call_id", existing)
		return existing, nil
	}

	var call calls.Call
	if room.Type == calls.RoomTypeGroup {
		call, err = c.commitGroupRing(ctx, actor, room, callID, req)
	} else {
		call, err = c.commitDirectRing(ctx, actor, room, peerID, callID, req, settings)
	}
	if err != nil {
		c.release(ctx, callID, actor.UserID)
		return "", err
	}
	c.metrics.CallCreated(string(call.RoomType))

	caller := c.profile(ctx, actor.UserID)
	if call.IsGroup() {
		c.notifyGroupRing(ctx, call, room, caller)
	} else {
		c.notifyDirectRing(ctx, call, room, caller)
	}
	return call.ID, nil
}

// claim marks the caller busy with st. When the caller already holds a live call it
// returns that call id and false. A status left behind by a finished call is replaced.
func (c *Coordinator) claim(ctx context.Context, userID string, st calls.GlobalStatus) (string, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		held, ok, err := c.presence.SetIfFree(ctx, userID, st)
		if err != nil {
			return "", false, fmt.Errorf("coordinator: claim presence: %w", err)
		}
		if ok {
			return st.CallID, true, nil
		}
		live, err := c.isLive(ctx, held)
		if err != nil {
			return "", false, err
		}
		if live || attempt == 1 {
			return held.CallID, false, nil
		}
		c.release(ctx, held.CallID, userID)
	}
	return "", false, nil
}

func (c *Coordinator) commitGroupRing(ctx context.Context, actor Actor, room directory.Room, callID string, req CreateRequest) (calls.Call, error) {
	members, err := c.rooms.Members(ctx, room.ID)
	if err != nil {
		return calls.Call{}, err
	}
	participants := []string{actor.UserID}
	for _, m := range members {
		if !slices.Contains(participants, m) {
			participants = append(participants, m)
		}
	}

	now := c.now()
	call := calls.Call{
		ID:           callID,
		CallerID:     actor.UserID,
		Participants: participants,
		RoomID:       room.ID,
		RoomType:     calls.RoomTypeGroup,
		WithVideo:    req.WithVideo,
		MeetPlatform: req.Platform,
		Status:       calls.CallStatusRing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.history.Create(ctx, call); err != nil {
		return calls.Call{}, fmt.Errorf("coordinator: create call: %w", err)
	}
	c.recordMembership(ctx, call, actor)
	return call, nil
}

func (c *Coordinator) commitDirectRing(ctx context.Context, actor Actor, room directory.Room, peerID, callID string, req CreateRequest, settings Settings) (calls.Call, error) {
	peerStatus, err := c.activeStatus(ctx, peerID)
	if err != nil {
		return calls.Call{}, fmt.Errorf("coordinator: peer presence: %w", err)
	}
	if !peerStatus.IsEmpty() && peerStatus.RoomID != room.ID {
		return calls.Call{}, calls.ErrPeerBusy
	}

	now := c.now()
	call := calls.Call{
		ID:           callID,
		CallerID:     actor.UserID,
		CalleeID:     peerID,
		Participants: []string{actor.UserID, peerID},
		RoomID:       room.ID,
		RoomType:     calls.RoomTypeSingle,
		WithVideo:    req.WithVideo,
		MeetPlatform: req.Platform,
		Status:       calls.CallStatusRing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.history.Create(ctx, call); err != nil {
		return calls.Call{}, fmt.Errorf("coordinator: create call: %w", err)
	}
	c.recordMembership(ctx, call, actor)

	err = c.presence.Set(ctx, peerID, calls.GlobalStatus{
		CallID:       callID,
		PeerOrRoomID: actor.UserID,
		RoomID:       room.ID,
		StartedAt:    now,
	})
	if err != nil {
		return calls.Call{}, fmt.Errorf("coordinator: set peer presence: %w", err)
	}

	c.scheduler.Arm(callID, now.Add(settings.RingTimeout), func(ctx context.Context) {
		c.timeoutRing(ctx, callID)
	})
	return call, nil
}

func (c *Coordinator) recordMembership(ctx context.Context, call calls.Call, actor Actor) {
	if actor.DeviceID == "" {
		return
	}
	err := c.members.Record(ctx, calls.Membership{
		ID:           c.newID(),
		CallID:       call.ID,
		UserID:       actor.UserID,
		UserDeviceID: actor.DeviceID,
		RoomID:       call.RoomID,
		CreatedAt:    c.now(),
	})
	if err != nil {
		c.log(ctx).Warn("membership record failed", "call_id", call.ID, "user_id", actor.UserID, "err", err)
	}
}

func (c *Coordinator) ringPayloads(call calls.Call, room directory.Room, caller directory.Profile) (notify.NewCallEvent, notify.PushCallData) {
	ev := notify.NewCallEvent{
		RoomID:     call.RoomID,
		CallID:     call.ID,
		WithVideo:  call.WithVideo,
		CallerName: caller.FullName,
		RoomType:   call.RoomType,
		GroupName:  room.Title,
		UserData: notify.UserData{
			ID:        caller.ID,
			FullName:  caller.FullName,
			UserImage: caller.Image,
		},
	}
	data := notify.PushCallData{
		CallID:      call.ID,
		CallerName:  caller.FullName,
		CallerID:    caller.ID,
		CallerImage: caller.Image,
		RoomID:      call.RoomID,
		WithVideo:   call.WithVideo,
		CallStatus:  call.Status,
		RoomType:    call.RoomType,
		GroupName:   room.Title,
	}
	return ev, data
}

func (c *Coordinator) notifyDirectRing(ctx context.Context, call calls.Call, room directory.Room, caller directory.Profile) {
	ev, data := c.ringPayloads(call, room, caller)
	c.notify.ToUser(ctx, call.CalleeID, notify.EventNewCall, ev)
	c.notify.RingPush(ctx, call.CalleeID, data)
	c.notify.PostToRoom(ctx, callMessage(call, call.CallerID, ringText(caller.FullName, call.WithVideo)))
}

func (c *Coordinator) notifyGroupRing(ctx context.Context, call calls.Call, room directory.Room, caller directory.Profile) {
	ev, data := c.ringPayloads(call, room, caller)
	for _, u := range call.Participants {
		if u == call.CallerID {
			continue
		}
		c.notify.ToUser(ctx, u, notify.EventNewCall, ev)
		c.notify.RingPush(ctx, u, data)
	}
	c.notify.PostToRoom(ctx, callMessage(call, call.CallerID, groupRingText(room.Title)))
}
