package coordinator

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"call-signaling/internal/calls"
	"call-signaling/internal/directory"
	"call-signaling/internal/notify"

	"golang.org/x/sync/errgroup"
)

type InviteResult struct {
	Success           bool   `json:"success"`
	InvitedUsersCount int    `json:"invitedUsersCount"`
	Message           string `json:"message"`
}

// InviteToCall rings the members of roomIDs into an active call. Rooms the
// inviter cannot access are skipped, not failed.
func (c *Coordinator) InviteToCall(ctx context.Context, actor Actor, callID string, roomIDs []string) (InviteResult, error) {
	call, err := c.loadForActor(ctx, actor, callID)
	if err != nil {
		return InviteResult{}, err
	}
	if !call.Status.IsActive() {
		return InviteResult{}, fmt.Errorf("%w: cannot invite into a call in status %q", calls.ErrInvalidTransition, call.Status)
	}

	perRoom := c.resolveInvitees(ctx, actor.UserID, call, roomIDs)

	// Each invitee is rung through the first room that resolved them.
	var invitees []string
	via := map[string]directory.Room{}
	for _, rid := range roomIDs {
		inv := perRoom[rid]
		for _, u := range inv.users {
			if !slices.Contains(invitees, u) {
				invitees = append(invitees, u)
				via[u] = inv.room
			}
		}
	}
	if len(invitees) == 0 {
		return InviteResult{Success: true, Message: "No new users to invite"}, nil
	}

	updated, err := c.history.AddParticipants(ctx, call.ID, invitees, c.now())
	if err != nil {
		return InviteResult{}, fmt.Errorf("coordinator: add invitees: %w", err)
	}

	inviter := c.profile(ctx, actor.UserID)
	for _, u := range invitees {
		ev, data := c.invitePayloads(updated, via[u], inviter)
		c.notify.ToUser(ctx, u, notify.EventNewCall, ev)
		c.notify.RingPush(ctx, u, data)
	}
	for _, rid := range roomIDs {
		if len(perRoom[rid].users) == 0 {
			continue
		}
		m := callMessage(updated, actor.UserID, inviteText(inviter.FullName))
		m.RoomID = rid
		m.Attachment.IsInvitation = true
		c.notify.PostToRoom(ctx, m)
	}

	c.log(ctx).Info("call invite sent", "call_id", updated.ID, "invited", len(invitees))
	return InviteResult{
		Success:           true,
		InvitedUsersCount: len(invitees),
		Message:           fmt.Sprintf("Invited %d users to the call", len(invitees)),
	}, nil
}

// invitePayloads rings an invitee exactly like a fresh call, addressed through
// the room they were invited from.
func (c *Coordinator) invitePayloads(call calls.Call, room directory.Room, inviter directory.Profile) (notify.NewCallEvent, notify.PushCallData) {
	ev, data := c.ringPayloads(call, room, inviter)
	ev.RoomID, ev.RoomType = room.ID, room.Type
	data.RoomID, data.RoomType = room.ID, room.Type
	data.CallStatus = calls.CallStatusRing
	return ev, data
}

type roomInvite struct {
	room  directory.Room
	users []string
}

// resolveInvitees maps each accessible room to the users it adds to call.
func (c *Coordinator) resolveInvitees(ctx context.Context, inviterID string, call calls.Call, roomIDs []string) map[string]roomInvite {
	var (
		mu  sync.Mutex
		out = make(map[string]roomInvite, len(roomIDs))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, rid := range roomIDs {
		g.Go(func() error {
			room, users, err := c.roomInvitees(gctx, inviterID, rid)
			if err != nil {
				c.log(ctx).Warn("invite room skipped", "call_id", call.ID, "room_id", rid, "err", err)
				return nil
			}
			var fresh []string
			for _, u := range users {
				if u != inviterID && !call.HasParticipant(u) {
					fresh = append(fresh, u)
				}
			}
			mu.Lock()
			out[rid] = roomInvite{room: room, users: fresh}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Coordinator) roomInvitees(ctx context.Context, inviterID, roomID string) (directory.Room, []string, error) {
	access, err := c.guard.Authorize(ctx, roomID, inviterID)
	if err != nil {
		return directory.Room{}, nil, err
	}
	if access.Room.Type == calls.RoomTypeGroup {
		members, err := c.rooms.Members(ctx, roomID)
		return access.Room, members, err
	}
	peer, err := c.rooms.Peer(ctx, roomID, inviterID)
	if err != nil {
		return directory.Room{}, nil, err
	}
	return access.Room, []string{peer}, nil
}
