package notify

import (
	"encoding/json"
	"strconv"

	"call-signaling/internal/calls"
)

// Socket event names.
const (
	EventNewCall           = "onNewCall"
	EventCallAccepted      = "onCallAccepted"
	EventParticipantJoined = "onCallParticipantJoined"
	EventCallRejected      = "onCallRejected"
	EventCallEnded         = "onCallEnded"
	EventCallTimeout       = "onCallTimeout"
	EventNewMessage        = "onNewMessage"
)

type UserData struct {
	ID        string `json:"id"`
	FullName  string `json:"fullName"`
	UserImage string `json:"userImage"`
}

// NewCallEvent rings a callee or an invitee.
type NewCallEvent struct {
	RoomID     string         `json:"roomId"`
	CallID     string         `json:"callId"`
	WithVideo  bool           `json:"withVideo"`
	CallerName string         `json:"callerName"`
	RoomType   calls.RoomType `json:"roomType"`
	GroupName  string         `json:"groupName,omitempty"`
	UserData   UserData       `json:"userData"`
}

type Participant struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type CallAcceptedEvent struct {
	MeetID         string          `json:"meetId"`
	RoomID         string          `json:"roomId"`
	PeerAnswer     json.RawMessage `json:"peerAnswer,omitempty"`
	Participants   []Participant   `json:"participants"`
	NewParticipant Participant     `json:"newParticipant"`
}

type ParticipantJoinedEvent struct {
	CallID          string        `json:"callId"`
	RoomID          string        `json:"roomId"`
	Participant     Participant   `json:"participant"`
	AllParticipants []Participant `json:"allParticipants"`
}

// CallSignal is the body of reject, cancel, end and timeout events.
type CallSignal struct {
	CallID   string `json:"callId"`
	RoomID   string `json:"roomId"`
	Canceled bool   `json:"canceled,omitempty"`
}

// PushCallData is the push body for both an original ring and a mid-call invite.
type PushCallData struct {
	CallID      string           `json:"callId"`
	CallerName  string           `json:"callerName"`
	CallerID    string           `json:"callerId"`
	CallerImage string           `json:"callerImage"`
	RoomID      string           `json:"roomId"`
	WithVideo   bool             `json:"withVideo"`
	CallStatus  calls.CallStatus `json:"callStatus"`
	RoomType    calls.RoomType   `json:"roomType"`
	GroupName   string           `json:"groupName,omitempty"`
}

// Data flattens the payload into the string map push providers accept.
func (p PushCallData) Data() map[string]string {
	out := map[string]string{
		"type":        "call",
		"callId":      p.CallID,
		"callerName":  p.CallerName,
		"callerId":    p.CallerID,
		"callerImage": p.CallerImage,
		"roomId":      p.RoomID,
		"withVideo":   strconv.FormatBool(p.WithVideo),
		"callStatus":  string(p.CallStatus),
		"roomType":    string(p.RoomType),
	}
	if p.GroupName != "" {
		out["groupName"] = p.GroupName
	}
	return out
}
