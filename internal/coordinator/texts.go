package coordinator

import (
	"fmt"

	"call-signaling/internal/calls"
	"call-signaling/internal/messages"
)

func callKind(withVideo bool) string {
	if withVideo {
		return "Video Call"
	}
	return "Audio Call"
}

func ringText(callerName string, withVideo bool) string {
	kind := "Audio"
	if withVideo {
		kind = "Video"
	}
	return fmt.Sprintf("📞 Incoming %s call from %s", kind, callerName)
}

func groupRingText(groupName string) string {
	return fmt.Sprintf("📞 New call from %s 👥", groupName)
}

func missedText(callerName string, withVideo bool) string {
	return fmt.Sprintf("📞 Missed %s from %s", callKind(withVideo), callerName)
}

func groupMissedText(callerName string, withVideo bool) string {
	return fmt.Sprintf("📞 Missed Group %s from %s", callKind(withVideo), callerName)
}

func answeredText(name string) string {
	return fmt.Sprintf("📞 %s answered the call", name)
}

func inviteText(inviterName string) string {
	return fmt.Sprintf("📞 %s invited you to join the call", inviterName)
}

// callMessage builds the room message that accompanies a call event.
func callMessage(call calls.Call, senderID, content string) messages.Message {
	att := &messages.CallAttachment{
		CallID:     call.ID,
		CallStatus: call.Status,
		WithVideo:  call.WithVideo,
		StartedAt:  call.StartedAt,
		EndedAt:    call.EndedAt,
	}
	if d := call.Duration(); d > 0 {
		att.DurationSeconds = int(d.Seconds())
	}
	return messages.Message{
		RoomID:     call.RoomID,
		SenderID:   senderID,
		Type:       messages.MessageTypeCall,
		Content:    content,
		Attachment: att,
	}
}
