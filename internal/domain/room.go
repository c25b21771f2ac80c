package domain

import "strings"

type (
	RoomID string
	ChatID string
)

const callRoomPrefix = "call:"

// CallRoom keeps call rooms apart from the chat room of the same chat.
func CallRoom(chat ChatID) RoomID {
	return RoomID(callRoomPrefix + string(chat))
}

// ChatOfCallRoom reverses CallRoom.
func ChatOfCallRoom(room RoomID) (ChatID, bool) {
	s := string(room)
	if !strings.HasPrefix(s, callRoomPrefix) {
		return "", false
	}
	return ChatID(strings.TrimPrefix(s, callRoomPrefix)), true
}
