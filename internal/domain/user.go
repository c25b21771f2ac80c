// Package domain contains entity without logic, just meta-data
package domain

import (
	"fmt"
	"unicode/utf8"
)

// MaxUserIDLen caps an identity in characters.
const MaxUserIDLen = 64

// UserID is the opaque identity supplied by the external auth system.
type UserID string

// ParseUserID checks an identity taken from the wire.
func ParseUserID(raw string) (UserID, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("user id empty: %w", ErrMalformed)
	}
	if utf8.RuneCountInString(raw) > MaxUserIDLen {
		return "", fmt.Errorf("user id too long: %w", ErrMalformed)
	}
	return UserID(raw), nil
}

// Mailbox is the personal room every connection of the user listens on.
func (u UserID) Mailbox() RoomID { return RoomID(u) }
