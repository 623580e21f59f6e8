package types

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxDisplayNameLength = 50
	MaxRoomNameLength    = 100
)

// NormalizeRoomName returns the canonical form of a room name
// FUNCTIONAL DISCOVERY: Rooms are case-insensitive, so the canonical form is
// trimmed and lower-cased; it is the key in both memory and the store
func NormalizeRoomName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeDisplayName trims a display name but preserves its case
func NormalizeDisplayName(name string) string {
	return strings.TrimSpace(name)
}

// ValidateDisplayName checks an already-normalized display name
func ValidateDisplayName(name string) error {
	if name == "" {
		return ErrEmptyDisplayName
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return ErrDisplayNameTooLong
	}
	if hasControl(name) {
		return ErrInvalidDisplayName
	}
	return nil
}

// ValidateRoomName checks an already-normalized room name
func ValidateRoomName(name string) error {
	if name == "" {
		return ErrEmptyRoomName
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return ErrRoomNameTooLong
	}
	if hasControl(name) {
		return ErrInvalidRoomName
	}
	return nil
}

// ValidateMessageText checks message text against the length policy
// TECHNICAL DISCOVERY: Length is counted in runes so Cyrillic text gets the
// same budget as ASCII
func ValidateMessageText(text string, maxLength int) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if maxLength > 0 && utf8.RuneCountInString(text) > maxLength {
		return ErrMessageTooLong
	}
	return nil
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}
