package types

import (
	"encoding/base64"
	"time"
)

// Outbound event names as seen by clients
// ARCHITECTURAL DISCOVERY: Event names are part of the wire contract with the
// browser client and must not change independently of it
const (
	EventReceiveMessage     = "ReceiveMessage"
	EventUpdateUserList     = "UpdateUserList"
	EventShowError          = "ShowError"
	EventSetEncryptionKeys  = "SetEncryptionKeys"
	EventSystemNotification = "ReceiveSystemNotification"
)

// Inbound frame types sent by clients over the WebSocket
const (
	FrameJoin   = "join"
	FrameSend   = "send"
	FrameDelete = "delete"
)

// TimeLayout formats message timestamps for display
const TimeLayout = "15:04"

// Room is the durable record of a chat room
// FUNCTIONAL DISCOVERY: Name is the normalized (trimmed, lower-cased) room name
// and is unique in the store; key material never leaves the server except
// through the SetEncryptionKeys event on join
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Key       []byte    `json:"-"`
	IV        []byte    `json:"-"`
}

// Message is the durable record of one chat message
// ARCHITECTURAL DISCOVERY: Only ciphertext is stored; plaintext exists in memory
// for the duration of a Send and during history replay
type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	Sender     string    `json:"sender"`
	Ciphertext []byte    `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
}

// HistoryEntry is one decoded history message delivered on join
type HistoryEntry struct {
	Sender    string
	Text      string
	Timestamp time.Time
	Failed    bool // Text is the placeholder, decryption failed
}

// Frame is an inbound client request
type Frame struct {
	Type        string `json:"type"`
	DisplayName string `json:"displayName,omitempty"`
	RoomName    string `json:"roomName,omitempty"`
	Text        string `json:"text,omitempty"`
}

// Event is an outbound message to one or more clients
// TECHNICAL DISCOVERY: A single flat struct keeps the JSON shape predictable;
// unused fields are omitted per event type
type Event struct {
	Type   string   `json:"type"`
	Sender string   `json:"sender,omitempty"`
	Text   string   `json:"text,omitempty"`
	Time   string   `json:"time,omitempty"`
	Names  []string `json:"names,omitempty"`
	Key    string   `json:"key,omitempty"`
	IV     string   `json:"iv,omitempty"`
}

// NewReceiveMessage builds a chat message event
func NewReceiveMessage(sender, text string, at time.Time) Event {
	return Event{
		Type:   EventReceiveMessage,
		Sender: sender,
		Text:   text,
		Time:   at.Local().Format(TimeLayout),
	}
}

// NewUserList builds a roster event
func NewUserList(names []string) Event {
	return Event{Type: EventUpdateUserList, Names: names}
}

// NewShowError builds a caller-only error event
func NewShowError(text string) Event {
	return Event{Type: EventShowError, Text: text}
}

// NewEncryptionKeys builds the key material event sent to a joining client
func NewEncryptionKeys(key, iv []byte) Event {
	return Event{
		Type: EventSetEncryptionKeys,
		Key:  base64.StdEncoding.EncodeToString(key),
		IV:   base64.StdEncoding.EncodeToString(iv),
	}
}

// NewSystemNotification builds a non-error system notice
func NewSystemNotification(text string) Event {
	return Event{Type: EventSystemNotification, Text: text}
}
