// Package event defines the closed set of outbound events delivered to
// client connections. Each variant is wire-shaped: its JSON encoding is
// exactly the payload the client receives, with timestamps as float
// seconds.
package event

import "chat-hub/domain"

type Event interface {
	Name() string
}

type ConnectionEstablished struct {
	Status string `json:"status"`
}

func (ConnectionEstablished) Name() string { return "connection_established" }

type UsersList struct {
	Users []string `json:"users"`
	Room  string   `json:"room"`
}

func (UsersList) Name() string { return "users_list" }

type UserJoined struct {
	Username  string  `json:"username"`
	Count     int     `json:"count"`
	Timestamp float64 `json:"timestamp"`
}

func (UserJoined) Name() string { return "user_joined" }

type ChatMessage struct {
	Username  string  `json:"username"`
	Room      string  `json:"room,omitempty"`
	Message   string  `json:"message"`
	System    bool    `json:"system,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

func (ChatMessage) Name() string { return "message" }

type RoomFull struct {
	Room string `json:"room"`
}

func (RoomFull) Name() string { return "room_full" }

type UserLeft struct {
	Username  string  `json:"username"`
	Count     int     `json:"count"`
	Timestamp float64 `json:"timestamp"`
}

func (UserLeft) Name() string { return "user_left" }

type RoomDeleted struct {
	Room string `json:"room"`
}

func (RoomDeleted) Name() string { return "room_deleted" }

type UserOnline struct {
	Username string `json:"username"`
}

func (UserOnline) Name() string { return "user_online" }

type UserOffline struct {
	Username string `json:"username"`
}

func (UserOffline) Name() string { return "user_offline" }

type OnlineUsers struct {
	Users []string `json:"users"`
}

func (OnlineUsers) Name() string { return "online_users" }

type DirectMessage struct {
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Message   string  `json:"message"`
	System    bool    `json:"system,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

func (DirectMessage) Name() string { return "direct_message" }

// HistoryEntry is one resolved direct message in a dm_history payload.
// File is computed from the stored body, not persisted.
type HistoryEntry struct {
	Sender    string  `json:"sender"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
	System    bool    `json:"system"`
	File      bool    `json:"file"`
}

type DMHistory struct {
	History []HistoryEntry `json:"history"`
}

func (DMHistory) Name() string { return "dm_history" }

type UserTyping struct {
	Username string `json:"username"`
}

func (UserTyping) Name() string { return "user_typing" }

type StaringAlert struct {
	Username  string  `json:"username"`
	Target    string  `json:"target"`
	Timestamp float64 `json:"timestamp"`
}

func (StaringAlert) Name() string { return "staring_alert" }

type FileMessage struct {
	Username  string             `json:"username,omitempty"`
	Sender    string             `json:"sender,omitempty"`
	Recipient string             `json:"recipient,omitempty"`
	Room      string             `json:"room,omitempty"`
	File      domain.FilePayload `json:"file"`
	IsDM      bool               `json:"isDm"`
	Timestamp float64            `json:"timestamp"`
}

func (FileMessage) Name() string { return "file_message" }

type Error struct {
	Message string `json:"message"`
}

func (Error) Name() string { return "error" }
