package ws

import (
	"encoding/json"
	"fmt"

	"chat-hub/domain"
	"chat-hub/domain/event"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Frame is the inbound wire envelope: a named event with its payload.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// outFrame is the outbound envelope. The event supplies both its name
// and its wire-shaped payload.
type outFrame struct {
	Event string      `json:"event"`
	Data  event.Event `json:"data"`
}

type joinPayload struct {
	Username string `json:"username" validate:"required"`
	Room     string `json:"room" validate:"required"`
}

type leavePayload struct {
	Username string `json:"username" validate:"required"`
	Room     string `json:"room" validate:"required"`
}

type messagePayload struct {
	Username string `json:"username" validate:"required"`
	Room     string `json:"room" validate:"required"`
	Message  string `json:"message" validate:"required"`
}

type registerUserPayload struct {
	Username string `json:"username" validate:"required"`
}

type directMessagePayload struct {
	Sender    string `json:"sender" validate:"required"`
	Recipient string `json:"recipient" validate:"required"`
	Message   string `json:"message" validate:"required"`
}

type dmHistoryPayload struct {
	User1 string `json:"user1" validate:"required"`
	User2 string `json:"user2" validate:"required"`
}

type typingPayload struct {
	Username string `json:"username" validate:"required"`
	Room     string `json:"room" validate:"required"`
}

type staringPayload struct {
	Username string `json:"username" validate:"required"`
	Target   string `json:"target" validate:"required"`
	Room     string `json:"room" validate:"required"`
}

type fileMessagePayload struct {
	Username  string             `json:"username"`
	Sender    string             `json:"sender"`
	Recipient string             `json:"recipient"`
	Room      string             `json:"room"`
	IsDM      bool               `json:"isDm"`
	File      domain.FilePayload `json:"file" validate:"required"`
}

// decodeCommand parses a frame into exactly one command variant.
// Anything outside the closed set, or any payload that fails to parse
// or validate, is an error; the caller drops it.
func decodeCommand(frame Frame) (domain.Command, error) {
	switch frame.Event {
	case "join":
		var p joinPayload
		if err := unmarshalPayload(frame.Data, &p); err != nil {
			return nil, err
		}
		return domain.JoinCommand{Username: p.Username, Room: p.Room}, nil
	case "leave":
		var p leavePayload
		if err := unmarshalPayload(frame.Data, &p); err != nil {
			return nil, err
		}
		return domain.LeaveCommand{Username: p.Username, Room: p.Room}, nil
	case "message":
		var p messagePayload
		if err := unmarshalPayload(frame.Data, &p); err != nil {
			return nil, err
		}
		return domain.PostMessageCommand{Username: p.Username, Room: p.Room, Body: p.Message}, nil
	case "register_user":
		var p registerUserPayload
		if err := unmarshalPayload(frame.Data, &p); err != nil {
			return nil, err
		}
		return domain.RegisterUserCommand{Username: p.Username}, nil
	case "get_online_users":
		return domain.OnlineUsersCommand{}, nil
	case "direct_message":
		var p directMessagePayload
		if err := unmarshalPayload(frame.Data, &p); err != nil {
			return nil, err
		}
		return domain.DirectMessageCommand{Sender: p.Sender, Recipient: p.Recipient, Body: p.Message}, nil
	case "get_dm_history":
		var p dmHistoryPayload
		if err := unmarshalPayload(frame.Data, &p); err != nil {
			return nil, err
		}
		return domain.DMHistoryCommand{User1: p.User1, User2: p.User2}, nil
	case "typing":
		var p typingPayload
		if err := unmarshalPayload(frame.Data, &p); err != nil {
			return nil, err
		}
		return domain.TypingCommand{Username: p.Username, Room: p.Room}, nil
	case "staring":
		var p staringPayload
		if err := unmarshalPayload(frame.Data, &p); err != nil {
			return nil, err
		}
		return domain.StaringCommand{Username: p.Username, Target: p.Target, Room: p.Room}, nil
	case "file_message":
		var p fileMessagePayload
		if err := unmarshalPayload(frame.Data, &p); err != nil {
			return nil, err
		}
		if p.File.Data == "" {
			return nil, fmt.Errorf("file payload without data")
		}
		return domain.FileMessageCommand{
			Username:  p.Username,
			Sender:    p.Sender,
			Recipient: p.Recipient,
			Room:      p.Room,
			IsDM:      p.IsDM,
			File:      p.File,
		}, nil
	default:
		return nil, fmt.Errorf("unknown event %q", frame.Event)
	}
}

func unmarshalPayload(data json.RawMessage, payload any) error {
	if len(data) == 0 {
		return fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return err
	}
	return validate.Struct(payload)
}
