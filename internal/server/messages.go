package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Client to server events.
const (
	EventAddNewUser  = "addNewUser"
	EventSendMessage = "sendMessage"
)

// Server to client events.
const (
	EventGetOnlineUsers  = "getOnlineUsers"
	EventGetMessage      = "getMessage"
	EventGetNotification = "getNotification"
)

// eventDisconnect is queued by a connection's read pump when it exits. It
// never comes off the wire: parseClientMessage rejects it.
const eventDisconnect = "disconnect"

var (
	errMalformedEvent   = errors.New("malformed event")
	errUnknownEvent     = errors.New("unknown event")
	errMalformedPayload = errors.New("malformed payload")
)

// ClientMessage is the envelope of every frame a client sends.
type ClientMessage struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	client *Client
}

// ServerMessage is the envelope of every frame the server pushes.
type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type AddNewUser struct {
	UserId string `json:"userId"`
}

type ChatMessage struct {
	SenderId    string `json:"senderId"`
	RecipientId string `json:"recipientId"`
	Text        string `json:"text"`
	ChatId      string `json:"chatId,omitempty"`
	// raw is the payload as the sender wrote it; getMessage relays it verbatim.
	raw json.RawMessage
}

type Notification struct {
	SenderId string    `json:"senderId"`
	IsRead   bool      `json:"isRead"`
	Date     time.Time `json:"date"`
}

func parseClientMessage(raw []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedEvent, err)
	}

	switch msg.Event {
	case EventAddNewUser, EventSendMessage:
		return &msg, nil
	case "":
		return nil, fmt.Errorf("%w: missing event name", errMalformedEvent)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownEvent, msg.Event)
	}
}

// addNewUser decodes an announce payload. Both {"userId": "..."} and a bare
// JSON string are accepted.
func (m *ClientMessage) addNewUser() (AddNewUser, error) {
	var p AddNewUser
	data := bytes.TrimSpace(m.Data)

	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &p.UserId); err != nil {
			return AddNewUser{}, fmt.Errorf("%w: %v", errMalformedPayload, err)
		}
	} else if err := json.Unmarshal(data, &p); err != nil {
		return AddNewUser{}, fmt.Errorf("%w: %v", errMalformedPayload, err)
	}

	if p.UserId == "" {
		return AddNewUser{}, fmt.Errorf("%w: missing userId", errMalformedPayload)
	}

	return p, nil
}

func (m *ClientMessage) chatMessage() (ChatMessage, error) {
	var p ChatMessage
	if err := json.Unmarshal(m.Data, &p); err != nil {
		return ChatMessage{}, fmt.Errorf("%w: %v", errMalformedPayload, err)
	}

	switch {
	case p.SenderId == "":
		return ChatMessage{}, fmt.Errorf("%w: missing senderId", errMalformedPayload)
	case p.RecipientId == "":
		return ChatMessage{}, fmt.Errorf("%w: missing recipientId", errMalformedPayload)
	case p.Text == "":
		return ChatMessage{}, fmt.Errorf("%w: missing text", errMalformedPayload)
	}

	p.raw = m.Data
	return p, nil
}

func (m ChatMessage) payload() any {
	if len(m.raw) > 0 {
		return m.raw
	}
	return m
}

func OnlineUsers(entries []OnlineEntry) *ServerMessage {
	if entries == nil {
		entries = []OnlineEntry{}
	}

	return &ServerMessage{
		Event: EventGetOnlineUsers,
		Data:  entries,
	}
}

func GetMessage(msg ChatMessage) *ServerMessage {
	return &ServerMessage{
		Event: EventGetMessage,
		Data:  msg.payload(),
	}
}

func GetNotification(senderId string, date time.Time) *ServerMessage {
	return &ServerMessage{
		Event: EventGetNotification,
		Data: Notification{
			SenderId: senderId,
			IsRead:   false,
			Date:     date,
		},
	}
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
