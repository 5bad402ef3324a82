package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_parseClientMessage(t *testing.T) {
	tcases := []struct {
		name    string
		raw     string
		event   string
		wantErr error
	}{
		{"addNewUser", `{"event":"addNewUser","data":"u1"}`, EventAddNewUser, nil},
		{"sendMessage", `{"event":"sendMessage","data":{"senderId":"u1"}}`, EventSendMessage, nil},
		{"not json", `hello`, "", errMalformedEvent},
		{"missing event", `{"data":{}}`, "", errMalformedEvent},
		{"unknown event", `{"event":"joinRoom","data":{}}`, "", errUnknownEvent},
		{"disconnect from the wire", `{"event":"disconnect"}`, "", errUnknownEvent},
		{"server event", `{"event":"getOnlineUsers"}`, "", errUnknownEvent},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := parseClientMessage([]byte(tc.raw))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, msg)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.event, msg.Event)
		})
	}
}

func TestClientMessage_addNewUser(t *testing.T) {
	tcases := []struct {
		name    string
		data    string
		userId  string
		wantErr bool
	}{
		{"bare string", `"u1"`, "u1", false},
		{"object", `{"userId":"u2"}`, "u2", false},
		{"padded string", ` "u3" `, "u3", false},
		{"empty string", `""`, "", true},
		{"missing field", `{}`, "", true},
		{"null", `null`, "", true},
		{"no data", ``, "", true},
		{"wrong type", `42`, "", true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			msg := &ClientMessage{Event: EventAddNewUser, Data: json.RawMessage(tc.data)}
			p, err := msg.addNewUser()
			if tc.wantErr {
				assert.ErrorIs(t, err, errMalformedPayload)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.userId, p.UserId)
		})
	}
}

func TestClientMessage_chatMessage(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		data := `{"senderId":"u1","recipientId":"u2","text":"hi","chatId":"c1"}`
		msg := &ClientMessage{Event: EventSendMessage, Data: json.RawMessage(data)}

		p, err := msg.chatMessage()
		require.NoError(t, err)
		assert.Equal(t, "u1", p.SenderId)
		assert.Equal(t, "u2", p.RecipientId)
		assert.Equal(t, "hi", p.Text)
		assert.Equal(t, "c1", p.ChatId)
		assert.JSONEq(t, data, string(p.raw))
	})

	invalid := map[string]string{
		"missing sender":    `{"recipientId":"u2","text":"hi"}`,
		"missing recipient": `{"senderId":"u1","text":"hi"}`,
		"missing text":      `{"senderId":"u1","recipientId":"u2"}`,
		"not an object":     `"hi"`,
	}
	for name, data := range invalid {
		t.Run(name, func(t *testing.T) {
			msg := &ClientMessage{Event: EventSendMessage, Data: json.RawMessage(data)}
			_, err := msg.chatMessage()
			assert.ErrorIs(t, err, errMalformedPayload)
		})
	}
}

func TestGetMessage_relaysSenderPayload(t *testing.T) {
	data := `{"senderId":"u1","recipientId":"u2","text":"hi","extra":true}`
	msg := &ClientMessage{Event: EventSendMessage, Data: json.RawMessage(data)}
	p, err := msg.chatMessage()
	require.NoError(t, err)

	bytes, err := serializeMessage(GetMessage(p))
	require.NoError(t, err)

	assert.JSONEq(t, `{"event":"getMessage","data":`+data+`}`, string(bytes))
}

func TestGetNotification(t *testing.T) {
	date := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	bytes, err := serializeMessage(GetNotification("u1", date))
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"event":"getNotification","data":{"senderId":"u1","isRead":false,"date":"2024-05-01T12:30:00Z"}}`,
		string(bytes),
	)
}

func TestOnlineUsers(t *testing.T) {
	t.Run("empty registry", func(t *testing.T) {
		bytes, err := serializeMessage(OnlineUsers(nil))
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":"getOnlineUsers","data":[]}`, string(bytes))
	})

	t.Run("entries", func(t *testing.T) {
		bytes, err := serializeMessage(OnlineUsers([]OnlineEntry{{UserId: "u1", ConnectionId: "c1"}}))
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":"getOnlineUsers","data":[{"userId":"u1","connectionId":"c1"}]}`, string(bytes))
	})
}
