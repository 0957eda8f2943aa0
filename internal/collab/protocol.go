// Package collab implements the collaboration channel: the JSON message
// protocol and the WebSocket transport that carries it.
package collab

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Message types on the collaboration channel.
const (
	TypeSubscribe        = "subscribe"
	TypeUnsubscribe      = "unsubscribe"
	TypeUnsubscribeAll   = "unsubscribe-all"
	TypeEdit             = "edit"
	TypeStructureChanged = "structure-changed"
)

// ErrMalformed is returned by Decode for unparsable or incomplete messages.
var ErrMalformed = errors.New("malformed collaboration message")

// Message is one frame on the collaboration channel. Which fields are
// meaningful depends on Type.
type Message struct {
	Type      string
	FilePath  string
	Content   string // full file snapshot, never a diff
	ClientID  string
	Timestamp int64 // Unix millis at the origin
}

// Subscribe builds a subscribe control message.
func Subscribe(path string) Message { return Message{Type: TypeSubscribe, FilePath: path} }

// Unsubscribe builds an unsubscribe control message.
func Unsubscribe(path string) Message { return Message{Type: TypeUnsubscribe, FilePath: path} }

// UnsubscribeAll builds an unsubscribe-all control message.
func UnsubscribeAll() Message { return Message{Type: TypeUnsubscribeAll} }

// MarshalJSON emits only the fields that belong to the message type.
func (m Message) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case TypeEdit:
		return json.Marshal(struct {
			Type      string `json:"type"`
			FilePath  string `json:"filePath"`
			Content   string `json:"content"`
			ClientID  string `json:"clientId"`
			Timestamp int64  `json:"timestamp"`
		}{m.Type, m.FilePath, m.Content, m.ClientID, m.Timestamp})
	case TypeSubscribe, TypeUnsubscribe:
		return json.Marshal(struct {
			Type     string `json:"type"`
			FilePath string `json:"filePath"`
		}{m.Type, m.FilePath})
	case TypeStructureChanged:
		return json.Marshal(struct {
			Type     string `json:"type"`
			ClientID string `json:"clientId,omitempty"`
		}{m.Type, m.ClientID})
	case TypeUnsubscribeAll:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{m.Type})
	default:
		return nil, fmt.Errorf("unknown message type %q", m.Type)
	}
}

type wireMessage struct {
	Type      *string `json:"type"`
	FilePath  *string `json:"filePath"`
	Content   *string `json:"content"`
	ClientID  *string `json:"clientId"`
	Timestamp *int64  `json:"timestamp"`
}

// Decode parses a frame and checks that the fields its type requires are present.
func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Type == nil {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	m := Message{Type: *w.Type}
	if w.FilePath != nil {
		m.FilePath = *w.FilePath
	}
	if w.Content != nil {
		m.Content = *w.Content
	}
	if w.ClientID != nil {
		m.ClientID = *w.ClientID
	}
	if w.Timestamp != nil {
		m.Timestamp = *w.Timestamp
	}

	switch m.Type {
	case TypeEdit:
		if w.FilePath == nil || m.FilePath == "" || w.Content == nil || w.ClientID == nil || w.Timestamp == nil {
			return Message{}, fmt.Errorf("%w: edit missing fields", ErrMalformed)
		}
	case TypeSubscribe, TypeUnsubscribe:
		if m.FilePath == "" {
			return Message{}, fmt.Errorf("%w: %s missing filePath", ErrMalformed, m.Type)
		}
	case TypeUnsubscribeAll, TypeStructureChanged:
	default:
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, m.Type)
	}
	return m, nil
}

// ChannelURL derives the channel endpoint from the HTTP API base URL by
// swapping the scheme and appending /ws.
func ChannelURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	return u.JoinPath("ws").String(), nil
}
