package webrtcpeer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
)

// DataChannelLabelChat is the label the caller opens. The callee accepts the
// first data channel whatever its label, since browser clients pick their own.
const DataChannelLabelChat = "chat"

// MaxChatMessageBytes bounds inbound chat frames.
const MaxChatMessageBytes = 16 * 1024

var ErrMessageTooLarge = errors.New("chat message too large")

// Message is one chat line as exchanged by browser clients.
type Message struct {
	Content   string `json:"content"`
	Owner     string `json:"owner"`
	Timestamp int64  `json:"timestamp"`
}

// NewMessage stamps content with the current time in milliseconds.
func NewMessage(owner, content string) Message {
	return Message{Content: content, Owner: owner, Timestamp: time.Now().UnixMilli()}
}

func encodeMessage(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	if len(b) > MaxChatMessageBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(b))
	}
	return b, nil
}

func decodeMessage(msg webrtc.DataChannelMessage) (Message, error) {
	if len(msg.Data) > MaxChatMessageBytes {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(msg.Data))
	}
	var m Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		return Message{}, fmt.Errorf("decode chat message: %w", err)
	}
	return m, nil
}
