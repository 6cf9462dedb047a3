package call

import (
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// ChatMessage is one line of in-call text chat, carried over the
// "chat" data channel.
type ChatMessage struct {
	From   string `msgpack:"from"`
	Text   string `msgpack:"text"`
	SentAt int64  `msgpack:"sentAt"`
}

// Chat wraps the data channel with msgpack framing.
type Chat struct {
	dc        *webrtc.DataChannel
	onMessage func(ChatMessage)
}

func newChat(dc *webrtc.DataChannel) *Chat {
	c := &Chat{dc: dc}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		var m ChatMessage
		if err := msgpack.Unmarshal(msg.Data, &m); err != nil {
			slog.Warn("chat: dropping undecodable message", "err", err)
			return
		}
		if c.onMessage != nil {
			c.onMessage(m)
		}
	})
	return c
}

// OnMessage registers the inbound message callback. Register before the
// channel opens.
func (c *Chat) OnMessage(fn func(ChatMessage)) {
	c.onMessage = fn
}

// Send transmits one chat line to the peer.
func (c *Chat) Send(from, text string) error {
	if c.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return NewError("chat send", ErrConnectionFailed)
	}

	data, err := msgpack.Marshal(ChatMessage{
		From:   from,
		Text:   text,
		SentAt: time.Now().UnixMilli(),
	})
	if err != nil {
		return NewError("chat send", err)
	}
	return c.dc.Send(data)
}
