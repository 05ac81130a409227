package bus

import "time"

// Quoted carries the message a reply points at.
type Quoted struct {
	MessageID int
	Content   string
}

type InboundMessage struct {
	Channel      string
	SenderID     string
	SenderHandle string // "@username", empty when the user has no handle
	SenderName   string // first + last name as the transport reports it
	ChatID       string
	MessageID    int
	Content      string
	ReplyTo      *Quoted
	Timestamp    time.Time
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
}
