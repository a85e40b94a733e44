package conversation

import "context"

// ReplyMessenger pushes a reply back to the user on their channel. Used
// by the async worker, where the reply cannot ride the webhook response.
type ReplyMessenger interface {
	SendReply(ctx context.Context, reply OutboundReply) error
}

// OutboundReply carries the data required to deliver a message.
type OutboundReply struct {
	UserID  string  `json:"user_id"`
	To      string  `json:"to"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel,omitempty"`
}
