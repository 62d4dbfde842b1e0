package model

// EventChatMessage is the event name published on a room's channel for
// every stored message.
const EventChatMessage = "chat.message"

// Message is a single chat message in a room's ordered history.
// Timestamps are server-assigned epoch milliseconds; clients never supply
// them. Token is the author's participant credential: it is stored with the
// message but only ever serialized back to the author (see RedactFor).
type Message struct {
	ID        string `json:"id"`
	RoomID    string `json:"roomId"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Token     string `json:"token,omitempty"`
}

// RedactFor returns a copy of the message as the holder of token may see
// it: the stored token survives only if it equals the caller's. A message
// with the token present is therefore always one the caller authored.
func (m Message) RedactFor(token string) Message {
	if token == "" || m.Token != token {
		m.Token = ""
	}
	return m
}

// Public returns a copy safe for broadcast to arbitrary subscribers, with
// the author's token stripped unconditionally.
func (m Message) Public() Message {
	m.Token = ""
	return m
}

// Room is the metadata record for a live room. TTLRemaining is the store's
// countdown in whole seconds at the time of the read; the store's expiry is
// authoritative, this is a point-in-time observation.
type Room struct {
	RoomID       string   `json:"roomId"`
	CreatedAt    int64    `json:"createdAt"`
	Connected    []string `json:"connected"`
	TTLRemaining int64    `json:"ttlRemaining"`
}

// Event is the envelope published on the fan-out bus and delivered to
// websocket subscribers.
type Event struct {
	Event   string  `json:"event"`
	RoomID  string  `json:"roomId"`
	Message Message `json:"message"`
}
