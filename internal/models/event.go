// Package models defines the core data structures for FawnBot.
//
// It includes the inbound event and outbound message types shared across
// the gateway client, the dispatcher, and the flow engine.
package models

// MessageKind identifies the chat scope an event or message belongs to.
type MessageKind string

const (
	// MessageKindGroup identifies group-chat traffic.
	MessageKindGroup MessageKind = "group"
	// MessageKindPrivate identifies direct-chat traffic.
	MessageKindPrivate MessageKind = "private"
)

// SegmentType identifies the kind of one message segment.
type SegmentType string

const (
	// SegmentText is a plain text segment.
	SegmentText SegmentType = "text"
	// SegmentMention mentions a user ("at" in the gateway wire format).
	SegmentMention SegmentType = "at"
	// SegmentImage references an image by URL or file URI.
	SegmentImage SegmentType = "image"
	// SegmentRecord references an audio clip by file URI.
	SegmentRecord SegmentType = "record"
)

// Segment is one typed part of a message. Only the fields relevant to its
// Type are populated.
type Segment struct {
	Type   SegmentType `json:"type"`
	Text   string      `json:"text,omitempty"`
	UserID int64       `json:"user_id,omitempty"`
	File   string      `json:"file,omitempty"`
	URL    string      `json:"url,omitempty"`
}

// Message is an ordered sequence of segments. Encoding to the gateway wire
// format is owned by the transport client, not by the core.
type Message []Segment

// TextMessage builds a single-segment text message.
func TextMessage(body string) Message {
	return Message{{Type: SegmentText, Text: body}}
}

// MentionText builds a message that mentions a user followed by text.
func MentionText(userID int64, body string) Message {
	return Message{
		{Type: SegmentMention, UserID: userID},
		{Type: SegmentText, Text: " " + body},
	}
}

// Append returns m extended with seg.
func (m Message) Append(seg Segment) Message {
	return append(m, seg)
}

// PlainText concatenates the text content of all text segments.
func (m Message) PlainText() string {
	var out string
	for _, seg := range m {
		if seg.Type == SegmentText {
			out += seg.Text
		}
	}
	return out
}

// Destination identifies where a message is delivered: a group or a user.
type Destination struct {
	Kind MessageKind `json:"kind"`
	ID   int64       `json:"id"`
}

// GroupDestination builds a destination for a group chat.
func GroupDestination(groupID int64) Destination {
	return Destination{Kind: MessageKindGroup, ID: groupID}
}

// PrivateDestination builds a destination for a direct chat.
func PrivateDestination(userID int64) Destination {
	return Destination{Kind: MessageKindPrivate, ID: userID}
}

// Event is one inbound message event from the chat gateway. Only the fields
// the core consumes are modeled; everything else stays on the wire.
type Event struct {
	Kind     MessageKind `json:"message_type"`
	GroupID  int64       `json:"group_id,omitempty"`
	ActorID  int64       `json:"user_id"`
	RawText  string      `json:"raw_message"`
	Segments []Segment   `json:"segments,omitempty"`
	Time     int64       `json:"time"`
}

// ReplyDestination returns the destination replies to this event go to:
// the originating group, or the actor directly for private chats.
func (e Event) ReplyDestination() Destination {
	if e.Kind == MessageKindGroup {
		return GroupDestination(e.GroupID)
	}
	return PrivateDestination(e.ActorID)
}

// FirstImageURL returns the URL of the first image segment, if any.
func (e Event) FirstImageURL() (string, bool) {
	for _, seg := range e.Segments {
		if seg.Type == SegmentImage && seg.URL != "" {
			return seg.URL, true
		}
	}
	return "", false
}
