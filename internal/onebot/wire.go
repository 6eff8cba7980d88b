package onebot

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kanolab/fawnbot/internal/models"
)

// wireSegment is the gateway's message segment encoding: a type tag plus a
// string-valued data object.
type wireSegment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

// eventFrame is the subset of a gateway event the bot consumes.
type eventFrame struct {
	PostType    string          `json:"post_type"`
	MessageType string          `json:"message_type"`
	GroupID     int64           `json:"group_id"`
	UserID      int64           `json:"user_id"`
	RawMessage  string          `json:"raw_message"`
	Message     json.RawMessage `json:"message"`
	Time        int64           `json:"time"`
}

// actionFrame is one outbound API call over the websocket.
type actionFrame struct {
	Action string      `json:"action"`
	Params interface{} `json:"params"`
	Echo   string      `json:"echo,omitempty"`
}

type groupMessageParams struct {
	GroupID int64         `json:"group_id"`
	Message []wireSegment `json:"message"`
}

type privateMessageParams struct {
	UserID  int64         `json:"user_id"`
	Message []wireSegment `json:"message"`
}

// encodeMessage converts a message to the gateway segment encoding.
func encodeMessage(msg models.Message) []wireSegment {
	out := make([]wireSegment, 0, len(msg))
	for _, seg := range msg {
		switch seg.Type {
		case models.SegmentText:
			out = append(out, wireSegment{Type: "text", Data: map[string]string{"text": seg.Text}})
		case models.SegmentMention:
			out = append(out, wireSegment{Type: "at", Data: map[string]string{"qq": strconv.FormatInt(seg.UserID, 10)}})
		case models.SegmentImage:
			out = append(out, wireSegment{Type: "image", Data: map[string]string{"file": seg.File}})
		case models.SegmentRecord:
			out = append(out, wireSegment{Type: "record", Data: map[string]string{"file": seg.File}})
		}
	}
	return out
}

// decodeSegments converts inbound wire segments. Unknown segment types are
// dropped; the raw message text still carries them if needed.
func decodeSegments(raw json.RawMessage) []models.Segment {
	if len(raw) == 0 {
		return nil
	}
	var wire []wireSegment
	if err := json.Unmarshal(raw, &wire); err != nil {
		// Some gateways deliver the message as a CQ-code string instead of
		// a segment array; the raw text field covers that case.
		return nil
	}

	var segs []models.Segment
	for _, ws := range wire {
		switch ws.Type {
		case "text":
			segs = append(segs, models.Segment{Type: models.SegmentText, Text: ws.Data["text"]})
		case "at":
			userID, _ := strconv.ParseInt(ws.Data["qq"], 10, 64)
			segs = append(segs, models.Segment{Type: models.SegmentMention, UserID: userID})
		case "image":
			segs = append(segs, models.Segment{Type: models.SegmentImage, File: ws.Data["file"], URL: ws.Data["url"]})
		case "record":
			segs = append(segs, models.Segment{Type: models.SegmentRecord, File: ws.Data["file"], URL: ws.Data["url"]})
		}
	}
	return segs
}

// decodeEvent parses one inbound frame into a message event. Non-message
// frames (heartbeats, notices, API responses) yield false.
func decodeEvent(data []byte) (models.Event, bool, error) {
	var frame eventFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return models.Event{}, false, fmt.Errorf("failed to decode gateway frame: %w", err)
	}
	if frame.PostType != "message" {
		return models.Event{}, false, nil
	}

	kind := models.MessageKindPrivate
	if frame.MessageType == "group" {
		kind = models.MessageKindGroup
	}
	ev := models.Event{
		Kind:     kind,
		GroupID:  frame.GroupID,
		ActorID:  frame.UserID,
		RawText:  frame.RawMessage,
		Segments: decodeSegments(frame.Message),
		Time:     frame.Time,
	}
	return ev, true, nil
}
