package onebot

import (
	"encoding/json"
	"testing"

	"github.com/kanolab/fawnbot/internal/models"
)

func TestDecodeEventGroupMessage(t *testing.T) {
	raw := `{
		"post_type": "message",
		"message_type": "group",
		"group_id": 12345,
		"user_id": 678,
		"raw_message": "submit art",
		"message": [{"type": "text", "data": {"text": "submit art"}}],
		"time": 1700000000
	}`

	ev, ok, err := decodeEvent([]byte(raw))
	if err != nil || !ok {
		t.Fatalf("decodeEvent = %v, %v", ok, err)
	}
	if ev.Kind != models.MessageKindGroup || ev.GroupID != 12345 || ev.ActorID != 678 {
		t.Errorf("event = %+v", ev)
	}
	if ev.RawText != "submit art" {
		t.Errorf("raw text = %q", ev.RawText)
	}
	if len(ev.Segments) != 1 || ev.Segments[0].Text != "submit art" {
		t.Errorf("segments = %+v", ev.Segments)
	}
}

func TestDecodeEventImageSegment(t *testing.T) {
	raw := `{
		"post_type": "message",
		"message_type": "group",
		"group_id": 1,
		"user_id": 2,
		"raw_message": "[CQ:image]",
		"message": [{"type": "image", "data": {"file": "abc.png", "url": "https://cdn.example.com/abc.png"}}]
	}`

	ev, ok, err := decodeEvent([]byte(raw))
	if err != nil || !ok {
		t.Fatalf("decodeEvent = %v, %v", ok, err)
	}
	url, found := ev.FirstImageURL()
	if !found || url != "https://cdn.example.com/abc.png" {
		t.Errorf("image url = %q, %v", url, found)
	}
}

func TestDecodeEventSkipsNonMessageFrames(t *testing.T) {
	for _, raw := range []string{
		`{"post_type": "meta_event", "meta_event_type": "heartbeat"}`,
		`{"status": "ok", "retcode": 0, "echo": "echo_abc"}`,
	} {
		_, ok, err := decodeEvent([]byte(raw))
		if err != nil {
			t.Errorf("decodeEvent(%s) error: %v", raw, err)
		}
		if ok {
			t.Errorf("non-message frame %s decoded as event", raw)
		}
	}
}

func TestDecodeEventPrivateMessage(t *testing.T) {
	raw := `{"post_type": "message", "message_type": "private", "user_id": 42, "raw_message": "get video"}`
	ev, ok, err := decodeEvent([]byte(raw))
	if err != nil || !ok {
		t.Fatalf("decodeEvent = %v, %v", ok, err)
	}
	if ev.Kind != models.MessageKindPrivate || ev.ReplyDestination() != models.PrivateDestination(42) {
		t.Errorf("event = %+v", ev)
	}
}

func TestEncodeMessageSegments(t *testing.T) {
	msg := models.MentionText(42, "Correct!").Append(models.Segment{Type: models.SegmentRecord, File: "file:///clips/a.slk"})
	wire := encodeMessage(msg)

	if len(wire) != 3 {
		t.Fatalf("wire has %d segments, want 3", len(wire))
	}
	if wire[0].Type != "at" || wire[0].Data["qq"] != "42" {
		t.Errorf("mention segment = %+v", wire[0])
	}
	if wire[1].Type != "text" || wire[1].Data["text"] != " Correct!" {
		t.Errorf("text segment = %+v", wire[1])
	}
	if wire[2].Type != "record" || wire[2].Data["file"] != "file:///clips/a.slk" {
		t.Errorf("record segment = %+v", wire[2])
	}

	// The encoding must be JSON-serializable in the gateway shape.
	data, err := json.Marshal(wire)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var back []wireSegment
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back[0].Data["qq"] != "42" {
		t.Errorf("round trip lost data: %+v", back)
	}
}

func TestDecodeSegmentsToleratesCQString(t *testing.T) {
	// Some gateways send the message as a CQ-code string.
	segs := decodeSegments(json.RawMessage(`"[CQ:at,qq=1] hello"`))
	if segs != nil {
		t.Errorf("expected nil segments for string payload, got %+v", segs)
	}
}
