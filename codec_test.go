package portal

import (
	"testing"
	"time"
)

func TestCodecByName(t *testing.T) {
	for name, want := range map[string]string{"": "json", "json": "json", "cbor": "cbor"} {
		c, err := CodecByName(name)
		if err != nil || c.Name() != want {
			t.Errorf("CodecByName(%q) = %v, %v", name, c, err)
		}
	}
	if _, err := CodecByName("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestCodecFrames(t *testing.T) {
	sentAt := time.Date(2026, 1, 5, 8, 30, 0, 0, time.UTC)
	for _, c := range []Codec{JSONCodec{}, CBORCodec{}} {
		t.Run(c.Name(), func(t *testing.T) {
			frame, err := c.EncodeFrame(EventRoomMessage, 7, outboundMessage{
				Sender:  Sender{ID: "u1", Name: "Me"},
				RoomID:  "g1",
				Content: "hello",
			})
			if err != nil {
				t.Fatal(err)
			}
			event, ack, p, err := c.DecodeFrame(frame)
			if err != nil {
				t.Fatal(err)
			}
			if event != EventRoomMessage || ack != 7 {
				t.Fatalf("event %q ack %d", event, ack)
			}

			var w wireMessage
			if err := p.Decode(&w); err != nil {
				t.Fatal(err)
			}
			m := normalizeMessage(w, sentAt)
			if m.Sender.ID != "u1" || m.Sender.Name != "Me" || m.RoomID != "g1" || m.Content != "hello" {
				t.Errorf("message = %+v", m)
			}
			if !m.CreatedAt.Equal(sentAt) {
				t.Errorf("createdAt = %v, want fallback", m.CreatedAt)
			}

			t.Run("field", func(t *testing.T) {
				body, err := NewPayload(c, map[string]any{
					"success": true,
					"message": Message{ID: "m1", Content: "x", CreatedAt: sentAt},
				})
				if err != nil {
					t.Fatal(err)
				}
				f, ok := body.Field("message")
				if !ok {
					t.Fatal("message field missing")
				}
				var w wireMessage
				if err := f.Decode(&w); err != nil {
					t.Fatal(err)
				}
				got := normalizeMessage(w, time.Time{})
				if got.ID != "m1" || !got.CreatedAt.Equal(sentAt) {
					t.Errorf("field message = %+v", got)
				}
				if _, ok := body.Field("group"); ok {
					t.Error("absent field reported present")
				}
			})

			t.Run("empty data", func(t *testing.T) {
				frame, err := c.EncodeFrame(EventConnect, 0, nil)
				if err != nil {
					t.Fatal(err)
				}
				_, _, p, err := c.DecodeFrame(frame)
				if err != nil {
					t.Fatal(err)
				}
				if !p.Empty() {
					t.Errorf("payload = %q, want empty", p.Raw())
				}
			})
		})
	}
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	if _, _, _, err := (JSONCodec{}).DecodeFrame([]byte(`{"data":1}`)); err == nil {
		t.Error("JSON frame without event accepted")
	}
	if _, _, _, err := (JSONCodec{}).DecodeFrame([]byte(`not json`)); err == nil {
		t.Error("garbage accepted")
	}
	if _, _, _, err := (CBORCodec{}).DecodeFrame([]byte{0xff, 0x00}); err == nil {
		t.Error("garbage CBOR accepted")
	}
}
