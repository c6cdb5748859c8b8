package portal

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"nhooyr.io/websocket"
)

// Codec encodes envelopes and payloads on the wire.
type Codec interface {
	// Name is the value accepted by CodecByName.
	Name() string

	// MessageType is the websocket frame type the codec writes.
	MessageType() websocket.MessageType

	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error

	// EncodeFrame builds one envelope. ack is zero for frames that do
	// not expect or carry an acknowledgement.
	EncodeFrame(event string, ack uint64, data any) ([]byte, error)

	// DecodeFrame splits an envelope into its event, ack id and payload.
	DecodeFrame(frame []byte) (event string, ack uint64, data Payload, err error)
}

// CodecByName returns the codec registered under name. The empty name
// selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q (valid: json, cbor)", name)
}

// ============================================================================
// Payload
// ============================================================================

var errEmptyPayload = errors.New("empty payload")

// Payload is an undecoded event body tied to the codec that produced it.
type Payload struct {
	codec Codec
	raw   []byte
}

// NewPayload encodes v with c.
func NewPayload(c Codec, v any) (Payload, error) {
	if v == nil {
		return Payload{codec: c}, nil
	}
	raw, err := c.Marshal(v)
	if err != nil {
		return Payload{}, err
	}
	return Payload{codec: c, raw: raw}, nil
}

// Empty reports whether the event carried no body.
func (p Payload) Empty() bool { return len(p.raw) == 0 }

// Raw returns the encoded body.
func (p Payload) Raw() []byte { return p.raw }

// Decode unmarshals the body into v.
func (p Payload) Decode(v any) error {
	if p.Empty() || p.codec == nil {
		return errEmptyPayload
	}
	return p.codec.Unmarshal(p.raw, v)
}

// Field returns the member key of an object body, re-encoded as its own
// Payload. ok is false when the body is not an object or lacks key.
func (p Payload) Field(key string) (Payload, bool) {
	var obj map[string]any
	if err := p.Decode(&obj); err != nil {
		return Payload{}, false
	}
	v, found := obj[key]
	if !found || v == nil {
		return Payload{}, false
	}
	field, err := NewPayload(p.codec, v)
	if err != nil {
		return Payload{}, false
	}
	return field, true
}

// ============================================================================
// JSON
// ============================================================================

// JSONCodec speaks JSON over text frames.
type JSONCodec struct{}

type jsonFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   uint64          `json:"ack,omitempty"`
}

func (JSONCodec) Name() string { return "json" }
func (JSONCodec) MessageType() websocket.MessageType { return websocket.MessageText }
func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (c JSONCodec) EncodeFrame(event string, ack uint64, data any) ([]byte, error) {
	f := jsonFrame{Event: event, Ack: ack}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		f.Data = raw
	}
	return json.Marshal(f)
}

func (c JSONCodec) DecodeFrame(frame []byte) (string, uint64, Payload, error) {
	var f jsonFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return "", 0, Payload{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Event == "" {
		return "", 0, Payload{}, errors.New("decode frame: missing event")
	}
	return f.Event, f.Ack, Payload{codec: c, raw: f.Data}, nil
}

// ============================================================================
// CBOR
// ============================================================================

// CBORCodec speaks CBOR over binary frames. Struct fields fall back to
// their json tags, so the same types serve both codecs.
type CBORCodec struct{}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	encOptions := cbor.CoreDetEncOptions()
	// Timestamps travel as RFC 3339 text, matching the JSON codec, so
	// a bare number on the wire always means epoch milliseconds.
	encOptions.Time = cbor.TimeRFC3339Nano
	cborEnc, err = encOptions.EncMode()
	if err != nil {
		panic("portal: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		// any-typed targets (ids, timestamps, Field) expect string keys.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("portal: CBOR decoder initialization failed: " + err.Error())
	}
}

type cborFrame struct {
	Event string          `cbor:"event"`
	Data  cbor.RawMessage `cbor:"data,omitempty"`
	Ack   uint64          `cbor:"ack,omitempty"`
}

func (CBORCodec) Name() string { return "cbor" }
func (CBORCodec) MessageType() websocket.MessageType { return websocket.MessageBinary }
func (CBORCodec) Marshal(v any) ([]byte, error) { return cborEnc.Marshal(v) }
func (CBORCodec) Unmarshal(data []byte, v any) error { return cborDec.Unmarshal(data, v) }

func (c CBORCodec) EncodeFrame(event string, ack uint64, data any) ([]byte, error) {
	f := cborFrame{Event: event, Ack: ack}
	if data != nil {
		raw, err := cborEnc.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		f.Data = raw
	}
	return cborEnc.Marshal(f)
}

func (c CBORCodec) DecodeFrame(frame []byte) (string, uint64, Payload, error) {
	var f cborFrame
	if err := cborDec.Unmarshal(frame, &f); err != nil {
		return "", 0, Payload{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Event == "" {
		return "", 0, Payload{}, errors.New("decode frame: missing event")
	}
	return f.Event, f.Ack, Payload{codec: c, raw: f.Data}, nil
}
