package payload

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec transforms envelopes to and from wire bytes for exactly one
// negotiated encoding. Codecs perform no validation beyond
// serialization itself; schema correctness is the caller's problem.
type Codec interface {
	// Name is the value of the `encoding` query parameter.
	Name() string

	// Binary reports whether frames travel as binary websocket
	// messages rather than text.
	Binary() bool

	Encode(cmd Command) ([]byte, error)
	Decode(data []byte) (*Frame, error)

	// Unmarshal extracts a typed payload from a Frame's raw Data.
	Unmarshal(raw []byte, v any) error
}

// NewCodec returns the codec for an encoding name.
func NewCodec(encoding string) (Codec, error) {
	switch encoding {
	case EncodingJSON:
		return jsonCodec{}, nil
	case EncodingCBOR:
		return cborCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown payload encoding %q", encoding)
	}
}

// Supported encoding names.
const (
	EncodingJSON = "json"
	EncodingCBOR = "cbor"
)

type jsonEnvelope struct {
	Op Opcode          `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s"`
	T  *string         `json:"t"`
}

type jsonOutbound struct {
	Op Opcode  `json:"op"`
	D  any     `json:"d"`
	S  *int64  `json:"s"`
	T  *string `json:"t"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return EncodingJSON }
func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Encode(cmd Command) ([]byte, error) {
	data, err := json.Marshal(jsonOutbound{Op: cmd.Op, D: cmd.Data, S: cmd.Seq})
	if err != nil {
		return nil, fmt.Errorf("json encode op %d: %w", cmd.Op, err)
	}
	return data, nil
}

func (jsonCodec) Decode(data []byte) (*Frame, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("json decode frame: %w", err)
	}
	frame := &Frame{Op: env.Op, Seq: env.S, Data: env.D}
	if env.T != nil {
		frame.Type = *env.T
	}
	return frame, nil
}

func (jsonCodec) Unmarshal(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("json decode payload: %w", err)
	}
	return nil
}

type cborEnvelope struct {
	Op Opcode          `json:"op"`
	D  cbor.RawMessage `json:"d"`
	S  *int64          `json:"s"`
	T  *string         `json:"t"`
}

type cborOutbound struct {
	Op Opcode  `json:"op"`
	D  any     `json:"d"`
	S  *int64  `json:"s"`
	T  *string `json:"t"`
}

type cborCodec struct{}

func (cborCodec) Name() string { return EncodingCBOR }
func (cborCodec) Binary() bool { return true }

func (cborCodec) Encode(cmd Command) ([]byte, error) {
	data, err := cbor.Marshal(cborOutbound{Op: cmd.Op, D: cmd.Data, S: cmd.Seq})
	if err != nil {
		return nil, fmt.Errorf("cbor encode op %d: %w", cmd.Op, err)
	}
	return data, nil
}

func (cborCodec) Decode(data []byte) (*Frame, error) {
	var env cborEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("cbor decode frame: %w", err)
	}
	frame := &Frame{Op: env.Op, Seq: env.S, Data: env.D}
	if env.T != nil {
		frame.Type = *env.T
	}
	return frame, nil
}

func (cborCodec) Unmarshal(raw []byte, v any) error {
	if err := cbor.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("cbor decode payload: %w", err)
	}
	return nil
}
