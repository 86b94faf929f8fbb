package payload

import (
	"testing"
)

func TestNewCodec_UnknownEncoding(t *testing.T) {
	if _, err := NewCodec("etf"); err == nil {
		t.Error("Expected error for unknown encoding")
	}
}

func TestJSONCodec_DecodeDispatch(t *testing.T) {
	codec, err := NewCodec(EncodingJSON)
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}

	raw := []byte(`{"op":0,"d":{"session_id":"abc","resume_gateway_url":"wss://resume.example"},"s":42,"t":"READY"}`)
	frame, err := codec.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if frame.Op != OpcodeDispatch {
		t.Errorf("Expected op %d, got %d", OpcodeDispatch, frame.Op)
	}
	if frame.Seq == nil || *frame.Seq != 42 {
		t.Errorf("Expected seq 42, got %v", frame.Seq)
	}
	if frame.Type != EventReady {
		t.Errorf("Expected type READY, got %q", frame.Type)
	}

	var ready Ready
	if err := codec.Unmarshal(frame.Data, &ready); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if ready.SessionID != "abc" {
		t.Errorf("Expected session_id abc, got %q", ready.SessionID)
	}
	if ready.ResumeGatewayURL != "wss://resume.example" {
		t.Errorf("Expected resume URL, got %q", ready.ResumeGatewayURL)
	}
}

func TestJSONCodec_DecodeMalformed(t *testing.T) {
	codec, _ := NewCodec(EncodingJSON)
	if _, err := codec.Decode([]byte(`{"op":`)); err == nil {
		t.Error("Expected decode error for truncated input")
	}
}

func TestCBORCodec_Roundtrip(t *testing.T) {
	codec, err := NewCodec(EncodingCBOR)
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	if !codec.Binary() {
		t.Error("Expected cbor codec to be binary")
	}

	seq := int64(7)
	data, err := codec.Encode(Command{
		Op:   OpcodeResume,
		Seq:  &seq,
		Data: Resume{Token: "tok", SessionID: "sid", Seq: 7},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	frame, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if frame.Op != OpcodeResume {
		t.Errorf("Expected op %d, got %d", OpcodeResume, frame.Op)
	}
	if frame.Seq == nil || *frame.Seq != 7 {
		t.Errorf("Expected seq 7, got %v", frame.Seq)
	}

	var resume Resume
	if err := codec.Unmarshal(frame.Data, &resume); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if resume.SessionID != "sid" || resume.Seq != 7 {
		t.Errorf("Resume payload mismatch: %+v", resume)
	}
}

func TestJSONCodec_EncodeHeartbeatNullSeq(t *testing.T) {
	codec, _ := NewCodec(EncodingJSON)

	data, err := codec.Encode(Command{Op: OpcodeHeartbeat, Data: nil})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	frame, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if frame.Op != OpcodeHeartbeat {
		t.Errorf("Expected op %d, got %d", OpcodeHeartbeat, frame.Op)
	}
	if frame.Seq != nil {
		t.Errorf("Expected nil seq, got %v", *frame.Seq)
	}
	if frame.Type != "" {
		t.Errorf("Expected empty type, got %q", frame.Type)
	}
}

func TestCombineIntents(t *testing.T) {
	mask := CombineIntents([]Intent{IntentGuilds, IntentGuildMessages, IntentMessageContent})
	want := 1 | 1<<9 | 1<<15
	if mask != want {
		t.Errorf("Expected mask %d, got %d", want, mask)
	}
}
