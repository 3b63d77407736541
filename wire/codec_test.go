package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeRequestStructured(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"kind":"call","call":"mul","params":{"a":2,"b":3}}`))
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if req.Call != "mul" {
		t.Errorf("Call mismatch: got %q, want %q", req.Call, "mul")
	}
	if req.Params["a"] != float64(2) || req.Params["b"] != float64(3) {
		t.Errorf("Params mismatch: got %v", req.Params)
	}
}

func TestDecodeRequestShorthand(t *testing.T) {
	for _, token := range []string{"foo", "ImageServer.read", "list-calls", "  foo  "} {
		req, err := DecodeRequest([]byte(token))
		if err != nil {
			t.Fatalf("DecodeRequest(%q) failed: %v", token, err)
		}
		if req.Params == nil || len(req.Params) != 0 {
			t.Errorf("shorthand params should be empty, got %v", req.Params)
		}
	}

	req, err := DecodeRequest([]byte("foo"))
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if req.Call != "foo" {
		t.Errorf("Call mismatch: got %q, want %q", req.Call, "foo")
	}
}

func TestDecodeRequestErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"garbage", `{"kind": nope`, ErrBadJSON},
		{"token with space", `foo bar`, ErrBadJSON},
		{"token with brace", `foo{}`, ErrBadJSON},
		{"empty", ``, ErrBadJSON},
		{"missing call", `{"kind":"call"}`, ErrBadRequest},
		{"missing kind", `{"call":"foo"}`, ErrBadRequest},
		{"unknown kind", `{"kind":"cast","call":"foo"}`, ErrBadRequest},
		{"array", `[1,2,3]`, ErrBadRequest},
		{"quoted string", `"foo"`, ErrBadRequest},
		{"params list", `{"kind":"call","call":"foo","params":[1,2]}`, ErrBadParams},
		{"params scalar", `{"kind":"call","call":"foo","params":5}`, ErrBadParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRequest([]byte(tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRequestRoundTrip(t *testing.T) {
	orig := &Request{Call: "push", Params: map[string]any{"item": "x"}}

	data, err := EncodeRequest(orig)
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	got, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if got.Call != orig.Call {
		t.Errorf("Call mismatch: got %q, want %q", got.Call, orig.Call)
	}
	if got.Params["item"] != "x" {
		t.Errorf("Params mismatch: got %v", got.Params)
	}
}

func TestValueReplyRoundTrip(t *testing.T) {
	frames, err := EncodeReply(&ValueReply{Value: map[string]any{"n": float64(7)}})
	if err != nil {
		t.Fatalf("EncodeReply failed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("value reply should be one frame, got %d", len(frames))
	}

	rep, err := DecodeReply(frames)
	if err != nil {
		t.Fatalf("DecodeReply failed: %v", err)
	}
	vr, ok := rep.(*ValueReply)
	if !ok {
		t.Fatalf("wrong variant: %T", rep)
	}
	if m, ok := vr.Value.(map[string]any); !ok || m["n"] != float64(7) {
		t.Errorf("value mismatch: got %v", vr.Value)
	}
}

func TestRawReplyRoundTrip(t *testing.T) {
	payloads := [][]byte{[]byte("first"), []byte("second"), []byte("third")}

	frames, err := EncodeReply(&RawReply{Payloads: payloads})
	if err != nil {
		t.Fatalf("EncodeReply failed: %v", err)
	}
	if len(frames) != len(payloads)+1 {
		t.Fatalf("frame count mismatch: got %d, want %d", len(frames), len(payloads)+1)
	}

	rep, err := DecodeReply(frames)
	if err != nil {
		t.Fatalf("DecodeReply failed: %v", err)
	}
	rr, ok := rep.(*RawReply)
	if !ok {
		t.Fatalf("wrong variant: %T", rep)
	}
	if len(rr.Payloads) != len(payloads) {
		t.Fatalf("payload count mismatch: got %d, want %d", len(rr.Payloads), len(payloads))
	}
	for i := range payloads {
		if !bytes.Equal(rr.Payloads[i], payloads[i]) {
			t.Errorf("payload %d mismatch: got %q, want %q", i, rr.Payloads[i], payloads[i])
		}
	}
}

func TestImageReplyRoundTrip(t *testing.T) {
	// A 4x3x3 uint8 "image" (rows, cols, channels).
	im := &Image{Shape: []int{4, 3, 3}, Dtype: "uint8", Data: make([]byte, 36)}
	for i := range im.Data {
		im.Data[i] = byte(i)
	}

	frames, err := EncodeReply(&ImageReply{Image: im})
	if err != nil {
		t.Fatalf("EncodeReply failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("image reply should be two frames, got %d", len(frames))
	}

	rep, err := DecodeReply(frames)
	if err != nil {
		t.Fatalf("DecodeReply failed: %v", err)
	}
	ir, ok := rep.(*ImageReply)
	if !ok {
		t.Fatalf("wrong variant: %T", rep)
	}
	got := ir.Image
	if len(got.Shape) != 3 || got.Shape[0] != 4 || got.Shape[1] != 3 || got.Shape[2] != 3 {
		t.Errorf("shape mismatch: got %v", got.Shape)
	}
	if got.Dtype != "uint8" {
		t.Errorf("dtype mismatch: got %q", got.Dtype)
	}
	if !bytes.Equal(got.Data, im.Data) {
		t.Errorf("data mismatch")
	}
}

func TestImageReplyShapeMismatch(t *testing.T) {
	im := &Image{Shape: []int{2, 2}, Dtype: "float32", Data: make([]byte, 7)}
	if _, err := EncodeReply(&ImageReply{Image: im}); err == nil {
		t.Fatal("expected error for byte count mismatch, got nil")
	}

	im2 := &Image{Shape: []int{2}, Dtype: "complex128", Data: make([]byte, 32)}
	if _, err := EncodeReply(&ImageReply{Image: im2}); err == nil {
		t.Fatal("expected error for unknown dtype, got nil")
	}
}

func TestErrorReplyRoundTrip(t *testing.T) {
	frames, err := EncodeReply(&ErrorReply{Msg: "Unknown call"})
	if err != nil {
		t.Fatalf("EncodeReply failed: %v", err)
	}

	rep, err := DecodeReply(frames)
	if err != nil {
		t.Fatalf("DecodeReply failed: %v", err)
	}
	er, ok := rep.(*ErrorReply)
	if !ok {
		t.Fatalf("wrong variant: %T", rep)
	}
	if er.Msg != "Unknown call" {
		t.Errorf("msg mismatch: got %q", er.Msg)
	}
}

func TestDecodeReplyUnknownShape(t *testing.T) {
	if _, err := DecodeReply([][]byte{[]byte(`{"status":"ok","kind":"stream"}`)}); err == nil {
		t.Fatal("expected error for unknown reply kind, got nil")
	}
	if _, err := DecodeReply([][]byte{[]byte(`not json`)}); err == nil {
		t.Fatal("expected error for bad envelope, got nil")
	}
}
