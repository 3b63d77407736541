package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type requestEnvelope struct {
	Kind   string         `json:"kind"`
	Call   string         `json:"call"`
	Params map[string]any `json:"params"`
}

// isBareToken reports whether s is acceptable as shorthand for a call with no
// parameters. The shorthand is restricted to identifier-style names; any call
// name containing other punctuation must use the structured envelope.
func isBareToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// EncodeRequest serializes a request envelope. A nil Params map is sent as an
// empty object.
func EncodeRequest(req *Request) ([]byte, error) {
	params := req.Params
	if params == nil {
		params = map[string]any{}
	}
	return json.Marshal(&requestEnvelope{
		Kind:   KindCall,
		Call:   req.Call,
		Params: params,
	})
}

// DecodeRequest parses a request envelope frame. A bare identifier token is
// shorthand for a call with empty params. Failures map onto the taxonomy:
// unparseable input is ErrBadJSON, a parsed value that is not a call envelope
// is ErrBadRequest, and a params value that is not an object is ErrBadParams.
func DecodeRequest(data []byte) (*Request, error) {
	token := string(bytes.TrimSpace(data))
	if isBareToken(token) {
		return &Request{Call: token, Params: map[string]any{}}, nil
	}

	if !json.Valid(data) {
		return nil, ErrBadJSON
	}

	var probe struct {
		Kind   *string         `json:"kind"`
		Call   *string         `json:"call"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		// Valid JSON, wrong shape (array, string, mistyped fields).
		return nil, fmt.Errorf("%w: not a call envelope", ErrBadRequest)
	}
	if probe.Kind == nil || probe.Call == nil {
		return nil, fmt.Errorf("%w: missing kind or call", ErrBadRequest)
	}
	if *probe.Kind != KindCall {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrBadRequest, *probe.Kind)
	}

	params := map[string]any{}
	if len(probe.Params) > 0 && !bytes.Equal(probe.Params, []byte("null")) {
		if err := json.Unmarshal(probe.Params, &params); err != nil {
			return nil, fmt.Errorf("%w: params is not a mapping", ErrBadParams)
		}
	}
	return &Request{Call: *probe.Call, Params: params}, nil
}

// EncodeReply serializes a reply into its wire frames: the JSON envelope
// first, binary payload frames after. The reply variant alone determines the
// wire shape.
func EncodeReply(rep Reply) ([][]byte, error) {
	switch r := rep.(type) {
	case *ValueReply:
		env, err := json.Marshal(struct {
			Status string `json:"status"`
			Kind   string `json:"kind"`
			Value  any    `json:"value"`
		}{StatusOK, KindValue, r.Value})
		if err != nil {
			return nil, err
		}
		return [][]byte{env}, nil

	case *RawReply:
		env, err := json.Marshal(struct {
			Status string `json:"status"`
			Kind   string `json:"kind"`
		}{StatusOK, KindRaw})
		if err != nil {
			return nil, err
		}
		frames := make([][]byte, 0, len(r.Payloads)+1)
		frames = append(frames, env)
		frames = append(frames, r.Payloads...)
		return frames, nil

	case *ImageReply:
		if r.Image == nil {
			return nil, fmt.Errorf("image reply with nil image")
		}
		if err := r.Image.Validate(); err != nil {
			return nil, err
		}
		env, err := json.Marshal(struct {
			Status string `json:"status"`
			Kind   string `json:"kind"`
			Shape  []int  `json:"shape"`
			Dtype  string `json:"dtype"`
		}{StatusOK, KindImage, r.Image.Shape, r.Image.Dtype})
		if err != nil {
			return nil, err
		}
		return [][]byte{env, r.Image.Data}, nil

	case *ErrorReply:
		env, err := json.Marshal(struct {
			Status string `json:"status"`
			Kind   string `json:"kind"`
			Msg    string `json:"msg"`
		}{StatusError, KindMsg, r.Msg})
		if err != nil {
			return nil, err
		}
		return [][]byte{env}, nil

	default:
		return nil, fmt.Errorf("unknown reply variant: %T", rep)
	}
}

// DecodeReply parses reply frames back into the matching Reply variant,
// consuming binary frames according to the envelope's declared kind.
func DecodeReply(frames [][]byte) (Reply, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("empty reply message")
	}

	var probe struct {
		Status string `json:"status"`
		Kind   string `json:"kind"`
		Value  any    `json:"value"`
		Shape  []int  `json:"shape"`
		Dtype  string `json:"dtype"`
		Msg    string `json:"msg"`
	}
	if err := json.Unmarshal(frames[0], &probe); err != nil {
		return nil, fmt.Errorf("parse reply envelope: %w", err)
	}

	switch {
	case probe.Status == StatusError && probe.Kind == KindMsg:
		return &ErrorReply{Msg: probe.Msg}, nil

	case probe.Status == StatusOK && probe.Kind == KindValue:
		if len(frames) != 1 {
			return nil, fmt.Errorf("value reply with %d extra frames", len(frames)-1)
		}
		return &ValueReply{Value: probe.Value}, nil

	case probe.Status == StatusOK && probe.Kind == KindRaw:
		return &RawReply{Payloads: frames[1:]}, nil

	case probe.Status == StatusOK && probe.Kind == KindImage:
		if len(frames) != 2 {
			return nil, fmt.Errorf("image reply needs exactly one data frame, got %d", len(frames)-1)
		}
		im := &Image{Shape: probe.Shape, Dtype: probe.Dtype, Data: frames[1]}
		if err := im.Validate(); err != nil {
			return nil, err
		}
		return &ImageReply{Image: im}, nil

	default:
		return nil, fmt.Errorf("unknown reply shape: status=%q kind=%q", probe.Status, probe.Kind)
	}
}
