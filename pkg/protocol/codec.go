package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Encoding identifies the wire format of a message.
type Encoding int

const (
	// JSON is used for WebSocket text frames.
	JSON Encoding = iota
	// CBOR is used for WebSocket binary frames.
	CBOR
)

// String returns the encoding name.
func (e Encoding) String() string {
	switch e {
	case JSON:
		return "json"
	case CBOR:
		return "cbor"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// ParseEncoding maps "json" or "cbor" to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	}
	return JSON, fmt.Errorf("protocol: unknown encoding %q", s)
}

// wireKeypoint mirrors one entry of keypoint_motions.
type wireKeypoint struct {
	KeypointID int     `json:"kp_id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Intensity  float64 `json:"intensity"`
}

// wireRecord mirrors one element of the inbound array. Pointer fields are
// required; the rest default to their zero value when absent.
// The CBOR codec falls back to the json tags.
type wireRecord struct {
	PersonID *int     `json:"person_id"`
	X        *float64 `json:"x"`
	Y        *float64 `json:"y"`
	W        *float64 `json:"w"`
	H        *float64 `json:"h"`

	Depth           float64        `json:"depth"`
	Confidence      float64        `json:"confidence"`
	Frame           int            `json:"frame"`
	FacingScreen    bool           `json:"facing_screen"`
	WaveDetected    bool           `json:"wave_detected"`
	ServerTsMs      int64          `json:"server_ts_ms"`
	KeypointMotions []wireKeypoint `json:"keypoint_motions"`
}

var cborDecMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		MaxArrayElements: 4096,
		MaxNestedLevels:  8,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// Decode parses one message into records. Failures are returned as
// *DecodeError carrying the payload.
func Decode(payload []byte, enc Encoding) ([]Record, error) {
	records, err := decode(payload, enc)
	if err != nil {
		return nil, &DecodeError{Payload: payload, Encoding: enc, Err: err}
	}
	return records, nil
}

// DecodeJSON is Decode for text frames.
func DecodeJSON(payload []byte) ([]Record, error) {
	return Decode(payload, JSON)
}

// DecodeCBOR is Decode for binary frames.
func DecodeCBOR(payload []byte) ([]Record, error) {
	return Decode(payload, CBOR)
}

func decode(payload []byte, enc Encoding) ([]Record, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	var wire []wireRecord
	switch enc {
	case JSON:
		trimmed := bytes.TrimSpace(payload)
		if len(trimmed) == 0 {
			return nil, ErrEmptyPayload
		}
		if trimmed[0] != '[' {
			return nil, ErrNotArray
		}
		if err := json.Unmarshal(trimmed, &wire); err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}
	case CBOR:
		if err := cborDecMode.Unmarshal(payload, &wire); err != nil {
			return nil, fmt.Errorf("cbor: %w", err)
		}
		// A CBOR null decodes to a nil slice, an empty array to a non-nil one
		if wire == nil {
			return nil, ErrNotArray
		}
	default:
		return nil, fmt.Errorf("unsupported encoding %s", enc)
	}

	records := make([]Record, 0, len(wire))
	for i, w := range wire {
		r, err := w.record()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func (w wireRecord) record() (Record, error) {
	switch {
	case w.PersonID == nil:
		return Record{}, fmt.Errorf("%w: person_id", ErrMissingField)
	case w.X == nil:
		return Record{}, fmt.Errorf("%w: x", ErrMissingField)
	case w.Y == nil:
		return Record{}, fmt.Errorf("%w: y", ErrMissingField)
	case w.W == nil:
		return Record{}, fmt.Errorf("%w: w", ErrMissingField)
	case w.H == nil:
		return Record{}, fmt.Errorf("%w: h", ErrMissingField)
	}

	for name, v := range map[string]float64{"x": *w.X, "y": *w.Y, "w": *w.W, "h": *w.H, "depth": w.Depth, "confidence": w.Confidence} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Record{}, fmt.Errorf("%w: %s is not finite", ErrInvalidValue, name)
		}
	}
	if *w.W < 0 || *w.H < 0 {
		return Record{}, fmt.Errorf("%w: negative box size", ErrInvalidValue)
	}

	r := Record{
		ID:                *w.PersonID,
		Position:          Vec2{X: *w.X, Y: *w.Y},
		Size:              Vec2{X: *w.W, Y: *w.H},
		Depth:             w.Depth,
		Confidence:        w.Confidence,
		Frame:             w.Frame,
		FacingCamera:      w.FacingScreen,
		WaveDetected:      w.WaveDetected,
		ServerTimestampMs: w.ServerTsMs,
	}
	if len(w.KeypointMotions) > 0 {
		r.KeypointMotions = make([]KeypointMotion, len(w.KeypointMotions))
		for i, k := range w.KeypointMotions {
			r.KeypointMotions[i] = KeypointMotion{
				KeypointID: k.KeypointID,
				DX:         k.X,
				DY:         k.Y,
				Intensity:  k.Intensity,
			}
		}
	}
	return r, nil
}

func toWire(r Record) wireRecord {
	id, x, y, w, h := r.ID, r.Position.X, r.Position.Y, r.Size.X, r.Size.Y
	out := wireRecord{
		PersonID:        &id,
		X:               &x,
		Y:               &y,
		W:               &w,
		H:               &h,
		Depth:           r.Depth,
		Confidence:      r.Confidence,
		Frame:           r.Frame,
		FacingScreen:    r.FacingCamera,
		WaveDetected:    r.WaveDetected,
		ServerTsMs:      r.ServerTimestampMs,
		KeypointMotions: make([]wireKeypoint, 0, len(r.KeypointMotions)),
	}
	for _, k := range r.KeypointMotions {
		out.KeypointMotions = append(out.KeypointMotions, wireKeypoint{
			KeypointID: k.KeypointID,
			X:          k.DX,
			Y:          k.DY,
			Intensity:  k.Intensity,
		})
	}
	return out
}

// Encode serializes records in the sensor's wire schema. Used by the
// simulator and by tests.
func Encode(records []Record, enc Encoding) ([]byte, error) {
	wire := make([]wireRecord, 0, len(records))
	for _, r := range records {
		wire = append(wire, toWire(r))
	}

	switch enc {
	case JSON:
		data, err := json.Marshal(wire)
		if err != nil {
			return nil, fmt.Errorf("protocol: failed to marshal records: %w", err)
		}
		return data, nil
	case CBOR:
		data, err := cbor.Marshal(wire)
		if err != nil {
			return nil, fmt.Errorf("protocol: failed to marshal records: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("protocol: unsupported encoding %s", enc)
	}
}
