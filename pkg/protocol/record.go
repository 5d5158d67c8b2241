// Package protocol defines the detection records streamed by the sensor
// process and the codecs used to decode them off the wire.
//
// One inbound WebSocket message carries one array of records. Text frames
// are JSON; binary frames carry the same schema in CBOR.
package protocol

import "time"

// Vec2 is a 2D quantity in source-frame pixel space.
type Vec2 struct {
	X float64
	Y float64
}

// KeypointMotion is the per-keypoint motion the sensor reports for a subject.
type KeypointMotion struct {
	KeypointID int
	DX         float64
	DY         float64
	Intensity  float64
}

// Record is one decoded detection. Records are snapshots: subscribers must
// treat them as read-only.
type Record struct {
	// ID is stable for a subject across consecutive records but is not
	// unique across sensor reconnects.
	ID int

	Position Vec2 // Box centre, source pixels
	Size     Vec2 // Box width/height, source pixels

	Depth      float64 // Median depth at the box centre (sensor units, 0 = unknown)
	Confidence float64

	Frame             int
	FacingCamera      bool
	WaveDetected      bool
	ServerTimestampMs int64

	KeypointMotions []KeypointMotion
}

// ServerTime returns the sensor timestamp as a time.Time.
func (r Record) ServerTime() time.Time {
	return time.UnixMilli(r.ServerTimestampMs)
}

// Batch is the ordered set of records decoded from a single message.
type Batch struct {
	// Seq is assigned by the receiving client in receipt order, starting at 1.
	Seq uint64

	// ReceivedAt is when the message came off the socket.
	ReceivedAt time.Time

	Records []Record
}

// Empty reports whether the batch carries no detections.
func (b Batch) Empty() bool {
	return len(b.Records) == 0
}

// Len returns the number of records.
func (b Batch) Len() int {
	return len(b.Records)
}

// First returns the first record in the batch.
func (b Batch) First() (Record, bool) {
	if len(b.Records) == 0 {
		return Record{}, false
	}
	return b.Records[0], true
}
