package eventclient

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	headerLenBytes = 4
	maxHeaderBytes = 4096
)

var errShortEnvelope = errors.New("envelope shorter than its header")

// Event is one message delivered by a subscription: the publisher's metadata
// plus the still-compressed image payload.
type Event struct {
	Seq     uint64
	Stamp   time.Time
	Topic   string
	Payload []byte
}

// header is the JSON metadata block that precedes the payload on the wire.
type header struct {
	Seq     uint64 `json:"seq"`
	StampNS int64  `json:"stamp_ns"`
}

// Envelope layout: 4-byte big-endian header length, JSON header, payload.
func EncodeEnvelope(seq uint64, stamp time.Time, payload []byte) ([]byte, error) {
	hdr, err := json.Marshal(header{Seq: seq, StampNS: stamp.UnixNano()})
	if err != nil {
		return nil, fmt.Errorf("encode envelope header: %w", err)
	}
	out := make([]byte, headerLenBytes+len(hdr)+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(hdr)))
	copy(out[headerLenBytes:], hdr)
	copy(out[headerLenBytes+len(hdr):], payload)
	return out, nil
}

// ParseEnvelope splits a wire message into metadata and payload. The payload
// aliases data; callers that retain it past the handler must not mutate data.
func ParseEnvelope(data []byte) (Event, error) {
	if len(data) < headerLenBytes {
		return Event{}, errShortEnvelope
	}
	n := int(binary.BigEndian.Uint32(data))
	if n > maxHeaderBytes {
		return Event{}, fmt.Errorf("envelope header too large: %d bytes", n)
	}
	if len(data) < headerLenBytes+n {
		return Event{}, errShortEnvelope
	}
	var hdr header
	if err := json.Unmarshal(data[headerLenBytes:headerLenBytes+n], &hdr); err != nil {
		return Event{}, fmt.Errorf("decode envelope header: %w", err)
	}
	ev := Event{
		Seq:     hdr.Seq,
		Payload: data[headerLenBytes+n:],
	}
	if hdr.StampNS != 0 {
		ev.Stamp = time.Unix(0, hdr.StampNS)
	}
	return ev, nil
}
