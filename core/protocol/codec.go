package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeError reports malformed wire data: an unrecognized tag, a
// length-prefixed field declaring more bytes than remain, or a numeric field
// that is short of its required width.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol decode error at byte %d: %s", e.Offset, e.Reason)
}

// Encode serializes a message. It is total: every constructible message
// produces exactly one byte sequence.
func Encode(msg Message) []byte {
	buf := []byte{byte(msg.Type)}

	switch msg.Type {
	case TypeAudioChunk:
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Audio)))
		for _, sample := range msg.Audio {
			buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(sample))
		}

	case TypeWord:
		buf = appendString(buf, msg.Text)
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(msg.StartTime))
		if msg.Confidence != nil {
			buf = append(buf, 1)
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(*msg.Confidence))
		} else {
			buf = append(buf, 0)
		}

	case TypeEndWord:
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(msg.Time))

	case TypeServerError:
		buf = binary.BigEndian.AppendUint32(buf, msg.Code)
		buf = appendString(buf, msg.Text)
	}

	return buf
}

// Decode parses a single message from data. Trailing bytes after a complete
// message are rejected, as they indicate a desynchronized stream.
func Decode(data []byte) (Message, error) {
	r := reader{data: data}

	tag, err := r.byte("message tag")
	if err != nil {
		return Message{}, err
	}

	msg := Message{Type: Type(tag)}
	switch msg.Type {
	case TypeHandshake, TypeFlush, TypePing, TypePong:

	case TypeAudioChunk:
		if msg.Audio, err = r.audio(); err != nil {
			return Message{}, err
		}

	case TypeWord:
		if msg.Text, err = r.string("word text"); err != nil {
			return Message{}, err
		}
		if msg.StartTime, err = r.float64("word start time"); err != nil {
			return Message{}, err
		}
		hasConfidence, err := r.byte("word confidence marker")
		if err != nil {
			return Message{}, err
		}
		if hasConfidence != 0 {
			confidence, err := r.float64("word confidence")
			if err != nil {
				return Message{}, err
			}
			msg.Confidence = &confidence
		}

	case TypeEndWord:
		if msg.Time, err = r.float64("end-word time"); err != nil {
			return Message{}, err
		}

	case TypeServerError:
		if msg.Code, err = r.uint32("server error code"); err != nil {
			return Message{}, err
		}
		if msg.Text, err = r.string("server error text"); err != nil {
			return Message{}, err
		}

	default:
		return Message{}, &DecodeError{Offset: 0, Reason: fmt.Sprintf("unrecognized message tag 0x%02x", tag)}
	}

	if r.offset != len(r.data) {
		return Message{}, &DecodeError{
			Offset: r.offset,
			Reason: fmt.Sprintf("%d trailing bytes after %s message", len(r.data)-r.offset, msg.Type),
		}
	}

	return msg, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

type reader struct {
	data   []byte
	offset int
}

func (r *reader) remaining() int { return len(r.data) - r.offset }

func (r *reader) byte(field string) (byte, error) {
	if r.remaining() < 1 {
		return 0, &DecodeError{Offset: r.offset, Reason: fmt.Sprintf("missing %s", field)}
	}
	b := r.data[r.offset]
	r.offset++
	return b, nil
}

func (r *reader) uint32(field string) (uint32, error) {
	if r.remaining() < 4 {
		return 0, &DecodeError{
			Offset: r.offset,
			Reason: fmt.Sprintf("%s requires 4 bytes, %d remain", field, r.remaining()),
		}
	}
	v := binary.BigEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v, nil
}

func (r *reader) float64(field string) (float64, error) {
	if r.remaining() < 8 {
		return 0, &DecodeError{
			Offset: r.offset,
			Reason: fmt.Sprintf("%s requires 8 bytes, %d remain", field, r.remaining()),
		}
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(r.data[r.offset:]))
	r.offset += 8
	return v, nil
}

func (r *reader) string(field string) (string, error) {
	length, err := r.uint32(field + " length")
	if err != nil {
		return "", err
	}
	if int64(r.remaining()) < int64(length) {
		return "", &DecodeError{
			Offset: r.offset,
			Reason: fmt.Sprintf("%s declares %d bytes, %d remain", field, length, r.remaining()),
		}
	}
	s := string(r.data[r.offset : r.offset+int(length)])
	r.offset += int(length)
	return s, nil
}

func (r *reader) audio() ([]float32, error) {
	count, err := r.uint32("audio sample count")
	if err != nil {
		return nil, err
	}
	if int64(r.remaining()) < int64(count)*4 {
		return nil, &DecodeError{
			Offset: r.offset,
			Reason: fmt.Sprintf("audio payload declares %d samples (%d bytes), %d remain", count, int(count)*4, r.remaining()),
		}
	}
	samples := make([]float32, count)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.BigEndian.Uint32(r.data[r.offset:]))
		r.offset += 4
	}
	return samples, nil
}
