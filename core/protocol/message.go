package protocol

// Type is the one-byte tag that leads every encoded message.
type Type byte

const (
	TypeHandshake   Type = 0
	TypeAudioChunk  Type = 1
	TypeWord        Type = 2
	TypeEndWord     Type = 3
	TypeFlush       Type = 4
	TypePing        Type = 5
	TypePong        Type = 6
	TypeServerError Type = 7
)

func (t Type) String() string {
	switch t {
	case TypeHandshake:
		return "handshake"
	case TypeAudioChunk:
		return "audio-chunk"
	case TypeWord:
		return "word"
	case TypeEndWord:
		return "end-word"
	case TypeFlush:
		return "flush"
	case TypePing:
		return "ping"
	case TypePong:
		return "pong"
	case TypeServerError:
		return "server-error"
	}
	return "unknown"
}

// Message is a tagged variant; exactly one variant is active, selected by
// Type, and only the fields of that variant are meaningful.
type Message struct {
	Type Type

	// Audio carries the samples of an audio-chunk message.
	Audio []float32

	// Text carries the word text of a word message and the error text of a
	// server-error message.
	Text       string
	StartTime  float64
	Confidence *float64

	// Time is the end-of-word timestamp of an end-word message.
	Time float64

	// Code is the application error code of a server-error message.
	Code uint32
}

func NewHandshake() Message { return Message{Type: TypeHandshake} }

// NewAudioChunk builds an audio-chunk message. A nil samples slice is
// normalized to an empty one so the canonical decoded form round-trips.
func NewAudioChunk(samples []float32) Message {
	if samples == nil {
		samples = []float32{}
	}
	return Message{Type: TypeAudioChunk, Audio: samples}
}

func NewWord(text string, startTime float64) Message {
	return Message{Type: TypeWord, Text: text, StartTime: startTime}
}

func NewWordWithConfidence(text string, startTime, confidence float64) Message {
	return Message{Type: TypeWord, Text: text, StartTime: startTime, Confidence: &confidence}
}

func NewEndWord(time float64) Message { return Message{Type: TypeEndWord, Time: time} }

func NewFlush() Message { return Message{Type: TypeFlush} }

func NewPing() Message { return Message{Type: TypePing} }

func NewPong() Message { return Message{Type: TypePong} }

func NewServerError(code uint32, text string) Message {
	return Message{Type: TypeServerError, Code: code, Text: text}
}
