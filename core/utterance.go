package transcription

import (
	"fmt"
	"sync"
	"time"

	"github.com/jinzhu/copier"
)

// Word is a single transcribed word with its start offset in stream seconds.
type Word struct {
	Text       string
	StartTime  float64
	Confidence *float64
}

// UtteranceState tracks the monotonic lifecycle of an utterance. Transitions
// only ever move forward: open, finalizing, finalized.
type UtteranceState string

const (
	UtteranceOpen       UtteranceState = "open"
	UtteranceFinalizing UtteranceState = "finalizing"
	UtteranceFinalized  UtteranceState = "finalized"
)

// Utterance is a contiguous run of words bounded by silence. A finalized
// utterance is immutable and handed to the consumer exactly once.
type Utterance struct {
	Words        []Word
	FinalizeTime *float64
	State        UtteranceState
}

// Text joins the utterance's words with single spaces.
func (u Utterance) Text() string {
	text := ""
	for i, word := range u.Words {
		if i > 0 {
			text += " "
		}
		text += word.Text
	}
	return text
}

// OutOfOrderEventError reports a word whose start time went backwards within
// one utterance, which only a misbehaving server produces.
type OutOfOrderEventError struct {
	LastStartTime float64
	StartTime     float64
}

func (e *OutOfOrderEventError) Error() string {
	return fmt.Sprintf("out-of-order word event: start time %.3fs after %.3fs", e.StartTime, e.LastStartTime)
}

// utteranceAssembler turns ordered word-boundary events into finalized
// utterances. An end-word event arms a finalize timer; a word arriving
// before it fires cancels it and reopens the utterance, biasing toward
// merging closely-spaced word groups while the timeout bounds latency.
type utteranceAssembler struct {
	finalizeTimeout time.Duration
	emit            func(utterance Utterance)

	mu      sync.Mutex
	current *Utterance
	timer   *time.Timer
}

func newUtteranceAssembler(finalizeTimeout time.Duration, emit func(utterance Utterance)) *utteranceAssembler {
	if emit == nil {
		emit = func(Utterance) {}
	}
	return &utteranceAssembler{finalizeTimeout: finalizeTimeout, emit: emit}
}

func (a *utteranceAssembler) pushWord(word Word) error {
	a.mu.Lock()

	a.cancelTimerLocked()

	if a.current == nil {
		a.current = &Utterance{State: UtteranceOpen}
	} else if a.current.State == UtteranceFinalizing {
		a.current.State = UtteranceOpen
		a.current.FinalizeTime = nil
	}

	if n := len(a.current.Words); n > 0 && word.StartTime < a.current.Words[n-1].StartTime {
		err := &OutOfOrderEventError{
			LastStartTime: a.current.Words[n-1].StartTime,
			StartTime:     word.StartTime,
		}
		finalized, ok := a.finalizeLocked()
		a.mu.Unlock()
		if ok {
			a.emit(finalized)
		}
		return err
	}

	a.current.Words = append(a.current.Words, word)
	a.mu.Unlock()
	return nil
}

func (a *utteranceAssembler) pushEndWord(endTime float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil || len(a.current.Words) == 0 {
		return
	}

	a.current.State = UtteranceFinalizing
	a.current.FinalizeTime = &endTime
	a.cancelTimerLocked()
	a.timer = time.AfterFunc(a.finalizeTimeout, a.timerExpired)
}

func (a *utteranceAssembler) timerExpired() {
	a.mu.Lock()
	if a.current == nil || a.current.State != UtteranceFinalizing {
		a.mu.Unlock()
		return
	}

	finalized, ok := a.finalizeLocked()
	a.mu.Unlock()
	if ok {
		a.emit(finalized)
	}
}

// flush force-finalizes the current utterance immediately regardless of
// timer state. An empty utterance is not emitted.
func (a *utteranceAssembler) flush() {
	a.mu.Lock()
	finalized, ok := a.finalizeLocked()
	a.mu.Unlock()
	if ok {
		a.emit(finalized)
	}
}

// finalizeLocked closes out the current utterance and returns a deep copy
// for the consumer, so no later mutation can reach an emitted utterance.
func (a *utteranceAssembler) finalizeLocked() (Utterance, bool) {
	a.cancelTimerLocked()

	if a.current == nil || len(a.current.Words) == 0 {
		a.current = nil
		return Utterance{}, false
	}

	a.current.State = UtteranceFinalized

	finalized := Utterance{}
	if err := copier.CopyWithOption(&finalized, a.current, copier.Option{DeepCopy: true}); err != nil {
		finalized = *a.current
	}
	a.current = nil

	return finalized, true
}

func (a *utteranceAssembler) cancelTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
