package transcription

import (
	"sync"
	"testing"
	"time"
)

type utteranceRecorder struct {
	mu         sync.Mutex
	utterances []Utterance
}

func (r *utteranceRecorder) emit(utterance Utterance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.utterances = append(r.utterances, utterance)
}

func (r *utteranceRecorder) snapshot() []Utterance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Utterance(nil), r.utterances...)
}

func (r *utteranceRecorder) waitFor(t *testing.T, count int, timeout time.Duration) []Utterance {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if utterances := r.snapshot(); len(utterances) >= count {
			return utterances
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d utterances, got %d", count, len(r.snapshot()))
	return nil
}

func TestAssemblerFinalizesAfterQuietPeriod(t *testing.T) {
	recorder := &utteranceRecorder{}
	assembler := newUtteranceAssembler(100*time.Millisecond, recorder.emit)

	if err := assembler.pushWord(Word{Text: "hi", StartTime: 0.10}); err != nil {
		t.Fatalf("expected word to be accepted, got %v", err)
	}
	assembler.pushEndWord(0.30)

	utterances := recorder.waitFor(t, 1, time.Second)
	if len(utterances) != 1 {
		t.Fatalf("expected exactly one utterance, got %d", len(utterances))
	}
	utterance := utterances[0]
	if utterance.State != UtteranceFinalized {
		t.Fatalf("expected finalized state, got %s", utterance.State)
	}
	if utterance.Text() != "hi" {
		t.Fatalf("expected text %q, got %q", "hi", utterance.Text())
	}
	if utterance.FinalizeTime == nil || *utterance.FinalizeTime != 0.30 {
		t.Fatalf("expected finalize time 0.30, got %v", utterance.FinalizeTime)
	}
}

func TestAssemblerWordBeforeTimeoutReopensUtterance(t *testing.T) {
	recorder := &utteranceRecorder{}
	assembler := newUtteranceAssembler(200*time.Millisecond, recorder.emit)

	if err := assembler.pushWord(Word{Text: "a", StartTime: 0.10}); err != nil {
		t.Fatalf("expected word to be accepted, got %v", err)
	}
	assembler.pushEndWord(0.30)

	time.Sleep(50 * time.Millisecond)
	if err := assembler.pushWord(Word{Text: "b", StartTime: 0.50}); err != nil {
		t.Fatalf("expected word to be accepted, got %v", err)
	}

	// The first timer was cancelled, so nothing finalizes for now.
	time.Sleep(300 * time.Millisecond)
	if got := len(recorder.snapshot()); got != 0 {
		t.Fatalf("expected no finalized utterances yet, got %d", got)
	}

	assembler.pushEndWord(0.70)
	utterances := recorder.waitFor(t, 1, time.Second)
	if utterances[0].Text() != "a b" {
		t.Fatalf("expected merged utterance %q, got %q", "a b", utterances[0].Text())
	}
}

func TestAssemblerFlushFinalizesImmediately(t *testing.T) {
	recorder := &utteranceRecorder{}
	assembler := newUtteranceAssembler(time.Hour, recorder.emit)

	if err := assembler.pushWord(Word{Text: "now", StartTime: 1.0}); err != nil {
		t.Fatalf("expected word to be accepted, got %v", err)
	}
	assembler.flush()

	utterances := recorder.snapshot()
	if len(utterances) != 1 {
		t.Fatalf("expected one utterance after flush, got %d", len(utterances))
	}
	if utterances[0].State != UtteranceFinalized {
		t.Fatalf("expected finalized state, got %s", utterances[0].State)
	}
}

func TestAssemblerFlushWithoutWordsEmitsNothing(t *testing.T) {
	recorder := &utteranceRecorder{}
	assembler := newUtteranceAssembler(time.Hour, recorder.emit)

	assembler.flush()
	assembler.pushEndWord(1.0)

	if got := len(recorder.snapshot()); got != 0 {
		t.Fatalf("expected no utterances from an empty assembler, got %d", got)
	}
}

func TestAssemblerOutOfOrderWordFinalizesAndReports(t *testing.T) {
	recorder := &utteranceRecorder{}
	assembler := newUtteranceAssembler(time.Hour, recorder.emit)

	if err := assembler.pushWord(Word{Text: "late", StartTime: 2.0}); err != nil {
		t.Fatalf("expected word to be accepted, got %v", err)
	}
	err := assembler.pushWord(Word{Text: "early", StartTime: 1.0})

	outOfOrder, ok := err.(*OutOfOrderEventError)
	if !ok {
		t.Fatalf("expected an out-of-order error, got %v", err)
	}
	if outOfOrder.LastStartTime != 2.0 || outOfOrder.StartTime != 1.0 {
		t.Fatalf("expected times 2.0/1.0 in the error, got %+v", outOfOrder)
	}

	utterances := recorder.snapshot()
	if len(utterances) != 1 {
		t.Fatalf("expected the open utterance to be finalized, got %d", len(utterances))
	}
	if utterances[0].Text() != "late" {
		t.Fatalf("expected only the earlier word, got %q", utterances[0].Text())
	}

	// The assembler keeps working after the degradation.
	if err := assembler.pushWord(Word{Text: "again", StartTime: 3.0}); err != nil {
		t.Fatalf("expected the assembler to recover, got %v", err)
	}
	assembler.flush()
	if got := len(recorder.snapshot()); got != 2 {
		t.Fatalf("expected a second utterance after recovery, got %d", got)
	}
}

func TestFinalizedUtteranceIsDetachedCopy(t *testing.T) {
	recorder := &utteranceRecorder{}
	assembler := newUtteranceAssembler(time.Hour, recorder.emit)

	confidence := 0.9
	if err := assembler.pushWord(Word{Text: "safe", StartTime: 0.5, Confidence: &confidence}); err != nil {
		t.Fatalf("expected word to be accepted, got %v", err)
	}
	assembler.flush()

	utterance := recorder.snapshot()[0]
	confidence = 0.1
	if *utterance.Words[0].Confidence != 0.9 {
		t.Fatalf("expected emitted utterance to be detached from caller data, got %v", *utterance.Words[0].Confidence)
	}
}

func TestUtteranceText(t *testing.T) {
	utterance := Utterance{Words: []Word{
		{Text: "one", StartTime: 0.1},
		{Text: "two", StartTime: 0.2},
		{Text: "three", StartTime: 0.3},
	}}
	if utterance.Text() != "one two three" {
		t.Fatalf("expected joined text, got %q", utterance.Text())
	}

	if (Utterance{}).Text() != "" {
		t.Fatalf("expected empty text for empty utterance")
	}
}
