package conversation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordingSpeaker collects spoken text and can refuse to speak.
type recordingSpeaker struct {
	mu     sync.Mutex
	spoken []string
	err    error
}

func (s *recordingSpeaker) Speak(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.spoken = append(s.spoken, text)
	return nil
}

func (s *recordingSpeaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func reply(text string) Responder {
	return ResponderFunc(func(context.Context, []Utterance) (string, error) { return text, nil })
}

func TestSubmitProducesReply(t *testing.T) {
	sp := &recordingSpeaker{}
	var states []State
	var mu sync.Mutex
	m := New(reply("สวัสดีครับ"), WithSpeaker(sp), OnStateChange(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}))

	if err := m.BeginListening(); err != nil {
		t.Fatal(err)
	}
	if err := m.SubmitUserUtterance(context.Background(), "  สวัสดี "); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	m.Wait()

	tr := m.Transcript()
	if len(tr) != 2 {
		t.Fatalf("transcript len = %d, want 2", len(tr))
	}
	if tr[0].Role != RoleUser || tr[0].Content != "สวัสดี" {
		t.Errorf("first = %+v", tr[0])
	}
	if tr[1].Role != RoleAssistant || tr[1].Content != "สวัสดีครับ" {
		t.Errorf("second = %+v", tr[1])
	}
	if m.State() != StateSpeaking {
		t.Errorf("state = %v, want speaking", m.State())
	}
	if got := sp.Spoken(); len(got) != 1 || got[0] != "สวัสดีครับ" {
		t.Errorf("spoken = %v", got)
	}

	m.SpeechEnded()
	if m.State() != StateIdle {
		t.Errorf("state = %v, want idle", m.State())
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateListening, StateProcessing, StateSpeaking, StateIdle}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %v, want %v", i, states[i], want[i])
		}
	}
}

func TestFailureAppendsFallback(t *testing.T) {
	tests := []struct {
		name      string
		responder Responder
	}{
		{"error", ResponderFunc(func(context.Context, []Utterance) (string, error) {
			return "", errors.New("503")
		})},
		{"blank reply", reply("   ")},
		{"panic", ResponderFunc(func(context.Context, []Utterance) (string, error) { panic("boom") })},
		{"nil responder", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := &recordingSpeaker{}
			var failure error
			m := New(tt.responder, WithSpeaker(sp), OnFailure(func(err error) { failure = err }))

			m.SubmitUserUtterance(context.Background(), "hello")
			m.Wait()

			tr := m.Transcript()
			if len(tr) != 2 || tr[1].Content != FallbackReply || tr[1].Role != RoleAssistant {
				t.Fatalf("transcript = %+v", tr)
			}
			if !errors.Is(failure, ErrResponseGenerationFailed) {
				t.Errorf("failure = %v", failure)
			}
			if m.State() != StateSpeaking {
				t.Errorf("state = %v, want speaking", m.State())
			}
			if got := sp.Spoken(); len(got) != 1 || got[0] != FallbackReply {
				t.Errorf("spoken = %v", got)
			}
		})
	}
}

func TestReplyTimeout(t *testing.T) {
	slow := ResponderFunc(func(ctx context.Context, _ []Utterance) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	m := New(slow, WithSpeaker(&recordingSpeaker{}), WithReplyTimeout(10*time.Millisecond))
	m.SubmitUserUtterance(context.Background(), "hello")
	m.Wait()
	if tr := m.Transcript(); len(tr) != 2 || tr[1].Content != FallbackReply {
		t.Errorf("transcript = %+v", tr)
	}
}

func TestBusyGuard(t *testing.T) {
	release := make(chan struct{})
	blocking := ResponderFunc(func(context.Context, []Utterance) (string, error) {
		<-release
		return "done", nil
	})
	m := New(blocking, WithSpeaker(&recordingSpeaker{}))

	if err := m.SubmitUserUtterance(context.Background(), "first"); err != nil {
		t.Fatal(err)
	}
	if err := m.SubmitUserUtterance(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("second submit = %v, want ErrBusy", err)
	}
	if err := m.BeginListening(); !errors.Is(err, ErrBusy) {
		t.Errorf("BeginListening while processing = %v, want ErrBusy", err)
	}
	if got := len(m.Transcript()); got != 1 {
		t.Errorf("transcript len = %d, want 1", got)
	}

	close(release)
	m.Wait()
	tr := m.Transcript()
	if len(tr) != 2 || tr[0].Content != "first" || tr[1].Content != "done" {
		t.Errorf("transcript = %+v", tr)
	}
}

func TestEmptyUtteranceRejected(t *testing.T) {
	m := New(reply("x"))
	if err := m.SubmitUserUtterance(context.Background(), " \n "); !errors.Is(err, ErrEmptyUtterance) {
		t.Errorf("err = %v", err)
	}
	if len(m.Transcript()) != 0 || m.State() != StateIdle {
		t.Error("blank submit changed state")
	}
}

func TestSpeakerRefusalGoesIdle(t *testing.T) {
	sp := &recordingSpeaker{err: errors.New("no voice")}
	m := New(reply("answer"), WithSpeaker(sp))
	m.SubmitUserUtterance(context.Background(), "q")
	m.Wait()

	if m.State() != StateIdle {
		t.Errorf("state = %v, want idle", m.State())
	}
	if tr := m.Transcript(); len(tr) != 2 || tr[1].Content != "answer" {
		t.Errorf("reply not kept in transcript: %+v", tr)
	}
}

func TestResetDiscardsLateReply(t *testing.T) {
	release := make(chan struct{})
	var failures int
	m := New(ResponderFunc(func(ctx context.Context, _ []Utterance) (string, error) {
		<-release
		return "late", nil
	}), WithGreeting("hi, I'm Green"), OnFailure(func(error) { failures++ }))

	if tr := m.Transcript(); len(tr) != 1 || tr[0].Role != RoleAssistant {
		t.Fatalf("greeting not seeded: %+v", tr)
	}

	m.SubmitUserUtterance(context.Background(), "q")
	m.Reset()
	close(release)
	m.Wait()

	tr := m.Transcript()
	if len(tr) != 1 || tr[0].Content != "hi, I'm Green" {
		t.Errorf("transcript after reset = %+v", tr)
	}
	if m.State() != StateIdle {
		t.Errorf("state = %v", m.State())
	}
	if failures != 0 {
		t.Errorf("stale reply reported %d failures", failures)
	}
}

func TestReceiveResponse(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	m := New(ResponderFunc(func(ctx context.Context, _ []Utterance) (string, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return "", ctx.Err()
	}), WithSpeaker(&recordingSpeaker{}))

	if err := m.ReceiveResponse("early"); !errors.Is(err, ErrNotProcessing) {
		t.Errorf("ReceiveResponse while idle = %v", err)
	}

	m.SubmitUserUtterance(context.Background(), "q")
	if err := m.ReceiveResponse("external"); err != nil {
		t.Fatalf("ReceiveResponse: %v", err)
	}
	m.Wait()

	tr := m.Transcript()
	if len(tr) != 2 || tr[1].Content != "external" {
		t.Errorf("transcript = %+v", tr)
	}
}

func TestReceiveResponseWinsOverCancelledReply(t *testing.T) {
	var failures atomic.Int32
	m := New(ResponderFunc(func(ctx context.Context, _ []Utterance) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), WithSpeaker(&recordingSpeaker{}), OnFailure(func(error) { failures.Add(1) }))

	for i := 0; i < 2000; i++ {
		if err := m.SubmitUserUtterance(context.Background(), "q"); err != nil {
			t.Fatalf("round %d: Submit: %v", i, err)
		}
		if err := m.ReceiveResponse("external"); err != nil {
			t.Fatalf("round %d: ReceiveResponse: %v", i, err)
		}
		m.Wait()
		tr := m.Transcript()
		if got := tr[len(tr)-1]; got.Role != RoleAssistant || got.Content != "external" {
			t.Fatalf("round %d: last utterance = %+v", i, got)
		}
		m.SpeechEnded()
	}
	if n := failures.Load(); n != 0 {
		t.Errorf("cancelled replies reported %d failures", n)
	}
}

func TestOrderPreserved(t *testing.T) {
	n := 0
	m := New(ResponderFunc(func(_ context.Context, h []Utterance) (string, error) {
		n++
		return h[len(h)-1].Content + "!", nil
	}), WithSpeaker(&recordingSpeaker{}))

	for _, q := range []string{"a", "b", "c"} {
		if err := m.SubmitUserUtterance(context.Background(), q); err != nil {
			t.Fatal(err)
		}
		m.Wait()
		m.SpeechEnded()
	}

	want := []string{"a", "a!", "b", "b!", "c", "c!"}
	tr := m.Transcript()
	if len(tr) != len(want) {
		t.Fatalf("transcript len = %d", len(tr))
	}
	for i, w := range want {
		if tr[i].Content != w {
			t.Errorf("tr[%d] = %q, want %q", i, tr[i].Content, w)
		}
	}
}

func TestReplay(t *testing.T) {
	sp := &recordingSpeaker{}
	m := New(reply("x"), WithSpeaker(sp), WithGreeting("greeting"))

	if err := m.Replay(0); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if m.State() != StateSpeaking || sp.Spoken()[0] != "greeting" {
		t.Errorf("state=%v spoken=%v", m.State(), sp.Spoken())
	}
	m.SpeechEnded()

	m.SubmitUserUtterance(context.Background(), "q")
	m.Wait()
	if err := m.Replay(1); !errors.Is(err, ErrNoSuchUtterance) {
		t.Errorf("replay of user utterance = %v", err)
	}
	if err := m.Replay(9); !errors.Is(err, ErrNoSuchUtterance) {
		t.Errorf("replay out of range = %v", err)
	}
}

func TestStateString(t *testing.T) {
	if StateProcessing.String() != "processing" || State(42).String() != "unknown" {
		t.Error("unexpected state names")
	}
	b, _ := StateSpeaking.MarshalText()
	if string(b) != "speaking" {
		t.Errorf("MarshalText = %s", b)
	}
}
