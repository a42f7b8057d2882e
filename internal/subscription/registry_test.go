package subscription

import (
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/rickgao/linkpulse/internal/connection"
	"github.com/rickgao/linkpulse/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSender records every frame sent through it.
type fakeSender struct {
	mu        sync.Mutex
	connected bool
	failSend  bool
	frames    []connection.Envelope
}

func (s *fakeSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSend {
		return errors.New("write: broken pipe")
	}
	var env connection.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	s.frames = append(s.frames, env)
	return nil
}

func (s *fakeSender) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// sent returns the frames as "type:topic" strings.
func (s *fakeSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		var p connection.TopicPayload
		json.Unmarshal(f.Payload, &p)
		out = append(out, f.Type+":"+p.Topic)
	}
	return out
}

func noop(model.ClickEvent) {}

func newConnected() (*Registry, *fakeSender) {
	s := &fakeSender{connected: true}
	return NewRegistry(s, nil), s
}

func TestRegistry_SubscribeDedup(t *testing.T) {
	r, s := newConnected()
	cb := NewListener(noop)

	r.Subscribe("abc123", cb)
	r.Subscribe("abc123", cb)

	if got := r.Count("abc123"); got != 1 {
		t.Errorf("Count = %d, want 1", got)
	}
	if got := s.sent(); !slices.Equal(got, []string{"subscribe:abc123"}) {
		t.Errorf("sent = %v, want exactly one subscribe", got)
	}
}

func TestRegistry_SameFunctionDistinctListeners(t *testing.T) {
	r, s := newConnected()

	r.Subscribe("abc123", NewListener(noop))
	r.Subscribe("abc123", NewListener(noop))

	if got := r.Count("abc123"); got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}
	if got := len(s.sent()); got != 1 {
		t.Errorf("frames sent = %d, want 1", got)
	}
}

func TestRegistry_RefCountedTeardown(t *testing.T) {
	r, s := newConnected()
	cb1 := NewListener(noop)
	cb2 := NewListener(noop)

	r.Subscribe("abc123", cb1)
	r.Subscribe("abc123", cb2)

	r.Unsubscribe("abc123", cb1)
	if got := s.sent(); !slices.Equal(got, []string{"subscribe:abc123"}) {
		t.Errorf("sent after first unsubscribe = %v, want no unsubscribe", got)
	}
	if got := r.ActiveTopics(); !slices.Equal(got, []string{"abc123"}) {
		t.Errorf("ActiveTopics = %v, want [abc123]", got)
	}

	r.Unsubscribe("abc123", cb2)
	want := []string{"subscribe:abc123", "unsubscribe:abc123"}
	if got := s.sent(); !slices.Equal(got, want) {
		t.Errorf("sent = %v, want %v", got, want)
	}
	if got := r.ActiveTopics(); len(got) != 0 {
		t.Errorf("ActiveTopics = %v, want empty", got)
	}
}

func TestRegistry_UnsubscribeTopicWide(t *testing.T) {
	r, s := newConnected()

	r.Subscribe("abc123", NewListener(noop))
	r.Subscribe("abc123", NewListener(noop))
	r.Subscribe("abc123", NewListener(noop))
	r.Subscribe("xyz789", NewListener(noop))

	r.UnsubscribeAll("abc123")

	want := []string{"subscribe:abc123", "subscribe:xyz789", "unsubscribe:abc123"}
	if got := s.sent(); !slices.Equal(got, want) {
		t.Errorf("sent = %v, want %v", got, want)
	}
	if got := r.Count("abc123"); got != 0 {
		t.Errorf("Count = %d, want 0", got)
	}
	if got := r.ActiveTopics(); !slices.Equal(got, []string{"xyz789"}) {
		t.Errorf("ActiveTopics = %v, want [xyz789]", got)
	}
}

func TestRegistry_UnsubscribeNoops(t *testing.T) {
	r, s := newConnected()
	cb := NewListener(noop)

	tests := []struct {
		name string
		run  func()
	}{
		{"unknown topic", func() { r.Unsubscribe("nope", cb) }},
		{"unknown topic wide", func() { r.Unsubscribe("nope", nil) }},
		{"unregistered listener", func() {
			r.Subscribe("abc123", cb)
			r.Unsubscribe("abc123", NewListener(noop))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run()
		})
	}

	if got := s.sent(); !slices.Equal(got, []string{"subscribe:abc123"}) {
		t.Errorf("sent = %v, want only the one subscribe", got)
	}
	if got := r.Count("abc123"); got != 1 {
		t.Errorf("Count = %d, want 1", got)
	}
}

func TestRegistry_SubscribeWhileDisconnected(t *testing.T) {
	s := &fakeSender{}
	r := NewRegistry(s, nil)

	r.Subscribe("abc123", NewListener(noop))

	if got := r.ActiveTopics(); len(got) != 0 {
		t.Errorf("ActiveTopics = %v, want empty", got)
	}
	if got := s.sent(); len(got) != 0 {
		t.Errorf("sent = %v, want nothing", got)
	}
	if got := r.Stats().Ignored; got != 1 {
		t.Errorf("Ignored = %d, want 1", got)
	}

	// Nothing was queued: connecting later sends nothing.
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	r.Resync()
	if got := s.sent(); len(got) != 0 {
		t.Errorf("sent after connect = %v, want nothing", got)
	}
}

func TestRegistry_UnsubscribeWhileDisconnected(t *testing.T) {
	r, s := newConnected()
	cb := NewListener(noop)
	r.Subscribe("abc123", cb)

	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()

	r.Unsubscribe("abc123", cb)

	if got := r.ActiveTopics(); len(got) != 0 {
		t.Errorf("ActiveTopics = %v, want empty", got)
	}
	if got := s.sent(); !slices.Equal(got, []string{"subscribe:abc123"}) {
		t.Errorf("sent = %v, want no unsubscribe on a down connection", got)
	}
}

func TestRegistry_Resync(t *testing.T) {
	r, s := newConnected()
	cb := NewListener(noop)
	r.Subscribe("xyz789", cb)
	r.Subscribe("abc123", cb)
	r.Subscribe("abc123", NewListener(noop))

	r.Resync()

	want := []string{
		"subscribe:xyz789",
		"subscribe:abc123",
		"subscribe:abc123",
		"subscribe:xyz789",
	}
	if got := s.sent(); !slices.Equal(got, want) {
		t.Errorf("sent = %v, want %v", got, want)
	}
}

func TestRegistry_ListenersSnapshot(t *testing.T) {
	r, _ := newConnected()
	cb1 := NewListener(noop)
	cb2 := NewListener(noop)
	cb3 := NewListener(noop)

	r.Subscribe("abc123", cb1)
	r.Subscribe("abc123", cb2)
	r.Subscribe("abc123", cb3)

	snap := r.Listeners("abc123")
	if !slices.Equal(snap, []*Listener{cb1, cb2, cb3}) {
		t.Fatal("Listeners not in registration order")
	}

	r.Unsubscribe("abc123", cb2)

	if !slices.Equal(snap, []*Listener{cb1, cb2, cb3}) {
		t.Error("earlier snapshot was modified by Unsubscribe")
	}
	if got := r.Listeners("abc123"); !slices.Equal(got, []*Listener{cb1, cb3}) {
		t.Errorf("Listeners after unsubscribe has %d entries, want cb1, cb3", len(got))
	}
	if got := r.Listeners("none"); got != nil {
		t.Errorf("Listeners(unknown) = %v, want nil", got)
	}
}

// stallingSender blocks every Send until release is closed.
type stallingSender struct {
	entered chan struct{}
	release chan struct{}
}

func (s *stallingSender) Send([]byte) error {
	s.entered <- struct{}{}
	<-s.release
	return nil
}

func (s *stallingSender) IsConnected() bool { return true }

func TestRegistry_LookupDuringSlowSend(t *testing.T) {
	s := &stallingSender{entered: make(chan struct{}, 1), release: make(chan struct{})}
	r := NewRegistry(s, nil)
	r.topics["abc123"] = []*Listener{NewListener(noop)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Subscribe("xyz789", NewListener(noop))
	}()
	<-s.entered

	looked := make(chan int, 1)
	go func() { looked <- len(r.Listeners("abc123")) }()

	select {
	case n := <-looked:
		if n != 1 {
			t.Errorf("Listeners = %d, want 1", n)
		}
	case <-time.After(time.Second):
		t.Error("Listeners blocked behind an in-flight send")
	}

	close(s.release)
	<-done
	if got := r.Stats().SubscribesSent; got != 1 {
		t.Errorf("SubscribesSent = %d, want 1", got)
	}
}

func TestRegistry_SendErrorKeepsRegistration(t *testing.T) {
	s := &fakeSender{connected: true, failSend: true}
	r := NewRegistry(s, nil)

	r.Subscribe("abc123", NewListener(noop))

	if got := r.Count("abc123"); got != 1 {
		t.Errorf("Count = %d, want 1", got)
	}
	stats := r.Stats()
	if stats.SendErrors != 1 || stats.SubscribesSent != 0 {
		t.Errorf("stats = %+v, want one send error and no subscribes", stats)
	}
}

func TestRegistry_NilListener(t *testing.T) {
	r, s := newConnected()

	r.Subscribe("abc123", nil)

	if got := r.Count("abc123"); got != 0 {
		t.Errorf("Count = %d, want 0", got)
	}
	if got := len(s.sent()); got != 0 {
		t.Errorf("frames sent = %d, want 0", got)
	}
}

func TestRegistry_Stats(t *testing.T) {
	r, _ := newConnected()
	cb := NewListener(noop)

	r.Subscribe("a", cb)
	r.Subscribe("b", cb)
	r.Subscribe("b", NewListener(noop))
	r.Unsubscribe("a", cb)

	stats := r.Stats()
	if stats.Topics != 1 {
		t.Errorf("Topics = %d, want 1", stats.Topics)
	}
	if stats.Listeners != 2 {
		t.Errorf("Listeners = %d, want 2", stats.Listeners)
	}
	if stats.SubscribesSent != 2 {
		t.Errorf("SubscribesSent = %d, want 2", stats.SubscribesSent)
	}
	if stats.UnsubscribesSent != 1 {
		t.Errorf("UnsubscribesSent = %d, want 1", stats.UnsubscribesSent)
	}
}

func TestListener_Handle(t *testing.T) {
	var got string
	l := NewListener(func(ev model.ClickEvent) { got = ev.Topic })
	l.Handle(model.ClickEvent{Topic: "abc123"})
	if got != "abc123" {
		t.Errorf("got %q, want abc123", got)
	}

	var nilListener *Listener
	nilListener.Handle(model.ClickEvent{})
	NewListener(nil).Handle(model.ClickEvent{})
}
