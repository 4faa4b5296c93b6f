package stream

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/satindergrewal/bytebeat/internal/audio"
)

// runToEnd feeds frames through b and returns once b has released every
// listener.
func runToEnd(b *Broadcaster, frames ...[]int16) {
	source := make(chan []int16, len(frames))
	for _, f := range frames {
		source <- f
	}
	close(source)
	b.Run(context.Background(), source)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	l1 := b.Subscribe()
	l2 := b.Subscribe()
	if b.ListenerCount() != 2 {
		t.Errorf("ListenerCount = %d, want 2", b.ListenerCount())
	}

	b.Unsubscribe(l1)
	b.Unsubscribe(l1)
	if b.ListenerCount() != 1 {
		t.Errorf("ListenerCount after unsubscribe = %d, want 1", b.ListenerCount())
	}
	select {
	case <-l1.Done():
	default:
		t.Error("unsubscribed listener should be done")
	}
	b.Unsubscribe(l2)
}

func TestFramesAreNumbered(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe()
	runToEnd(b, []int16{1}, []int16{2}, []int16{3})

	for want := int64(0); want < 3; want++ {
		f := <-l.C
		if f.Seq != want {
			t.Errorf("Seq = %d, want %d", f.Seq, want)
		}
		if f.Samples[0] != int16(want+1) {
			t.Errorf("frame %d sample = %d, want %d", want, f.Samples[0], want+1)
		}
	}
}

func TestSessionEndReleasesListeners(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe()
	runToEnd(b, []int16{7})

	if !b.Ended() {
		t.Error("Ended = false after source closed")
	}
	if b.ListenerCount() != 0 {
		t.Errorf("ListenerCount = %d, want 0", b.ListenerCount())
	}
	select {
	case <-l.Done():
	default:
		t.Fatal("listener not released at session end")
	}
	if len(l.C) != 1 {
		t.Errorf("buffered frames = %d, want 1 kept after end", len(l.C))
	}

	late := b.Subscribe()
	select {
	case <-late.Done():
	default:
		t.Error("subscriber after session end should start released")
	}
	b.Unsubscribe(l)
}

func TestSlowListenerDropsFrames(t *testing.T) {
	b := NewBroadcaster()
	slow := b.Subscribe()
	frames := make([][]int16, listenerBuffer+10)
	for i := range frames {
		frames[i] = []int16{int16(i)}
	}
	runToEnd(b, frames...)

	total, delivered, dropped := b.Stats()
	if total != int64(len(frames)) {
		t.Errorf("frames = %d, want %d", total, len(frames))
	}
	if delivered != listenerBuffer || dropped != 10 {
		t.Errorf("delivered, dropped = %d, %d, want %d, 10", delivered, dropped, listenerBuffer)
	}
	if slow.Dropped() != 10 {
		t.Errorf("listener Dropped = %d, want 10", slow.Dropped())
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx, make(chan []int16))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancel")
	}
	select {
	case <-l.Done():
	default:
		t.Error("listener not released after cancel")
	}
}

func TestPumpDrainsThenStops(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe()
	runToEnd(b, []int16{1, -1}, []int16{32767, -32768})

	var buf bytes.Buffer
	if err := pump(context.Background(), l, pcmWriter(&buf)); err != nil {
		t.Fatalf("pump: %v", err)
	}
	got := audio.BytesToSamples(buf.Bytes())
	want := []int16{1, -1, 32767, -32768}
	if len(got) != len(want) {
		t.Fatalf("pumped %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPumpStopsOnWriteError(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe()
	runToEnd(b, []int16{1}, []int16{2}, []int16{3})

	boom := errors.New("client gone")
	calls := 0
	err := pump(context.Background(), l, func(Frame) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("pump err = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("write called %d times, want 1", calls)
	}
}

func TestPumpStopsOnContextCancel(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pump(ctx, l, func(Frame) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("pump err = %v, want context.Canceled", err)
	}
	b.Unsubscribe(l)
}
