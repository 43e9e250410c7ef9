package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/raaestate/leadvoice/internal/relay"
)

func TestPlaybackFramesAndTail(t *testing.T) {
	room := newFakeRoom()
	p := newPlayback(room)

	pcm := make([]int16, relay.FrameSamples+relay.FrameSamples/2)
	p.Enqueue(pcm)

	if p.pending != 1 {
		t.Fatalf("pending = %d, want 1 full frame", p.pending)
	}
	if len(p.carry) != relay.FrameSamples/2 {
		t.Fatalf("carry = %d samples, want %d", len(p.carry), relay.FrameSamples/2)
	}

	p.FlushTail()
	if p.pending != 2 {
		t.Fatalf("pending after FlushTail() = %d, want 2", p.pending)
	}
	if len(p.carry) != 0 {
		t.Fatalf("carry after FlushTail() = %d, want 0", len(p.carry))
	}
}

func TestPlaybackFlushDropsEverything(t *testing.T) {
	room := newFakeRoom()
	p := newPlayback(room)
	p.Enqueue(make([]int16, relay.FrameSamples*4))
	p.Flush()

	if !p.Idle() {
		t.Fatal("Idle() = false after Flush()")
	}
	if p.Speaking() {
		t.Fatal("Speaking() = true after Flush()")
	}
}

func TestPlaybackWritesAtPace(t *testing.T) {
	room := newFakeRoom()
	p := newPlayback(room)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Enqueue(make([]int16, relay.FrameSamples*3))
	waitFor(t, 2*time.Second, func() bool { return room.framesWritten() == 3 }, "frames not written")
	waitFor(t, 2*time.Second, p.Idle, "playback not idle after draining")
}
