package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raaestate/leadvoice/internal/relay"
)

// playback paces queued PCM out to the room in real time. Flush drops
// everything queued, which is how barge-in cuts the agent off mid-sentence.
type playback struct {
	room relay.AudioRoom

	mu      sync.Mutex
	queue   [][]int16
	carry   []int16
	pending int

	speaking atomic.Bool
	wake     chan struct{}
}

func newPlayback(room relay.AudioRoom) *playback {
	return &playback{
		room: room,
		wake: make(chan struct{}, 1),
	}
}

// Enqueue splits pcm (room sample rate) into frames and queues them.
func (p *playback) Enqueue(pcm []int16) {
	if len(pcm) == 0 {
		return
	}
	p.mu.Lock()
	buf := append(p.carry, pcm...)
	for len(buf) >= relay.FrameSamples {
		frame := make([]int16, relay.FrameSamples)
		copy(frame, buf[:relay.FrameSamples])
		p.queue = append(p.queue, frame)
		p.pending++
		buf = buf[relay.FrameSamples:]
	}
	p.carry = append(p.carry[:0], buf...)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// FlushTail pads and queues any carried partial frame. Call at end of turn.
func (p *playback) FlushTail() {
	p.mu.Lock()
	if len(p.carry) > 0 {
		frame := make([]int16, relay.FrameSamples)
		copy(frame, p.carry)
		p.queue = append(p.queue, frame)
		p.pending++
		p.carry = p.carry[:0]
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Flush drops all queued audio immediately.
func (p *playback) Flush() {
	p.mu.Lock()
	p.queue = nil
	p.carry = p.carry[:0]
	p.pending = 0
	p.mu.Unlock()
	p.speaking.Store(false)
}

func (p *playback) Speaking() bool { return p.speaking.Load() }

// Idle reports whether nothing is queued or carried.
func (p *playback) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending == 0 && len(p.carry) == 0
}

// Run writes one frame per tick until ctx is done.
func (p *playback) Run(ctx context.Context) {
	ticker := time.NewTicker(relay.FrameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-ticker.C:
		}
		for {
			p.mu.Lock()
			if len(p.queue) == 0 {
				p.mu.Unlock()
				p.speaking.Store(false)
				break
			}
			frame := p.queue[0]
			p.queue = p.queue[1:]
			p.pending--
			p.mu.Unlock()

			p.speaking.Store(true)
			if err := p.room.WriteFrame(frame); err != nil {
				return
			}
			// One frame per tick keeps output at real-time pace.
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}
