package relay

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hraban/opus"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	// All room audio runs at the WebRTC Opus native rate, mono.
	SampleRate    = 48000
	FrameDuration = 20 * time.Millisecond
	FrameSamples  = SampleRate / 50
)

// AudioRoom is the media surface a voice pipeline needs from a room: caller
// PCM in, agent PCM out, and a signal when the caller is gone.
type AudioRoom interface {
	Frames() <-chan []int16
	WriteFrame(pcm []int16) error
	CallerLeft() <-chan struct{}
	Close() error
}

type RoomConfig struct {
	URL       string
	APIKey    string
	APISecret string
	RoomName  string
	Identity  string
	TrackName string
}

// Room joins a LiveKit room as the agent participant, decodes the first
// subscribed audio track to PCM and publishes an Opus track for replies.
type Room struct {
	room  *lksdk.Room
	track *lksdk.LocalSampleTrack

	enc     *opus.Encoder
	encBuf  []byte
	writeMu sync.Mutex

	frames     chan []int16
	callerLeft chan struct{}
	leftOnce   sync.Once
	closeOnce  sync.Once

	subscribeOnce sync.Once
}

func Connect(cfg RoomConfig) (*Room, error) {
	enc, err := opus.NewEncoder(SampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}

	r := &Room{
		enc:        enc,
		encBuf:     make([]byte, 4000),
		frames:     make(chan []int16, 256),
		callerLeft: make(chan struct{}),
	}

	trackName := cfg.TrackName
	if trackName == "" {
		trackName = "agent-voice"
	}

	room, err := lksdk.ConnectToRoom(cfg.URL, lksdk.ConnectInfo{
		APIKey:              cfg.APIKey,
		APISecret:           cfg.APISecret,
		RoomName:            cfg.RoomName,
		ParticipantIdentity: cfg.Identity,
	}, &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: r.onTrackSubscribed,
		},
		OnParticipantDisconnected: func(_ *lksdk.RemoteParticipant) {
			r.signalCallerLeft()
		},
		OnDisconnected: func() {
			r.signalCallerLeft()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to room %s: %w", cfg.RoomName, err)
	}
	r.room = room

	track, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: SampleRate,
		Channels:  1,
	})
	if err != nil {
		room.Disconnect()
		return nil, fmt.Errorf("create local track: %w", err)
	}
	if _, err := room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name: trackName,
	}); err != nil {
		room.Disconnect()
		return nil, fmt.Errorf("publish track: %w", err)
	}
	r.track = track
	return r, nil
}

func (r *Room) Frames() <-chan []int16 { return r.frames }

func (r *Room) CallerLeft() <-chan struct{} { return r.callerLeft }

// WriteFrame encodes one 20ms PCM frame and writes it to the published track.
func (r *Room) WriteFrame(pcm []int16) error {
	if len(pcm) != FrameSamples {
		return fmt.Errorf("frame has %d samples, want %d", len(pcm), FrameSamples)
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	n, err := r.enc.Encode(pcm, r.encBuf)
	if err != nil {
		return fmt.Errorf("opus encode: %w", err)
	}
	data := make([]byte, n)
	copy(data, r.encBuf[:n])
	return r.track.WriteSample(media.Sample{Data: data, Duration: FrameDuration}, nil)
}

func (r *Room) Close() error {
	r.closeOnce.Do(func() {
		if r.room != nil {
			r.room.Disconnect()
		}
		r.signalCallerLeft()
	})
	return nil
}

func (r *Room) onTrackSubscribed(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	// Only the first audio track is decoded; a test room has one caller.
	r.subscribeOnce.Do(func() {
		log.Printf("subscribed to %s from %s", pub.SID(), rp.Identity())
		go r.readTrack(track)
	})
}

func (r *Room) readTrack(track *webrtc.TrackRemote) {
	dec, err := opus.NewDecoder(SampleRate, 1)
	if err != nil {
		log.Printf("create opus decoder: %v", err)
		return
	}
	pcm := make([]int16, FrameSamples*3)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.Decode(pkt.Payload, pcm)
		if err != nil {
			continue
		}
		frame := make([]int16, n)
		copy(frame, pcm[:n])
		select {
		case r.frames <- frame:
		default:
			// Pipeline fell behind; dropping is better than buffering stale audio.
		}
	}
}

func (r *Room) signalCallerLeft() {
	r.leftOnce.Do(func() {
		close(r.callerLeft)
	})
}
