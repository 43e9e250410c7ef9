package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raaestate/leadvoice/internal/audio"
	"github.com/raaestate/leadvoice/internal/calllog"
	"github.com/raaestate/leadvoice/internal/llm"
	"github.com/raaestate/leadvoice/internal/observability"
	"github.com/raaestate/leadvoice/internal/profile"
	"github.com/raaestate/leadvoice/internal/relay"
	"github.com/raaestate/leadvoice/internal/voice"
)

const (
	sttSampleRate = 16000
	// Caller audio is batched into ~200ms chunks before upload.
	sttChunkSamples = sttSampleRate / 5
	maxHistoryTurns = 24
	ttsModelID      = "bulbul:v2"
)

type Config struct {
	SessionID string
	RoomName  string
	AgentID   string
	Profile   profile.Profile
}

type Deps struct {
	Room    relay.AudioRoom
	STT     voice.STTProvider
	TTS     voice.TTSProvider
	Brain   llm.Completer
	Store   calllog.Store
	Leads   *profile.LeadNotifier
	Metrics *observability.Metrics
	Stages  *observability.StageWindow

	// OnTurn and OnInterrupt feed the session registry counters.
	OnTurn      func()
	OnInterrupt func()
	OnActivity  func()
}

// Pipeline runs one voice call: caller audio through STT, committed turns
// through the LLM, replies through TTS back into the room. It owns the
// provider sessions for the lifetime of the call.
type Pipeline struct {
	cfg  Config
	deps Deps

	history  []llm.Message
	playback *playback

	mu                sync.Mutex
	turnCancel        context.CancelFunc
	turnWG            sync.WaitGroup
	interruptionCount int
	turnCount         int
	endReason         string
	transferRequested bool
}

func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Room == nil || deps.STT == nil || deps.TTS == nil || deps.Brain == nil {
		return nil, fmt.Errorf("room, stt, tts and brain are all required")
	}
	if deps.Store == nil {
		deps.Store = calllog.NewInMemoryStore()
	}
	p := &Pipeline{
		cfg:      cfg,
		deps:     deps,
		playback: newPlayback(deps.Room),
	}
	p.history = append(p.history, llm.Message{Role: llm.RoleSystem, Content: cfg.Profile.SystemPrompt})
	return p, nil
}

// Run blocks until the caller leaves, ctx is cancelled, or the session fails
// to start. Provider hiccups inside a turn degrade to the fallback message
// rather than ending the call.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	startedAt := time.Now().UTC()

	sttSession, sttEvents, err := p.deps.STT.StartSession(ctx, p.cfg.SessionID, p.cfg.Profile.Language)
	if err != nil {
		return fmt.Errorf("start stt session: %w", err)
	}
	defer sttSession.Close()

	go p.playback.Run(ctx)
	go p.pumpCallerAudio(ctx, sttSession)

	if greeting := strings.TrimSpace(p.cfg.Profile.Greeting); greeting != "" {
		p.startTurn(ctx, "", greeting)
	}

	var commitTimer *time.Timer
	var commitTimerC <-chan time.Time
	utteranceStart := time.Time{}

	for {
		select {
		case <-ctx.Done():
			p.finish(ctx, startedAt, "shutdown")
			return ctx.Err()

		case <-p.deps.Room.CallerLeft():
			p.finish(ctx, startedAt, "caller_left")
			return nil

		case <-commitTimerC:
			commitTimerC = nil
			if err := sttSession.SendAudioChunk(ctx, "", sttSampleRate, true); err != nil {
				log.Printf("session %s: stt commit: %v", p.cfg.SessionID, err)
			}

		case evt, ok := <-sttEvents:
			if !ok {
				p.finish(ctx, startedAt, "stt_closed")
				return nil
			}
			switch evt.Type {
			case voice.STTEventPartial:
				text := strings.TrimSpace(evt.Text)
				if text == "" {
					continue
				}
				p.touch()
				if utteranceStart.IsZero() {
					utteranceStart = time.Now()
				}
				if p.playback.Speaking() {
					p.bargeIn()
				}
				if hint, ok := voice.BuildEndpointHint(text, evt.Confidence, time.Since(utteranceStart)); ok {
					if commitTimer != nil {
						commitTimer.Stop()
					}
					commitTimer = time.NewTimer(hint.Hold)
					commitTimerC = commitTimer.C
				}
			case voice.STTEventCommitted:
				if commitTimer != nil {
					commitTimer.Stop()
					commitTimerC = nil
				}
				utteranceStart = time.Time{}
				text := strings.TrimSpace(evt.Text)
				if text == "" {
					continue
				}
				p.touch()
				p.cancelActiveTurn("superseded")
				p.startTurn(ctx, text, "")
			case voice.STTEventError:
				p.recordProviderError("stt", evt.Code)
				if !evt.Retryable {
					p.finish(ctx, startedAt, "stt_failed")
					return fmt.Errorf("stt error %s: %s", evt.Code, evt.Detail)
				}
				log.Printf("session %s: transient stt error %s: %s", p.cfg.SessionID, evt.Code, evt.Detail)
			}
		}
	}
}

// pumpCallerAudio downsamples room frames and ships them to the recognizer.
func (p *Pipeline) pumpCallerAudio(ctx context.Context, stt voice.STTSession) {
	buf := make([]int16, 0, sttChunkSamples*2)
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-p.deps.Room.Frames():
			if !ok {
				return
			}
			buf = append(buf, audio.DownsampleBy3(frame)...)
			if len(buf) < sttChunkSamples {
				continue
			}
			wav, err := audio.EncodeWAVPCM16LE(audio.PCM16ToBytes(buf), sttSampleRate)
			if err != nil {
				buf = buf[:0]
				continue
			}
			chunk := base64.StdEncoding.EncodeToString(wav)
			buf = buf[:0]
			if err := stt.SendAudioChunk(ctx, chunk, sttSampleRate, false); err != nil {
				if ctx.Err() == nil {
					log.Printf("session %s: send audio chunk: %v", p.cfg.SessionID, err)
				}
				return
			}
		}
	}
}

func (p *Pipeline) bargeIn() {
	p.cancelActiveTurn("barge_in")
	p.playback.Flush()
	p.mu.Lock()
	p.interruptionCount++
	p.mu.Unlock()
	if p.deps.OnInterrupt != nil {
		p.deps.OnInterrupt()
	}
	if p.deps.Stages != nil {
		p.deps.Stages.ObserveIndicator("barge_in")
	}
	if p.deps.Metrics != nil {
		p.deps.Metrics.CallEvents.WithLabelValues("barge_in").Inc()
	}
}

func (p *Pipeline) cancelActiveTurn(reason string) {
	p.mu.Lock()
	cancel := p.turnCancel
	p.turnCancel = nil
	p.mu.Unlock()
	if cancel != nil {
		log.Printf("session %s: turn cancelled (%s)", p.cfg.SessionID, reason)
		cancel()
	}
	p.turnWG.Wait()
}

// startTurn launches an assistant turn. userText empty means a scripted
// line (greeting, fallback) spoken without consulting the LLM.
func (p *Pipeline) startTurn(ctx context.Context, userText, scripted string) {
	turnCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.turnCancel = cancel
	p.mu.Unlock()

	p.turnWG.Add(1)
	go func() {
		defer p.turnWG.Done()
		defer cancel()
		p.runTurn(turnCtx, userText, scripted)
	}()
}

func (p *Pipeline) runTurn(ctx context.Context, userText, scripted string) {
	turnStart := time.Now()
	turnID := uuid.NewString()

	if userText != "" {
		p.appendHistory(llm.Message{Role: llm.RoleUser, Content: userText})
		p.saveTurn("caller", userText)
		if p.matchesTransferKeyword(userText) {
			p.mu.Lock()
			p.transferRequested = true
			p.mu.Unlock()
		}
	}

	stream, err := p.deps.TTS.StartStream(ctx, p.cfg.Profile.Voice, ttsModelID, voice.TTSSettings{
		Language: p.cfg.Profile.Language,
	})
	if err != nil {
		p.recordProviderError("tts", "start_stream")
		log.Printf("session %s: start tts stream: %v", p.cfg.SessionID, err)
		return
	}
	defer stream.Close()

	ttsDone := make(chan struct{})
	go p.consumeTTS(ctx, stream, ttsDone)

	var reply string
	switch {
	case scripted != "":
		reply = scripted
		if err := stream.SendText(ctx, voice.SanitizeSpeechText(scripted), true); err != nil {
			log.Printf("session %s: tts send: %v", p.cfg.SessionID, err)
		}
	default:
		reply = p.generateReply(ctx, stream, turnID)
	}

	_ = stream.CloseInput(ctx)

	select {
	case <-ctx.Done():
		p.playback.Flush()
		return
	case <-ttsDone:
	}
	p.playback.FlushTail()

	if reply != "" {
		p.appendHistory(llm.Message{Role: llm.RoleAssistant, Content: reply})
		p.saveTurn("agent", reply)
	}

	p.mu.Lock()
	p.turnCount++
	p.mu.Unlock()
	if p.deps.OnTurn != nil {
		p.deps.OnTurn()
	}
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveTurnLatency(time.Since(turnStart))
		p.deps.Metrics.CallEvents.WithLabelValues("turn_completed").Inc()
	}
	if p.deps.Stages != nil {
		p.deps.Stages.Observe("turn_total", time.Since(turnStart))
	}
}

// generateReply streams the LLM answer into the TTS stream segment by
// segment. A retryable failure before any text was spoken is retried once;
// anything worse degrades to the profile's fallback message.
func (p *Pipeline) generateReply(ctx context.Context, stream voice.TTSStream, turnID string) string {
	llmStart := time.Now()
	messages := p.historySnapshot()

	var spoken bool
	speakSegments := func(segments []string) {
		for _, seg := range segments {
			seg = voice.SanitizeSpeechText(seg)
			if seg == "" {
				continue
			}
			if err := stream.SendText(ctx, seg, true); err != nil {
				log.Printf("session %s: tts send: %v", p.cfg.SessionID, err)
				return
			}
			spoken = true
		}
	}

	runStream := func() (string, error) {
		planner := voice.NewSegmentPlanner()
		firstDelta := true
		reply, err := p.deps.Brain.Stream(ctx, messages, func(delta string) error {
			if firstDelta {
				firstDelta = false
				if p.deps.Stages != nil {
					p.deps.Stages.Observe("commit_to_first_text", time.Since(llmStart))
				}
			}
			speakSegments(planner.Push(delta))
			return ctx.Err()
		})
		if err == nil {
			speakSegments(planner.Finalize())
		}
		return reply, err
	}

	reply, err := runStream()
	if err == nil {
		return reply
	}
	if ctx.Err() != nil {
		return reply
	}
	p.recordProviderError("llm", "stream_failed")
	log.Printf("session %s (turn %s): llm stream failed: %v", p.cfg.SessionID, turnID, err)

	if !spoken {
		// Retry once over the plain completion call; when the streaming path
		// itself is what broke, the one-shot request can still succeed.
		reply, err = p.deps.Brain.Complete(ctx, messages)
		if err == nil {
			planner := voice.NewSegmentPlanner()
			speakSegments(planner.Push(reply))
			speakSegments(planner.Finalize())
			return reply
		}
		if ctx.Err() != nil {
			return reply
		}
		p.recordProviderError("llm", "retry_failed")
		log.Printf("session %s (turn %s): llm retry failed: %v", p.cfg.SessionID, turnID, err)
		fallback := strings.TrimSpace(p.cfg.Profile.FallbackMessage)
		if fallback != "" {
			if err := stream.SendText(ctx, voice.SanitizeSpeechText(fallback), true); err == nil {
				return fallback
			}
		}
	}
	return reply
}

// consumeTTS moves synthesized audio into playback until the stream reports
// final or the turn is cancelled.
func (p *Pipeline) consumeTTS(ctx context.Context, stream voice.TTSStream, done chan<- struct{}) {
	defer close(done)
	gotFirst := false
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-stream.Events():
			if !ok {
				return
			}
			switch evt.Type {
			case voice.TTSEventAudio:
				pcm := p.decodeTTSAudio(evt)
				if len(pcm) == 0 {
					continue
				}
				if !gotFirst {
					gotFirst = true
					if p.deps.Metrics != nil {
						p.deps.Metrics.ObserveFirstAudioLatency(time.Since(start))
					}
					if p.deps.Stages != nil {
						p.deps.Stages.Observe("commit_to_first_audio", time.Since(start))
					}
				}
				p.playback.Enqueue(audio.UpsampleBy3(pcm))
			case voice.TTSEventFinal:
				return
			case voice.TTSEventError:
				p.recordProviderError("tts", evt.Code)
				if !evt.Retryable {
					return
				}
			}
		}
	}
}

// decodeTTSAudio turns a provider audio event into 16 kHz PCM samples.
func (p *Pipeline) decodeTTSAudio(evt voice.TTSEvent) []int16 {
	raw, err := base64.StdEncoding.DecodeString(evt.AudioBase64)
	if err != nil || len(raw) == 0 {
		return nil
	}
	if evt.Format == "wav" {
		pcm, _, err := audio.DecodeWAVPCM16LE(raw)
		if err != nil {
			return nil
		}
		return audio.BytesToPCM16(pcm)
	}
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}
	return audio.BytesToPCM16(raw)
}

func (p *Pipeline) finish(ctx context.Context, startedAt time.Time, reason string) {
	p.cancelActiveTurn(reason)
	p.playback.Flush()

	p.mu.Lock()
	p.endReason = reason
	turns := p.turnCount
	interruptions := p.interruptionCount
	transfer := p.transferRequested
	p.mu.Unlock()

	log.Printf("session %s ended (%s): %d turns, %d interruptions", p.cfg.SessionID, reason, turns, interruptions)
	if p.deps.Metrics != nil {
		p.deps.Metrics.CallEvents.WithLabelValues("session_ended").Inc()
	}

	if p.deps.Leads == nil || !p.deps.Leads.Enabled() {
		return
	}

	// Lead delivery must survive a cancelled session context.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	transcript := ""
	if turnsLog, err := p.deps.Store.Transcript(notifyCtx, p.cfg.RoomName, 200); err == nil {
		var b strings.Builder
		for _, t := range turnsLog {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
		transcript = b.String()
	}

	lead := profile.Lead{
		AgentID:       p.cfg.AgentID,
		RoomName:      p.cfg.RoomName,
		SessionID:     p.cfg.SessionID,
		Transcript:    transcript,
		TurnCount:     turns,
		StartedAt:     startedAt,
		EndedAt:       time.Now().UTC(),
		EndReason:     reason,
		WantsCallback: transfer,
	}
	if err := p.deps.Leads.Notify(notifyCtx, lead); err != nil {
		log.Printf("session %s: lead capture failed: %v", p.cfg.SessionID, err)
	}
}

func (p *Pipeline) matchesTransferKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range p.cfg.Profile.TransferKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (p *Pipeline) appendHistory(msg llm.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, msg)
	if len(p.history) > maxHistoryTurns {
		// Keep the system prompt, drop the oldest exchange.
		trimmed := make([]llm.Message, 0, len(p.history)-2)
		trimmed = append(trimmed, p.history[0])
		trimmed = append(trimmed, p.history[3:]...)
		p.history = trimmed
	}
}

func (p *Pipeline) historySnapshot() []llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.Message, len(p.history))
	copy(out, p.history)
	return out
}

func (p *Pipeline) saveTurn(role, content string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.deps.Store.SaveTurn(ctx, calllog.Turn{
		ID:        uuid.NewString(),
		RoomName:  p.cfg.RoomName,
		AgentID:   p.cfg.AgentID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("session %s: save turn: %v", p.cfg.SessionID, err)
	}
}

func (p *Pipeline) touch() {
	if p.deps.OnActivity != nil {
		p.deps.OnActivity()
	}
}

func (p *Pipeline) recordProviderError(provider, code string) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.ProviderErrors.WithLabelValues(provider, code).Inc()
	}
}
