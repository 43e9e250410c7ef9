package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raaestate/leadvoice/internal/reliability"
)

type SarvamConfig struct {
	APIKey     string
	WSBaseURL  string
	STTModelID string
	TTSModelID string
}

// SarvamProvider streams speech recognition and synthesis over the Sarvam
// realtime websocket API. One provider serves both directions.
type SarvamProvider struct {
	cfg SarvamConfig
}

func NewSarvamProvider(cfg SarvamConfig) *SarvamProvider {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.sarvam.ai"
	}
	if strings.TrimSpace(cfg.STTModelID) == "" {
		cfg.STTModelID = "saaras:v3"
	}
	if strings.TrimSpace(cfg.TTSModelID) == "" {
		cfg.TTSModelID = "bulbul:v2"
	}
	return &SarvamProvider{cfg: cfg}
}

func (p *SarvamProvider) StartSession(ctx context.Context, _ string, language string) (STTSession, <-chan STTEvent, error) {
	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/speech-to-text/ws")
	if err != nil {
		return nil, nil, err
	}
	q := u.Query()
	q.Set("model", p.cfg.STTModelID)
	if strings.TrimSpace(language) != "" {
		q.Set("language-code", language)
	}
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("api-subscription-key", p.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, nil, fmt.Errorf("dial stt websocket: %w", err)
	}

	events := make(chan STTEvent, 256)
	s := &sarvamSTTSession{conn: conn, events: events}
	go s.readLoop()
	return s, events, nil
}

func (p *SarvamProvider) StartStream(ctx context.Context, speaker, modelID string, settings TTSSettings) (TTSStream, error) {
	if strings.TrimSpace(speaker) == "" {
		return nil, fmt.Errorf("speaker is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = p.cfg.TTSModelID
	}
	language := strings.TrimSpace(settings.Language)
	if language == "" {
		language = "hi-IN"
	}

	pace := clampFloat(settings.Pace, 0.5, 2.0)
	if settings.Pace <= 0 {
		pace = 1.0
	}
	pitch := clampFloat(settings.Pitch, -0.75, 0.75)
	if settings.Pitch == 0 {
		pitch = 0
	}
	loudness := clampFloat(settings.Loudness, 0.3, 3.0)
	if settings.Loudness <= 0 {
		loudness = 1.0
	}

	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/text-to-speech/ws")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model", modelID)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("api-subscription-key", p.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial tts websocket: %w", err)
	}

	s := &sarvamTTSStream{conn: conn, events: make(chan TTSEvent, 512)}
	go s.readLoop()
	// Configure the stream before any text is sent.
	if err := s.writeJSON(map[string]any{
		"type": "config",
		"data": map[string]any{
			"target_language_code": language,
			"speaker":              speaker,
			"pace":                 pace,
			"pitch":                pitch,
			"loudness":             loudness,
			"output_audio_codec":   "wav",
			"speech_sample_rate":   16000,
		},
	}); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("send tts config: %w", err)
	}
	return s, nil
}

type sarvamSTTSession struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan STTEvent
}

func (s *sarvamSTTSession) SendAudioChunk(_ context.Context, audioBase64 string, sampleRate int, commit bool) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if audioBase64 != "" {
		payload := map[string]any{
			"audio": map[string]any{
				"data":        audioBase64,
				"encoding":    "audio/wav",
				"sample_rate": sampleRate,
			},
		}
		if err := s.conn.WriteJSON(payload); err != nil {
			return err
		}
	}
	if commit {
		return s.conn.WriteJSON(map[string]any{"event": "flush"})
	}
	return nil
}

// readLoop is the only goroutine that sends on or closes events. Close only
// shuts the socket; the resulting read error ends the loop and the channel.
func (s *sarvamSTTSession) readLoop() {
	defer close(s.events)
	defer s.Close()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		msgType := asString(raw["type"])
		payload, _ := raw["data"].(map[string]any)
		switch msgType {
		case "partial_transcript":
			s.events <- STTEvent{
				Type:       STTEventPartial,
				Text:       asString(payload["transcript"]),
				Confidence: asFloat(payload["confidence"]),
				Language:   asString(payload["language_code"]),
				Timestamp:  time.Now().UnixMilli(),
			}
		case "data", "transcript":
			s.events <- STTEvent{
				Type:       STTEventCommitted,
				Text:       asString(payload["transcript"]),
				Confidence: asFloat(payload["confidence"]),
				Language:   asString(payload["language_code"]),
				Timestamp:  time.Now().UnixMilli(),
			}
		case "connected", "events", "":
			// control traffic
		case "error":
			code := asString(payload["code"])
			if code == "" {
				code = "error"
			}
			s.events <- STTEvent{
				Type:      STTEventError,
				Code:      code,
				Detail:    asString(payload["message"]),
				Retryable: reliability.IsRetryableProviderCode(code),
				Timestamp: time.Now().UnixMilli(),
			}
		default:
			s.events <- STTEvent{
				Type:      STTEventError,
				Code:      msgType,
				Detail:    asString(raw["message"]),
				Retryable: reliability.IsRetryableProviderCode(msgType),
				Timestamp: time.Now().UnixMilli(),
			}
		}
	}
}

func (s *sarvamSTTSession) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		retErr = s.conn.Close()
	})
	return retErr
}

type sarvamTTSStream struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan TTSEvent
}

func (s *sarvamTTSStream) SendText(_ context.Context, text string, flush bool) error {
	if err := s.writeJSON(map[string]any{
		"type": "text",
		"data": map[string]any{"text": text},
	}); err != nil {
		return err
	}
	if flush {
		return s.writeJSON(map[string]any{"type": "flush"})
	}
	return nil
}

func (s *sarvamTTSStream) CloseInput(_ context.Context) error {
	return s.writeJSON(map[string]any{"type": "flush"})
}

func (s *sarvamTTSStream) Events() <-chan TTSEvent { return s.events }

func (s *sarvamTTSStream) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		retErr = s.conn.Close()
	})
	return retErr
}

func (s *sarvamTTSStream) writeJSON(payload map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

// readLoop owns events the same way the STT loop does: Close shuts the
// socket and this goroutine drains out and closes the channel.
func (s *sarvamTTSStream) readLoop() {
	defer close(s.events)
	defer s.Close()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		payload, _ := raw["data"].(map[string]any)
		switch asString(raw["type"]) {
		case "audio":
			if audio := asString(payload["audio"]); audio != "" {
				s.events <- TTSEvent{Type: TTSEventAudio, AudioBase64: audio, Format: "wav"}
			}
		case "flush_complete", "final":
			s.events <- TTSEvent{Type: TTSEventFinal}
		case "error":
			code := asString(payload["code"])
			if code == "" {
				code = "error"
			}
			s.events <- TTSEvent{
				Type:      TTSEventError,
				Code:      code,
				Detail:    asString(payload["message"]),
				Retryable: reliability.IsRetryableProviderCode(code),
			}
		}
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case json.Number:
		f, _ := t.Float64()
		return f
	default:
		return 0
	}
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
