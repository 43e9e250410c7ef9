package voice

import (
	"regexp"
	"strings"
	"time"
)

// EndpointHint tells the pipeline how long to hold before treating the
// current partial transcript as a finished caller turn.
type EndpointHint struct {
	Reason       string
	Confidence   float64
	Hold         time.Duration
	ShouldCommit bool
}

const (
	endpointHoldMin           = 40 * time.Millisecond
	endpointHoldMax           = 900 * time.Millisecond
	endpointConfidenceUnknown = 0.55
	endpointConfidenceCommit  = 0.50
)

var (
	endpointContinuationTailRe = regexp.MustCompile(`(?i)\b(and|but|because|so|then|which|that|if|when|aur|lekin|kyunki|toh|magar)\s*$`)
	endpointContinuationHeadRe = regexp.MustCompile(`(?i)^(and|but|because|so|then|aur|lekin|toh)\b`)
	endpointTerminalTailRe     = regexp.MustCompile(`(?i)([.!?।]["']?\s*$|\b(done|thanks|thank you|that's all|bas|dhanyavad|shukriya)\s*$)`)
	endpointOpenTailRe         = regexp.MustCompile(`[,;:\-…]\s*$`)
)

// BuildEndpointHint scores a partial transcript for end-of-turn cues.
// Returns false when there is nothing to score yet.
func BuildEndpointHint(partial string, confidence float64, utteranceAge time.Duration) (EndpointHint, bool) {
	normalized := strings.TrimSpace(strings.ToLower(partial))
	if normalized == "" {
		return EndpointHint{}, false
	}

	if confidence <= 0 || confidence > 1 {
		confidence = endpointConfidenceUnknown
	}
	hint := EndpointHint{
		Reason:     "neutral",
		Confidence: maxFloat(0.58, confidence),
		Hold:       210 * time.Millisecond,
	}

	continuation := hasContinuationCue(normalized)
	terminal := hasTerminalCue(normalized)
	if continuation {
		hint.Reason = "continuation"
		hint.Confidence = maxFloat(hint.Confidence, 0.86)
		hint.Hold = 520 * time.Millisecond
	}
	if terminal {
		hint.Reason = "terminal"
		hint.Confidence = maxFloat(hint.Confidence, 0.82)
		hint.Hold = 90 * time.Millisecond
		hint.ShouldCommit = confidence >= endpointConfidenceCommit
	}

	if utteranceAge > 6*time.Second && !continuation {
		hint.Reason = "long_utterance"
		hint.Hold -= 70 * time.Millisecond
	}
	if utteranceAge > 0 && utteranceAge < 700*time.Millisecond {
		hint.Hold += 110 * time.Millisecond
		if hint.Reason == "neutral" {
			hint.Reason = "short_utterance"
		}
	}

	if confidence < 0.45 {
		hint.Hold += 140 * time.Millisecond
		hint.Confidence = minFloat(hint.Confidence, 0.62)
		hint.ShouldCommit = false
		if hint.Reason == "neutral" || hint.Reason == "terminal" {
			hint.Reason = "low_confidence"
		}
	}

	hint.Hold = clampDuration(hint.Hold, endpointHoldMin, endpointHoldMax)
	hint.Confidence = clampFloat(hint.Confidence, 0.05, 0.99)
	return hint, true
}

func hasContinuationCue(normalized string) bool {
	if normalized == "" {
		return false
	}
	return endpointOpenTailRe.MatchString(normalized) ||
		endpointContinuationHeadRe.MatchString(normalized) ||
		endpointContinuationTailRe.MatchString(normalized)
}

func hasTerminalCue(normalized string) bool {
	if normalized == "" {
		return false
	}
	if endpointOpenTailRe.MatchString(normalized) {
		return false
	}
	return endpointTerminalTailRe.MatchString(normalized)
}

func clampDuration(v, min, max time.Duration) time.Duration {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
