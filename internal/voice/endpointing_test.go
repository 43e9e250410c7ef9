package voice

import (
	"testing"
	"time"
)

func TestEndpointHintTerminalCommits(t *testing.T) {
	hint, ok := BuildEndpointHint("haan mujhe do bhk chahiye.", 0.9, 2*time.Second)
	if !ok {
		t.Fatal("BuildEndpointHint() ok = false")
	}
	if hint.Reason != "terminal" {
		t.Fatalf("Reason = %q, want terminal", hint.Reason)
	}
	if !hint.ShouldCommit {
		t.Fatal("ShouldCommit = false, want true")
	}
	if hint.Hold > 200*time.Millisecond {
		t.Fatalf("Hold = %v, want short hold for terminal cue", hint.Hold)
	}
}

func TestEndpointHintContinuationHoldsLonger(t *testing.T) {
	hint, ok := BuildEndpointHint("mujhe flat chahiye aur", 0.9, 2*time.Second)
	if !ok {
		t.Fatal("BuildEndpointHint() ok = false")
	}
	if hint.Reason != "continuation" {
		t.Fatalf("Reason = %q, want continuation", hint.Reason)
	}
	if hint.ShouldCommit {
		t.Fatal("ShouldCommit = true, want false")
	}
	if hint.Hold < 400*time.Millisecond {
		t.Fatalf("Hold = %v, want long hold for continuation cue", hint.Hold)
	}
}

func TestEndpointHintLowConfidenceNeverCommits(t *testing.T) {
	hint, ok := BuildEndpointHint("theek hai bas.", 0.3, 2*time.Second)
	if !ok {
		t.Fatal("BuildEndpointHint() ok = false")
	}
	if hint.ShouldCommit {
		t.Fatal("ShouldCommit = true for low confidence, want false")
	}
	if hint.Reason != "low_confidence" {
		t.Fatalf("Reason = %q, want low_confidence", hint.Reason)
	}
}

func TestEndpointHintEmptyPartial(t *testing.T) {
	if _, ok := BuildEndpointHint("   ", 0.9, time.Second); ok {
		t.Fatal("BuildEndpointHint() ok = true for blank partial, want false")
	}
}

func TestEndpointHintDevanagariDanda(t *testing.T) {
	hint, ok := BuildEndpointHint("मुझे दो बीएचके चाहिए।", 0.9, 2*time.Second)
	if !ok {
		t.Fatal("BuildEndpointHint() ok = false")
	}
	if hint.Reason != "terminal" {
		t.Fatalf("Reason = %q, want terminal", hint.Reason)
	}
}
