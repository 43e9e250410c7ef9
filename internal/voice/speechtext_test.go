package voice

import "testing"

func TestSanitizeSpeechTextStripsMarkup(t *testing.T) {
	in := "Here is **bold** text with `code` and a [link](https://example.com) plus https://raw.example.com/x"
	got := SanitizeSpeechText(in)
	want := "Here is bold text with and a link plus"
	if got != want {
		t.Fatalf("SanitizeSpeechText() = %q, want %q", got, want)
	}
}

func TestSanitizeSpeechTextKeepsDevanagari(t *testing.T) {
	in := "नमस्ते! मैं आपकी मदद कर सकती हूँ।"
	got := SanitizeSpeechText(in)
	if got != in {
		t.Fatalf("SanitizeSpeechText() = %q, want unchanged %q", got, in)
	}
}

func TestSanitizeSpeechTextDropsEmoji(t *testing.T) {
	got := SanitizeSpeechText("Great news 🎉 the flat is available")
	want := "Great news the flat is available"
	if got != want {
		t.Fatalf("SanitizeSpeechText() = %q, want %q", got, want)
	}
}

func TestSanitizeSpeechTextDropsEmojiCombiners(t *testing.T) {
	in := "Option 1️⃣ works \U0001f468‍\U0001f4bc ji"
	got := SanitizeSpeechText(in)
	want := "Option 1 works ji"
	if got != want {
		t.Fatalf("SanitizeSpeechText() = %q, want %q", got, want)
	}
}

func TestSanitizeSpeechTextEmpty(t *testing.T) {
	if got := SanitizeSpeechText("   \n\t "); got != "" {
		t.Fatalf("SanitizeSpeechText() = %q, want empty", got)
	}
}
