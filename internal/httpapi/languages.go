package httpapi

import "net/http"

type voiceSummary struct {
	VoiceID string            `json:"voice_id"`
	Name    string            `json:"name"`
	Labels  map[string]string `json:"labels,omitempty"`
}

type languageSummary struct {
	Code         string         `json:"code"`
	Name         string         `json:"name"`
	NativeName   string         `json:"native_name"`
	DefaultVoice string         `json:"default_voice"`
	Voices       []voiceSummary `json:"voices"`
}

type listLanguagesResponse struct {
	DefaultLanguage string            `json:"default_language"`
	DefaultVoice    string            `json:"default_voice"`
	Languages       []languageSummary `json:"languages"`
}

// sarvamVoices is the shared speaker roster; every supported language can use
// any of them, so the catalog repeats it per language entry.
var sarvamVoices = []voiceSummary{
	{VoiceID: "anushka", Name: "Anushka (warm, conversational)", Labels: map[string]string{"gender": "female"}},
	{VoiceID: "manisha", Name: "Manisha (clear, professional)", Labels: map[string]string{"gender": "female"}},
	{VoiceID: "vidya", Name: "Vidya (calm, measured)", Labels: map[string]string{"gender": "female"}},
	{VoiceID: "arya", Name: "Arya (bright, energetic)", Labels: map[string]string{"gender": "female"}},
	{VoiceID: "abhilash", Name: "Abhilash (steady, formal)", Labels: map[string]string{"gender": "male"}},
	{VoiceID: "karun", Name: "Karun (deep, reassuring)", Labels: map[string]string{"gender": "male"}},
	{VoiceID: "hitesh", Name: "Hitesh (friendly, upbeat)", Labels: map[string]string{"gender": "male"}},
}

var supportedLanguages = []languageSummary{
	{Code: "hi-IN", Name: "Hindi", NativeName: "हिन्दी", DefaultVoice: "anushka", Voices: sarvamVoices},
	{Code: "en-IN", Name: "English (India)", NativeName: "English", DefaultVoice: "anushka", Voices: sarvamVoices},
	{Code: "bn-IN", Name: "Bengali", NativeName: "বাংলা", DefaultVoice: "manisha", Voices: sarvamVoices},
	{Code: "ta-IN", Name: "Tamil", NativeName: "தமிழ்", DefaultVoice: "vidya", Voices: sarvamVoices},
	{Code: "te-IN", Name: "Telugu", NativeName: "తెలుగు", DefaultVoice: "vidya", Voices: sarvamVoices},
	{Code: "kn-IN", Name: "Kannada", NativeName: "ಕನ್ನಡ", DefaultVoice: "manisha", Voices: sarvamVoices},
	{Code: "ml-IN", Name: "Malayalam", NativeName: "മലയാളം", DefaultVoice: "manisha", Voices: sarvamVoices},
	{Code: "mr-IN", Name: "Marathi", NativeName: "मराठी", DefaultVoice: "anushka", Voices: sarvamVoices},
	{Code: "gu-IN", Name: "Gujarati", NativeName: "ગુજરાતી", DefaultVoice: "anushka", Voices: sarvamVoices},
	{Code: "pa-IN", Name: "Punjabi", NativeName: "ਪੰਜਾਬੀ", DefaultVoice: "abhilash", Voices: sarvamVoices},
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, listLanguagesResponse{
		DefaultLanguage: s.cfg.DefaultLanguage,
		DefaultVoice:    s.cfg.DefaultVoice,
		Languages:       supportedLanguages,
	})
}
