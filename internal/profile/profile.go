package profile

import "strings"

// Profile is the behavior configuration for one voice agent, fetched from an
// N8N workflow and cached by the front door.
type Profile struct {
	AgentID                string   `json:"agent_id"`
	Name                   string   `json:"name"`
	Language               string   `json:"language"`
	Voice                  string   `json:"voice"`
	SystemPrompt           string   `json:"system_prompt"`
	Greeting               string   `json:"greeting"`
	QualificationQuestions []string `json:"qualification_questions,omitempty"`
	TransferKeywords       []string `json:"transfer_keywords,omitempty"`
	FallbackMessage        string   `json:"fallback_message"`
	Source                 string   `json:"source"`
}

const (
	SourceN8N     = "n8n"
	SourceDefault = "default"
)

// DefaultProfile is what a session runs with when the N8N workflow is down
// or has no entry for the agent. The call must still work.
func DefaultProfile(agentID, language, voice string) Profile {
	if strings.TrimSpace(language) == "" {
		language = "hi-IN"
	}
	if strings.TrimSpace(voice) == "" {
		voice = "arya"
	}
	return Profile{
		AgentID:  agentID,
		Name:     "Property Assistant",
		Language: language,
		Voice:    voice,
		SystemPrompt: "You are a friendly real-estate voice assistant for Indian home buyers. " +
			"Keep answers short and conversational, ask one question at a time, and collect the caller's " +
			"name, budget, preferred locality, and property type. Reply in the caller's language.",
		Greeting:        "Namaste! Main aapki property search mein madad kar sakti hoon. Aap kya dhoondh rahe hain?",
		FallbackMessage: "Maaf kijiye, mujhe samajhne mein dikkat ho rahi hai. Kya aap dobara keh sakte hain?",
		QualificationQuestions: []string{
			"Aapka budget kya hai?",
			"Kaunsi locality prefer karenge?",
			"Kitne BHK ka flat chahiye?",
		},
		TransferKeywords: []string{"human", "agent se baat", "manager"},
		Source:           SourceDefault,
	}
}

// Normalize fills gaps in a fetched profile from the defaults so the worker
// never sees an empty prompt or voice.
func (p Profile) Normalize(defaults Profile) Profile {
	if strings.TrimSpace(p.AgentID) == "" {
		p.AgentID = defaults.AgentID
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = defaults.Name
	}
	if strings.TrimSpace(p.Language) == "" {
		p.Language = defaults.Language
	}
	if strings.TrimSpace(p.Voice) == "" {
		p.Voice = defaults.Voice
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		p.SystemPrompt = defaults.SystemPrompt
	}
	if strings.TrimSpace(p.Greeting) == "" {
		p.Greeting = defaults.Greeting
	}
	if strings.TrimSpace(p.FallbackMessage) == "" {
		p.FallbackMessage = defaults.FallbackMessage
	}
	return p
}
