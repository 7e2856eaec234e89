package models

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation. While IsStreaming is true the
// content is replaced by each successive accumulated delta; at most one
// message is streaming at a time and it is always the last one.
// Announcement messages render like assistant output (errors, command
// results) but are never sent back to the provider.
type Message struct {
	Role         string `json:"role"`
	Content      string `json:"content"`
	IsStreaming  bool   `json:"is_streaming,omitempty"`
	Model        string `json:"model,omitempty"`
	Announcement bool   `json:"announcement,omitempty"`
}

// Session is one persisted conversation. ID is assigned once at
// creation and never changes across resumes.
type Session struct {
	ID        string
	Title     string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []Message
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return &out
}

type AIModel struct {
	ID          string
	Name        string
	Provider    string
	Description string
}

var Available = []AIModel{
	{ID: "google/gemini-3-flash-preview", Name: "Gemini 3 Flash Preview", Provider: "Google", Description: "Fast multimodal model"},
	{ID: "openai/gpt-4o-mini", Name: "GPT-4o Mini", Provider: "OpenAI", Description: "Small general purpose model"},
	{ID: "x-ai/grok-4.1-fast", Name: "Grok 4.1 Fast", Provider: "xAI", Description: "General purpose fast model"},
	{ID: "deepseek/deepseek-v3.2", Name: "DeepSeek V3.2", Provider: "DeepSeek", Description: "Reasoning model"},
	{ID: "z-ai/glm-4.7", Name: "GLM 4.7", Provider: "Z.ai", Description: "Multilingual model"},
	{ID: "minimax/minimax-m2.1", Name: "MiniMax M2.1", Provider: "MiniMax", Description: "Chat model"},
	{ID: "perplexity/sonar-pro", Name: "Perplexity Sonar Pro", Provider: "Perplexity", Description: "Search-optimized model"},
}

// DefaultModel is used whenever a configured model is not in the
// supported set.
func DefaultModel() AIModel { return Available[0] }

func FindModel(id string) (AIModel, int, bool) {
	for i, m := range Available {
		if m.ID == id {
			return m, i, true
		}
	}
	return AIModel{}, 0, false
}
