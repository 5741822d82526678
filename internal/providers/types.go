package providers

import "context"

// Provider is the generative-text backend. Calls are stateless: the full
// conversation context travels with every request.
type Provider interface {
	// Generate returns the assistant reply for req.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// DefaultModel returns the provider's default model name.
	DefaultModel() string

	// Name returns the provider identifier (e.g. "gemini", "openai").
	Name() string
}

// Roles used in Message.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GenerateRequest is one reply-generation call.
type GenerateRequest struct {
	System  string    // system instruction
	History []Message // strictly alternating, oldest first, starting with a user turn
	Message string    // the customer's live message
}

// Message is one prior turn of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
