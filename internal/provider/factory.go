package provider

// Credentials holds the per-vendor secrets and endpoints needed to build a
// Registry. Empty fields simply leave that factory unregistered.
type Credentials struct {
	AnthropicAPIKey  string
	AnthropicBaseURL string

	CodexAPIKey  string
	CodexBaseURL string

	GeminiAPIKey  string
	GeminiBaseURL string
}

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultCodexBaseURL     = "https://api.openai.com"
	defaultGeminiBaseURL    = "https://generativelanguage.googleapis.com"
)

// NewRegistryFromCredentials builds a Registry with one factory per vendor
// for which credentials are present.
func NewRegistryFromCredentials(creds Credentials) *Registry {
	r := NewRegistry()

	if creds.AnthropicAPIKey != "" {
		r.RegisterFactory("anthropic", NewAnthropicFactory(creds.AnthropicAPIKey, orDefault(creds.AnthropicBaseURL, defaultAnthropicBaseURL)))
	}
	if creds.CodexAPIKey != "" {
		r.RegisterFactory("codex", NewCodexFactory(creds.CodexAPIKey, orDefault(creds.CodexBaseURL, defaultCodexBaseURL)))
	}
	if creds.GeminiAPIKey != "" {
		r.RegisterFactory("gemini", NewGeminiFactory(creds.GeminiAPIKey, orDefault(creds.GeminiBaseURL, defaultGeminiBaseURL)))
	}

	return r
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
