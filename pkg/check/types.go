// Package check defines the wire types of the /v1/check HTTP surface.
// They are kept outside internal/ so clients can import them.
package check

// Request is the body of POST /v1/check.
type Request struct {
	// Stage is "input" (a user prompt) or "output" (a model response).
	Stage string `json:"stage"`

	// Content is the text to inspect.
	Content string `json:"content"`

	// ConversationID binds the call to a conversation opened via
	// POST /v1/conversations. Empty means stateless.
	ConversationID string `json:"conversation_id,omitempty"`

	// Preset checks against a named preset instead of the active
	// pipeline. The active pipeline is unaffected.
	Preset string `json:"preset,omitempty"`

	// Metadata is passed through to detectors (role, language hints).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Response is the verdict of one check call.
type Response struct {
	Blocked    bool             `json:"blocked"`
	Confidence float64          `json:"confidence"`
	Reasons    []string         `json:"reasons"`
	Warnings   []string         `json:"warnings,omitempty"`
	Indicators []string         `json:"indicators,omitempty"`
	Details    []DetectorDetail `json:"details,omitempty"`
}

// DetectorDetail is one detector's contribution to a verdict.
type DetectorDetail struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Blocked    bool     `json:"blocked"`
	Confidence float64  `json:"confidence"`
	Risk       string   `json:"risk,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Indicators []string `json:"indicators,omitempty"`
	LatencyMs  float64  `json:"latency_ms"`
}

// Rule describes one configured guardrail in GET /v1/rules.
type Rule struct {
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Stage     string  `json:"stage"`
	Action    string  `json:"action"`
	OnError   string  `json:"on_error"`
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"confidence_threshold"`
}

// RulesResponse is the body of GET /v1/rules.
type RulesResponse struct {
	Pipeline string `json:"pipeline"`
	Version  string `json:"version,omitempty"`
	Input    []Rule `json:"input"`
	Output   []Rule `json:"output"`
}

// OpenConversationRequest is the body of POST /v1/conversations.
type OpenConversationRequest struct {
	// Kind defaults to "human_ai".
	Kind string `json:"kind,omitempty"`
}

// OpenConversationResponse returns the new conversation's identity.
type OpenConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	Kind           string `json:"kind"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
