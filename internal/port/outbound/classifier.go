// Package outbound declares the ports the domain needs from the outside
// world. Adapters under internal/adapter/outbound implement them.
package outbound

import "context"

// Classification task tags understood by provider adapters.
const (
	TaskPII             = "pii"
	TaskToxicity        = "toxicity"
	TaskCode            = "code"
	TaskPromptInjection = "prompt_injection"
	TaskModeration      = "moderation"
)

// Classification is the normalized verdict of a remote content classifier.
type Classification struct {
	// Flagged is the provider's own verdict for the task.
	Flagged bool
	// Confidence is normalized to [0,1].
	Confidence float64
	// Categories lists the provider's category labels, if any.
	Categories []string
	// Detail carries provider-specific diagnostics, opaque to callers.
	Detail map[string]any
}

// Classifier is the port model-assisted guardrails call through. Every
// call goes through the resilience layer; implementations only translate
// the wire protocol.
type Classifier interface {
	// Classify runs one task against content.
	Classify(ctx context.Context, task, content string) (*Classification, error)

	// Ping verifies the provider is reachable. Used by the config
	// loader's runtime validation level (warn only).
	Ping(ctx context.Context) error
}
