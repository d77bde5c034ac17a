package services

import "context"

// CompletionClient is an interface for the opaque text-completion service.
// Callers treat the output as untrusted text and degrade to their documented
// soft-failure path when it cannot be parsed.
type CompletionClient interface {
	// Complete returns the model output for a prompt.
	Complete(ctx context.Context, prompt string) (string, error)
}
