package agent

import "context"

// AIClient is the text-generation collaborator. The pipeline owns prompt
// construction and stage sequencing; model selection and transport live
// behind this interface.
type AIClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
