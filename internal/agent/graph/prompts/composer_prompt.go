package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
)

//go:embed template/composer_prompt.txt
var composerSystemPrompt string

// RenderComposerSystem renders the answer-composition system prompt from the
// gated recommendation and triggers prompt callbacks.
func RenderComposerSystem(ctx context.Context, cfg model.ComposerPromptConfig, rec model.Recommendation) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(composerSystemPrompt),
	)
	vars := map[string]any{
		"AdvisoryName": cfg.AdvisoryName,
		"Region":       cfg.Region,
		"Action":       rec.Action,
		"Confidence":   rec.Confidence,
		"Rationale":    rec.Rationale,
		"Attribution":  rec.Attribution,
		"LocalLabel":   model.AttributionLocal,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("composer prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("composer prompt render: empty result")
	}
	return msgs[0].Content, nil
}
