package nodes

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/AgriMind-advisor-poc/server/internal/agent/consent"
	"github.com/AgriMind-advisor-poc/server/internal/agent/graph/parsers"
	"github.com/AgriMind-advisor-poc/server/internal/agent/graph/prompts"
	"github.com/AgriMind-advisor-poc/server/internal/agent/handlers"
	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
	"github.com/AgriMind-advisor-poc/server/internal/agent/rules"
	"github.com/AgriMind-advisor-poc/server/internal/agent/toolcall"
	"github.com/AgriMind-advisor-poc/server/internal/agent/trace"
	errx "github.com/AgriMind-advisor-poc/server/internal/core/error"
	logx "github.com/AgriMind-advisor-poc/server/pkg/logger"
)

// Graph node names, one per orchestrator phase plus the two answer paths.
const (
	NodeContextLoader    = "ContextLoader"
	NodeIntentClassifier = "IntentClassifier"
	NodeIntentParser     = "IntentParser"
	NodeFactGatherer     = "FactGatherer"
	NodeRuleValidator    = "RuleValidator"
	NodeConsentGate      = "ConsentGate"
	NodeAnswerComposer   = "AnswerComposer"
	NodeEscalation       = "Escalation"
	NodeFinalizer        = "Finalizer"
)

// Deps bundles every collaborator the graph nodes need. Constructed once at
// build time and injected; nodes never read ambient globals.
type Deps struct {
	States     model.StateRepository
	Recorder   *trace.Recorder
	Dispatcher *toolcall.Dispatcher
	Servers    []model.ToolServer
	ToolsCfg   model.ToolsConfig

	Forecast    *handlers.ForecastHandler
	FieldStatus *handlers.FieldStatusHandler
	Validator   *rules.Validator

	Models            *ChatModels
	ClassifierCfg     *model.ClassifierModelConfig
	ComposerPromptCfg model.ComposerPromptConfig
	Conversation      model.ConversationConfig
	Advisory          model.AdvisoryConfig
	DefaultField      model.FieldProfile
}

// NewContextLoaderNode creates the LoadingContext node: restore the
// conversation snapshot, start the new turn, refresh server health, and
// build the classifier prompt messages.
func NewContextLoaderNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) ([]*schema.Message, error) {
		snapshot, err := deps.States.LoadSnapshot(ctx, in.ConversationID)
		if err != nil {
			// A missing/unreachable store degrades to a fresh conversation;
			// persistence failures are not configuration defects.
			logx.Warn().Err(err).Str("conversation_id", in.ConversationID).Msg("state snapshot unavailable, starting fresh")
			snapshot = model.State{ConversationID: in.ConversationID}
		}

		turnID := uuid.NewString()
		health := deps.Dispatcher.ProbeHealth(ctx, deps.Servers, deps.ToolsCfg)

		var history []*schema.Message
		err = compose.ProcessState(ctx, func(_ context.Context, gs *model.GraphState) error {
			gs.Current = snapshot.NewTurn(turnID, in.ConsentGiven)
			upd := model.StateUpdate{
				Phase:          model.PhaseClassifyingIntent,
				AppendMessages: []*schema.Message{schema.UserMessage(in.Query)},
				Health:         health,
			}
			if gs.Current.Context.Field == nil {
				field := deps.DefaultField
				upd.Field = &field
			}
			gs.Apply(upd)
			history = gs.Current.Messages
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		systemPrompt, err := prompts.RenderClassifierSystem(ctx, deps.ClassifierCfg)
		if err != nil {
			return nil, errx.WrapConfig(fmt.Errorf("render classifier system prompt: %w", err))
		}

		logx.Debug().
			Str("conversation_id", in.ConversationID).
			Str("turn_id", turnID).
			Int("history", len(history)).
			Msg("turn context loaded")

		window := BuildClassifierContext(history[:len(history)-1], deps.Conversation.Classifier.MaxTurns, in.Query)
		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(window),
		}, nil
	})
}

// NewClassifierPostHandler accounts LLM usage cost for the classifier call.
func NewClassifierPostHandler(modelName string) func(context.Context, *schema.Message, *model.GraphState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, gs *model.GraphState) (*schema.Message, error) {
		if out != nil && out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			pricing := model.ResolvePricing(modelName)
			inC, outC, totalC := model.ComputeCost(out.ResponseMeta.Usage, pricing)
			logx.Debug().
				Str("conversation_id", gs.Current.ConversationID).
				Str("node", NodeIntentClassifier).
				Str("model", modelName).
				Int("prompt_tokens", out.ResponseMeta.Usage.PromptTokens).
				Int("completion_tokens", out.ResponseMeta.Usage.CompletionTokens).
				Float64("input_cost_usd", inC).
				Float64("output_cost_usd", outC).
				Float64("total_cost_usd", totalC).
				Msg("LLM usage")
			gs.Apply(model.StateUpdate{AddCostUSD: totalC})
		}
		return out, nil
	}
}

// NewIntentParserNode creates the parser node for the classifier output.
// Unparseable output falls back to deterministic keyword classification of
// the user's message, so this node never fails the turn.
func NewIntentParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (model.IntentResult, error) {
		content := ""
		if resp != nil {
			content = resp.Content
		}
		result, ok := parsers.ParseClassifierResponse(content)
		if !ok {
			var query string
			if err := compose.ProcessState(ctx, func(_ context.Context, gs *model.GraphState) error {
				for i := len(gs.Current.Messages) - 1; i >= 0; i-- {
					if gs.Current.Messages[i] != nil && gs.Current.Messages[i].Role == schema.User {
						query = gs.Current.Messages[i].Content
						break
					}
				}
				return nil
			}); err != nil {
				return model.IntentResult{}, fmt.Errorf("failed to access state: %w", err)
			}
			logx.Warn().Msg("classifier output unusable, keyword classification applied")
			result = parsers.KeywordClassify(query)
		}
		return *result, nil
	})
}

// NewIntentParserPostHandler stores the classification and advances the phase.
func NewIntentParserPostHandler() func(context.Context, model.IntentResult, *model.GraphState) (model.IntentResult, error) {
	return func(ctx context.Context, out model.IntentResult, gs *model.GraphState) (model.IntentResult, error) {
		intent := out
		gs.Apply(model.StateUpdate{Intent: &intent, Phase: model.PhaseGatheringFacts})
		logx.Debug().
			Str("conversation_id", gs.Current.ConversationID).
			Str("intent", out.Name).
			Float64("confidence", out.Confidence).
			Bool("synthetic", out.Synthetic).
			Msg("intent classified")
		return out, nil
	}
}

// NewFactGathererNode creates the GatheringFacts node. Both capability
// handlers run concurrently; their results are merged into state only after
// the full fan-out set has resolved, so downstream steps always see a
// complete fact set. Only configuration errors can escape here.
func NewFactGathererNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, intent model.IntentResult) (model.DecisionContext, error) {
		var (
			turnID string
			health model.ServerHealth
			field  *model.FieldProfile
		)
		if err := compose.ProcessState(ctx, func(_ context.Context, gs *model.GraphState) error {
			turnID = gs.Current.TurnID
			health = gs.Current.Health
			field = gs.Current.Context.Field
			return nil
		}); err != nil {
			return model.DecisionContext{}, fmt.Errorf("failed to access state: %w", err)
		}

		var (
			weather    *model.WeatherFacts
			fieldFacts *model.FieldFacts
			werr, ferr error
			wg         sync.WaitGroup
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			weather, werr = deps.Forecast.GetForecast(ctx, turnID, health, field)
		}()
		go func() {
			defer wg.Done()
			fieldFacts, ferr = deps.FieldStatus.GetFieldStatus(ctx, turnID, health, field)
		}()
		wg.Wait()

		if werr != nil {
			return model.DecisionContext{}, werr
		}
		if ferr != nil {
			return model.DecisionContext{}, ferr
		}

		if err := compose.ProcessState(ctx, func(_ context.Context, gs *model.GraphState) error {
			gs.Apply(model.StateUpdate{
				Weather:         weather,
				FieldFacts:      fieldFacts,
				AppendToolCalls: deps.Recorder.TurnTraces(turnID),
				Phase:           model.PhaseValidating,
			})
			return nil
		}); err != nil {
			return model.DecisionContext{}, fmt.Errorf("failed to access state: %w", err)
		}

		logx.Debug().
			Str("turn_id", turnID).
			Str("weather_provenance", string(weather.Provenance)).
			Str("field_provenance", string(fieldFacts.Provenance)).
			Msg("facts gathered")
		return model.BuildDecisionContext(intent.Name, field, weather, fieldFacts), nil
	})
}

// NewRuleValidatorNode creates the Validating node: deterministic rule
// matching and confidence scoring over the gathered facts.
func NewRuleValidatorNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, dctx model.DecisionContext) (model.Recommendation, error) {
		base := 0.5
		attribution := model.ProvenanceSynthetic
		if err := compose.ProcessState(ctx, func(_ context.Context, gs *model.GraphState) error {
			if gs.Current.Intent != nil {
				base = gs.Current.Intent.Confidence
			}
			attribution = supportingProvenance(gs.Current.Context)
			return nil
		}); err != nil {
			return model.Recommendation{}, fmt.Errorf("failed to access state: %w", err)
		}

		return deps.Validator.Evaluate(dctx, base, attribution), nil
	})
}

// NewRuleValidatorPostHandler stores the raw recommendation and advances
// the phase.
func NewRuleValidatorPostHandler() func(context.Context, model.Recommendation, *model.GraphState) (model.Recommendation, error) {
	return func(ctx context.Context, out model.Recommendation, gs *model.GraphState) (model.Recommendation, error) {
		rec := out
		gs.Apply(model.StateUpdate{Recommendation: &rec, Phase: model.PhaseApplyingConsent})
		return out, nil
	}
}

// NewConsentGateNode creates the ApplyingConsent node.
func NewConsentGateNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, rec model.Recommendation) (model.Recommendation, error) {
		consentGiven := false
		if err := compose.ProcessState(ctx, func(_ context.Context, gs *model.GraphState) error {
			consentGiven = gs.Current.ConsentGiven
			return nil
		}); err != nil {
			return model.Recommendation{}, fmt.Errorf("failed to access state: %w", err)
		}
		return consent.Apply(rec, consentGiven), nil
	})
}

// NewConsentGatePostHandler replaces the stored recommendation with the
// gated one.
func NewConsentGatePostHandler() func(context.Context, model.Recommendation, *model.GraphState) (model.Recommendation, error) {
	return func(ctx context.Context, out model.Recommendation, gs *model.GraphState) (model.Recommendation, error) {
		rec := out
		gs.Apply(model.StateUpdate{Recommendation: &rec})
		return out, nil
	}
}

// NewEscalationCondition routes low-confidence, high-stakes recommendations
// to the conservative advisory instead of the composer.
func NewEscalationCondition(threshold float64) func(context.Context, model.Recommendation) (string, error) {
	return func(ctx context.Context, rec model.Recommendation) (string, error) {
		var intent string
		if err := compose.ProcessState(ctx, func(_ context.Context, gs *model.GraphState) error {
			if gs.Current.Intent != nil {
				intent = gs.Current.Intent.Name
			}
			return nil
		}); err != nil {
			return "", fmt.Errorf("failed to access state: %w", err)
		}

		if rec.Confidence < threshold && highStakesIntents[intent] {
			logx.Debug().
				Str("intent", intent).
				Float64("confidence", rec.Confidence).
				Msg("routing to escalation - confidence below threshold for high-stakes intent")
			return NodeEscalation, nil
		}
		return NodeAnswerComposer, nil
	}
}

// NewEscalationNode renders the conservative advisory for low-confidence
// turns.
func NewEscalationNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, rec model.Recommendation) (*schema.Message, error) {
		logx.Warn().
			Str("action", rec.Action).
			Float64("confidence", rec.Confidence).
			Msg("low-confidence recommendation, issuing conservative advisory")
		text := fmt.Sprintf(
			"The available data is too thin for a firm recommendation. The closest match suggests to %s, "+
				"but please verify current field conditions or consult your agronomist before acting.",
			rec.Action,
		)
		return schema.AssistantMessage(text, nil), nil
	})
}

// NewAnswerComposerNode renders the final answer with the composer model,
// falling back to a deterministic rendering when the model is unavailable.
func NewAnswerComposerNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, rec model.Recommendation) (*schema.Message, error) {
		systemPrompt, err := prompts.RenderComposerSystem(ctx, deps.ComposerPromptCfg, rec)
		if err != nil {
			return nil, errx.WrapConfig(fmt.Errorf("render composer system prompt: %w", err))
		}

		var history []*schema.Message
		if err := compose.ProcessState(ctx, func(_ context.Context, gs *model.GraphState) error {
			history = trimTail(gs.Current.Messages, deps.Conversation.Classifier.MaxTurns)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		msgs := append([]*schema.Message{schema.SystemMessage(systemPrompt)}, history...)
		out, genErr := deps.Models.Composer.Generate(ctx, msgs)
		if genErr != nil || out == nil || strings.TrimSpace(out.Content) == "" {
			logx.Warn().Err(genErr).Msg("composer model unavailable, rendering deterministic answer")
			return schema.AssistantMessage(renderFallbackAnswer(rec), nil), nil
		}

		if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			pricing := model.ResolvePricing(deps.Models.ComposerModelName)
			_, _, totalC := model.ComputeCost(out.ResponseMeta.Usage, pricing)
			if err := compose.ProcessState(ctx, func(_ context.Context, gs *model.GraphState) error {
				gs.Apply(model.StateUpdate{AddCostUSD: totalC})
				return nil
			}); err != nil {
				return nil, fmt.Errorf("failed to access state: %w", err)
			}
		}
		return out, nil
	})
}

// NewFinalizerNode closes the turn: append the assistant message, mark Done,
// persist the snapshot, and emit the terminal TurnResult.
func NewFinalizerNode(deps *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, answer *schema.Message) (*model.TurnResult, error) {
		text := ""
		if answer != nil {
			text = strings.TrimSpace(answer.Content)
		}

		var result *model.TurnResult
		if err := compose.ProcessState(ctx, func(_ context.Context, gs *model.GraphState) error {
			gs.Apply(model.StateUpdate{
				Phase:          model.PhaseDone,
				Answer:         &text,
				AppendMessages: []*schema.Message{schema.AssistantMessage(text, nil)},
			})
			result = &model.TurnResult{
				State:          gs.Current,
				Recommendation: gs.Current.Recommendation,
				Answer:         text,
			}
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		if err := deps.States.SaveSnapshot(ctx, result.State); err != nil {
			logx.Error().
				Err(err).
				Str("conversation_id", result.State.ConversationID).
				Msg("failed to persist turn snapshot")
		}
		return result, nil
	})
}
