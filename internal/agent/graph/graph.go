package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/AgriMind-advisor-poc/server/internal/agent/graph/nodes"
	"github.com/AgriMind-advisor-poc/server/internal/agent/graph/observers"
	"github.com/AgriMind-advisor-poc/server/internal/agent/handlers"
	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
	"github.com/AgriMind-advisor-poc/server/internal/agent/rules"
	"github.com/AgriMind-advisor-poc/server/internal/agent/toolcall"
	"github.com/AgriMind-advisor-poc/server/internal/agent/trace"
	errx "github.com/AgriMind-advisor-poc/server/internal/core/error"
	logx "github.com/AgriMind-advisor-poc/server/pkg/logger"
)

// Runner executes one full advisory turn of the compiled graph.
type Runner interface {
	// RunTurn runs one turn end to end. On error the returned result is
	// non-nil and carries the terminal failed phase; only configuration
	// defects error out, tool failures are absorbed mid-turn.
	RunTurn(ctx context.Context, in model.TurnInput) (*model.TurnResult, error)

	// TurnTraces returns the recorded tool-call traces for a turn.
	TurnTraces(turnID string) []model.ToolCallRecord
}

// Config holds everything needed to compose the full advisory graph
// end-to-end.
type Config struct {
	APIKey  string
	BaseURL string

	Classifier     model.ClassifierModelConfig
	Composer       model.ComposerModelConfig
	ComposerPrompt model.ComposerPromptConfig
	Conversation   model.ConversationConfig
	Advisory       model.AdvisoryConfig
	Tools          model.ToolsConfig
	Field          model.FieldConfig

	StateRepo model.StateRepository
}

type advisoryRunner struct {
	runnable compose.Runnable[model.TurnInput, *model.TurnResult]
	recorder *trace.Recorder
}

func (r *advisoryRunner) RunTurn(ctx context.Context, in model.TurnInput) (*model.TurnResult, error) {
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		if errx.IsConfig(err) {
			logx.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("turn failed on configuration defect")
		} else {
			logx.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("turn failed")
		}
		failed := &model.TurnResult{
			State: model.State{ConversationID: in.ConversationID, Phase: model.PhaseFailed},
		}
		return failed, err
	}
	return out, nil
}

func (r *advisoryRunner) TurnTraces(turnID string) []model.ToolCallRecord {
	return r.recorder.TurnTraces(turnID)
}

// BuildAdvisoryGraph wires every collaborator from configuration, builds the
// graph, and returns a Runner.
func BuildAdvisoryGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.StateRepo == nil {
		return nil, fmt.Errorf("state repository is nil")
	}

	servers, err := cfg.Tools.ServerList()
	if err != nil {
		return nil, errx.WrapConfig(fmt.Errorf("resolve tool servers: %w", err))
	}

	ruleSet, err := rules.Load(cfg.Advisory.RulesPath)
	if err != nil {
		return nil, err
	}

	models, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:        cfg.APIKey,
		BaseURL:       cfg.BaseURL,
		ClassifierCfg: &cfg.Classifier,
		ComposerCfg:   &cfg.Composer,
	})
	if err != nil {
		return nil, err
	}

	recorder := trace.NewRecorder()
	dispatcher := toolcall.NewDispatcher(toolcall.NewClient(servers, recorder), cfg.Tools.MaxParallelCalls)

	handlerDeps := handlers.Deps{
		Dispatcher:          dispatcher,
		FallbackToSynthetic: cfg.Tools.FallbackToSynthetic,
	}

	deps := &nodes.Deps{
		States:     cfg.StateRepo,
		Recorder:   recorder,
		Dispatcher: dispatcher,
		Servers:    servers,
		ToolsCfg:   cfg.Tools,

		Forecast:    handlers.NewForecastHandler(handlerDeps),
		FieldStatus: handlers.NewFieldStatusHandler(handlerDeps),
		Validator:   rules.NewValidator(ruleSet),

		Models:            models,
		ClassifierCfg:     &cfg.Classifier,
		ComposerPromptCfg: cfg.ComposerPrompt,
		Conversation:      cfg.Conversation,
		Advisory:          cfg.Advisory,
		DefaultField:      cfg.Field.Profile(),
	}

	runnable, err := BuildGraph(ctx, deps)
	if err != nil {
		return nil, err
	}

	logx.Debug().Int("tool_servers", len(servers)).Int("rules", ruleSet.Len()).Msg("advisory graph built")
	return &advisoryRunner{runnable: runnable, recorder: recorder}, nil
}

// graphBuilder assembles the node topology of the advisory graph.
type graphBuilder struct {
	deps  *nodes.Deps
	graph *compose.Graph[model.TurnInput, *model.TurnResult]
}

// BuildGraph constructs and compiles the advisory graph from pre-built
// dependencies. Exposed separately so tests can inject stub models and
// repositories.
func BuildGraph(ctx context.Context, deps *nodes.Deps) (compose.Runnable[model.TurnInput, *model.TurnResult], error) {
	if deps == nil {
		return nil, fmt.Errorf("graph deps is nil")
	}
	if deps.Models == nil || deps.Models.Classifier == nil || deps.Models.Composer == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if deps.States == nil || deps.Recorder == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("state repository, recorder, and dispatcher are required")
	}
	if deps.Forecast == nil || deps.FieldStatus == nil || deps.Validator == nil {
		return nil, fmt.Errorf("fact handlers and validator are required")
	}

	builder := &graphBuilder{
		deps: deps,
		graph: compose.NewGraph[model.TurnInput, *model.TurnResult](
			compose.WithGenLocalState(func(ctx context.Context) *model.GraphState {
				return &model.GraphState{}
			}),
		),
	}

	builder.addNodes()
	builder.addEdges()
	if err := builder.addBranches(); err != nil {
		return nil, err
	}
	return builder.compile(ctx)
}

func (b *graphBuilder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodeContextLoader,
		nodes.NewContextLoaderNode(b.deps),
	)

	b.graph.AddChatModelNode(nodes.NodeIntentClassifier,
		b.deps.Models.Classifier,
		compose.WithStatePostHandler(nodes.NewClassifierPostHandler(b.deps.Models.ClassifierModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeIntentParser,
		nodes.NewIntentParserNode(),
		compose.WithStatePostHandler(nodes.NewIntentParserPostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeFactGatherer,
		nodes.NewFactGathererNode(b.deps),
	)

	b.graph.AddLambdaNode(nodes.NodeRuleValidator,
		nodes.NewRuleValidatorNode(b.deps),
		compose.WithStatePostHandler(nodes.NewRuleValidatorPostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeConsentGate,
		nodes.NewConsentGateNode(),
		compose.WithStatePostHandler(nodes.NewConsentGatePostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeAnswerComposer,
		nodes.NewAnswerComposerNode(b.deps),
	)

	b.graph.AddLambdaNode(nodes.NodeEscalation,
		nodes.NewEscalationNode(),
	)

	b.graph.AddLambdaNode(nodes.NodeFinalizer,
		nodes.NewFinalizerNode(b.deps),
	)
}

func (b *graphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeContextLoader},
		{nodes.NodeContextLoader, nodes.NodeIntentClassifier},
		{nodes.NodeIntentClassifier, nodes.NodeIntentParser},
		{nodes.NodeIntentParser, nodes.NodeFactGatherer},
		{nodes.NodeFactGatherer, nodes.NodeRuleValidator},
		{nodes.NodeRuleValidator, nodes.NodeConsentGate},
		{nodes.NodeAnswerComposer, nodes.NodeFinalizer},
		{nodes.NodeEscalation, nodes.NodeFinalizer},
		{nodes.NodeFinalizer, compose.END},
	}
	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

func (b *graphBuilder) addBranches() error {
	escalationBranch := compose.NewGraphBranch(
		nodes.NewEscalationCondition(b.deps.Advisory.EscalationThreshold),
		map[string]bool{
			nodes.NodeAnswerComposer: true,
			nodes.NodeEscalation:     true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeConsentGate, escalationBranch); err != nil {
		logx.Error().Err(err).Msg("error adding escalation branch")
		return fmt.Errorf("error adding escalation branch: %w", err)
	}
	return nil
}

func (b *graphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *model.TurnResult], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(20))
	if err != nil {
		logx.Error().Err(err).Msg("error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}
	logx.Debug().Msg("graph compiled successfully")
	return runnable, nil
}
