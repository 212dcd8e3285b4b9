package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgriMind-advisor-poc/server/internal/agent/graph/nodes"
	"github.com/AgriMind-advisor-poc/server/internal/agent/handlers"
	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
	"github.com/AgriMind-advisor-poc/server/internal/agent/repo"
	"github.com/AgriMind-advisor-poc/server/internal/agent/rules"
	"github.com/AgriMind-advisor-poc/server/internal/agent/toolcall"
	"github.com/AgriMind-advisor-poc/server/internal/agent/trace"
	errx "github.com/AgriMind-advisor-poc/server/internal/core/error"
)

// stubChatModel returns a canned response, or an error, for every call.
type stubChatModel struct {
	content string
	err     error
}

func (m *stubChatModel) Generate(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.content, nil), nil
}

func (m *stubChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	if m.err != nil {
		return nil, m.err
	}
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage(m.content, nil)}), nil
}

var _ einomodel.BaseChatModel = (*stubChatModel)(nil)

const classifierTuple = "(intent<||>irrigation_advice<||>0.5)##<|COMPLETE|>"

// testEnv bundles the collaborators of one compiled test graph.
type testEnv struct {
	runnable compose.Runnable[model.TurnInput, *model.TurnResult]
	states   *repo.MemoryStateRepository
	recorder *trace.Recorder
}

type testOpts struct {
	classifier  *stubChatModel
	composer    *stubChatModel
	weatherData map[string]any
	fieldData   map[string]any
	threshold   float64

	// omitWeatherServer leaves the weather server out of configuration
	// entirely, which is a deployment defect rather than an outage.
	omitWeatherServer bool
}

func toolServer(t *testing.T, data map[string]any) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts.URL
}

func newTestEnv(t *testing.T, opts testOpts) *testEnv {
	t.Helper()
	ctx := context.Background()

	if opts.classifier == nil {
		opts.classifier = &stubChatModel{content: classifierTuple}
	}
	if opts.composer == nil {
		opts.composer = &stubChatModel{content: "Irrigate tonight; the soil is dry and no rain is coming."}
	}
	if opts.weatherData == nil {
		opts.weatherData = map[string]any{"temp_c": 36.0, "humidity_pct": 30.0, "rain_expected": false, "condition": "hot"}
	}
	if opts.fieldData == nil {
		opts.fieldData = map[string]any{"crop": "cotton", "soil_moisture_pct": 25.0, "growth_stage": "squaring", "irrigation_scheduled": false}
	}
	if opts.threshold == 0 {
		opts.threshold = 0.3
	}

	servers := []model.ToolServer{
		{Name: handlers.ServerFieldRules, BaseURL: toolServer(t, opts.fieldData), Enabled: true, Timeout: time.Second},
	}
	if !opts.omitWeatherServer {
		servers = append(servers,
			model.ToolServer{Name: handlers.ServerWeather, BaseURL: toolServer(t, opts.weatherData), Enabled: true, Timeout: time.Second})
	}

	set, err := rules.FromRules([]model.Rule{
		{
			ID: "AZ-IRR-001", Category: "irrigation", Action: "irrigate", Weight: 0.95,
			When: []model.Predicate{
				{Fact: "soil_moisture_pct", Op: model.OpLT, Value: ptr(30.0)},
				{Fact: "rain_expected", Op: model.OpEQ, Equals: false},
			},
		},
		{
			ID: "AZ-IRR-003", Category: "irrigation", Action: "hold_irrigation", Weight: 0.8,
			When: []model.Predicate{{Fact: "rain_expected", Op: model.OpEQ, Equals: true}},
		},
	})
	require.NoError(t, err)

	states := repo.NewMemoryStateRepository()
	recorder := trace.NewRecorder()
	dispatcher := toolcall.NewDispatcher(toolcall.NewClient(servers, recorder), 4)
	handlerDeps := handlers.Deps{Dispatcher: dispatcher, FallbackToSynthetic: true}

	classifierCfg := model.ClassifierModelConfig{
		Model:         "stub-classifier",
		KnownIntents:  "irrigation_advice:0.8, pest_treatment:0.8",
		KnownEntities: "crop, field",
	}
	conversation := model.ConversationConfig{TTL: "15m"}
	conversation.Classifier.MaxTurns = 5

	deps := &nodes.Deps{
		States:     states,
		Recorder:   recorder,
		Dispatcher: dispatcher,
		Servers:    servers,
		ToolsCfg:   model.ToolsConfig{HealthTimeoutMS: 500, FallbackToSynthetic: true},

		Forecast:    handlers.NewForecastHandler(handlerDeps),
		FieldStatus: handlers.NewFieldStatusHandler(handlerDeps),
		Validator:   rules.NewValidator(set),

		Models: &nodes.ChatModels{
			Classifier:          nodes.NewResilientChatModel(opts.classifier),
			Composer:            opts.composer,
			ClassifierModelName: "stub-classifier",
			ComposerModelName:   "stub-composer",
		},
		ClassifierCfg:     &classifierCfg,
		ComposerPromptCfg: model.ComposerPromptConfig{AdvisoryName: "AgriMind", Region: "Arizona"},
		Conversation:      conversation,
		Advisory:          model.AdvisoryConfig{EscalationThreshold: opts.threshold},
		DefaultField:      model.FieldProfile{FieldID: "f1", Crop: "cotton", SoilType: "sandy_loam", Lat: 33.45, Lon: -112.07},
	}

	runnable, err := BuildGraph(ctx, deps)
	require.NoError(t, err)
	return &testEnv{runnable: runnable, states: states, recorder: recorder}
}

func ptr(v float64) *float64 { return &v }

// TestTurnEndToEnd drives a full consented turn through the graph: classify,
// gather facts from both tool servers, validate, compose, persist.
func TestTurnEndToEnd(t *testing.T) {
	env := newTestEnv(t, testOpts{})
	ctx := context.Background()

	result, err := env.runnable.Invoke(ctx, model.TurnInput{
		ConversationID: "c1",
		Query:          "Should I irrigate my cotton this week?",
		ConsentGiven:   true,
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, model.PhaseDone, result.State.Phase)
	assert.Equal(t, "Irrigate tonight; the soil is dry and no rain is coming.", result.Answer)

	rec := result.Recommendation
	require.NotNil(t, rec)
	assert.Equal(t, "irrigate", rec.Action)
	assert.InDelta(t, 0.90, rec.Confidence, 1e-9) // classifier 0.5 + match bonus 0.40
	assert.Equal(t, "AZ-IRR-001", rec.Source)
	assert.Equal(t, "tool:fieldrules", rec.Attribution)

	require.Len(t, result.State.ToolCalls, 2, "both fan-out attempts must appear in the turn trace")
	for _, call := range result.State.ToolCalls {
		assert.True(t, call.Success)
		assert.Equal(t, result.State.TurnID, call.TurnID)
	}

	require.NotNil(t, result.State.Intent)
	assert.Equal(t, "irrigation_advice", result.State.Intent.Name)
	assert.False(t, result.State.Intent.Synthetic)

	require.NotNil(t, result.State.Context.Weather)
	assert.Equal(t, model.ToolProvenance("weather"), result.State.Context.Weather.Provenance)

	// snapshot persisted with both sides of the exchange
	snapshot, err := env.states.LoadSnapshot(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, snapshot.Messages, 2)
	assert.Equal(t, schema.User, snapshot.Messages[0].Role)
	assert.Equal(t, schema.Assistant, snapshot.Messages[1].Role)
}

// TestTurnWithoutConsentStripsAttribution verifies the consent gate runs
// inside the turn and only the disclosure changes.
func TestTurnWithoutConsentStripsAttribution(t *testing.T) {
	env := newTestEnv(t, testOpts{})

	result, err := env.runnable.Invoke(context.Background(), model.TurnInput{
		ConversationID: "c1",
		Query:          "Should I irrigate my cotton this week?",
		ConsentGiven:   false,
	})
	require.NoError(t, err)

	rec := result.Recommendation
	require.NotNil(t, rec)
	assert.Equal(t, "irrigate", rec.Action)
	assert.InDelta(t, 0.90, rec.Confidence, 1e-9)
	assert.Equal(t, model.AttributionLocal, rec.Attribution)
	assert.NotContains(t, rec.Rationale, "fieldrules")
}

// TestTurnClassifierOutageFallsBackToKeywords verifies a failing classifier
// model degrades to the deterministic keyword intent instead of failing.
func TestTurnClassifierOutageFallsBackToKeywords(t *testing.T) {
	env := newTestEnv(t, testOpts{
		classifier: &stubChatModel{err: errors.New("model unavailable")},
	})

	result, err := env.runnable.Invoke(context.Background(), model.TurnInput{
		ConversationID: "c1",
		Query:          "Should I irrigate my cotton this week?",
		ConsentGiven:   true,
	})
	require.NoError(t, err)

	require.NotNil(t, result.State.Intent)
	assert.Equal(t, "irrigation_advice", result.State.Intent.Name)
	assert.True(t, result.State.Intent.Synthetic)
	assert.InDelta(t, 0.5, result.State.Intent.Confidence, 1e-9)
	assert.Equal(t, "irrigate", result.Recommendation.Action)
}

// TestTurnEscalatesLowConfidenceHighStakes verifies the conservative branch:
// no rule coverage drops confidence to 0.35, below a 0.4 threshold.
func TestTurnEscalatesLowConfidenceHighStakes(t *testing.T) {
	env := newTestEnv(t, testOpts{
		fieldData: map[string]any{"crop": "cotton", "soil_moisture_pct": 45.0},
		threshold: 0.4,
	})

	result, err := env.runnable.Invoke(context.Background(), model.TurnInput{
		ConversationID: "c1",
		Query:          "Should I irrigate my cotton this week?",
		ConsentGiven:   true,
	})
	require.NoError(t, err)

	require.NotNil(t, result.Recommendation)
	assert.Equal(t, "monitor", result.Recommendation.Action)
	assert.InDelta(t, 0.35, result.Recommendation.Confidence, 1e-9)
	assert.Contains(t, result.Answer, "verify current field conditions")
	assert.Equal(t, model.PhaseDone, result.State.Phase)
}

// TestTurnComposerOutageRendersDeterministicAnswer verifies the answer path
// never fails a turn on a model outage.
func TestTurnComposerOutageRendersDeterministicAnswer(t *testing.T) {
	env := newTestEnv(t, testOpts{
		composer: &stubChatModel{err: errors.New("model unavailable")},
	})

	result, err := env.runnable.Invoke(context.Background(), model.TurnInput{
		ConversationID: "c1",
		Query:          "Should I irrigate my cotton this week?",
		ConsentGiven:   true,
	})
	require.NoError(t, err)

	assert.Contains(t, result.Answer, "Recommended action: irrigate")
	assert.Equal(t, model.PhaseDone, result.State.Phase)
}

// TestConversationHistoryAccumulates verifies snapshots carry the exchange
// across turns while per-turn data resets.
func TestConversationHistoryAccumulates(t *testing.T) {
	env := newTestEnv(t, testOpts{})
	ctx := context.Background()

	first, err := env.runnable.Invoke(ctx, model.TurnInput{
		ConversationID: "c1", Query: "Should I irrigate my cotton?", ConsentGiven: true,
	})
	require.NoError(t, err)

	second, err := env.runnable.Invoke(ctx, model.TurnInput{
		ConversationID: "c1", Query: "And what about tomorrow?", ConsentGiven: true,
	})
	require.NoError(t, err)

	assert.NotEqual(t, first.State.TurnID, second.State.TurnID)
	require.Len(t, second.State.Messages, 4)
	assert.Equal(t, "Should I irrigate my cotton?", second.State.Messages[0].Content)
	assert.Equal(t, "And what about tomorrow?", second.State.Messages[2].Content)
	assert.Len(t, second.State.ToolCalls, 2, "tool traces are per turn, not cumulative")
}

// TestTurnConfigurationDefectSurfacesFailedState drops the weather server
// from configuration entirely: the turn errors out and the result carries
// the terminal failed phase, unlike tool outages which degrade in place.
func TestTurnConfigurationDefectSurfacesFailedState(t *testing.T) {
	env := newTestEnv(t, testOpts{omitWeatherServer: true})
	runner := &advisoryRunner{runnable: env.runnable, recorder: env.recorder}

	result, err := runner.RunTurn(context.Background(), model.TurnInput{
		ConversationID: "c1", Query: "Should I irrigate my cotton?", ConsentGiven: true,
	})

	require.Error(t, err)
	assert.True(t, errx.IsConfig(err), "a missing server is a deployment defect")
	require.NotNil(t, result)
	assert.Equal(t, model.PhaseFailed, result.State.Phase)
	assert.Equal(t, "c1", result.State.ConversationID)
}
