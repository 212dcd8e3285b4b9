package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/AgriMind-advisor-poc/server/internal/agent/graph"
	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
	"github.com/AgriMind-advisor-poc/server/internal/agent/repo"
	"github.com/AgriMind-advisor-poc/server/internal/core"
	logx "github.com/AgriMind-advisor-poc/server/pkg/logger"
	pkgredis "github.com/AgriMind-advisor-poc/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the advisory demo,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure. Redis is optional for local runs: without REDIS_URL
	// the demo keeps conversation state in memory.
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Classifier   model.ClassifierModelConfig
	Composer     model.ComposerModelConfig
	Prompt       model.ComposerPromptConfig
	Conversation model.ConversationConfig
	Advisory     model.AdvisoryConfig
	Tools        model.ToolsConfig
	Field        model.FieldConfig
}

func main() {
	ctx := context.Background()
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(envCfg.Environment)})

	ttl, err := time.ParseDuration(envCfg.Conversation.TTL)
	if err != nil {
		log.Fatalf("Invalid CONVERSATION_TTL '%s': %v", envCfg.Conversation.TTL, err)
	}

	var states model.StateRepository
	if envCfg.Redis.URL != "" {
		rdb, err := envCfg.Redis.New()
		if err != nil {
			log.Fatalf("Failed to initialise Redis client: %v", err)
		}
		defer rdb.Close()
		states = repo.NewRedisStateRepository(rdb, ttl)
		fmt.Println("Connected to Redis, conversation state is persistent")
	} else {
		states = repo.NewMemoryStateRepository()
		fmt.Println("No REDIS_URL set, conversation state is in-memory")
	}

	runner, err := graph.BuildAdvisoryGraph(ctx, graph.Config{
		APIKey:         envCfg.APIKey,
		BaseURL:        envCfg.BaseURL,
		Classifier:     envCfg.Classifier,
		Composer:       envCfg.Composer,
		ComposerPrompt: envCfg.Prompt,
		Conversation:   envCfg.Conversation,
		Advisory:       envCfg.Advisory,
		Tools:          envCfg.Tools,
		Field:          envCfg.Field,
		StateRepo:      states,
	})
	if err != nil {
		log.Fatalf("Failed to build advisory graph: %v", err)
	}

	testTurns := []struct {
		description string
		query       string
		consent     bool
	}{
		{
			description: "Irrigation question with data-sharing consent",
			query:       "My cotton looks stressed, should I irrigate this week?",
			consent:     true,
		},
		{
			description: "Same follow-up without consent",
			query:       "And what about the weekend, still irrigate?",
			consent:     false,
		},
		{
			description: "Pest pressure question",
			query:       "I'm seeing aphids on the lower leaves, what should I do?",
			consent:     true,
		},
	}

	conversationID := "demo-conversation-001"

	for i, turn := range testTurns {
		fmt.Printf("\nTurn %d: %s\n", i+1, turn.description)
		fmt.Printf("Query: %q (consent=%v)\n", turn.query, turn.consent)

		result, err := runner.RunTurn(ctx, model.TurnInput{
			ConversationID: conversationID,
			Query:          turn.query,
			ConsentGiven:   turn.consent,
		})
		if err != nil {
			log.Fatalf("Turn %d failed: %v", i+1, err)
		}

		fmt.Printf("Answer: %s\n", result.Answer)
		if rec := result.Recommendation; rec != nil {
			fmt.Printf("Recommendation: %s (confidence %.2f, source %s, attribution %s)\n",
				rec.Action, rec.Confidence, rec.Source, rec.Attribution)
		}
		fmt.Printf("Tool calls this turn: %d, LLM cost this turn: $%.6f\n",
			len(result.State.ToolCalls), result.State.TotalCostUSD)
		for _, call := range result.State.ToolCalls {
			status := "ok"
			if !call.Success {
				status = "failed: " + call.Error
			}
			fmt.Printf("  - %s/%s in %s (%s)\n", call.Server, call.Operation, call.Duration, status)
		}
		fmt.Println("────────────────────────────────────────────────")

		time.Sleep(500 * time.Millisecond)
	}

	fmt.Println("\nAll advisory turns completed")
}
