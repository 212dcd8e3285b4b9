package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
	logx "github.com/AgriMind-advisor-poc/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey        string
	BaseURL       string
	ClassifierCfg *model.ClassifierModelConfig
	ComposerCfg   *model.ComposerModelConfig
}

// ChatModels holds the classifier and composer chat models. The classifier
// is pre-wrapped so a failed model call degrades to keyword classification
// instead of failing the turn.
type ChatModels struct {
	Classifier          einomodel.BaseChatModel
	Composer            einomodel.BaseChatModel
	ClassifierModelName string
	ComposerModelName   string
}

// NewChatModels creates both chat models with the given configuration.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	classifier, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.ClassifierCfg.Model,
		Temperature: &config.ClassifierCfg.Temperature,
		MaxTokens:   &config.ClassifierCfg.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating classifier model")
		return nil, fmt.Errorf("error creating classifier model: %w", err)
	}

	composer, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.ComposerCfg.Model,
		Temperature: &config.ComposerCfg.Temperature,
		MaxTokens:   &config.ComposerCfg.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating composer model")
		return nil, fmt.Errorf("error creating composer model: %w", err)
	}

	return &ChatModels{
		Classifier:          NewResilientChatModel(classifier),
		Composer:            composer,
		ClassifierModelName: config.ClassifierCfg.Model,
		ComposerModelName:   config.ComposerCfg.Model,
	}, nil
}

// ResilientChatModel decorates a chat model so a failed call yields an empty
// assistant message instead of an error. Downstream parsing treats the empty
// output as "no usable classification" and falls back deterministically,
// which keeps the turn's failure contract: only configuration errors escape.
type ResilientChatModel struct {
	inner einomodel.BaseChatModel
}

func NewResilientChatModel(inner einomodel.BaseChatModel) *ResilientChatModel {
	return &ResilientChatModel{inner: inner}
}

func (m *ResilientChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	out, err := m.inner.Generate(ctx, in, opts...)
	if err != nil {
		logx.Warn().Err(err).Msg("chat model call failed, degrading to synthetic output")
		return schema.AssistantMessage("", nil), nil
	}
	return out, nil
}

func (m *ResilientChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	sr, err := m.inner.Stream(ctx, in, opts...)
	if err != nil {
		logx.Warn().Err(err).Msg("chat model stream failed, degrading to synthetic output")
		return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage("", nil)}), nil
	}
	return sr, nil
}

var _ einomodel.BaseChatModel = (*ResilientChatModel)(nil)
