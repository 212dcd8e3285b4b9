package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
	"github.com/AgriMind-advisor-poc/server/internal/agent/toolcall"
	errx "github.com/AgriMind-advisor-poc/server/internal/core/error"
	logx "github.com/AgriMind-advisor-poc/server/pkg/logger"
)

// ForecastHandler resolves weather facts for the field's coordinates.
type ForecastHandler struct {
	deps Deps
}

func NewForecastHandler(deps Deps) *ForecastHandler {
	return &ForecastHandler{deps: deps}
}

type forecastPayload struct {
	TempC        *float64 `json:"temp_c"`
	HumidityPct  *float64 `json:"humidity_pct"`
	RainExpected *bool    `json:"rain_expected"`
	Condition    string   `json:"condition"`
}

// GetForecast returns weather facts for the turn. The returned error is
// non-nil only when the weather server is absent from configuration.
func (h *ForecastHandler) GetForecast(ctx context.Context, turnID string, health model.ServerHealth, field *model.FieldProfile) (*model.WeatherFacts, error) {
	entry, ok := h.deps.Dispatcher.Client().Server(ServerWeather)
	if !ok {
		return nil, errx.WrapConfig(fmt.Errorf("forecast handler: server %q not configured", ServerWeather))
	}

	if !entry.Enabled || !health.Healthy(ServerWeather) {
		logx.Debug().Str("server", ServerWeather).Msg("weather server unavailable, using synthetic forecast")
		return h.synthesize(), nil
	}

	args := map[string]any{}
	if field != nil {
		args["lat"] = field.Lat
		args["lon"] = field.Lon
	}
	results := h.deps.Dispatcher.Dispatch(ctx, turnID, map[string]toolcall.Call{
		"forecast": {Server: ServerWeather, Operation: OpGetForecast, Args: args},
	})
	res := results["forecast"]
	if !res.Success {
		return h.synthesize(), nil
	}

	var payload forecastPayload
	if err := decode(res.Data, &payload); err != nil || payload.TempC == nil || payload.RainExpected == nil {
		// Parse failure is a handler-level defect of the tool's payload,
		// logged distinctly from transport errors.
		logx.Error().Err(err).Str("server", ServerWeather).Msg("forecast payload unparseable, falling back")
		return h.synthesize(), nil
	}

	facts := &model.WeatherFacts{
		TempC:        *payload.TempC,
		RainExpected: *payload.RainExpected,
		Condition:    payload.Condition,
		Provenance:   model.ToolProvenance(ServerWeather),
	}
	if payload.HumidityPct != nil {
		facts.HumidityPct = *payload.HumidityPct
	}
	return facts, nil
}

// synthesize produces seasonal climatology for an arid growing region.
// Deterministic given the clock.
func (h *ForecastHandler) synthesize() *model.WeatherFacts {
	facts := &model.WeatherFacts{Provenance: model.ProvenanceSynthetic}
	if !h.deps.FallbackToSynthetic {
		return facts
	}

	month := h.deps.now().Month()
	switch {
	case month >= time.June && month <= time.September:
		facts.TempC = 36
		facts.HumidityPct = 35
		facts.Condition = "hot"
		// monsoon window
		facts.RainExpected = month == time.July || month == time.August
	case month >= time.December || month <= time.February:
		facts.TempC = 14
		facts.HumidityPct = 45
		facts.Condition = "mild"
	default:
		facts.TempC = 25
		facts.HumidityPct = 30
		facts.Condition = "dry"
	}
	return facts
}
