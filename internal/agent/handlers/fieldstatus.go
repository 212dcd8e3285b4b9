package handlers

import (
	"context"
	"fmt"

	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
	"github.com/AgriMind-advisor-poc/server/internal/agent/toolcall"
	errx "github.com/AgriMind-advisor-poc/server/internal/core/error"
	logx "github.com/AgriMind-advisor-poc/server/pkg/logger"
)

// FieldStatusHandler resolves current field conditions (soil moisture,
// growth stage, irrigation schedule) from the field-rules service.
type FieldStatusHandler struct {
	deps Deps
}

func NewFieldStatusHandler(deps Deps) *FieldStatusHandler {
	return &FieldStatusHandler{deps: deps}
}

type fieldStatusPayload struct {
	Crop                string   `json:"crop"`
	SoilMoisturePct     *float64 `json:"soil_moisture_pct"`
	GrowthStage         string   `json:"growth_stage"`
	IrrigationScheduled *bool    `json:"irrigation_scheduled"`
}

// GetFieldStatus returns field facts for the turn. The returned error is
// non-nil only when the field-rules server is absent from configuration.
func (h *FieldStatusHandler) GetFieldStatus(ctx context.Context, turnID string, health model.ServerHealth, field *model.FieldProfile) (*model.FieldFacts, error) {
	entry, ok := h.deps.Dispatcher.Client().Server(ServerFieldRules)
	if !ok {
		return nil, errx.WrapConfig(fmt.Errorf("field status handler: server %q not configured", ServerFieldRules))
	}

	if !entry.Enabled || !health.Healthy(ServerFieldRules) {
		logx.Debug().Str("server", ServerFieldRules).Msg("field-rules server unavailable, using synthetic field status")
		return h.synthesize(field), nil
	}

	args := map[string]any{}
	if field != nil {
		args["field_id"] = field.FieldID
	}
	results := h.deps.Dispatcher.Dispatch(ctx, turnID, map[string]toolcall.Call{
		"field_status": {Server: ServerFieldRules, Operation: OpGetFieldStatus, Args: args},
	})
	res := results["field_status"]
	if !res.Success {
		return h.synthesize(field), nil
	}

	var payload fieldStatusPayload
	if err := decode(res.Data, &payload); err != nil || payload.SoilMoisturePct == nil {
		logx.Error().Err(err).Str("server", ServerFieldRules).Msg("field status payload unparseable, falling back")
		return h.synthesize(field), nil
	}

	facts := &model.FieldFacts{
		Crop:            payload.Crop,
		SoilMoisturePct: *payload.SoilMoisturePct,
		GrowthStage:     payload.GrowthStage,
		Provenance:      model.ToolProvenance(ServerFieldRules),
	}
	if payload.IrrigationScheduled != nil {
		facts.IrrigationScheduled = *payload.IrrigationScheduled
	}
	if facts.Crop == "" && field != nil {
		facts.Crop = field.Crop
	}
	return facts, nil
}

// synthesize derives a conservative field snapshot from the static profile.
func (h *FieldStatusHandler) synthesize(field *model.FieldProfile) *model.FieldFacts {
	facts := &model.FieldFacts{Provenance: model.ProvenanceSynthetic}
	if !h.deps.FallbackToSynthetic {
		return facts
	}

	// soil type drives the assumed retention midpoint
	facts.SoilMoisturePct = 40
	if field != nil {
		facts.Crop = field.Crop
		switch field.SoilType {
		case "sand", "sandy_loam":
			facts.SoilMoisturePct = 30
		case "clay", "clay_loam":
			facts.SoilMoisturePct = 50
		}
	}
	return facts
}
