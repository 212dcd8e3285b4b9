package model

import "fmt"

// Provenance tags where a fact value came from: a real tool call, a local
// synthetic fallback, or a deterministic rule.
type Provenance string

const (
	ProvenanceSynthetic Provenance = "synthetic"
)

// ToolProvenance returns the provenance tag for data produced by a named
// tool server, e.g. "tool:openweather".
func ToolProvenance(server string) Provenance {
	return Provenance("tool:" + server)
}

// IsTool reports whether the value came from a real external tool call.
func (p Provenance) IsTool() bool {
	return len(p) > 5 && p[:5] == "tool:"
}

// UserProfile describes the farmer asking the question.
type UserProfile struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Units  string `json:"units,omitempty"`
}

// FieldProfile is the static description of the field under advisory.
type FieldProfile struct {
	FieldID  string  `json:"field_id"`
	Crop     string  `json:"crop"`
	SoilType string  `json:"soil_type,omitempty"`
	Region   string  `json:"region,omitempty"`
	Lat      float64 `json:"lat,omitempty"`
	Lon      float64 `json:"lon,omitempty"`
}

// WeatherFacts is the typed result of the forecast capability.
type WeatherFacts struct {
	TempC        float64    `json:"temp_c"`
	HumidityPct  float64    `json:"humidity_pct"`
	RainExpected bool       `json:"rain_expected"`
	Condition    string     `json:"condition,omitempty"`
	Provenance   Provenance `json:"provenance"`
}

// FieldFacts is the typed result of the field-conditions capability.
type FieldFacts struct {
	Crop                string     `json:"crop"`
	SoilMoisturePct     float64    `json:"soil_moisture_pct"`
	GrowthStage         string     `json:"growth_stage,omitempty"`
	IrrigationScheduled bool       `json:"irrigation_scheduled"`
	Provenance          Provenance `json:"provenance"`
}

// ServerHealth is the per-turn availability snapshot of tool servers.
// Refreshed at most once per turn; read-only during fact gathering.
type ServerHealth map[string]bool

// Healthy reports whether the named server may be called this turn.
// Servers missing from the snapshot are treated as healthy so a skipped
// probe never suppresses a call.
func (h ServerHealth) Healthy(server string) bool {
	if h == nil {
		return true
	}
	up, ok := h[server]
	if !ok {
		return true
	}
	return up
}

// ===== Decision context for rule evaluation =====

// FactKind discriminates FactValue variants.
type FactKind int

const (
	FactNumber FactKind = iota
	FactString
	FactBool
)

// FactValue is a tagged scalar fed to predicate evaluation.
type FactValue struct {
	Kind FactKind
	Num  float64
	Str  string
	Bool bool
}

func NumberFact(v float64) FactValue { return FactValue{Kind: FactNumber, Num: v} }
func StringFact(v string) FactValue  { return FactValue{Kind: FactString, Str: v} }
func BoolFact(v bool) FactValue      { return FactValue{Kind: FactBool, Bool: v} }

// String renders the value for rationale text.
func (v FactValue) String() string {
	switch v.Kind {
	case FactNumber:
		return fmt.Sprintf("%g", v.Num)
	case FactBool:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return v.Str
	}
}

// DecisionContext is the merged fact set a turn's rules are evaluated against.
type DecisionContext struct {
	Intent string
	Facts  map[string]FactValue
}

// Fact returns the named fact, if present.
func (c DecisionContext) Fact(name string) (FactValue, bool) {
	v, ok := c.Facts[name]
	return v, ok
}

// BuildDecisionContext flattens the typed context bag into named facts for
// the validator. Handlers own disjoint keys so the flattening never collides.
func BuildDecisionContext(intent string, field *FieldProfile, weather *WeatherFacts, fieldFacts *FieldFacts) DecisionContext {
	facts := make(map[string]FactValue)
	if field != nil {
		facts["crop"] = StringFact(field.Crop)
		if field.SoilType != "" {
			facts["soil_type"] = StringFact(field.SoilType)
		}
	}
	if weather != nil {
		facts["temp_c"] = NumberFact(weather.TempC)
		facts["humidity_pct"] = NumberFact(weather.HumidityPct)
		facts["rain_expected"] = BoolFact(weather.RainExpected)
	}
	if fieldFacts != nil {
		if fieldFacts.Crop != "" {
			facts["crop"] = StringFact(fieldFacts.Crop)
		}
		facts["soil_moisture_pct"] = NumberFact(fieldFacts.SoilMoisturePct)
		facts["irrigation_scheduled"] = BoolFact(fieldFacts.IrrigationScheduled)
		if fieldFacts.GrowthStage != "" {
			facts["growth_stage"] = StringFact(fieldFacts.GrowthStage)
		}
	}
	return DecisionContext{Intent: intent, Facts: facts}
}
