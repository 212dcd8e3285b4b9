package parsers

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
	logx "github.com/AgriMind-advisor-poc/server/pkg/logger"
)

const (
	recDelim = "##"
	tupDelim = "<||>"
	endDelim = "<|COMPLETE|>"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024
	maxRecords    = 100
	maxTupleLen   = 4 * 1024
)

type rawTuple struct {
	Type  string
	Parts []string
}

func parseRawTuple(s string) (*rawTuple, error) {
	if s == "" {
		return nil, fmt.Errorf("empty tuple")
	}
	if len(s) > maxTupleLen {
		return nil, fmt.Errorf("tuple too large")
	}

	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return nil, fmt.Errorf("invalid tuple parens")
	}
	inner := s[1 : len(s)-1]
	parts := strings.SplitN(inner, tupDelim, 4)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid tuple parts")
	}
	return &rawTuple{Type: strings.TrimSpace(parts[0]), Parts: parts}, nil
}

func parseConfidence(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
		return 0, fmt.Errorf("confidence out of range")
	}
	return v, nil
}

// ParseClassifierResponse extracts the primary intent and entities from the
// classifier's delimited tuple output. Malformed records are skipped, never
// fatal; a response with no valid intent record yields ok=false so the
// caller can fall back to keyword classification.
func ParseClassifierResponse(content string) (result *model.IntentResult, ok bool) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "intent_parser").Msgf("panic recovered: %v", r)
			result, ok = nil, false
		}
	}()

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "intent_parser").
			Int("orig_len", len(content)).
			Msg("classifier content truncated due to size limit")
		content = content[:maxContentLen]
	}
	if idx := strings.Index(content, endDelim); idx >= 0 {
		content = content[:idx]
	}

	best := model.IntentResult{Entities: map[string]string{}}
	found := false

	records := strings.Split(content, recDelim)
	processed := 0
	for _, rec := range records {
		if processed >= maxRecords {
			logx.Warn().Str("component", "intent_parser").Msg("record processing capped")
			break
		}
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		processed++

		rt, err := parseRawTuple(rec)
		if err != nil {
			continue
		}

		switch rt.Type {
		case "intent":
			if len(rt.Parts) < 3 {
				continue
			}
			name := strings.TrimSpace(rt.Parts[1])
			if name == "" || !utf8.ValidString(name) {
				continue
			}
			conf, err := parseConfidence(rt.Parts[2])
			if err != nil {
				continue
			}
			if !found || conf > best.Confidence {
				best.Name = name
				best.Confidence = conf
			}
			found = true

		case "entity":
			if len(rt.Parts) < 4 {
				continue
			}
			etype := strings.TrimSpace(rt.Parts[1])
			val := strings.TrimSpace(rt.Parts[2])
			if etype == "" || val == "" || !utf8.ValidString(etype) || !utf8.ValidString(val) {
				continue
			}
			if _, err := parseConfidence(rt.Parts[3]); err != nil {
				continue
			}
			best.Entities[etype] = val
		}
	}

	if !found {
		return nil, false
	}
	return &best, true
}

// keyword buckets for the deterministic fallback classifier
var keywordIntents = []struct {
	intent   string
	keywords []string
}{
	{"irrigation_advice", []string{"irrigat", "water"}},
	{"pest_treatment", []string{"pest", "insect", "aphid", "worm", "weevil"}},
	{"fertilization", []string{"fertil", "nitrogen", "nutrient"}},
	{"weather_inquiry", []string{"weather", "forecast", "rain", "temperature", "heat"}},
}

// KeywordClassify is the synthetic fallback when the model output carries no
// usable intent record (or the model call itself failed). Confidence is the
// neutral 0.5 prior.
func KeywordClassify(query string) *model.IntentResult {
	lower := strings.ToLower(query)
	for _, bucket := range keywordIntents {
		for _, kw := range bucket.keywords {
			if strings.Contains(lower, kw) {
				return &model.IntentResult{Name: bucket.intent, Confidence: 0.5, Synthetic: true}
			}
		}
	}
	return &model.IntentResult{Name: "general_advice", Confidence: 0.5, Synthetic: true}
}
