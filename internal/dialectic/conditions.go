package dialectic

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// targetAliases normalizes the handful of target spellings a thesis/
// antithesis author might use into the canonical field name a condition
// actually constrains.
var targetAliases = map[string]string{
	"risk":                "risk_score",
	"risk_score":          "risk_score",
	"monitor":             "monitoring_duration",
	"monitoring":          "monitoring_duration",
	"duration":            "monitoring_duration",
	"time":                "monitoring_duration",
	"monitoring_duration": "monitoring_duration",
}

// monitorUnits are the recognized units for "Monitor for N <unit>".
var monitorUnits = map[string]bool{"hours": true, "hour": true, "minutes": true, "minute": true}

// ParseCondition parses one free-text condition proposed during a dialectic
// exchange into a structured DialecticCondition. It recognizes:
//
//	Reduce|Increase|Set <target> to <value>
//	Monitor for <N> <hours|minutes>
//	Keep <target> below|above <value>
//	Limit <target> to <value>
//	Set <target> <value>
//
// Unrecognized syntax still produces a condition — action "unknown" with Raw
// set to the original text verbatim — so every proposed condition is
// preserved for audit even when it can't be mechanically applied.
func ParseCondition(raw string) DialecticConditionInput {
	trimmed := strings.TrimSpace(raw)
	words := tokenize(trimmed)
	unknown := DialecticConditionInput{Action: "unknown", Raw: trimmed}
	if len(words) == 0 {
		return unknown
	}

	verb := strings.ToLower(words[0])
	switch verb {
	case "reduce", "increase", "set":
		if c, ok := parseVerbTargetToValue(verb, words, trimmed); ok {
			return c
		}
	case "monitor":
		if c, ok := parseMonitor(words, trimmed); ok {
			return c
		}
	case "keep":
		if c, ok := parseKeep(words, trimmed); ok {
			return c
		}
	case "limit":
		if c, ok := parseLimit(words, trimmed); ok {
			return c
		}
	}
	return unknown
}

// DialecticConditionInput mirrors model.DialecticCondition's parseable
// fields without the AppliedAt timestamp, which only makes sense once a
// condition is actually applied to an identity.
type DialecticConditionInput struct {
	Action    string
	Target    string
	Value     float64
	Unit      string
	Direction string
	Raw       string
}

// ToCondition stamps the parsed input with appliedAt, producing the model
// type SubmitThesis/SubmitSynthesis actually carry.
func (c DialecticConditionInput) ToCondition(appliedAt time.Time) model.DialecticCondition {
	return model.DialecticCondition{
		Action:    c.Action,
		Target:    c.Target,
		Value:     c.Value,
		Unit:      c.Unit,
		Direction: c.Direction,
		Raw:       c.Raw,
		AppliedAt: appliedAt,
	}
}

// ParseConditions parses a batch of raw condition texts.
func ParseConditions(raws []string, appliedAt time.Time) []model.DialecticCondition {
	out := make([]model.DialecticCondition, 0, len(raws))
	for _, raw := range raws {
		out = append(out, ParseCondition(raw).ToCondition(appliedAt))
	}
	return out
}

// tokenize splits on runs of whitespace, treating the input as already
// free of the punctuation that would matter to sentence splitting —
// conditions are short imperative clauses, not prose.
func tokenize(s string) []string {
	var words []string
	var cur strings.Builder
	for _, r := range s {
		if unicode.IsSpace(r) {
			if cur.Len() > 0 {
				words = append(words, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		words = append(words, cur.String())
	}
	return words
}

func normalizeTarget(word string) (string, bool) {
	t, ok := targetAliases[strings.ToLower(strings.Trim(word, ".,:;"))]
	return t, ok
}

func parseFloat(word string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.Trim(word, ".,:;%"), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseVerbTargetToValue handles "Reduce|Increase|Set <target> to <value>".
func parseVerbTargetToValue(verb string, words []string, raw string) (DialecticConditionInput, bool) {
	// words: [verb, target, "to", value, ...]
	if len(words) < 4 || !strings.EqualFold(words[2], "to") {
		return parseSetTargetValue(verb, words, raw)
	}
	target, ok := normalizeTarget(words[1])
	if !ok {
		return DialecticConditionInput{}, false
	}
	value, ok := parseFloat(words[3])
	if !ok {
		return DialecticConditionInput{}, false
	}
	action := verb
	return DialecticConditionInput{Action: action, Target: target, Value: value, Raw: raw}, true
}

// parseSetTargetValue handles the shorter "Set <target> <value>" form with no "to".
func parseSetTargetValue(verb string, words []string, raw string) (DialecticConditionInput, bool) {
	if verb != "set" || len(words) < 3 {
		return DialecticConditionInput{}, false
	}
	target, ok := normalizeTarget(words[1])
	if !ok {
		return DialecticConditionInput{}, false
	}
	value, ok := parseFloat(words[2])
	if !ok {
		return DialecticConditionInput{}, false
	}
	return DialecticConditionInput{Action: "set", Target: target, Value: value, Raw: raw}, true
}

// parseMonitor handles "Monitor for <N> <hours|minutes>".
func parseMonitor(words []string, raw string) (DialecticConditionInput, bool) {
	if len(words) < 4 || !strings.EqualFold(words[1], "for") {
		return DialecticConditionInput{}, false
	}
	value, ok := parseFloat(words[2])
	if !ok {
		return DialecticConditionInput{}, false
	}
	unit := strings.ToLower(strings.Trim(words[3], ".,:;"))
	if !monitorUnits[unit] {
		return DialecticConditionInput{}, false
	}
	return DialecticConditionInput{
		Action: "monitor",
		Target: "monitoring_duration",
		Value:  value,
		Unit:   unit,
		Raw:    raw,
	}, true
}

// parseKeep handles "Keep <target> below|above <value>".
func parseKeep(words []string, raw string) (DialecticConditionInput, bool) {
	if len(words) < 4 {
		return DialecticConditionInput{}, false
	}
	target, ok := normalizeTarget(words[1])
	if !ok {
		return DialecticConditionInput{}, false
	}
	direction := strings.ToLower(words[2])
	if direction != "below" && direction != "above" {
		return DialecticConditionInput{}, false
	}
	value, ok := parseFloat(words[3])
	if !ok {
		return DialecticConditionInput{}, false
	}
	return DialecticConditionInput{
		Action:    "limit",
		Target:    target,
		Value:     value,
		Direction: direction,
		Raw:       raw,
	}, true
}

// parseLimit handles "Limit <target> to <value>".
func parseLimit(words []string, raw string) (DialecticConditionInput, bool) {
	if len(words) < 4 || !strings.EqualFold(words[2], "to") {
		return DialecticConditionInput{}, false
	}
	target, ok := normalizeTarget(words[1])
	if !ok {
		return DialecticConditionInput{}, false
	}
	value, ok := parseFloat(words[3])
	if !ok {
		return DialecticConditionInput{}, false
	}
	return DialecticConditionInput{Action: "limit", Target: target, Value: value, Raw: raw}, true
}
