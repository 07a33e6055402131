package analyzer

import (
	"encoding/json"
	"strings"
)

// Outcome classifies how an Analysis was obtained.
type Outcome string

const (
	// OutcomeStructured means the model reply parsed into an object.
	OutcomeStructured Outcome = "structured"
	// OutcomeRaw means the reply did not parse and is kept verbatim in Raw.
	OutcomeRaw Outcome = "raw"
	// OutcomeUnavailable means no hosted credential is configured.
	OutcomeUnavailable Outcome = "unavailable"
	// OutcomeFailed means the hosted call itself failed.
	OutcomeFailed Outcome = "failed"
)

// Analysis is the symptom/disease hint for one report. Exactly one of Parsed
// and Raw is meaningful: Parsed when the model reply held a JSON object,
// Raw otherwise.
type Analysis struct {
	Parsed  map[string]interface{}
	Raw     string
	Outcome Outcome
	Stage   Stage
}

// Symptoms returns the "symptoms" entry as a list of non-empty strings.
// A comma-separated string is split.
func (a Analysis) Symptoms() []string {
	return a.stringList("symptoms")
}

// PossibleDiseases returns the "possible_diseases" entry like Symptoms.
func (a Analysis) PossibleDiseases() []string {
	return a.stringList("possible_diseases")
}

// IsStructured reports whether the analysis holds a parsed object.
func (a Analysis) IsStructured() bool {
	return a.Parsed != nil
}

// Value returns the JSON-ready form: the parsed object, or {"raw": Raw}.
func (a Analysis) Value() map[string]interface{} {
	if a.Parsed != nil {
		return a.Parsed
	}
	return map[string]interface{}{"raw": a.Raw}
}

// MarshalJSON encodes Value.
func (a Analysis) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Value())
}

// UnmarshalJSON restores an Analysis from its stored form. An object with
// only a "raw" string is read back as a raw analysis.
func (a *Analysis) UnmarshalJSON(data []byte) error {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		// Older rows may hold a bare JSON string
		var s string
		if strErr := json.Unmarshal(data, &s); strErr != nil {
			return err
		}
		*a = Analysis{Raw: s, Outcome: OutcomeRaw, Stage: StageRaw}
		return nil
	}
	if raw, ok := obj["raw"].(string); ok && len(obj) == 1 {
		*a = Analysis{Raw: raw, Outcome: OutcomeRaw, Stage: StageRaw}
		return nil
	}
	*a = Analysis{Parsed: obj, Outcome: OutcomeStructured, Stage: StageStrict}
	return nil
}

func (a Analysis) stringList(key string) []string {
	if a.Parsed == nil {
		return nil
	}

	var items []string
	switch v := a.Parsed[key].(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				items = append(items, s)
			}
		}
	case string:
		items = strings.Split(v, ",")
	}

	out := items[:0]
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
