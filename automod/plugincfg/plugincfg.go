// Package plugincfg resolves a plugin's effective configuration: a base
// config plus an ordered list of level-gated partial overrides, merged
// shallowly in declaration order.
package plugincfg

import (
	"encoding/json"

	"github.com/warden-project/warden/automod/condition"
)

// Override is one conditional patch. Config holds a partial document; top
// level keys from it fully replace the corresponding base keys (arrays and
// nested objects are replaced, not deep-merged).
type Override struct {
	Level  string          `json:"level"`
	Config json.RawMessage `json:"config"`
}

// PluginConfig pairs a plugin's base config with its overrides, as read from
// a guild settings snapshot.
type PluginConfig[T any] struct {
	Config    T          `json:"config"`
	Overrides []Override `json:"overrides,omitempty"`
}

// Resolve produces the effective config for a principal at the given level.
// Every override whose level condition matches is applied in order, so later
// matching overrides win. Resolution is pure: the input is never mutated, and
// identical inputs always yield structurally identical output.
//
// A malformed override (unparseable condition or non-object patch) is
// skipped, never fatal. If anything about the merge round-trip fails the base
// config is returned unchanged.
func Resolve[T any](pc PluginConfig[T], level int) T {
	if len(pc.Overrides) == 0 {
		return pc.Config
	}

	base, err := json.Marshal(pc.Config)
	if err != nil {
		return pc.Config
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return pc.Config
	}

	matched := false
	for _, ov := range pc.Overrides {
		if !condition.EvaluateLevel(ov.Level, level) {
			continue
		}
		var patch map[string]json.RawMessage
		if err := json.Unmarshal(ov.Config, &patch); err != nil {
			continue
		}
		for k, v := range patch {
			merged[k] = v
		}
		matched = true
	}
	if !matched {
		return pc.Config
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return pc.Config
	}
	var effective T
	if err := json.Unmarshal(out, &effective); err != nil {
		return pc.Config
	}
	return effective
}
