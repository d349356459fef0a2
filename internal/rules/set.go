package rules

import (
	"maps"

	"tunesmith/internal/catalog"
)

// SetName is the registry name of the Set rule.
const SetName = "Set"

// Set assigns static values, such as an album name for every item of a source.
type Set struct {
	Values map[string]any
}

// NewSet builds the rule from {"values": {...}}.
func NewSet(params map[string]any) (Rule, error) {
	values, err := mapParam(params, "values")
	if err != nil {
		return nil, err
	}
	return Set{Values: maps.Clone(values)}, nil
}

func (r Set) Name() string { return SetName }

func (r Set) Params() map[string]any {
	return map[string]any{"values": maps.Clone(r.Values)}
}

func (r Set) Apply(catalog.Entry, map[string]any) map[string]any {
	return maps.Clone(r.Values)
}
