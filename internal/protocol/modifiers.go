package protocol

import (
	"encoding/json"
	"fmt"
)

// Modifier ids recognized in a results-modifiers list.
const (
	ModifierLowNumberSuppression = "Low Number Suppression"
	ModifierRounding             = "Rounding"
)

// ResultModifier is one entry of the results-modifiers list the
// coordinator (or the CLI --modifiers flag) supplies alongside a query.
// Threshold applies to Low Number Suppression, Nearest to Rounding; a
// nil value means "use the worker's configured default."
type ResultModifier struct {
	ID        string `json:"id"`
	Threshold *int   `json:"threshold,omitempty"`
	Nearest   *int   `json:"nearest,omitempty"`
}

// Modifiers is an ordered results-modifiers list. Order is preserved
// because disclosure filters are order-sensitive.
type Modifiers []ResultModifier

// DefaultModifiers builds the standard suppression-then-rounding pair
// from the worker's configured thresholds.
func DefaultModifiers(suppressionThreshold, roundingTarget int) Modifiers {
	return Modifiers{
		{ID: ModifierLowNumberSuppression, Threshold: &suppressionThreshold},
		{ID: ModifierRounding, Nearest: &roundingTarget},
	}
}

// ParseModifiers decodes a JSON array of modifier objects, as accepted
// by the CLI --modifiers flag.
func ParseModifiers(raw string) (Modifiers, error) {
	if raw == "" {
		return nil, nil
	}
	var m Modifiers
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("parse results modifiers: %w", err)
	}
	return m, nil
}

// SuppressionThreshold returns the Low Number Suppression threshold from
// the list, or def when the modifier is absent or carries no value.
func (m Modifiers) SuppressionThreshold(def int) int {
	for _, mod := range m {
		if mod.ID == ModifierLowNumberSuppression {
			if mod.Threshold != nil {
				return *mod.Threshold
			}
			return def
		}
	}
	return def
}

// RoundingTarget returns the Rounding nearest value from the list, or
// def when the modifier is absent or carries no value.
func (m Modifiers) RoundingTarget(def int) int {
	for _, mod := range m {
		if mod.ID == ModifierRounding {
			if mod.Nearest != nil {
				return *mod.Nearest
			}
			return def
		}
	}
	return def
}
