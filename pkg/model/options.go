package model

// PredictOptions controls a single predict call.
type PredictOptions struct {
	Type PredictionType `json:"type"`

	// EvalTime is required for survival and hazard. Order and duplicates
	// are preserved in the output.
	EvalTime []float64 `json:"eval_time,omitempty"`

	// Quantile levels, each in (0, 1). Defaults to 0.1 through 0.9.
	Quantile []float64 `json:"quantile,omitempty"`

	// Penalty selects one strength from a path model.
	Penalty *float64 `json:"penalty,omitempty"`

	// Multi requests one prediction per strength in Penalties.
	Multi     bool      `json:"multi,omitempty"`
	Penalties []float64 `json:"penalties,omitempty"`
}

// DefaultQuantiles are used when a quantile prediction names no levels.
var DefaultQuantiles = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}

// Keys returns the nested key values a curve type is evaluated at.
func (o PredictOptions) Keys() []float64 {
	if o.Type == TypeQuantile {
		if len(o.Quantile) == 0 {
			return DefaultQuantiles
		}
		return o.Quantile
	}
	return o.EvalTime
}
