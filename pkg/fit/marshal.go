package fit

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidysurv/censored/pkg/model"
	"github.com/tidysurv/censored/pkg/registry"
)

type envelope struct {
	Model  *model.FittedModel `json:"model"`
	Native json.RawMessage    `json:"native,omitempty"`
	FitErr string             `json:"fit_error,omitempty"`
}

// Marshal encodes a fitted model, including its native fit, as JSON.
func Marshal(m *model.FittedModel) ([]byte, error) {
	env := envelope{Model: m}
	if m.Native != nil {
		raw, err := json.Marshal(m.Native)
		if err != nil {
			return nil, fmt.Errorf("failed to encode native fit: %w", err)
		}
		env.Native = raw
	}
	if m.FitErr != nil {
		env.FitErr = m.FitErr.Error()
	}
	return json.Marshal(env)
}

// Unmarshal decodes a fitted model using the engine's native decoder.
func Unmarshal(reg *registry.Registry, data []byte) (*model.FittedModel, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode fitted model: %w", err)
	}
	if env.Model == nil {
		return nil, errors.New("encoded fitted model is empty")
	}
	m := env.Model

	recipe, err := reg.Lookup(m.Spec.Family, m.Spec.Engine)
	if err != nil {
		return nil, err
	}

	if env.FitErr != "" {
		m.FitErr = errors.New(env.FitErr)
	}

	if len(env.Native) > 0 {
		if recipe.Fit.Decode == nil {
			return nil, model.NewConfigurationError("engine cannot restore saved fits", nil).
				WithEngine(m.Spec.Family, m.Spec.Engine)
		}
		native, err := recipe.Fit.Decode(env.Native)
		if err != nil {
			return nil, fmt.Errorf("failed to decode native fit: %w", err)
		}
		m.Native = native
	}
	return m, nil
}
