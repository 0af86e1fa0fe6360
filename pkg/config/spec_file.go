package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"

	"github.com/tidysurv/censored/pkg/formula"
	"github.com/tidysurv/censored/pkg/model"
)

// ValidationError is one problem found in a spec file.
type ValidationError struct {
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Path     string `json:"path,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		fmt.Fprintf(&b, "%s:%d:%d: ", e.File, e.Line, e.Column)
	}
	if e.Path != "" {
		b.WriteString(e.Path + ": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// SpecFileError collects every problem found in a spec file.
type SpecFileError struct {
	Errors []ValidationError
}

func (e *SpecFileError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		msgs[i] = v.String()
	}
	return "invalid model spec: " + strings.Join(msgs, "; ")
}

// ModelSpecConfig is the decoded scalar part of a spec file.
type ModelSpecConfig struct {
	Family  string `json:"family" validate:"required,oneof=survival_reg proportional_hazards"`
	Engine  string `json:"engine" validate:"required"`
	Mode    string `json:"mode,omitempty" validate:"omitempty,eq=censored regression"`
	Formula string `json:"formula" validate:"required"`
}

// ModelFile is a parsed spec file.
type ModelFile struct {
	Spec    model.Spec
	Formula *formula.Formula
}

// SpecParser reads CUE model specification files.
type SpecParser struct {
	ctx       *cue.Context
	schema    cue.Value
	validator *validator.Validate
}

// NewSpecParser compiles the built-in #ModelSpec schema.
func NewSpecParser() (*SpecParser, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(modelSpecSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile model spec schema: %w", err)
	}
	return &SpecParser{ctx: ctx, schema: schema, validator: validator.New()}, nil
}

// ParseFile parses a spec file from disk.
func (p *SpecParser) ParseFile(path string) (*ModelFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}
	return p.parse(string(content), path)
}

// ParseInline parses spec file content.
func (p *SpecParser) ParseInline(content string) (*ModelFile, error) {
	return p.parse(content, "inline")
}

func (p *SpecParser) parse(content, filename string) (*ModelFile, error) {
	val := p.ctx.CompileString(content, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, invalidSpec(convertCUEErrors(err))
	}

	m := val.LookupPath(cue.ParsePath("model"))
	if !m.Exists() {
		return nil, invalidSpec([]ValidationError{{File: filename, Path: "model", Message: "field is required", Severity: "error"}})
	}

	unified := p.schema.LookupPath(cue.ParsePath("#ModelSpec")).Unify(m)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, invalidSpec(convertCUEErrors(err))
	}

	var cfg ModelSpecConfig
	if err := unified.Decode(&cfg); err != nil {
		return nil, invalidSpec(convertCUEErrors(err))
	}
	if err := p.validator.Struct(cfg); err != nil {
		return nil, invalidSpec([]ValidationError{{File: filename, Path: "model", Message: err.Error(), Severity: "error"}})
	}

	var errs []ValidationError
	stdArgs, err := decodeArgs(unified.LookupPath(cue.ParsePath("args")))
	if err != nil {
		errs = append(errs, ValidationError{File: filename, Path: "model.args", Message: err.Error(), Severity: "error"})
	}
	engineArgs, err := decodeArgs(unified.LookupPath(cue.ParsePath("engine_args")))
	if err != nil {
		errs = append(errs, ValidationError{File: filename, Path: "model.engine_args", Message: err.Error(), Severity: "error"})
	}
	form, err := formula.Parse(cfg.Formula)
	if err != nil {
		errs = append(errs, ValidationError{File: filename, Path: "model.formula", Message: err.Error(), Severity: "error"})
	}
	if len(errs) > 0 {
		return nil, invalidSpec(errs)
	}

	spec := model.NewSpec(model.Family(cfg.Family)).WithEngine(model.EngineName(cfg.Engine), engineArgs)
	names := make([]string, 0, len(stdArgs))
	for k := range stdArgs {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		spec = spec.WithArg(k, stdArgs[k])
	}

	return &ModelFile{Spec: spec, Formula: form}, nil
}

func invalidSpec(errs []ValidationError) error {
	return model.NewInvalidArgumentError("model spec file is invalid", &SpecFileError{Errors: errs}).
		WithCode(model.ErrCodeBadData)
}

func decodeArgs(v cue.Value) (map[string]model.Arg, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Arg)
	for iter.Next() {
		a, err := argFromValue(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", iter.Selector(), err)
		}
		out[iter.Selector().String()] = a
	}
	return out, nil
}

// argFromValue converts a concrete #Arg. Numbers always become float64.
func argFromValue(v cue.Value) (model.Arg, error) {
	switch v.Kind() {
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return model.Arg{}, err
		}
		return model.Value(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return model.Arg{}, err
		}
		return model.Value(s), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return model.Arg{}, err
		}
		return model.Value(b), nil
	case cue.ListKind:
		list, err := v.List()
		if err != nil {
			return model.Arg{}, err
		}
		var out []float64
		for list.Next() {
			f, err := list.Value().Float64()
			if err != nil {
				return model.Arg{}, err
			}
			out = append(out, f)
		}
		return model.Value(out), nil
	case cue.StructKind:
		expr, err := v.LookupPath(cue.ParsePath("expr")).String()
		if err != nil {
			return model.Arg{}, err
		}
		return model.Expr(expr), nil
	default:
		return model.Arg{}, fmt.Errorf("unsupported argument kind %v", v.Kind())
	}
}

func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range errors.Errors(err) {
		var file string
		var line, column int
		if pos := errors.Positions(e); len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}
		out = append(out, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     strings.Join(e.Path(), "."),
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}
	return out
}
