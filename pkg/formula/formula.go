// Package formula parses survival formulas and turns frames into design
// matrices according to an engine's encoding rules.
package formula

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidysurv/censored/pkg/frame"
)

// Formula is a parsed `Surv(time, event) ~ terms` expression.
type Formula struct {
	// Raw is the original text.
	Raw string `json:"raw"`

	// Time is the follow-up time column.
	Time string `json:"time"`

	// Event is the event indicator column (non-zero means the event occurred).
	Event string `json:"event"`

	// Terms are the explicitly named predictors, in order.
	Terms []string `json:"terms,omitempty"`

	// Dot means "all remaining columns"; it is resolved against data at fit time.
	Dot bool `json:"dot,omitempty"`

	// Exclude lists columns removed with `- name`.
	Exclude []string `json:"exclude,omitempty"`
}

var survPattern = regexp.MustCompile(`^Surv\(\s*([A-Za-z_.][A-Za-z0-9_.]*)\s*,\s*([A-Za-z_.][A-Za-z0-9_.]*)\s*\)$`)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// Parse parses a formula string.
func Parse(s string) (*Formula, error) {
	lhs, rhs, ok := strings.Cut(s, "~")
	if !ok {
		return nil, fmt.Errorf("formula %q has no '~'", s)
	}

	m := survPattern.FindStringSubmatch(strings.TrimSpace(lhs))
	if m == nil {
		return nil, fmt.Errorf("formula outcome must be Surv(time, event), got %q", strings.TrimSpace(lhs))
	}

	f := &Formula{Raw: strings.TrimSpace(s), Time: m[1], Event: m[2]}

	rhs = strings.TrimSpace(rhs)
	if rhs == "" {
		return nil, fmt.Errorf("formula %q has no predictors", s)
	}

	// Normalise "a - b" into "a + -b" so a single split handles both.
	rhs = strings.ReplaceAll(rhs, "-", "+ -")
	seen := make(map[string]bool)
	for _, raw := range strings.Split(rhs, "+") {
		term := strings.TrimSpace(raw)
		if term == "" {
			continue
		}
		if strings.HasPrefix(term, "-") {
			name := strings.TrimSpace(strings.TrimPrefix(term, "-"))
			if !namePattern.MatchString(name) {
				return nil, fmt.Errorf("invalid excluded term %q", name)
			}
			f.Exclude = append(f.Exclude, name)
			continue
		}
		if term == "." {
			f.Dot = true
			continue
		}
		if !namePattern.MatchString(term) {
			return nil, fmt.Errorf("unsupported term %q", term)
		}
		if !seen[term] {
			seen[term] = true
			f.Terms = append(f.Terms, term)
		}
	}

	if !f.Dot && len(f.Terms) == 0 {
		return nil, fmt.Errorf("formula %q has no predictors", s)
	}

	return f, nil
}

// MustParse is Parse for static formulas; it panics on error.
func MustParse(s string) *Formula {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

// String returns the original formula text.
func (f *Formula) String() string {
	return f.Raw
}

// Predictors resolves the predictor columns against a frame. A dot expands to
// every column that is not an outcome, not already named and not excluded.
func (f *Formula) Predictors(fr *frame.Frame) ([]string, error) {
	for _, col := range []string{f.Time, f.Event} {
		if !fr.Has(col) {
			return nil, fmt.Errorf("outcome column %q not found", col)
		}
	}

	excluded := map[string]bool{f.Time: true, f.Event: true}
	for _, e := range f.Exclude {
		excluded[e] = true
	}

	var out []string
	seen := make(map[string]bool)
	for _, t := range f.Terms {
		if !fr.Has(t) {
			return nil, fmt.Errorf("predictor column %q not found", t)
		}
		if excluded[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}

	if f.Dot {
		for _, name := range fr.Names() {
			if excluded[name] || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("formula %q resolves to no predictors", f.Raw)
	}

	return out, nil
}
