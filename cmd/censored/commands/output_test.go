package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tidysurv/censored/pkg/model"
)

func TestWriteResult(t *testing.T) {
	tests := []struct {
		name   string
		res    *model.Result
		header []string
		lines  int
	}{
		{
			name:   "scalars",
			res:    model.NewScalarResult(model.TypeTime, []float64{1.5, 2.5}),
			header: []string{"row", ".pred_time"},
			lines:  3,
		},
		{
			name: "curves",
			res: model.NewCurveResult(model.TypeSurvival, [][]model.Point{
				{{At: 1, Value: 0.9}, {At: 5, Value: 0.5}},
				{{At: 1, Value: 0.8}, {At: 5, Value: 0.4}},
			}),
			header: []string{"row", ".eval_time", ".pred_survival"},
			lines:  5,
		},
		{
			name: "scalar paths",
			res: model.NewPathResult(model.TypeLinearPred, [][]model.PathPoint{
				{{Penalty: 0.01, Value: -1}, {Penalty: 0.1, Value: -0.5}},
			}),
			header: []string{"row", "penalty", ".pred_linear_pred"},
			lines:  3,
		},
		{
			name: "curve paths",
			res: model.NewPathResult(model.TypeSurvival, [][]model.PathPoint{
				{{Penalty: 0.01, Curve: []model.Point{{At: 1, Value: 0.9}, {At: 2, Value: 0.7}}}},
			}),
			header: []string{"row", "penalty", ".eval_time", ".pred_survival"},
			lines:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeResult(&buf, tt.res); err != nil {
				t.Fatalf("writeResult() error = %v", err)
			}
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			if len(lines) != tt.lines {
				t.Fatalf("got %d lines, want %d:\n%s", len(lines), tt.lines, buf.String())
			}
			if got := strings.Fields(lines[0]); strings.Join(got, " ") != strings.Join(tt.header, " ") {
				t.Errorf("header = %v, want %v", got, tt.header)
			}
		})
	}
}

func TestFormatCell(t *testing.T) {
	msg := "boom"
	var none *string
	tests := []struct {
		in   interface{}
		want string
	}{
		{in: 0.123456789, want: "0.123457"},
		{in: 3, want: "3"},
		{in: &msg, want: "boom"},
		{in: none, want: "-"},
		{in: nil, want: "-"},
		{in: model.TypeHazard, want: "hazard"},
	}
	for _, tt := range tests {
		if got := formatCell(tt.in); got != tt.want {
			t.Errorf("formatCell(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
