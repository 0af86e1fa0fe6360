package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/tidysurv/censored/pkg/model"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type table struct {
	tw *tabwriter.Writer
}

func newTable(w io.Writer, header ...string) *table {
	t := &table{tw: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
	fmt.Fprintln(t.tw, strings.Join(header, "\t"))
	return t
}

func (t *table) row(cells ...interface{}) {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = formatCell(c)
	}
	fmt.Fprintln(t.tw, strings.Join(parts, "\t"))
}

func (t *table) flush() error {
	return t.tw.Flush()
}

func formatCell(c interface{}) string {
	switch v := c.(type) {
	case float64:
		return strconv.FormatFloat(v, 'g', 6, 64)
	case nil:
		return "-"
	case *string:
		if v == nil {
			return "-"
		}
		return *v
	default:
		return fmt.Sprint(v)
	}
}

// writeResult renders a prediction as a long table with one line per row
// for scalar types and one line per nested entry otherwise.
func writeResult(w io.Writer, res *model.Result) error {
	switch {
	case res.Paths != nil:
		curve := false
		for _, row := range res.Paths {
			for _, p := range row {
				if p.Curve != nil {
					curve = true
				}
			}
		}
		if curve {
			key := model.KeyEvalTime
			if res.Type == model.TypeQuantile {
				key = model.KeyQuantile
			}
			t := newTable(w, "row", res.KeyName, key, res.ValueName)
			for i, row := range res.Paths {
				for _, p := range row {
					for _, pt := range p.Curve {
						t.row(i+1, p.Penalty, pt.At, pt.Value)
					}
				}
			}
			return t.flush()
		}
		t := newTable(w, "row", res.KeyName, res.ValueName)
		for i, row := range res.Paths {
			for _, p := range row {
				t.row(i+1, p.Penalty, p.Value)
			}
		}
		return t.flush()

	case res.Curves != nil:
		t := newTable(w, "row", res.KeyName, res.ValueName)
		for i, row := range res.Curves {
			for _, pt := range row {
				t.row(i+1, pt.At, pt.Value)
			}
		}
		return t.flush()

	default:
		t := newTable(w, "row", res.Column)
		for i, v := range res.Scalars {
			t.row(i+1, v)
		}
		return t.flush()
	}
}
