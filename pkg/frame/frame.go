// Package frame provides the minimal columnar table used as model input.
package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Kind is the storage kind of a column.
type Kind int

const (
	// KindNumeric columns hold float64 values.
	KindNumeric Kind = iota

	// KindNominal columns hold categorical string values.
	KindNominal
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindNominal:
		return "nominal"
	default:
		return "unknown"
	}
}

// Column is a single named column.
type Column struct {
	Name string
	Kind Kind
	Num  []float64
	Str  []string
}

// Len returns the number of values in the column.
func (c Column) Len() int {
	if c.Kind == KindNominal {
		return len(c.Str)
	}
	return len(c.Num)
}

// Numeric builds a numeric column.
func Numeric(name string, values ...float64) Column {
	return Column{Name: name, Kind: KindNumeric, Num: values}
}

// Nominal builds a nominal column.
func Nominal(name string, values ...string) Column {
	return Column{Name: name, Kind: KindNominal, Str: values}
}

// Frame is an immutable set of equal-length columns.
type Frame struct {
	cols  []Column
	index map[string]int
	nrow  int
}

// New creates a frame, rejecting duplicate names and ragged columns.
func New(cols ...Column) (*Frame, error) {
	f := &Frame{
		cols:  make([]Column, 0, len(cols)),
		index: make(map[string]int, len(cols)),
	}

	for i, c := range cols {
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		if _, dup := f.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		if i == 0 {
			f.nrow = c.Len()
		} else if c.Len() != f.nrow {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name, c.Len(), f.nrow)
		}
		f.index[c.Name] = len(f.cols)
		f.cols = append(f.cols, c)
	}

	return f, nil
}

// MustNew is New for fixtures; it panics on error.
func MustNew(cols ...Column) *Frame {
	f, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return f
}

// NRow returns the number of rows.
func (f *Frame) NRow() int {
	return f.nrow
}

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the frame has a column.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column looks up a column by name.
func (f *Frame) Column(name string) (Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return Column{}, false
	}
	return f.cols[i], true
}

// Float returns the values of a numeric column.
func (f *Frame) Float(name string) ([]float64, error) {
	c, ok := f.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	if c.Kind != KindNumeric {
		return nil, fmt.Errorf("column %q is %s, expected numeric", name, c.Kind)
	}
	return c.Num, nil
}

// Head returns a frame with the first n rows.
func (f *Frame) Head(n int) *Frame {
	if n > f.nrow {
		n = f.nrow
	}
	cols := make([]Column, len(f.cols))
	for i, c := range f.cols {
		cols[i] = Column{Name: c.Name, Kind: c.Kind}
		if c.Kind == KindNominal {
			cols[i].Str = c.Str[:n]
		} else {
			cols[i].Num = c.Num[:n]
		}
	}
	out, _ := New(cols...)
	return out
}

// ReadCSV reads a header-first CSV. A column is numeric when every cell
// parses as a float, otherwise it is nominal.
func ReadCSV(r io.Reader) (*Frame, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv has no header")
	}

	header := records[0]
	rows := records[1:]
	cols := make([]Column, len(header))

	for j, name := range header {
		name = strings.TrimSpace(name)
		raw := make([]string, len(rows))
		nums := make([]float64, len(rows))
		numeric := true
		for i, row := range rows {
			if j >= len(row) {
				return nil, fmt.Errorf("row %d has %d fields, expected %d", i+2, len(row), len(header))
			}
			raw[i] = strings.TrimSpace(row[j])
			if numeric {
				v, perr := strconv.ParseFloat(raw[i], 64)
				if perr != nil {
					numeric = false
					continue
				}
				nums[i] = v
			}
		}
		if numeric {
			cols[j] = Numeric(name, nums...)
		} else {
			cols[j] = Nominal(name, raw...)
		}
	}

	return New(cols...)
}
