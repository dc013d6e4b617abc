// Package regression fits log-linear hedonic price models by ordinary least
// squares and assembles their coefficients into comparison tables.
package regression

import (
	"math"
	"path"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnknownColumn is returned when a model references a column the frame
// does not have.
var ErrUnknownColumn = eris.New("regression: unknown column")

// Frame is a column store of float64 observations. NaN marks a missing
// value.
type Frame struct {
	n     int
	names []string
	cols  map[string][]float64
}

// NewFrame creates an empty frame of n rows.
func NewFrame(n int) *Frame {
	return &Frame{n: n, cols: make(map[string][]float64)}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.n }

// Names returns column names in insertion order.
func (f *Frame) Names() []string {
	return append([]string(nil), f.names...)
}

// Column returns the named column.
func (f *Frame) Column(name string) ([]float64, bool) {
	c, ok := f.cols[name]
	return c, ok
}

// AddColumn adds or replaces a column. Its length must match the frame.
func (f *Frame) AddColumn(name string, values []float64) error {
	if len(values) != f.n {
		return eris.Errorf("regression: column %q has %d rows, frame has %d", name, len(values), f.n)
	}
	if _, exists := f.cols[name]; !exists {
		f.names = append(f.names, name)
	}
	f.cols[name] = values
	return nil
}

// Filter returns a new frame with the rows for which keep returns true.
func (f *Frame) Filter(keep func(i int) bool) *Frame {
	var idx []int
	for i := 0; i < f.n; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	out := NewFrame(len(idx))
	for _, name := range f.names {
		src := f.cols[name]
		dst := make([]float64, len(idx))
		for j, i := range idx {
			dst[j] = src[i]
		}
		out.names = append(out.names, name)
		out.cols[name] = dst
	}
	return out
}

// Log adds name = ln(src). Zero and negative values become NaN.
func (f *Frame) Log(name, src string) error {
	c, ok := f.cols[src]
	if !ok {
		return eris.Wrapf(ErrUnknownColumn, "%s", src)
	}
	out := make([]float64, f.n)
	for i, v := range c {
		if v > 0 {
			out[i] = math.Log(v)
		} else {
			out[i] = math.NaN()
		}
	}
	return f.AddColumn(name, out)
}

// Interaction adds name = a * b.
func (f *Frame) Interaction(name, a, b string) error {
	ca, ok := f.cols[a]
	if !ok {
		return eris.Wrapf(ErrUnknownColumn, "%s", a)
	}
	cb, ok := f.cols[b]
	if !ok {
		return eris.Wrapf(ErrUnknownColumn, "%s", b)
	}
	out := make([]float64, f.n)
	for i := range out {
		out[i] = ca[i] * cb[i]
	}
	return f.AddColumn(name, out)
}

// Dummies adds one 0/1 indicator column "<prefix>_<category>" per distinct
// non-empty value, in sorted category order. Empty values get 0 in every
// indicator. dropFirst skips the first category and omit skips named
// reference categories. It returns the added column names.
func (f *Frame) Dummies(prefix string, values []string, dropFirst bool, omit ...string) ([]string, error) {
	if len(values) != f.n {
		return nil, eris.Errorf("regression: %d category values for %d rows", len(values), f.n)
	}
	skip := make(map[string]bool, len(omit))
	for _, o := range omit {
		skip[o] = true
	}

	seen := make(map[string]bool)
	var cats []string
	for _, v := range values {
		if v != "" && !seen[v] {
			seen[v] = true
			cats = append(cats, v)
		}
	}
	sort.Strings(cats)
	if dropFirst && len(cats) > 0 {
		cats = cats[1:]
	}

	var added []string
	for _, cat := range cats {
		if skip[cat] {
			continue
		}
		col := make([]float64, f.n)
		for i, v := range values {
			if v == cat {
				col[i] = 1
			}
		}
		name := prefix + "_" + cat
		if err := f.AddColumn(name, col); err != nil {
			return added, err
		}
		added = append(added, name)
	}
	return added, nil
}

// Expand resolves a variable list against the frame. Entries containing a
// glob metacharacter ("commune_*") expand to every matching column in
// insertion order, possibly none; plain names must exist.
func (f *Frame) Expand(vars []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, v := range vars {
		if !strings.ContainsAny(v, "*?[") {
			if _, ok := f.cols[v]; !ok {
				return nil, eris.Wrapf(ErrUnknownColumn, "%s", v)
			}
			add(v)
			continue
		}
		for _, name := range f.names {
			ok, err := path.Match(v, name)
			if err != nil {
				return nil, eris.Wrapf(err, "regression: bad pattern %q", v)
			}
			if ok {
				add(name)
			}
		}
	}
	return out, nil
}
