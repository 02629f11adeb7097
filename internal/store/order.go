package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Document is a raw stored entity with its id.
type Document struct {
	ID   string
	Data []byte
}

// Page filters docs by prefix, orders them and slices out opts' window. Backends
// without a query engine share it.
func Page(docs []Document, opts ListOptions) ([][]byte, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, ErrInvalidInput
	}

	selected := make([]Document, 0, len(docs))
	for _, d := range docs {
		if strings.HasPrefix(d.ID, opts.Prefix) {
			selected = append(selected, d)
		}
	}

	if opts.OrderBy == "" {
		sort.Slice(selected, func(i, j int) bool { return selected[i].ID < selected[j].ID })
	} else {
		values := make(map[string]decimal.Decimal, len(selected))
		for _, d := range selected {
			v, err := numericField(d.Data, opts.OrderBy)
			if err != nil {
				return nil, err
			}
			values[d.ID] = v
		}
		sort.Slice(selected, func(i, j int) bool {
			a, b := values[selected[i].ID], values[selected[j].ID]
			if c := a.Cmp(b); c != 0 {
				return c > 0
			}
			return selected[i].ID < selected[j].ID
		})
	}

	if opts.Offset >= len(selected) {
		return [][]byte{}, nil
	}
	selected = selected[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(selected) {
		selected = selected[:opts.Limit]
	}

	out := make([][]byte, len(selected))
	for i, d := range selected {
		out[i] = d.Data
	}
	return out, nil
}

// numericField reads a decimal-string or number field; absent or null reads as zero.
func numericField(data []byte, field string) (decimal.Decimal, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode document: %w", err)
	}
	raw, ok := doc[field]
	if !ok || string(raw) == "null" {
		return decimal.Zero, nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return decimal.Zero, fmt.Errorf("%w: field %s is not numeric", ErrInvalidInput, field)
	}
	return d, nil
}
