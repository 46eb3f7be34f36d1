package waste

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Schema is the ordered feature layout produced by training. Prediction rows
// must be aligned to it before they reach the model.
type Schema struct {
	Version string   `json:"version"`
	Columns []string `json:"columns"`
	index   map[string]int
}

func NewSchema(columns []string) (*Schema, error) {
	if len(columns) == 0 {
		return nil, goerr.New("schema has no columns")
	}
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, goerr.New("duplicate schema column", goerr.V("column", c))
		}
		index[c] = i
	}
	sum := sha256.Sum256([]byte(strings.Join(columns, "\x00")))
	return &Schema{
		Version: hex.EncodeToString(sum[:6]),
		Columns: append([]string(nil), columns...),
		index:   index,
	}, nil
}

func (s *Schema) Width() int {
	return len(s.Columns)
}

func (s *Schema) Has(column string) bool {
	_, ok := s.index[column]
	return ok
}

// Align lays values out in schema order. Columns the row lacks are 0 and
// columns the schema lacks are dropped.
func (s *Schema) Align(values map[string]float64) []float64 {
	row := make([]float64, len(s.Columns))
	for col, v := range values {
		if i, ok := s.index[col]; ok {
			row[i] = v
		}
	}
	return row
}
