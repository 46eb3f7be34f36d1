// Package waste trains the agricultural waste regressor and serves
// predictions against the schema it was trained on.
package waste

import (
	"encoding/csv"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

const LabelColumn = "waste_produced"

// CategoricalColumns are one-hot encoded, in this order.
var CategoricalColumns = []string{"crop_type", "harvest_season", "soil_type", "farming_technique"}

var ErrBadDataset = goerr.New("invalid waste dataset")

// Dataset is the raw training table. Numeric columns are parsed on load;
// categorical columns stay as strings until Encode.
type Dataset struct {
	Header  []string
	numeric map[string][]float64
	text    map[string][]string
	rows    int
}

func (d *Dataset) Rows() int {
	return d.rows
}

func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "open dataset", goerr.V("path", path))
	}
	defer f.Close()

	ds, err := ReadCSV(f)
	if err != nil {
		return nil, goerr.Wrap(err, "read dataset", goerr.V("path", path))
	}
	return ds, nil
}

func ReadCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, goerr.Wrap(ErrBadDataset, "missing header", goerr.V("cause", err.Error()))
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	required := append([]string{LabelColumn}, CategoricalColumns...)
	for _, col := range required {
		if !slices.Contains(header, col) {
			return nil, goerr.Wrap(ErrBadDataset, "missing column", goerr.V("column", col))
		}
	}

	ds := &Dataset{
		Header:  header,
		numeric: map[string][]float64{},
		text:    map[string][]string{},
	}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(ErrBadDataset, "malformed row", goerr.V("line", line), goerr.V("cause", err.Error()))
		}
		for i, col := range header {
			cell := strings.TrimSpace(record[i])
			if slices.Contains(CategoricalColumns, col) {
				ds.text[col] = append(ds.text[col], cell)
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, goerr.Wrap(ErrBadDataset, "non-numeric value",
					goerr.V("line", line), goerr.V("column", col), goerr.V("value", cell))
			}
			ds.numeric[col] = append(ds.numeric[col], v)
		}
		ds.rows++
	}
	if ds.rows == 0 {
		return nil, goerr.Wrap(ErrBadDataset, "no rows")
	}
	return ds, nil
}

// Encode one-hot encodes the categorical columns. Numeric feature columns
// keep their file order, followed by "<column>_<value>" indicators for each
// categorical column with values sorted. The label column is returned
// separately.
func (d *Dataset) Encode() (*Schema, [][]float64, []float64, error) {
	var columns []string
	for _, col := range d.Header {
		if col == LabelColumn || slices.Contains(CategoricalColumns, col) {
			continue
		}
		columns = append(columns, col)
	}
	for _, col := range CategoricalColumns {
		values := slices.Clone(d.text[col])
		slices.Sort(values)
		for _, v := range slices.Compact(values) {
			columns = append(columns, indicator(col, v))
		}
	}

	schema, err := NewSchema(columns)
	if err != nil {
		return nil, nil, nil, err
	}

	X := make([][]float64, d.rows)
	for i := range X {
		row := make(map[string]float64, len(columns))
		for col, vals := range d.numeric {
			row[col] = vals[i]
		}
		for _, col := range CategoricalColumns {
			row[indicator(col, d.text[col][i])] = 1
		}
		X[i] = schema.Align(row)
	}
	return schema, X, slices.Clone(d.numeric[LabelColumn]), nil
}

func indicator(column, value string) string {
	return column + "_" + value
}
