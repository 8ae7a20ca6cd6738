package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"trinayana/packages/features"
)

const labelColumn = "CLASS_LABEL"

type datasetRow struct {
	URL   string
	Label string
}

// readDataset reads a CSV whose header has a url column and optionally a
// label column. Column names are matched case-insensitively.
func readDataset(r io.Reader) ([]datasetRow, bool, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, false, errors.New("input CSV is empty")
		}
		return nil, false, fmt.Errorf("failed to read CSV header: %w", err)
	}

	urlIdx, labelIdx := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "url":
			urlIdx = i
		case "label", strings.ToLower(labelColumn):
			labelIdx = i
		}
	}
	if urlIdx < 0 {
		return nil, false, errors.New("input CSV has no url column")
	}

	var rows []datasetRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}
		row := datasetRow{URL: field(rec, urlIdx)}
		if labelIdx >= 0 {
			row.Label = field(rec, labelIdx)
		}
		rows = append(rows, row)
	}
	return rows, labelIdx >= 0, nil
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return strings.TrimSpace(rec[i])
	}
	return ""
}

// writeDataset writes the training layout: id, the feature columns in
// model order, then CLASS_LABEL when the input was labeled.
func writeDataset(w io.Writer, rows []datasetRow, records []features.Record, hasLabel bool) error {
	if len(rows) != len(records) {
		return fmt.Errorf("have %d rows but %d feature records", len(rows), len(records))
	}

	cw := csv.NewWriter(w)
	header := append([]string{"id"}, features.Names[:]...)
	if hasLabel {
		header = append(header, labelColumn)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, rec := range records {
		line := make([]string, 0, len(header))
		line = append(line, strconv.Itoa(i+1))
		for _, v := range rec.Values() {
			line = append(line, strconv.Itoa(v))
		}
		if hasLabel {
			line = append(line, rows[i].Label)
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
