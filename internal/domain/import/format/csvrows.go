package format

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/normalizer"
	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/sniffer"
)

// foldedHeaderReader folds the header row so struct tags can be written in
// lowercase without accents ("data lancamento") and still match however the
// bank spelled the column.
type foldedHeaderReader struct {
	r        *csv.Reader
	seenHead bool
}

func (f *foldedHeaderReader) Read() ([]string, error) {
	record, err := f.r.Read()
	if err != nil {
		return nil, err
	}
	if !f.seenHead {
		f.seenHead = true
		for i, h := range record {
			record[i] = normalizer.Fold(h)
		}
	}
	return record, nil
}

func (f *foldedHeaderReader) ReadAll() ([][]string, error) {
	var records [][]string
	for {
		record, err := f.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
}

// unmarshalRows decodes delimited data whose first line is the header into
// rows of T. A file holding only a header yields no rows.
func unmarshalRows[T any](data []byte, delimiter rune) ([]T, error) {
	var rows []T
	reader := &foldedHeaderReader{r: sniffer.NewReader(data, delimiter)}
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode csv rows: %w", err)
	}
	return rows, nil
}
