// Package ingest loads raw CRM lead exports and normalizes them into
// domain records.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/opensource-crm/leadhawk/internal/domain"
)

// Load reads a CSV export into raw rows keyed by column header.
// An unreadable table is the only fatal condition; short rows are padded
// and extra cells dropped so a single bad row never aborts the batch.
func Load(r io.Reader) ([]domain.RawLead, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}
	if len(header) > 0 {
		// CRM exports often carry a UTF-8 BOM
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []domain.RawLead
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(rows)+2, err)
		}

		row := make(domain.RawLead, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}
