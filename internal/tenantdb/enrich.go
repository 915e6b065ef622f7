// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package tenantdb

import (
	"strings"

	"github.com/tomtom215/riqo-ingest/internal/tabular"
)

const (
	// DateColumn is the source column recognized for date enrichment.
	DateColumn = "fecha"

	// FormattedDateColumn receives DateColumn reformatted for the BI tool.
	FormattedDateColumn = "fecha_formateada"
)

// FormatDate turns DD/MM/YYYY into YYYY-MM-DD. Day and month are padded to
// two digits. Anything without exactly three '/'-separated parts is returned as is.
func FormatDate(s string) string {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return s
	}
	return parts[2] + "-" + padTwo(parts[1]) + "-" + padTwo(parts[0])
}

func padTwo(s string) string {
	if len(s) >= 2 {
		return s
	}
	return strings.Repeat("0", 2-len(s)) + s
}

// EnrichRow appends FormattedDateColumn when the row has a non-empty fecha.
// The fecha cell itself is never changed. Numeric dates are copied as is.
func EnrichRow(row tabular.Row) tabular.Row {
	cell, ok := row.Get(DateColumn)
	if !ok {
		return row
	}
	switch cell.Kind() {
	case tabular.CellText:
		s, _ := cell.Str()
		if s == "" {
			return row
		}
		return row.With(FormattedDateColumn, tabular.Text(FormatDate(s)))
	case tabular.CellNumber:
		if f, _ := cell.Float(); f == 0 {
			return row
		}
		return row.With(FormattedDateColumn, cell)
	default:
		return row
	}
}

// EnrichRows applies EnrichRow to every row.
func EnrichRows(rows []tabular.Row) []tabular.Row {
	out := make([]tabular.Row, len(rows))
	for i, row := range rows {
		out[i] = EnrichRow(row)
	}
	return out
}

// unionColumns lists every column in first-seen order.
func unionColumns(rows []tabular.Row) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, row := range rows {
		for _, f := range row {
			if _, ok := seen[f.Column]; ok {
				continue
			}
			seen[f.Column] = struct{}{}
			cols = append(cols, f.Column)
		}
	}
	return cols
}
