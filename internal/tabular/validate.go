// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package tabular

import (
	"errors"
	"strings"
)

var (
	// ErrNoDataRows is returned when the text lacks a header or a data line.
	ErrNoDataRows = errors.New("CSV must have at least a header row and one data row")

	// ErrNoColumns is returned when the header names no column.
	ErrNoColumns = errors.New("CSV must have at least one column")
)

var quoteStripper = strings.NewReplacer(`"`, "", "'", "")

// Validate is a cheap pre-check run before full parsing.
func Validate(text string) error {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return ErrNoDataRows
	}

	for _, part := range strings.Split(lines[0], ",") {
		if strings.TrimSpace(quoteStripper.Replace(part)) != "" {
			return nil
		}
	}
	return ErrNoColumns
}
