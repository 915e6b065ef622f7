// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

// Package tabular parses delimited text with a header row into typed rows.
//
// Header names are trimmed but keep their case, since they must match the
// destination table's column names. Structural problems (unterminated or stray
// quotes, an undetectable delimiter) are fatal; field-count mismatches and
// stray whitespace are reported as warnings.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// IssueKind categorizes a parse issue.
type IssueKind string

const (
	IssueQuotes        IssueKind = "Quotes"
	IssueDelimiter     IssueKind = "Delimiter"
	IssueFieldMismatch IssueKind = "FieldMismatch"
	IssueWhitespace    IssueKind = "Whitespace"
)

// Fatal reports whether issues of this kind abort parsing.
func (k IssueKind) Fatal() bool {
	return k == IssueQuotes || k == IssueDelimiter
}

// ParseIssue is one problem found while parsing.
type ParseIssue struct {
	Type    IssueKind `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	// Row is the zero-based data row index, -1 when not tied to a row.
	Row  int `json:"row"`
	Line int `json:"line,omitempty"`
}

// StructuralError is returned by Parse when fatal issues were found.
type StructuralError struct {
	Issues []ParseIssue
}

func (e *StructuralError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		msgs[i] = is.Message
	}
	return "CSV parsing errors: " + strings.Join(msgs, ", ")
}

// Result is the outcome of parsing.
type Result struct {
	Header    []string
	Rows      []Row
	Delimiter rune
	Warnings  []ParseIssue
}

// maxFatalIssues stops reading after this many structural errors.
const maxFatalIssues = 10

var delimiterCandidates = []rune{',', '\t', '|', ';'}

// Parse reads the whole text. Fatal issues produce a *StructuralError.
func Parse(text string) (*Result, error) {
	res, fatal := parse(text, -1)
	if len(fatal) > 0 {
		return res, &StructuralError{Issues: fatal}
	}
	return res, nil
}

// Preview parses at most n data rows. Structural issues are returned as
// warnings rather than failing the call.
func Preview(text string, n int) *Result {
	res, fatal := parse(text, n)
	res.Warnings = append(fatal, res.Warnings...)
	return res
}

func parse(text string, limit int) (*Result, []ParseIssue) {
	text = strings.TrimPrefix(text, "\ufeff")
	res := &Result{Delimiter: ','}
	var fatal []ParseIssue

	delim, ok := guessDelimiter(text)
	if ok {
		res.Delimiter = delim
	} else if hasContent(text) {
		fatal = append(fatal, ParseIssue{
			Type:    IssueDelimiter,
			Code:    "UndetectableDelimiter",
			Message: "Unable to auto-detect delimiting character; defaulted to ','",
			Row:     -1,
		})
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = res.Delimiter
	r.FieldsPerRecord = -1

	trimmedCells := 0
	headerRead := false
	headerWidth := 0
	var keep []int

	for limit < 0 || len(res.Rows) < limit {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fatal = append(fatal, quoteIssue(err, len(res.Rows)))
			if len(fatal) >= maxFatalIssues {
				break
			}
			continue
		}
		if blankRecord(record) {
			continue
		}
		line, _ := r.FieldPos(0)

		if !headerRead {
			headerRead = true
			headerWidth = len(record)
			res.Header, keep, res.Warnings = buildHeader(record, line, res.Warnings)
			continue
		}

		rowIdx := len(res.Rows)
		if len(record) != headerWidth {
			res.Warnings = append(res.Warnings, mismatchIssue(headerWidth, len(record), rowIdx, line))
		}

		row := make(Row, 0, len(res.Header))
		for i, col := range res.Header {
			src := keep[i]
			cell := Null()
			if src < len(record) {
				raw := record[src]
				cell = Coerce(raw)
				if raw != "" && raw != strings.TrimSpace(raw) {
					trimmedCells++
				}
			}
			row = append(row, Field{Column: col, Value: cell})
		}
		res.Rows = append(res.Rows, row)
	}

	if trimmedCells > 0 {
		res.Warnings = append(res.Warnings, ParseIssue{
			Type:    IssueWhitespace,
			Code:    "TrimmedCells",
			Message: fmt.Sprintf("%d cells had surrounding whitespace removed", trimmedCells),
			Row:     -1,
		})
	}
	return res, fatal
}

// buildHeader trims names and drops unnamed columns. keep maps each header
// position back to its record index.
func buildHeader(record []string, line int, warnings []ParseIssue) ([]string, []int, []ParseIssue) {
	header := make([]string, 0, len(record))
	keep := make([]int, 0, len(record))
	for i, raw := range record {
		name := strings.TrimSpace(raw)
		if name == "" {
			warnings = append(warnings, ParseIssue{
				Type:    IssueFieldMismatch,
				Code:    "EmptyHeader",
				Message: fmt.Sprintf("Column %d has no name and was ignored", i+1),
				Row:     -1,
				Line:    line,
			})
			continue
		}
		if name != raw {
			warnings = append(warnings, ParseIssue{
				Type:    IssueWhitespace,
				Code:    "TrimmedHeader",
				Message: fmt.Sprintf("Header %q had surrounding whitespace removed", name),
				Row:     -1,
				Line:    line,
			})
		}
		header = append(header, name)
		keep = append(keep, i)
	}
	return header, keep, warnings
}

func mismatchIssue(expected, got, row, line int) ParseIssue {
	code, label := "TooFewFields", "Too few fields"
	if got > expected {
		code, label = "TooManyFields", "Too many fields"
	}
	return ParseIssue{
		Type:    IssueFieldMismatch,
		Code:    code,
		Message: fmt.Sprintf("%s: expected %d fields but parsed %d", label, expected, got),
		Row:     row,
		Line:    line,
	}
}

func quoteIssue(err error, row int) ParseIssue {
	issue := ParseIssue{Type: IssueQuotes, Code: "InvalidQuotes", Message: err.Error(), Row: row}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		issue.Line = pe.Line
		switch {
		case errors.Is(pe.Err, csv.ErrQuote):
			issue.Code = "MissingQuotes"
			issue.Message = fmt.Sprintf("Quoted field unterminated or malformed (line %d)", pe.Line)
		case errors.Is(pe.Err, csv.ErrBareQuote):
			issue.Message = fmt.Sprintf("Unexpected quote in unquoted field (line %d)", pe.Line)
		}
	}
	return issue
}

func blankRecord(record []string) bool {
	return len(record) == 1 && strings.TrimSpace(record[0]) == ""
}

func hasContent(text string) bool {
	return strings.TrimSpace(text) != ""
}

// guessDelimiterSample is the number of non-blank records inspected.
const guessDelimiterSample = 10

// guessDelimiter picks the candidate giving the most consistent multi-column
// split over the first records. A single-column sample is undetectable.
func guessDelimiter(text string) (rune, bool) {
	var (
		best      rune
		bestDelta = -1
		bestAvg   float64
		found     bool
	)
	for _, delim := range delimiterCandidates {
		r := csv.NewReader(strings.NewReader(text))
		r.Comma = delim
		r.FieldsPerRecord = -1

		rows, delta, total, prev := 0, 0, 0, -1
		for rows < guessDelimiterSample {
			record, err := r.Read()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				continue
			}
			if blankRecord(record) {
				continue
			}
			rows++
			total += len(record)
			if prev >= 0 {
				delta += abs(len(record) - prev)
			}
			prev = len(record)
		}
		if rows == 0 {
			continue
		}
		avg := float64(total) / float64(rows)
		if avg <= 1.99 {
			continue
		}
		if !found || delta < bestDelta || (delta == bestDelta && avg > bestAvg) {
			best, bestDelta, bestAvg, found = delim, delta, avg, true
		}
	}
	return best, found
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
