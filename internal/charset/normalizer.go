// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

// Package charset repairs mis-decoded text in uploaded files before parsing.
//
// Uploads come from spreadsheet exports that are frequently Latin-1 or
// Windows-1252 rather than UTF-8. The first decoding is always UTF-8; when it
// shows damage (replacement characters or classic double-encoding sequences
// such as "Ã±") the raw bytes are re-decoded with a fixed candidate list and the
// best scoring text wins. Single-byte candidates only apply to input that is not
// valid UTF-8; valid UTF-8 can only be repaired by reversing double encoding.
package charset

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const (
	baselineScore      = 100
	replacementPenalty = 50
	mojibakePenalty    = 10
	accentBonus        = 2
)

// mojibakeSequences are UTF-8 accented letters that were decoded as Latin-1.
var mojibakeSequences = []string{"Ã±", "Ã¡", "Ã©", "Ã­", "Ã³", "Ãº"}

const accentedLetters = "ñáéíóúüÑÁÉÍÓÚÜ"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Candidate names, in the order they are tried.
const (
	EncodingUTF8        = "utf8"
	EncodingLatin1      = "latin1"
	EncodingWindows1252 = "windows-1252"
	EncodingASCII       = "ascii"
	EncodingMojibakeFix = "utf8-from-windows-1252"
)

// Report describes what Normalize did.
type Report struct {
	// Encoding is the winning candidate.
	Encoding string `json:"encoding"`

	// Repaired is true when a candidate other than the initial decode won.
	Repaired bool `json:"repaired"`

	// Attempted is true when the initial decode looked damaged.
	Attempted bool `json:"attempted"`

	Score            int `json:"score"`
	OriginalScore    int `json:"original_score"`
	ReplacementChars int `json:"replacement_chars"`
	AccentedChars    int `json:"accented_chars"`
}

type candidate struct {
	name   string
	decode func([]byte) (string, bool)

	// singleByte candidates reinterpret every byte and would garble
	// multi-byte UTF-8 sequences.
	singleByte bool
}

var candidates = []candidate{
	{EncodingUTF8, func(b []byte) (string, bool) { return decodeUTF8(b), true }, false},
	{EncodingLatin1, decodeWith(charmap.ISO8859_1), true},
	{EncodingWindows1252, decodeWith(charmap.Windows1252), true},
	{EncodingASCII, func(b []byte) (string, bool) { return decodeASCII(b), true }, true},
	{EncodingMojibakeFix, reverseMojibake, false},
}

// Normalize decodes raw as UTF-8 and repairs it when it looks damaged.
// Clean UTF-8 input is returned untouched, so Normalize is idempotent.
func Normalize(raw []byte) (string, Report) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	text := decodeUTF8(raw)
	score := Score(text)
	report := Report{
		Encoding:      EncodingUTF8,
		Score:         score,
		OriginalScore: score,
	}

	if NeedsRepair(text) {
		report.Attempted = true
		valid := utf8.Valid(raw)
		for _, c := range candidates {
			if valid && c.singleByte {
				continue
			}
			decoded, ok := c.decode(raw)
			if !ok {
				continue
			}
			// Strictly greater: ties keep the earlier (original) text.
			if s := Score(decoded); s > score {
				text, score = decoded, s
				report.Encoding = c.name
				report.Repaired = c.name != EncodingUTF8
			}
		}
		report.Score = score
	}

	report.ReplacementChars = strings.Count(text, string(utf8.RuneError))
	report.AccentedChars = countAccented(text)
	return text, report
}

// NormalizeReader reads r fully and normalizes it. Read failures are the only error.
func NormalizeReader(r io.Reader) (string, Report, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", Report{}, fmt.Errorf("failed to read file: %w", err)
	}
	text, report := Normalize(raw)
	return text, report, nil
}

// NeedsRepair reports whether text carries replacement characters or known
// double-encoding sequences.
func NeedsRepair(text string) bool {
	if strings.ContainsRune(text, utf8.RuneError) {
		return true
	}
	for _, seq := range mojibakeSequences {
		if strings.Contains(text, seq) {
			return true
		}
	}
	return false
}

// Score rates decoded text; higher is better.
func Score(text string) int {
	score := baselineScore
	score -= strings.Count(text, string(utf8.RuneError)) * replacementPenalty
	for _, seq := range mojibakeSequences {
		score -= strings.Count(text, seq) * mojibakePenalty
	}
	score += countAccented(text) * accentBonus
	return score
}

func countAccented(text string) int {
	n := 0
	for _, r := range text {
		if strings.ContainsRune(accentedLetters, r) {
			n++
		}
	}
	return n
}

// decodeUTF8 replaces every invalid byte with U+FFFD.
func decodeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size <= 1 {
			sb.WriteRune(utf8.RuneError)
			b = b[1:]
			continue
		}
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}

// decodeASCII keeps the low seven bits of every byte.
func decodeASCII(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c & 0x7F
	}
	return string(out)
}

func decodeWith(cm *charmap.Charmap) func([]byte) (string, bool) {
	return func(b []byte) (string, bool) {
		out, err := cm.NewDecoder().Bytes(b)
		if err != nil {
			return "", false
		}
		return string(out), true
	}
}

// reverseMojibake undoes a UTF-8 file that was decoded as Windows-1252 and
// saved again as UTF-8: encode back to single bytes, then read as UTF-8.
func reverseMojibake(b []byte) (string, bool) {
	if !utf8.Valid(b) {
		return "", false
	}
	single, err := charmap.Windows1252.NewEncoder().Bytes(b)
	if err != nil || !utf8.Valid(single) {
		return "", false
	}
	return string(single), true
}
