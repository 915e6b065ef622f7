// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package tabular

import "testing"

func TestCoerce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw      string
		wantKind CellKind
		wantVal  any
	}{
		{"", CellNull, nil},
		{"42", CellNumber, 42.0},
		{" 3.5 ", CellNumber, 3.5},
		{"-7", CellNumber, -7.0},
		{"1e3", CellNumber, 1000.0},
		{"007", CellNumber, 7.0},
		{"  Madrid  ", CellText, "Madrid"},
		{"12abc", CellText, "12abc"},
		{"NaN", CellText, "NaN"},
		{"Inf", CellText, "Inf"},
		{"   ", CellText, ""},
		{"1,5", CellText, "1,5"},
	}
	for _, tt := range tests {
		got := Coerce(tt.raw)
		if got.Kind() != tt.wantKind {
			t.Errorf("Coerce(%q).Kind() = %v, want %v", tt.raw, got.Kind(), tt.wantKind)
			continue
		}
		if got.Value() != tt.wantVal {
			t.Errorf("Coerce(%q).Value() = %v, want %v", tt.raw, got.Value(), tt.wantVal)
		}
	}
}

func TestCell_String(t *testing.T) {
	t.Parallel()

	if got := Number(1500).String(); got != "1500" {
		t.Errorf("Number(1500).String() = %q", got)
	}
	if got := Number(0.25).String(); got != "0.25" {
		t.Errorf("Number(0.25).String() = %q", got)
	}
	if got := Null().String(); got != "" {
		t.Errorf("Null().String() = %q", got)
	}
	if got := Text("x").String(); got != "x" {
		t.Errorf("Text(x).String() = %q", got)
	}
}

func TestRow_MarshalJSON(t *testing.T) {
	t.Parallel()

	row := Row{
		{Column: "zeta", Value: Text("a\"b")},
		{Column: "alpha", Value: Number(2)},
		{Column: "mid", Value: Null()},
	}
	got, err := row.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	want := `{"zeta":"a\"b","alpha":2,"mid":null}`
	if string(got) != want {
		t.Errorf("MarshalJSON() = %s, want %s", got, want)
	}
}

func TestRow_With(t *testing.T) {
	t.Parallel()

	row := Row{{Column: "fecha", Value: Text("01/02/2024")}}
	added := row.With("fecha_formateada", Text("2024-02-01"))
	if len(row) != 1 {
		t.Fatal("With mutated the original row")
	}
	if len(added) != 2 || added[1].Column != "fecha_formateada" {
		t.Fatalf("With() = %+v", added)
	}

	replaced := added.With("fecha", Null())
	if c, _ := replaced.Get("fecha"); !c.IsNull() {
		t.Errorf("expected fecha replaced with null, got %v", c)
	}
	if len(replaced) != 2 {
		t.Errorf("replace should not append, got %d fields", len(replaced))
	}
}
