package lsp

import (
	"path/filepath"
	"runtime"
	"testing"
)

func TestFilePathToURI(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}

	tests := []struct {
		path string
		want DocumentURI
	}{
		{"", ""},
		{"/home/user/main.go", "file:///home/user/main.go"},
		{"/tmp/with space.go", "file:///tmp/with%20space.go"},
	}
	for _, tt := range tests {
		if got := FilePathToURI(tt.path); got != tt.want {
			t.Errorf("FilePathToURI(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestURIRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg", "main.go")

	if got := URIToFilePath(FilePathToURI(path)); got != path {
		t.Errorf("round trip = %q, want %q", got, path)
	}
	if got := URIToFilePath("untitled:Untitled-1"); got != "untitled:Untitled-1" {
		t.Errorf("non-file URI = %q", got)
	}
	if got := URIToFilePath(""); got != "" {
		t.Errorf("empty URI = %q", got)
	}
}

func TestFilePathToURI_Relative(t *testing.T) {
	abs, err := filepath.Abs("main.go")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := FilePathToURI("main.go"), FilePathToURI(abs); got != want {
		t.Errorf("relative = %q, want %q", got, want)
	}
}

func TestEnumStrings(t *testing.T) {
	severities := map[DiagnosticSeverity]string{
		DiagnosticSeverityError:       "Error",
		DiagnosticSeverityWarning:     "Warning",
		DiagnosticSeverityInformation: "Information",
		DiagnosticSeverityHint:        "Hint",
		0:                             "Unknown",
	}
	for s, want := range severities {
		if got := s.String(); got != want {
			t.Errorf("DiagnosticSeverity(%d) = %q, want %q", int(s), got, want)
		}
	}

	types := map[MessageType]string{
		MessageTypeError:   "error",
		MessageTypeWarning: "warning",
		MessageTypeInfo:    "info",
		MessageTypeLog:     "log",
		9:                  "type(9)",
	}
	for mt, want := range types {
		if got := mt.String(); got != want {
			t.Errorf("MessageType(%d) = %q, want %q", int(mt), got, want)
		}
	}
}

func TestFormatDiagnostic(t *testing.T) {
	tests := []struct {
		name string
		d    Diagnostic
		want string
	}{
		{"plain", Diagnostic{Severity: DiagnosticSeverityWarning, Message: "unused"}, "W unused"},
		{"source", Diagnostic{Severity: DiagnosticSeverityError, Source: "compiler", Message: "undefined: x"}, "E [compiler] undefined: x"},
		{"string code", Diagnostic{Severity: DiagnosticSeverityHint, Message: "simplify", Code: "S1000"}, "H simplify (S1000)"},
		{"number code", Diagnostic{Severity: DiagnosticSeverityInformation, Message: "note", Code: float64(42)}, "I note (42)"},
		{"no severity", Diagnostic{Message: "odd"}, "? odd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDiagnostic(tt.d); got != tt.want {
				t.Errorf("FormatDiagnostic() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatDiagnosticWithLocation(t *testing.T) {
	d := Diagnostic{
		Range:    Range{Start: Position{Line: 9, Character: 4}},
		Severity: DiagnosticSeverityError,
		Message:  "missing return",
	}
	want := "main.go:10:5: E missing return"
	if got := FormatDiagnosticWithLocation("main.go", d); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDiagnosticsStore(t *testing.T) {
	s := NewDiagnosticsStore()
	a := DocumentURI("file:///a.go")
	b := DocumentURI("file:///b.go")

	input := []Diagnostic{{Message: "one"}, {Message: "two"}}
	s.Set(b, input)
	s.Set(a, nil)
	input[0].Message = "mutated"

	list, ok := s.Get(b)
	if !ok || len(list) != 2 || list[0].Message != "one" {
		t.Errorf("Get(b) = %+v, %v; store shares caller slice", list, ok)
	}
	if list, ok := s.Get(a); !ok || list == nil || len(list) != 0 {
		t.Errorf("Get(a) = %#v, %v; want empty non-nil, true", list, ok)
	}

	uris := s.URIs()
	if len(uris) != 2 || uris[0] != a || uris[1] != b {
		t.Errorf("URIs() = %v", uris)
	}
	if n := s.Count(); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
	if all := s.All(); len(all) != 2 || len(all[b]) != 2 {
		t.Errorf("All() = %v", all)
	}

	s.Reset()
	if _, ok := s.Get(b); ok {
		t.Error("Reset kept b")
	}
	if n := s.Count(); n != 0 {
		t.Errorf("Count() after Reset = %d", n)
	}
}
