package lsp

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// DiagnosticsSink receives every diagnostics publish, including empty ones.
type DiagnosticsSink interface {
	SetDiagnostics(diagnostics []Diagnostic, uri DocumentURI)
}

// DiagnosticsSinkFunc adapts a function to DiagnosticsSink.
type DiagnosticsSinkFunc func(diagnostics []Diagnostic, uri DocumentURI)

// SetDiagnostics implements DiagnosticsSink.
func (f DiagnosticsSinkFunc) SetDiagnostics(diagnostics []Diagnostic, uri DocumentURI) {
	f(diagnostics, uri)
}

// DiagnosticsStore holds the latest diagnostics per document.
//
// Each publish replaces the previous list for its URI. Stored slices are
// private copies and never mutated, so readers need no lock. An empty
// publish is stored as an empty list, keeping "no problems" distinct from
// "never published".
type DiagnosticsStore struct {
	m sync.Map // DocumentURI -> []Diagnostic
}

// NewDiagnosticsStore creates an empty store.
func NewDiagnosticsStore() *DiagnosticsStore {
	return &DiagnosticsStore{}
}

// Set replaces the diagnostics of uri.
func (s *DiagnosticsStore) Set(uri DocumentURI, diagnostics []Diagnostic) {
	list := make([]Diagnostic, len(diagnostics))
	copy(list, diagnostics)
	s.m.Store(uri, list)
}

// Get returns the diagnostics of uri and whether any publish was seen.
// The returned slice must not be modified.
func (s *DiagnosticsStore) Get(uri DocumentURI) ([]Diagnostic, bool) {
	v, ok := s.m.Load(uri)
	if !ok {
		return nil, false
	}
	return v.([]Diagnostic), true
}

// URIs returns every URI with a publish, sorted.
func (s *DiagnosticsStore) URIs() []DocumentURI {
	var uris []DocumentURI
	s.m.Range(func(k, _ any) bool {
		uris = append(uris, k.(DocumentURI))
		return true
	})
	sort.Slice(uris, func(i, j int) bool { return uris[i] < uris[j] })
	return uris
}

// All returns a snapshot of every stored list.
func (s *DiagnosticsStore) All() map[DocumentURI][]Diagnostic {
	all := make(map[DocumentURI][]Diagnostic)
	s.m.Range(func(k, v any) bool {
		all[k.(DocumentURI)] = v.([]Diagnostic)
		return true
	})
	return all
}

// Count returns the total number of stored diagnostics.
func (s *DiagnosticsStore) Count() int {
	n := 0
	s.m.Range(func(_, v any) bool {
		n += len(v.([]Diagnostic))
		return true
	})
	return n
}

// Reset forgets everything.
func (s *DiagnosticsStore) Reset() {
	s.m.Range(func(k, _ any) bool {
		s.m.Delete(k)
		return true
	})
}

// DiagnosticSeverityIcon returns a single character icon for severity.
func DiagnosticSeverityIcon(severity DiagnosticSeverity) string {
	switch severity {
	case DiagnosticSeverityError:
		return "E"
	case DiagnosticSeverityWarning:
		return "W"
	case DiagnosticSeverityInformation:
		return "I"
	case DiagnosticSeverityHint:
		return "H"
	default:
		return "?"
	}
}

// FormatDiagnostic formats a diagnostic for display.
func FormatDiagnostic(d Diagnostic) string {
	var sb strings.Builder

	sb.WriteString(DiagnosticSeverityIcon(d.Severity))
	sb.WriteString(" ")

	if d.Source != "" {
		sb.WriteString("[")
		sb.WriteString(d.Source)
		sb.WriteString("] ")
	}

	sb.WriteString(d.Message)

	if d.Code != nil {
		sb.WriteString(" (")
		switch v := d.Code.(type) {
		case string:
			sb.WriteString(v)
		case float64:
			// Whole numbers arrive as float64 from JSON.
			sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		case int:
			sb.WriteString(strconv.Itoa(v))
		default:
			sb.WriteString(fmt.Sprint(v))
		}
		sb.WriteString(")")
	}

	return sb.String()
}

// FormatDiagnosticWithLocation formats a diagnostic with a 1-based file location.
func FormatDiagnosticWithLocation(path string, d Diagnostic) string {
	return fmt.Sprintf("%s:%d:%d: %s",
		path,
		d.Range.Start.Line+1,
		d.Range.Start.Character+1,
		FormatDiagnostic(d),
	)
}
