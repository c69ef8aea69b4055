package pdf

import (
	"errors"
	"testing"
)

func TestIsPDF(t *testing.T) {
	if !IsPDF([]byte("%PDF-1.7\n...")) {
		t.Fatalf("expected header to be recognised")
	}
	if IsPDF([]byte("<html>%PDF")) || IsPDF(nil) {
		t.Fatalf("header must be at the start")
	}
}

func TestTextRejectsNonPDF(t *testing.T) {
	if _, err := Text([]byte("<html></html>")); !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
}

func TestTextReportsBrokenFiles(t *testing.T) {
	if _, err := Text([]byte("%PDF-1.4\nthis is not a real document")); err == nil {
		t.Fatalf("expected an error for a truncated PDF")
	}
}
