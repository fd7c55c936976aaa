package models

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalizeTruncatesDiagnostics(t *testing.T) {
	long := strings.Repeat("a", 5000)
	ev := SyncEvent{
		ErrorMessage:    long,
		PayloadSummary:  long,
		ResponseSnippet: long,
	}
	ev.Normalize()

	if len(ev.ErrorMessage) != MaxErrorMessageLen {
		t.Fatalf("error message length = %d, want %d", len(ev.ErrorMessage), MaxErrorMessageLen)
	}
	if len(ev.PayloadSummary) != MaxPayloadSummaryLen {
		t.Fatalf("payload summary length = %d, want %d", len(ev.PayloadSummary), MaxPayloadSummaryLen)
	}
	if len(ev.ResponseSnippet) != MaxResponseSnippetLen {
		t.Fatalf("response snippet length = %d, want %d", len(ev.ResponseSnippet), MaxResponseSnippetLen)
	}
}

func TestNormalizeKeepsMultiByteDiagnosticsValid(t *testing.T) {
	// 3-byte runes do not divide the byte limits evenly, so a naive byte
	// slice would cut through the rune at the boundary.
	ev := SyncEvent{
		ErrorMessage:    strings.Repeat("€", 200),
		PayloadSummary:  strings.Repeat("€", 100),
		ResponseSnippet: strings.Repeat("€", 400),
	}
	ev.Normalize()

	for name, got := range map[string]struct {
		s   string
		max int
	}{
		"error message":    {ev.ErrorMessage, MaxErrorMessageLen},
		"payload summary":  {ev.PayloadSummary, MaxPayloadSummaryLen},
		"response snippet": {ev.ResponseSnippet, MaxResponseSnippetLen},
	} {
		if !utf8.ValidString(got.s) {
			t.Fatalf("%s is invalid UTF-8 after truncation (len=%d)", name, len(got.s))
		}
		if len(got.s) > got.max {
			t.Fatalf("%s length = %d, want <= %d", name, len(got.s), got.max)
		}
		// No more than one whole rune may be lost to the boundary.
		if len(got.s) < got.max-utf8.UTFMax {
			t.Fatalf("%s truncated too far: len=%d, max=%d", name, len(got.s), got.max)
		}
	}
}

func TestNormalizeLeavesShortValuesAlone(t *testing.T) {
	ev := SyncEvent{ErrorMessage: "timeout", PayloadSummary: "sku=123"}
	ev.Normalize()
	if ev.ErrorMessage != "timeout" || ev.PayloadSummary != "sku=123" {
		t.Fatalf("short values must not change: %+v", ev)
	}
}
