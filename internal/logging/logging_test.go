package logging

import "testing"

func TestFormatIncludesComponentLevelAndFields(t *testing.T) {
	l := New("ingest")
	got := l.format("INFO", "upserted aircraft", []Field{F("icao24", "a1b2c3"), F("applied", true)})
	want := "[INFO] ingest: upserted aircraft icao24=a1b2c3 applied=true"
	if got != want {
		t.Errorf("format() = %q, want %q", got, want)
	}
}

func TestFormatWithNoFields(t *testing.T) {
	l := New("scanner")
	got := l.format("WARN", "anchor failed", nil)
	want := "[WARN] scanner: anchor failed"
	if got != want {
		t.Errorf("format() = %q, want %q", got, want)
	}
}
