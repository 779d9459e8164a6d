package fileutils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndReadJSONFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "doc.json")

	in := map[string]any{"user": "u1", "count": float64(3)}
	if err := WriteJSONFileAtomic(path, in, true); err != nil {
		t.Fatalf("WriteJSONFileAtomic: %v", err)
	}
	if !FileExists(path) {
		t.Fatalf("file missing after write")
	}

	var out map[string]any
	if err := ReadJSONFile(path, &out); err != nil {
		t.Fatalf("ReadJSONFile: %v", err)
	}
	if out["user"] != "u1" || out["count"] != float64(3) {
		t.Fatalf("round trip=%v", out)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir entries=%d, want 1", len(entries))
	}
}

func TestReadJSONFile_Missing(t *testing.T) {
	t.Parallel()

	var out map[string]any
	if err := ReadJSONFile(filepath.Join(t.TempDir(), "nope.json"), &out); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := Truncate("  hello  ", 10); got != "hello" {
		t.Fatalf("Truncate trim=%q", got)
	}
	if got := Truncate("abcdef", 3); got != "abc…" {
		t.Fatalf("Truncate cut=%q", got)
	}
	if got := Truncate("abc", 0); got != "abc" {
		t.Fatalf("Truncate max=0: %q", got)
	}
}

func TestSanitizeNewlines(t *testing.T) {
	t.Parallel()

	if got := SanitizeNewlines("a\r\nb\rc\nd"); got != `a\nb\nc\nd` {
		t.Fatalf("SanitizeNewlines=%q", got)
	}
}
