package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/judc/internal/config"
)

// TestApplySectionCreate verifies that applySection on empty content yields
// just the section with a trailing newline.
func TestApplySectionCreate(t *testing.T) {
	t.Parallel()
	section := sentinelStart + "\nbody\n" + sentinelEnd
	got := applySection("", section)
	if got != section+"\n" {
		t.Errorf("got %q", got)
	}
}

// TestApplySectionAppend verifies that existing content without a sentinel block
// is preserved and the section is appended.
func TestApplySectionAppend(t *testing.T) {
	t.Parallel()
	existing := "alias \"x\" {\n  path = \"x.we\"\n}"
	section := sentinelStart + "\nnew content\n" + sentinelEnd
	got := applySection(existing, section)

	if !strings.HasPrefix(got, existing+"\n\n") {
		t.Errorf("existing content should be preserved at start:\n%s", got)
	}
	if !strings.Contains(got, "new content") {
		t.Error("new content missing")
	}
}

// TestApplySectionUpdate verifies that an existing sentinel block is replaced
// precisely, leaving surrounding content intact.
func TestApplySectionUpdate(t *testing.T) {
	t.Parallel()
	before := "# project\n\n"
	after := "\n\nalias \"x\" {\n  path = \"x.we\"\n}\n"
	old := before + sentinelStart + "\nold content\n" + sentinelEnd + after

	section := sentinelStart + "\nnew content\n" + sentinelEnd
	got := applySection(old, section)

	if !strings.HasPrefix(got, before) {
		t.Errorf("content before sentinel should be preserved:\n%s", got)
	}
	if !strings.HasSuffix(got, after) {
		t.Errorf("content after sentinel should be preserved:\n%s", got)
	}
	if strings.Contains(got, "old content") {
		t.Error("old content should be replaced")
	}
}

func TestGenerateSection(t *testing.T) {
	t.Parallel()
	section := generateSection([]string{"main.we", "admin.we"}, "dist/app.js")

	for _, want := range []string{
		sentinelStart,
		`entries   = ["main.we", "admin.we"]`,
		`output    = "dist/app.js"`,
		"sourcemap = false",
		sentinelEnd,
	} {
		if !strings.Contains(section, want) {
			t.Errorf("section missing %q:\n%s", want, section)
		}
	}
}

// TestInitCreatesFile verifies that runInit writes a loadable project file
// listing the top-level components.
func TestInitCreatesFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "main.we", "<template><text></text></template>")
	writeTestFile(t, dir, filepath.Join("widgets", "card.we"), "<template><text></text></template>")

	var stdout, stderr bytes.Buffer
	if err := runInit([]string{dir}, &stdout, &stderr); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	p, err := config.Load(context.Background(), filepath.Join(dir, config.FileName))
	if err != nil {
		t.Fatalf("created file does not load: %v", err)
	}
	if len(p.Entries) != 1 || p.Entries[0] != filepath.Join(dir, "main.we") {
		t.Errorf("entries = %v", p.Entries)
	}
	if p.Output != filepath.Join(dir, "dist", "bundle.js") {
		t.Errorf("output = %q", p.Output)
	}
}

// TestInitDryRun verifies that --dry-run prints the full would-be file content
// to stdout and does not create or modify the target file.
func TestInitDryRun(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	if err := runInit([]string{"--dry-run", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, config.FileName)); err == nil {
		t.Error("--dry-run should not create the file")
	}
	out := stdout.String()
	if !strings.HasPrefix(out, sentinelStart) {
		t.Errorf("dry-run output should start with the section, got:\n%s", out)
	}
	if !strings.Contains(out, sentinelEnd) {
		t.Error("dry-run output missing sentinel end")
	}
}

// TestInitKeepsHandWrittenBlocks verifies that blocks outside the sentinels
// survive an update.
func TestInitKeepsHandWrittenBlocks(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)
	writeTestFile(t, dir, "main.we", "<template><text></text></template>")
	writeTestFile(t, dir, config.FileName, "alias \"card\" {\n  path = \"widgets/card.we\"\n}\n")

	var stdout, stderr bytes.Buffer
	if err := runInit([]string{dir}, &stdout, &stderr); err != nil {
		t.Fatalf("runInit: %v", err)
	}
	p, err := config.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Aliases["card"] != filepath.Join(dir, "widgets", "card.we") {
		t.Errorf("aliases = %v", p.Aliases)
	}
	if len(p.Entries) != 1 {
		t.Errorf("entries = %v", p.Entries)
	}
}

// TestInitRejectsConflicts verifies that init refuses to write a file that
// would no longer load.
func TestInitRejectsConflicts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	original := "entries = [\"other.we\"]\n"
	writeTestFile(t, dir, config.FileName, original)

	var stdout, stderr bytes.Buffer
	if err := runInit([]string{dir}, &stdout, &stderr); err == nil {
		t.Fatal("expected error for duplicate entries attribute")
	}
	data, _ := os.ReadFile(filepath.Join(dir, config.FileName))
	if string(data) != original {
		t.Error("file must not be modified on conflict")
	}
}

// TestInitIdempotent verifies that running init twice produces identical output.
func TestInitIdempotent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "main.we", "<template><text></text></template>")
	path := filepath.Join(dir, config.FileName)

	var buf bytes.Buffer
	if err := runInit([]string{dir}, &buf, &buf); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := os.ReadFile(path)

	if err := runInit([]string{dir}, &buf, &buf); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, _ := os.ReadFile(path)

	if string(first) != string(second) {
		t.Errorf("init is not idempotent:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}
