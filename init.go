package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/phobologic/judc/internal/config"
	"github.com/phobologic/judc/internal/discover"
)

const (
	sentinelStart = "# judc:start"
	sentinelEnd   = "# judc:end"
)

// runInit implements the `judc init` subcommand, which writes (or updates)
// a generated section of the judc.hcl project file.
func runInit(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("judc init", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		dryRun bool
		output string
	)
	fs.BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")
	fs.StringVar(&output, "o", "dist/bundle.js", "output written into the generated section")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: judc init [flags] [project-dir]

Write a judc.hcl section listing the component files at the top of
project-dir as entries. The section is wrapped in sentinel comments so it can
be updated in place on subsequent runs without touching surrounding content.
Creates the file if it does not exist.

project-dir defaults to the current directory.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}

	dir := "."
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}

	entries, err := topLevelComponents(dir)
	if err != nil {
		return err
	}
	section := generateSection(entries, output)

	path := filepath.Join(dir, config.FileName)
	existing, _ := os.ReadFile(path)
	updated := applySection(string(existing), section)

	if dryRun {
		_, _ = fmt.Fprint(stdout, updated)
		return nil
	}

	if _, err := config.Parse(dir, config.FileName, []byte(updated)); err != nil {
		return fmt.Errorf("updated %s would not load: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(stderr, "wrote judc section to %s\n", path)
	return nil
}

// topLevelComponents lists the component files directly inside dir.
func topLevelComponents(dir string) ([]string, error) {
	files, err := discover.Files(dir, []string{discover.ComponentExt})
	if err != nil {
		return nil, fmt.Errorf("discovering components: %w", err)
	}
	var entries []string
	for _, f := range files {
		if !strings.ContainsRune(f.Path, filepath.Separator) {
			entries = append(entries, filepath.ToSlash(f.Path))
		}
	}
	return entries, nil
}

// generateSection returns the full sentinel-wrapped project settings.
func generateSection(entries []string, output string) string {
	quoted := make([]string, len(entries))
	for i, e := range entries {
		quoted[i] = strconv.Quote(e)
	}

	var b strings.Builder
	b.WriteString(sentinelStart + "\n")
	b.WriteString("# Generated by `judc init`. Edits between the judc markers are replaced\n")
	b.WriteString("# on the next run; add aliases, languages and bootstrap blocks below them.\n")
	fmt.Fprintf(&b, "entries   = [%s]\n", strings.Join(quoted, ", "))
	fmt.Fprintf(&b, "output    = %s\n", strconv.Quote(output))
	b.WriteString("sourcemap = false\n")
	b.WriteString(sentinelEnd)
	return b.String()
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if len(content) == 0 {
		return section + "\n"
	}
	return content + "\n" + section + "\n"
}
