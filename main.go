// judc compiles .we component files into a single runtime bundle.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/judc/internal/bundle"
	"github.com/phobologic/judc/internal/compiler"
	"github.com/phobologic/judc/internal/config"
	"github.com/phobologic/judc/internal/ctxlog"
	"github.com/phobologic/judc/internal/discover"
	"github.com/phobologic/judc/internal/lang"
	"github.com/phobologic/judc/internal/ranking"
	"github.com/phobologic/judc/internal/source"
	"github.com/phobologic/judc/internal/toon"
)

var version = "dev"

// readCacheSize bounds the files kept by the reader shared between the
// bundles of one build.
const readCacheSize = 1024

const bundleExt = ".js"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		switch args[0] {
		case "init":
			return runInit(args[1:], stdout, stderr)
		case "inspect":
			return runInspect(args[1:], stdout, stderr)
		case "graph":
			return runGraph(args[1:], stdout, stderr)
		case "build":
			return runBuild(args[1:], stdout, stderr)
		}
	}
	return runBuild(args, stdout, stderr)
}

// common holds the flags shared by build and graph.
type common struct {
	configPath  string
	envPath     string
	logLevel    string
	logFormat   string
	showVersion bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "project file (default: "+config.FileName+" found from the entry directory up)")
	fs.StringVar(&c.envPath, "env", ".env", "dotenv file supplying JUDC_* defaults")
	fs.StringVar(&c.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	fs.StringVar(&c.logFormat, "log-format", "text", "log format: text or json")
	fs.BoolVar(&c.showVersion, "V", false, "show version and exit")
	fs.BoolVar(&c.showVersion, "version", false, "show version and exit")
}

// env returns a lookup over the dotenv file, falling back to the
// process environment. A missing dotenv file is not an error.
func (c *common) env() (func(string) string, error) {
	vars, err := godotenv.Read(c.envPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", c.envPath, err)
		}
		vars = nil
	}
	return func(key string) string {
		if v, ok := vars[key]; ok {
			return v
		}
		return os.Getenv(key)
	}, nil
}

// applyEnv fills flags the command line left unset from JUDC_* variables.
func applyEnv(fs *flag.FlagSet, getenv func(string) string, names map[string]string) error {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for name, key := range names {
		if set[name] {
			continue
		}
		v := getenv(key)
		if v == "" {
			continue
		}
		if err := fs.Set(name, v); err != nil {
			return fmt.Errorf("%s=%q: %w", key, v, err)
		}
	}
	return nil
}

var envFlags = map[string]string{
	"log-level":  "JUDC_LOG_LEVEL",
	"log-format": "JUDC_LOG_FORMAT",
}

// project loads the project file named by -config, or the one found from
// dir upwards. It returns nil when there is none.
func (c *common) project(ctx context.Context, dir string) (*config.Project, error) {
	path := c.configPath
	if path == "" {
		found, err := config.Find(dir)
		if errors.Is(err, config.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		path = found
	}
	p, err := config.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("loaded project", "file", path, "entries", len(p.Entries), "aliases", p.AliasNames())
	return p, nil
}

// target is one bundle to build.
type target struct {
	entry  string
	output string
}

func runBuild(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("judc build", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		c         common
		output    string
		sourceMap bool
		jobs      int
		ifStale   bool
	)
	c.register(fs)
	fs.StringVar(&output, "o", "", "output file, or directory when building several entries (default: stdout)")
	fs.StringVar(&output, "output", "", "output file, or directory when building several entries (default: stdout)")
	fs.BoolVar(&sourceMap, "sourcemap", false, "append an inline source map")
	fs.IntVar(&jobs, "j", runtime.GOMAXPROCS(0), "number of bundles compiled in parallel")
	fs.IntVar(&jobs, "jobs", runtime.GOMAXPROCS(0), "number of bundles compiled in parallel")
	fs.BoolVar(&ifStale, "if-stale", false, "skip bundles newer than every source under their entry directory")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: judc [build] [flags] [entry.we ...]

Compile each entry component and everything it depends on into one bundle.
Entries default to the entries listed in %s.

Subcommands: build, graph, inspect, init.

Flags:
`, config.FileName)
		fs.PrintDefaults()
	}

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}
	if c.showVersion {
		_, _ = fmt.Fprintf(stdout, "judc %s\n", version)
		return nil
	}

	getenv, err := c.env()
	if err != nil {
		return err
	}
	buildEnv := map[string]string{"sourcemap": "JUDC_SOURCEMAP"}
	for k, v := range envFlags {
		buildEnv[k] = v
	}
	if err := applyEnv(fs, getenv, buildEnv); err != nil {
		return err
	}

	ctx := ctxlog.WithLogger(context.Background(), ctxlog.New(c.logLevel, c.logFormat, stderr))

	entries := fs.Args()
	dir := "."
	if len(entries) > 0 {
		dir = filepath.Dir(entries[0])
	}
	p, err := c.project(ctx, dir)
	if err != nil {
		return err
	}
	if len(entries) == 0 && p != nil {
		entries = p.Entries
	}
	if len(entries) == 0 {
		return fmt.Errorf("no entry files given and no entries in %s", config.FileName)
	}
	if output == "" && p != nil {
		output = p.Output
	}
	if p != nil && p.SourceMap && !flagSet(fs, "sourcemap") {
		sourceMap = true
	}

	targets, err := plan(entries, output)
	if err != nil {
		return err
	}

	reader, err := source.NewCached(source.OS{}, readCacheSize)
	if err != nil {
		return err
	}
	base := compiler.Options{
		Reader:    reader,
		Registry:  lang.NewRegistry(),
		SourceMap: sourceMap,
	}
	if p != nil {
		base.Aliases = p.Aliases
		base.Loader = &lang.ExecLoader{Commands: p.Languages}
		base.Config = string(p.Config)
		base.Data = string(p.Data)
		base.Ignore = matcher(p)
	} else {
		base.Loader = &lang.ExecLoader{}
	}

	results := make([]string, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, t := range targets {
		g.Go(func() error {
			code, err := build(gctx, base, t, ifStale)
			if err != nil {
				return fmt.Errorf("%s: %w", t.entry, err)
			}
			results[i] = code
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, t := range targets {
		if t.output == "" {
			_, _ = io.WriteString(stdout, results[i])
		}
	}
	return nil
}

func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// plan pairs every entry with its output file. Several entries with an
// output directory get one bundle each, named after the entry.
func plan(entries []string, output string) ([]target, error) {
	if len(entries) == 1 {
		return []target{{entry: entries[0], output: output}}, nil
	}
	if output == "" {
		return nil, errors.New("building several entries needs -o naming an output directory")
	}
	if strings.HasSuffix(output, bundleExt) {
		return nil, fmt.Errorf("building several entries needs an output directory, got file %s", output)
	}
	targets := make([]target, len(entries))
	seen := make(map[string]string, len(entries))
	for i, e := range entries {
		name := strings.TrimSuffix(filepath.Base(e), filepath.Ext(e)) + bundleExt
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("entries %s and %s would both write %s", prev, e, name)
		}
		seen[name] = e
		targets[i] = target{entry: e, output: filepath.Join(output, name)}
	}
	return targets, nil
}

func matcher(p *config.Project) *discover.Matcher {
	if len(p.Ignore) > 0 {
		return discover.NewMatcher(p.Dir, p.Ignore...)
	}
	return discover.LoadMatcher(p.Dir)
}

// build compiles one target. It writes the bundle when the target has an
// output file and returns the code otherwise.
func build(ctx context.Context, base compiler.Options, t target, ifStale bool) (string, error) {
	logger := ctxlog.FromContext(ctx)
	if ifStale && t.output != "" && fresh(t.output, filepath.Dir(t.entry)) {
		logger.Info("bundle is up to date", "entry", t.entry, "output", t.output)
		return "", nil
	}

	opts := base
	opts.Entries = []string{t.entry}
	if base.Ignore == nil {
		opts.Ignore = discover.LoadMatcher(filepath.Dir(t.entry))
	}
	if t.output != "" {
		opts.File = filepath.Base(t.output)
	}
	out, err := compiler.Compile(ctx, opts)
	if err != nil {
		return "", err
	}
	if t.output == "" {
		return out.Code, nil
	}
	if err := os.MkdirAll(filepath.Dir(t.output), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(t.output, []byte(out.Code), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", t.output, err)
	}
	logger.Info("wrote bundle", "entry", t.entry, "output", t.output, "components", len(out.Names))
	return "", nil
}

// fresh reports whether output is newer than every source under dir.
func fresh(output, dir string) bool {
	info, err := os.Stat(output)
	if err != nil {
		return false
	}
	files, err := discover.Files(dir, nil)
	if err != nil || len(files) == 0 {
		return false
	}
	return discover.Newest(files).Before(info.ModTime())
}

func runGraph(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("judc graph", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		c         common
		maxComps  int
		component string
	)
	c.register(fs)
	fs.IntVar(&maxComps, "n", 0, "maximum number of components to include")
	fs.IntVar(&maxComps, "max-components", 0, "maximum number of components to include")
	fs.StringVar(&component, "c", "", "focus on components whose name or file contains this")
	fs.StringVar(&component, "component", "", "focus on components whose name or file contains this")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: judc graph [flags] [entry.we]

Print the component graph of an entry in TOON format, most central first.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}
	if c.showVersion {
		_, _ = fmt.Fprintf(stdout, "judc %s\n", version)
		return nil
	}
	getenv, err := c.env()
	if err != nil {
		return err
	}
	if err := applyEnv(fs, getenv, envFlags); err != nil {
		return err
	}
	ctx := ctxlog.WithLogger(context.Background(), ctxlog.New(c.logLevel, c.logFormat, stderr))

	entry := fs.Arg(0)
	dir := "."
	if entry != "" {
		dir = filepath.Dir(entry)
	}
	p, err := c.project(ctx, dir)
	if err != nil {
		return err
	}
	if entry == "" {
		if p == nil || len(p.Entries) == 0 {
			return fmt.Errorf("no entry file given and no entries in %s", config.FileName)
		}
		entry = p.Entries[0]
	}

	opts := compiler.Options{Entries: []string{entry}, Loader: &lang.ExecLoader{}}
	if p != nil {
		opts.Aliases = p.Aliases
		opts.Loader = &lang.ExecLoader{Commands: p.Languages}
		opts.Ignore = matcher(p)
	} else {
		opts.Ignore = discover.LoadMatcher(dir)
	}
	out, err := compiler.Compile(ctx, opts)
	if err != nil {
		return err
	}

	report := out.Graph
	if component != "" {
		report = ranking.FilterByComponent(report, component)
	}
	if maxComps > 0 {
		report = ranking.SelectComponents(report, maxComps)
	}
	_, _ = fmt.Fprintln(stdout, toon.Encode(report))
	return nil
}

func runInspect(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("judc inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var check bool
	fs.BoolVar(&check, "check", false, "fail unless every bootstrap root is defined exactly once")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: judc inspect [flags] bundle.js\n\nList the define and bootstrap records of a built bundle.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("inspect takes exactly one bundle")
	}

	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	info, err := bundle.Inspect(context.Background(), data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	_, _ = fmt.Fprintln(stdout, toon.EncodeBundle(filepath.ToSlash(path), info))
	if check {
		if err := info.Check(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

// flagsWithValue lists flags that take a value argument.
var flagsWithValue = map[string]bool{
	"-o": true, "--o": true,
	"-output": true, "--output": true,
	"-config": true, "--config": true,
	"-env": true, "--env": true,
	"-j": true, "--j": true,
	"-jobs": true, "--jobs": true,
	"-n": true, "--n": true,
	"-max-components": true, "--max-components": true,
	"-c": true, "--c": true,
	"-component": true, "--component": true,
	"-log-level": true, "--log-level": true,
	"-log-format": true, "--log-format": true,
}

// reorderArgs moves positional arguments after all flags so Go's flag package
// can parse them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	dashed := false
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			positional = append(positional, args[i+1:]...)
			dashed = true
			break
		}
		if len(args[i]) > 0 && args[i][0] == '-' {
			flags = append(flags, args[i])
			if flagsWithValue[args[i]] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	if dashed {
		flags = append(flags, "--")
	}
	return append(flags, positional...)
}
