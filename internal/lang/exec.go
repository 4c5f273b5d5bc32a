package lang

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/phobologic/judc/internal/model"
)

// CommandPrefix is prepended to a language id to find its plugin on PATH.
const CommandPrefix = "judc-lang-"

const defaultPluginTimeout = 30 * time.Second

// ExecLoader loads plugins that are external commands. A command reads the
// section code on stdin and writes native code on stdout.
type ExecLoader struct {
	// Commands maps a language id to an argv. Ids not listed are looked up
	// on PATH as CommandPrefix+id.
	Commands map[string][]string
	Timeout  time.Duration
	// LookPath defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

func (l *ExecLoader) Load(_ context.Context, id string) (Plugin, error) {
	id = normalizeID(id)
	argv := l.Commands[id]
	if len(argv) == 0 {
		argv = []string{CommandPrefix + id}
	}
	lookPath := l.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("plugin command %s: %w", argv[0], err)
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = defaultPluginTimeout
	}
	return &execPlugin{path: path, args: argv[1:], timeout: timeout}, nil
}

type execPlugin struct {
	path    string
	args    []string
	timeout time.Duration
}

func (p *execPlugin) Transpile(ctx context.Context, in Input) (Output, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.path, p.args...)
	cmd.Stdin = strings.NewReader(in.Code)
	cmd.Env = append(cmd.Environ(), "JUDC_LANG="+in.Lang, "JUDC_SLOT="+string(in.Kind))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return Output{}, fmt.Errorf("%s: %w: %s", p.path, err, msg)
		}
		return Output{}, fmt.Errorf("%s: %w", p.path, err)
	}

	code := stdout.String()
	return Output{Code: code, Lines: keepLines(in.Lines, code)}, nil
}

// keepLines reuses the input origins when the plugin preserved the line
// count and returns nil otherwise.
func keepLines(lines []model.Position, code string) []model.Position {
	if strings.Count(code, "\n")+1 == len(lines) {
		return lines
	}
	return nil
}
