package ctxlog

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestFromContextDefault(t *testing.T) {
	t.Parallel()

	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("FromContext returned nil")
	}
	logger.Error("dropped")
}

func TestWithLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New("debug", "text", &buf))
	FromContext(ctx).Debug("resolving component", "component", "main")
	if !strings.Contains(buf.String(), "component=main") {
		t.Errorf("log output = %q", buf.String())
	}
}

func TestNewLevelsAndFormats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info logged at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("json output = %q", out)
	}

	buf.Reset()
	New("bogus", "bogus", &buf).Info("fallback")
	if !strings.Contains(buf.String(), "msg=fallback") {
		t.Errorf("text fallback output = %q", buf.String())
	}
}
