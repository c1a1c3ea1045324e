// Package executor runs generated Go snippets in a restricted interpreter.
//
// The interpreter only sees an allow-list of pure standard packages, with a
// wall-clock limit and a cap on captured output. It keeps generated snippets
// away from the file system, network and processes. Snippets may not start
// goroutines, since those outlive the evaluation deadline. It is not a
// hardened boundary against a deliberate interpreter escape.
package executor

import (
	"context"
	"errors"
	"fmt"
	"go/scanner"
	"go/token"
	"path"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"robo-chat-go/internal/config"
	"robo-chat-go/internal/model"
	"robo-chat-go/pkg/log"
	"robo-chat-go/pkg/metrics"
)

const (
	DefaultTimeout        = 5 * time.Second
	DefaultMaxOutputBytes = 64 * 1024

	NoOutputMessage = "✅ Code executed without output."
	truncatedSuffix = "\n... [output truncated]"
)

// AllowedPackages are the only imports a snippet can resolve.
var AllowedPackages = []string{
	"errors",
	"fmt",
	"math",
	"sort",
	"strconv",
	"strings",
	"unicode",
	"unicode/utf8",
}

var (
	fencePattern   = regexp.MustCompile("(?s)```[a-zA-Z]*[ \\t]*\\r?\\n(.*?)\\r?\\n?```")
	packagePattern = regexp.MustCompile(`(?m)^\s*package\s+\w+`)
	importPattern  = regexp.MustCompile(`(?m)^\s*import\s*[("]`)
)

// Executor evaluates snippets one interpreter per call.
type Executor struct {
	timeout        time.Duration
	maxOutputBytes int
	symbols        interp.Exports
}

// New builds an executor from config, falling back to defaults for zero values.
func New(cfg config.ExecutorConfig) *Executor {
	e := &Executor{
		timeout:        cfg.Timeout,
		maxOutputBytes: cfg.MaxOutputBytes,
		symbols:        allowedSymbols(),
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.maxOutputBytes <= 0 {
		e.maxOutputBytes = DefaultMaxOutputBytes
	}
	return e
}

// allowedSymbols filters the yaegi stdlib export table down to AllowedPackages.
// Keys in that table look like "unicode/utf8/utf8".
func allowedSymbols() interp.Exports {
	out := make(interp.Exports, len(AllowedPackages))
	for _, pkg := range AllowedPackages {
		key := pkg + "/" + path.Base(pkg)
		if syms, ok := stdlib.Symbols[key]; ok {
			out[key] = make(map[string]reflect.Value, len(syms))
			for name, v := range syms {
				out[key][name] = v
			}
		}
	}
	return out
}

// Execute runs code and returns its trimmed output.
func (e *Executor) Execute(ctx context.Context, code string) (out model.Outcome) {
	defer func() {
		metrics.ExecutorRuns.WithLabelValues(metrics.OutcomeLabel(out.Err)).Inc()
	}()

	if strings.TrimSpace(code) == "" || model.ContainsFailureMarker(code) {
		return model.Fail(model.KindEmptyInput, "Cannot execute: this is not valid Go code.", nil)
	}
	code = StripFences(code)
	if spawnsGoroutine(code) {
		return model.Fail(model.KindExecution, "Execution error: go statements are not allowed.", nil)
	}

	buf := &cappedBuffer{limit: e.maxOutputBytes}
	i := interp.New(interp.Options{Stdout: buf, Stderr: buf})
	if err := i.Use(e.symbols); err != nil {
		return model.Fail(model.KindExecution, fmt.Sprintf("Execution error: %v", err), err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.eval(ctx, i, code); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return model.Fail(model.KindExecution, fmt.Sprintf("Execution error: timed out after %s", e.timeout), err)
		}
		log.Debugf("snippet evaluation failed: %v", err)
		return model.Fail(model.KindExecution, fmt.Sprintf("Execution error: %v", err), err)
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return model.Succeed(NoOutputMessage)
	}
	return model.Succeed(text)
}

func (e *Executor) eval(ctx context.Context, i *interp.Interpreter, code string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	// 片段没有 package 和 import 时预先导入允许的包
	if !packagePattern.MatchString(code) && !importPattern.MatchString(code) {
		for _, pkg := range AllowedPackages {
			if _, err := i.EvalWithContext(ctx, fmt.Sprintf("import %q", pkg)); err != nil {
				return err
			}
		}
	}
	_, err = i.EvalWithContext(ctx, code)
	return err
}

// spawnsGoroutine reports whether code contains the go keyword as a token.
// Strings and comments are single tokens, so they never match.
func spawnsGoroutine(code string) bool {
	src := []byte(code)
	fset := token.NewFileSet()
	var s scanner.Scanner
	s.Init(fset.AddFile("snippet.go", fset.Base(), len(src)), src, nil, 0)
	for {
		_, tok, _ := s.Scan()
		switch tok {
		case token.EOF:
			return false
		case token.GO:
			return true
		}
	}
}

// StripFences returns the body of the first markdown code fence, or code
// unchanged when there is none. Prose around the fence is dropped.
func StripFences(code string) string {
	if m := fencePattern.FindStringSubmatch(code); m != nil {
		return m[1]
	}
	return code
}

// cappedBuffer keeps at most limit bytes and silently drops the rest.
type cappedBuffer struct {
	mu        sync.Mutex
	b         strings.Builder
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.limit - c.b.Len()
	if room <= 0 {
		c.truncated = c.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		c.b.Write(p[:room])
		c.truncated = true
		return len(p), nil
	}
	c.b.Write(p)
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.truncated {
		return c.b.String() + truncatedSuffix
	}
	return c.b.String()
}
