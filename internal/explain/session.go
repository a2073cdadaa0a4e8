// Package explain drives the interactive explanation mode of the Soufflé
// solver: one long-lived child process answering one query at a time.
package explain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ppiankov/uicheck/internal/model"
	"go.uber.org/zap"
)

var (
	// ErrLaunchTimeout means the oracle never showed its first prompt
	ErrLaunchTimeout = errors.New("explain launch timed out")
	// ErrPromptTimeout means a command was not answered in time
	ErrPromptTimeout = errors.New("timed out waiting for prompt")
	// ErrProcessExited means the oracle process is gone
	ErrProcessExited = errors.New("explain process exited")
	// ErrClosed is returned by operations after Close
	ErrClosed = errors.New("explain session closed")
)

// Explainer answers explanation queries. A nil result with a nil error
// means the explanation is unavailable for that query.
type Explainer interface {
	Explain(ctx context.Context, query string) (map[string]any, error)
	Close() error
}

// Opener starts an Explainer bound to a fact directory and specification
type Opener func(ctx context.Context, factsDir, specPath string) (Explainer, error)

// State is the lifecycle state of a Session
type State int

const (
	StateUnlaunched State = iota
	StateReady
	StateBusy
	StateBroken
	StateClosed
)

func (s State) String() string {
	names := []string{"unlaunched", "ready", "busy", "broken", "closed"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// Config describes how to start the oracle
type Config struct {
	Binary        string
	Args          []string // placed before the -F flag
	FactsDir      string
	SpecPath      string
	ScratchDir    string // parent of the per-session -D directory; the solver insists on writing CSVs somewhere
	Prompt        string
	LaunchTimeout time.Duration
	PromptTimeout time.Duration
	FlushQuery    string
	TempDir       string
	Env           []string // extra KEY=VALUE pairs for the child
}

// ConfigFrom binds the explain section of the configuration to a run
func ConfigFrom(c model.ExplainConfig, factsDir, specPath string) Config {
	return Config{
		Binary:        c.Binary,
		Args:          append([]string(nil), c.Args...),
		FactsDir:      factsDir,
		SpecPath:      specPath,
		ScratchDir:    c.ScratchDir,
		Prompt:        c.Prompt,
		LaunchTimeout: c.LaunchTimeout,
		PromptTimeout: c.PromptTimeout,
		FlushQuery:    c.FlushQuery,
		TempDir:       c.TempDir,
	}
}

// commandLine returns argv for the oracle:
// souffle -t explain -F<facts> <spec> -D<scratch>
func (c Config) commandLine() []string {
	argv := []string{c.Binary}
	argv = append(argv, c.Args...)
	argv = append(argv, "-F"+c.FactsDir, c.SpecPath, "-D"+c.ScratchDir)
	return argv
}

// Session owns one oracle process. It is not safe for concurrent use:
// the protocol is a single ordered command stream.
type Session struct {
	cfg    Config
	logger *zap.Logger

	state    State
	launches int
	scratch  string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	out    *promptReader
	exited chan struct{}
}

// NewSession creates an unlaunched session
func NewSession(cfg Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Prompt == "" {
		cfg.Prompt = "> "
	}
	if cfg.FlushQuery == "" {
		cfg.FlushQuery = "dummy(1)"
	}
	return &Session{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "explain")),
		state:  StateUnlaunched,
	}
}

// NewOpener returns an Opener that launches a Session per call
func NewOpener(base Config, logger *zap.Logger) Opener {
	return func(ctx context.Context, factsDir, specPath string) (Explainer, error) {
		cfg := base
		cfg.FactsDir = factsDir
		cfg.SpecPath = specPath
		s := NewSession(cfg, logger)
		if err := s.Launch(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return s.state
}

// Launches returns how many processes this session has started
func (s *Session) Launches() int {
	return s.launches
}

// Launch starts a fresh oracle process, replacing any existing one, and
// switches it to JSON output. Failure leaves no process behind.
func (s *Session) Launch(ctx context.Context) error {
	if s.state == StateClosed {
		return ErrClosed
	}
	s.teardown()

	if s.scratch == "" && s.cfg.ScratchDir != "" {
		if err := os.MkdirAll(s.cfg.ScratchDir, 0755); err != nil {
			return fmt.Errorf("create scratch dir: %w", err)
		}
		dir, err := os.MkdirTemp(s.cfg.ScratchDir, "session-*")
		if err != nil {
			return fmt.Errorf("create scratch dir: %w", err)
		}
		s.scratch = dir
	}

	argv := s.argv()
	s.logger.Info("launching explainer", zap.Strings("argv", argv))

	if err := s.start(argv); err != nil {
		s.state = StateBroken
		return err
	}
	s.launches++

	if _, err := s.out.waitFor(ctx, s.cfg.Prompt, s.cfg.LaunchTimeout); err != nil {
		s.teardown()
		s.state = StateBroken
		if errors.Is(err, ErrPromptTimeout) {
			return fmt.Errorf("%w after %s: %s", ErrLaunchTimeout, s.cfg.LaunchTimeout, strings.Join(argv, " "))
		}
		return fmt.Errorf("launch %s: %w", strings.Join(argv, " "), err)
	}

	if err := s.command(ctx, "format json"); err != nil {
		s.teardown()
		s.state = StateBroken
		return fmt.Errorf("set json format: %w", err)
	}

	s.state = StateReady
	return nil
}

// argv is the command line with the session's own scratch directory
func (s *Session) argv() []string {
	c := s.cfg
	if s.scratch != "" {
		c.ScratchDir = s.scratch
	}
	return c.commandLine()
}

// ScratchDir returns the -D directory of this session, empty before launch
func (s *Session) ScratchDir() string {
	return s.scratch
}

// start execs the process with stdout and stderr merged into one pipe
func (s *Session) start(argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), s.cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = pr.Close()
		_ = pw.Close()
		return fmt.Errorf("start %s: %w", argv[0], err)
	}
	// the child holds its own copy; ours would keep the reader from seeing EOF
	_ = pw.Close()

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	s.cmd = cmd
	s.stdin = stdin
	s.out = newPromptReader(pr)
	s.exited = exited
	return nil
}

// command sends one line and waits for the next prompt
func (s *Session) command(ctx context.Context, line string) error {
	if !s.alive() {
		return ErrProcessExited
	}
	if _, err := io.WriteString(s.stdin, line+"\n"); err != nil {
		return fmt.Errorf("write %q: %w", line, err)
	}
	if _, err := s.out.waitFor(ctx, s.cfg.Prompt, s.cfg.PromptTimeout); err != nil {
		return fmt.Errorf("after %q: %w", line, err)
	}
	return nil
}

// Explain asks the oracle why query holds. Unreadable output, a timeout or
// a dead process relaunch the oracle and yield (nil, nil); only a failed
// relaunch is returned as an error.
func (s *Session) Explain(ctx context.Context, query string) (map[string]any, error) {
	switch s.state {
	case StateClosed:
		return nil, ErrClosed
	case StateUnlaunched, StateBroken:
		if err := s.Launch(ctx); err != nil {
			return nil, err
		}
	case StateReady, StateBusy:
	}
	s.state = StateBusy

	first, err := s.tempFile()
	if err != nil {
		s.state = StateReady
		return nil, err
	}
	second, err := s.tempFile()
	if err != nil {
		_ = os.Remove(first)
		s.state = StateReady
		return nil, err
	}

	// The oracle finalises an output file only once a later command
	// arrives, so the second redirect and throwaway explain complete the
	// first file. The second file is never read.
	lines := []string{
		"output " + first,
		"explain " + query,
		"output " + second,
		"explain " + s.cfg.FlushQuery,
	}
	for _, line := range lines {
		if err := s.command(ctx, line); err != nil {
			_ = os.Remove(first)
			_ = os.Remove(second)
			return s.recover(ctx, lines, err)
		}
	}
	_ = os.Remove(second)

	result, err := readExplanation(first)
	_ = os.Remove(first)
	if err != nil {
		return s.recover(ctx, lines, fmt.Errorf("decode %s: %w", first, err))
	}

	s.state = StateReady
	return result, nil
}

// recover logs the failed exchange and replaces the process
func (s *Session) recover(ctx context.Context, lines []string, cause error) (map[string]any, error) {
	s.state = StateBroken
	s.logger.Warn("explain failed, relaunching",
		zap.Strings("argv", s.argv()),
		zap.Strings("commands", lines),
		zap.Error(cause),
	)

	if err := s.Launch(ctx); err != nil {
		return nil, fmt.Errorf("relaunch explainer: %w", err)
	}
	return nil, nil
}

func (s *Session) tempFile() (string, error) {
	f, err := os.CreateTemp(s.cfg.TempDir, "uicheck-explain-*.json")
	if err != nil {
		return "", fmt.Errorf("create explain output: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("close explain output: %w", err)
	}
	return name, nil
}

// Close asks the oracle to exit and releases the process. A process that
// does not exit within the prompt timeout is killed; a non-positive timeout
// waits for it. Close is idempotent. A ready session has already consumed
// its prompt, so exit is sent without waiting for another.
func (s *Session) Close() error {
	switch s.state {
	case StateClosed:
		return nil
	case StateUnlaunched:
		s.state = StateClosed
		return nil
	case StateBroken:
		s.teardown()
		s.removeScratch()
		s.state = StateClosed
		return nil
	case StateReady, StateBusy:
	}
	defer func() {
		s.removeScratch()
		s.state = StateClosed
	}()

	if !s.alive() {
		s.teardown()
		return fmt.Errorf("close: %w", ErrProcessExited)
	}

	if _, err := io.WriteString(s.stdin, "exit\n"); err != nil {
		s.teardown()
		return fmt.Errorf("send exit: %w", err)
	}

	var timeoutC <-chan time.Time
	if s.cfg.PromptTimeout > 0 {
		timer := time.NewTimer(s.cfg.PromptTimeout)
		defer timer.Stop()
		timeoutC = timer.C
	}
	select {
	case <-s.exited:
	case <-timeoutC:
		s.logger.Warn("explainer ignored exit, killing", zap.Duration("timeout", s.cfg.PromptTimeout))
	}
	s.teardown()
	return nil
}

func (s *Session) removeScratch() {
	if s.scratch == "" {
		return
	}
	if err := os.RemoveAll(s.scratch); err != nil {
		s.logger.Warn("scratch dir not removed", zap.String("dir", s.scratch), zap.Error(err))
	}
	s.scratch = ""
}

func (s *Session) alive() bool {
	if s.exited == nil {
		return false
	}
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

// teardown kills the current process, if any, and waits for its
// goroutines to finish
func (s *Session) teardown() {
	if s.cmd == nil {
		return
	}
	if s.alive() && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	<-s.exited
	_ = s.stdin.Close()
	s.out.close()

	s.cmd = nil
	s.stdin = nil
	s.out = nil
	s.exited = nil
}
