// Package procapp runs an asynchronous handler in a child process, one
// process per request, speaking the ipc frame protocol over stdin/stdout.
//
// The parent side is App, a types.App. The child side is ServeChild, which
// drives any types.App from the frames on its standard streams. Stderr of
// the child is captured for diagnostics and never parsed.
package procapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/pithecene-io/syncbridge/ipc"
	"github.com/pithecene-io/syncbridge/log"
	"github.com/pithecene-io/syncbridge/types"
)

// DefaultStderrLimit is how much trailing stderr output is kept per request.
const DefaultStderrLimit = 4096

// Config configures a process-backed App.
type Config struct {
	// Path is the handler executable.
	Path string
	// Args are passed to the executable.
	Args []string
	// Env entries are appended to the inherited environment. Later entries
	// win over inherited ones with the same key.
	Env []string
	// StderrLimit caps the captured stderr tail. Zero means DefaultStderrLimit.
	StderrLimit int
	// Logger receives process lifecycle logs. Nil disables logging.
	Logger *log.Logger
}

// App is a types.App backed by a child process per request.
type App struct {
	cfg Config
}

// New validates cfg and returns the App.
func New(cfg Config) (*App, error) {
	if cfg.Path == "" {
		return nil, errors.New("procapp: command path is required")
	}
	if cfg.StderrLimit <= 0 {
		cfg.StderrLimit = DefaultStderrLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &App{cfg: cfg}, nil
}

// ParseCommand splits a command line on whitespace into a Config path and
// arguments. No quoting is supported.
func ParseCommand(line string) (path string, args []string, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, errors.New("procapp: empty command")
	}
	return fields[0], fields[1:], nil
}

// ExitError reports a child that exited non-zero without reporting a handler
// error frame.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("handler process exited with code %d", e.Code)
	}
	return fmt.Sprintf("handler process exited with code %d: %s", e.Code, e.Stderr)
}

// HandlerError is a failure reported by the child's handler.
type HandlerError struct {
	Message string
}

func (e *HandlerError) Error() string {
	return "handler process: " + e.Message
}

// ServeAsync starts the child, relays the request and waits for it to exit.
// Canceling ctx kills the child.
func (a *App) ServeAsync(ctx context.Context, sc *types.Scope, receive types.ReceiveFunc, send types.SendFunc) error {
	procCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(procCtx, a.cfg.Path, a.cfg.Args...)
	if len(a.cfg.Env) > 0 {
		cmd.Env = deduplicateEnv(append(os.Environ(), a.cfg.Env...))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr := newTailBuffer(a.cfg.StderrLimit)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start handler process: %w", err)
	}
	a.cfg.Logger.Debug("handler process started", map[string]any{
		"pid":  cmd.Process.Pid,
		"path": sc.Path,
	})

	relayErr := Relay(procCtx, sc, stdin, stdout, receive, send)
	_ = stdin.Close()
	if relayErr != nil {
		var he *HandlerError
		if !errors.As(relayErr, &he) {
			cancel()
		}
	}

	waitErr := cmd.Wait()
	if relayErr != nil {
		return relayErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return fmt.Errorf("handler process wait failed: %w", waitErr)
	}
	return nil
}

// Relay runs the parent side of the frame protocol: it sends the scope, then
// answers receive frames and forwards lifecycle frames until the child closes
// its output. A child error frame is returned as *HandlerError once the
// stream ends.
func Relay(ctx context.Context, sc *types.Scope, w io.Writer, r io.Reader, receive types.ReceiveFunc, send types.SendFunc) error {
	enc := ipc.NewFrameEncoder(w)
	dec := ipc.NewFrameDecoder(r)

	if err := enc.Encode(ipc.ScopeFrame(sc)); err != nil {
		return fmt.Errorf("failed to write scope: %w", err)
	}

	var childErr error
	for {
		f, err := dec.Next()
		if err == io.EOF {
			return childErr
		}
		if err != nil {
			return fmt.Errorf("failed to read handler frame: %w", err)
		}

		switch f.Type {
		case ipc.FrameTypeReceive:
			msg, err := receive(ctx)
			if err != nil {
				return err
			}
			out, err := ipc.FromMessage(msg)
			if err != nil {
				return err
			}
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("failed to forward %s: %w", msg.Type(), err)
			}
		case ipc.FrameTypeError:
			childErr = &HandlerError{Message: f.Message}
		default:
			msg, err := f.ToMessage()
			if err != nil {
				return err
			}
			if err := send(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// ServeChild runs app against the frames on r and w. It is the body of a
// handler process: r is stdin, w is stdout. A handler error is reported to
// the parent with an error frame and returned.
func ServeChild(ctx context.Context, app types.App, r io.Reader, w io.Writer) error {
	enc := ipc.NewFrameEncoder(w)
	dec := ipc.NewFrameDecoder(r)

	f, err := dec.Next()
	if err != nil {
		return fmt.Errorf("failed to read scope: %w", err)
	}
	if f.Type != ipc.FrameTypeScope || f.Scope == nil {
		return fmt.Errorf("expected scope frame, got %q", f.Type)
	}
	if f.Scope.Extensions == nil {
		f.Scope.Extensions = map[string]any{}
	}

	receive := func(context.Context) (types.Message, error) {
		if err := enc.Encode(ipc.ReceiveFrame()); err != nil {
			return nil, err
		}
		in, err := dec.Next()
		if err == io.EOF {
			return types.Disconnect{}, nil
		}
		if err != nil {
			return nil, err
		}
		return in.ToMessage()
	}
	send := func(_ context.Context, msg types.Message) error {
		out, err := ipc.FromMessage(msg)
		if err != nil {
			return err
		}
		return enc.Encode(out)
	}

	if err := app.ServeAsync(ctx, f.Scope, receive, send); err != nil {
		_ = enc.Encode(ipc.ErrorFrame(err))
		return err
	}
	return nil
}

// deduplicateEnv keeps the last occurrence of each env var key.
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
