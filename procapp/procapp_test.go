package procapp

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/syncbridge/apps"
	"github.com/pithecene-io/syncbridge/bridge"
	"github.com/pithecene-io/syncbridge/ipc"
	"github.com/pithecene-io/syncbridge/types"
)

const helperEnv = "SYNCBRIDGE_PROCAPP_HELPER"

// TestMain doubles as the handler process when helperEnv is set.
func TestMain(m *testing.M) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		os.Exit(m.Run())
	}
	os.Exit(runHelper(mode))
}

func runHelper(mode string) int {
	ctx := context.Background()
	switch mode {
	case "echo":
		if err := ServeChild(ctx, types.AppFunc(apps.Echo), os.Stdin, os.Stdout); err != nil {
			return 1
		}
		return 0
	case "fail":
		app := types.AppFunc(func(context.Context, *types.Scope, types.ReceiveFunc, types.SendFunc) error {
			return errors.New("boom")
		})
		if err := ServeChild(ctx, app, os.Stdin, os.Stdout); err != nil {
			return 1
		}
		return 0
	case "crash":
		_, _ = ipc.NewFrameDecoder(os.Stdin).Next()
		_, _ = io.WriteString(os.Stderr, "fatal: crashed\n")
		return 3
	case "hang":
		_, _ = ipc.NewFrameDecoder(os.Stdin).Next()
		time.Sleep(time.Minute)
		return 0
	default:
		return 2
	}
}

func helperApp(t *testing.T, mode string) *App {
	t.Helper()
	app, err := New(Config{
		Path: os.Args[0],
		Env:  []string{helperEnv + "=" + mode},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return app
}

func TestNew_RequiresPath(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New without path should fail")
	}
	app, err := New(Config{Path: "/bin/true"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if app.cfg.StderrLimit != DefaultStderrLimit {
		t.Errorf("StderrLimit = %d, want %d", app.cfg.StderrLimit, DefaultStderrLimit)
	}
}

func TestParseCommand(t *testing.T) {
	path, args, err := ParseCommand("  python3 -m handler   --fast ")
	if err != nil {
		t.Fatalf("ParseCommand failed: %v", err)
	}
	if path != "python3" || strings.Join(args, " ") != "-m handler --fast" {
		t.Errorf("got %q %q", path, args)
	}
	if _, _, err := ParseCommand("   "); err == nil {
		t.Error("empty command should fail")
	}
}

func TestDeduplicateEnv(t *testing.T) {
	got := deduplicateEnv([]string{"A=1", "B=2", "A=3", "C", "C=4"})
	want := "B=2,A=3,C=4"
	if strings.Join(got, ",") != want {
		t.Errorf("deduplicateEnv = %v, want %s", got, want)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := newTailBuffer(8)
	_, _ = tb.Write([]byte("hello "))
	_, _ = tb.Write([]byte("world\n"))
	if got := tb.String(); got != "o world" {
		t.Errorf("tail = %q, want %q", got, "o world")
	}
}

type recorder struct {
	inbound []types.Message
	sent    []types.Message
}

func (r *recorder) receive(context.Context) (types.Message, error) {
	if len(r.inbound) == 0 {
		return types.Disconnect{}, nil
	}
	msg := r.inbound[0]
	r.inbound = r.inbound[1:]
	return msg, nil
}

func (r *recorder) send(_ context.Context, msg types.Message) error {
	r.sent = append(r.sent, msg)
	return nil
}

// relayInMemory connects Relay to ServeChild over pipes.
func relayInMemory(t *testing.T, app types.App, sc *types.Scope, rec *recorder) (relayErr, childErr error) {
	t.Helper()
	toChildR, toChildW := io.Pipe()
	toParentR, toParentW := io.Pipe()

	done := make(chan error, 1)
	go func() {
		err := ServeChild(context.Background(), app, toChildR, toParentW)
		_ = toParentW.Close()
		done <- err
	}()

	relayErr = Relay(context.Background(), sc, toChildW, toParentR, rec.receive, rec.send)
	_ = toChildW.Close()
	return relayErr, <-done
}

func TestRelay_Echo(t *testing.T) {
	rec := &recorder{inbound: []types.Message{
		types.Request{Body: []byte("ab"), MoreBody: true},
		types.Request{Body: []byte("cd")},
	}}
	sc := &types.Scope{
		Type:    types.ScopeTypeHTTP,
		Method:  "POST",
		Headers: []types.RawHeader{{Name: []byte("content-type"), Value: []byte("text/plain")}},
	}

	relayErr, childErr := relayInMemory(t, types.AppFunc(apps.Echo), sc, rec)
	if relayErr != nil || childErr != nil {
		t.Fatalf("relay = %v, child = %v", relayErr, childErr)
	}
	if len(rec.sent) != 3 {
		t.Fatalf("sent %d messages, want 3: %v", len(rec.sent), rec.sent)
	}
	start, ok := rec.sent[0].(types.ResponseStart)
	if !ok || start.Status != 200 || string(start.Headers[0].Value) != "text/plain" {
		t.Errorf("start = %#v", rec.sent[0])
	}
	first := rec.sent[1].(types.ResponseBody)
	last := rec.sent[2].(types.ResponseBody)
	if string(first.Body) != "ab" || !first.MoreBody || string(last.Body) != "cd" || last.MoreBody {
		t.Errorf("body = %#v, %#v", first, last)
	}
}

func TestRelay_ScopeReachesChild(t *testing.T) {
	var got *types.Scope
	app := types.AppFunc(func(ctx context.Context, sc *types.Scope, _ types.ReceiveFunc, send types.SendFunc) error {
		got = sc
		return send(ctx, types.ResponseStart{Status: 204})
	})
	sc := &types.Scope{
		Type:        types.ScopeTypeHTTP,
		Method:      "DELETE",
		Path:        "/items/1",
		QueryString: []byte("hard=1"),
		Server:      types.Addr{Host: "localhost", Port: 8080},
	}

	if relayErr, childErr := relayInMemory(t, app, sc, &recorder{}); relayErr != nil || childErr != nil {
		t.Fatalf("relay = %v, child = %v", relayErr, childErr)
	}
	if got.Method != "DELETE" || got.Path != "/items/1" || string(got.QueryString) != "hard=1" {
		t.Errorf("scope = %#v", got)
	}
	if got.Server.Port != 8080 || got.Extensions == nil {
		t.Errorf("scope = %#v", got)
	}
}

func TestRelay_DisconnectAfterInputEnds(t *testing.T) {
	var msgs []types.Message
	app := types.AppFunc(func(ctx context.Context, _ *types.Scope, receive types.ReceiveFunc, _ types.SendFunc) error {
		for range 2 {
			msg, err := receive(ctx)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		return nil
	})
	rec := &recorder{inbound: []types.Message{types.Request{Body: []byte("x")}}}

	if relayErr, childErr := relayInMemory(t, app, &types.Scope{}, rec); relayErr != nil || childErr != nil {
		t.Fatalf("relay = %v, child = %v", relayErr, childErr)
	}
	if len(msgs) != 2 || msgs[1].Type() != types.MessageTypeDisconnect {
		t.Errorf("messages = %v", msgs)
	}
}

func TestRelay_HandlerError(t *testing.T) {
	app := types.AppFunc(func(context.Context, *types.Scope, types.ReceiveFunc, types.SendFunc) error {
		return errors.New("bad input")
	})

	relayErr, childErr := relayInMemory(t, app, &types.Scope{}, &recorder{})
	if childErr == nil || childErr.Error() != "bad input" {
		t.Errorf("child error = %v", childErr)
	}
	var he *HandlerError
	if !errors.As(relayErr, &he) || he.Message != "bad input" {
		t.Errorf("relay error = %v, want HandlerError", relayErr)
	}
}

func TestRelay_SendErrorStops(t *testing.T) {
	app := types.AppFunc(apps.Hello)
	toChildR, toChildW := io.Pipe()
	toParentR, toParentW := io.Pipe()
	go func() {
		_ = ServeChild(context.Background(), app, toChildR, toParentW)
		_ = toParentW.Close()
	}()
	defer toChildW.Close()

	sendErr := errors.New("client gone")
	send := func(context.Context, types.Message) error { return sendErr }
	err := Relay(context.Background(), &types.Scope{}, toChildW, toParentR, (&recorder{}).receive, send)
	if !errors.Is(err, sendErr) {
		t.Errorf("Relay = %v, want %v", err, sendErr)
	}
	_ = toParentR.Close()
}

func TestServeChild_RejectsNonScopeFirstFrame(t *testing.T) {
	r, w := io.Pipe()
	go func() {
		_ = ipc.NewFrameEncoder(w).Encode(ipc.ReceiveFrame())
		_ = w.Close()
	}()
	err := ServeChild(context.Background(), types.AppFunc(apps.Hello), r, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "expected scope frame") {
		t.Errorf("ServeChild = %v", err)
	}
}

func serveBridge(t *testing.T, app types.App, input string) (int, string) {
	t.Helper()
	a, err := bridge.New(app, bridge.Config{})
	if err != nil {
		t.Fatalf("bridge.New failed: %v", err)
	}
	defer a.Close()

	var status int
	body := a.Serve(&types.Environ{
		Method:        "POST",
		PathInfo:      "/",
		ContentLength: int64(len(input)),
		Input:         strings.NewReader(input),
	}, func(s int, _ []types.Header) { status = s })
	defer body.Close()

	var sb strings.Builder
	for {
		chunk, err := body.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		sb.Write(chunk)
	}
	return status, sb.String()
}

func TestApp_EchoProcess(t *testing.T) {
	status, body := serveBridge(t, helperApp(t, "echo"), "ping over pipes")
	if status != 200 || body != "ping over pipes" {
		t.Errorf("response = %d %q", status, body)
	}
}

func TestApp_HandlerErrorProcess(t *testing.T) {
	status, body := serveBridge(t, helperApp(t, "fail"), "")
	if status != 500 {
		t.Errorf("status = %d, want 500", status)
	}
	if !strings.Contains(body, "handler process: boom") {
		t.Errorf("body = %q", body)
	}
}

func TestApp_CrashReportsExitCode(t *testing.T) {
	app := helperApp(t, "crash")
	rec := &recorder{}
	err := app.ServeAsync(context.Background(), &types.Scope{}, rec.receive, rec.send)

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("ServeAsync = %v, want ExitError", err)
	}
	if exitErr.Code != 3 {
		t.Errorf("exit code = %d, want 3", exitErr.Code)
	}
	if exitErr.Stderr != "fatal: crashed" {
		t.Errorf("stderr = %q", exitErr.Stderr)
	}
}

func TestApp_CancelKillsProcess(t *testing.T) {
	app := helperApp(t, "hang")
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	rec := &recorder{}
	done := make(chan error, 1)
	go func() { done <- app.ServeAsync(ctx, &types.Scope{}, rec.receive, rec.send) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("ServeAsync = %v, want context.Canceled", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("handler process was not killed on cancel")
	}
}

func TestApp_MissingExecutable(t *testing.T) {
	app, err := New(Config{Path: "/nonexistent/handler"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	rec := &recorder{}
	err = app.ServeAsync(context.Background(), &types.Scope{}, rec.receive, rec.send)
	if err == nil || !strings.Contains(err.Error(), "failed to start handler process") {
		t.Errorf("ServeAsync = %v", err)
	}
}
