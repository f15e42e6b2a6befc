package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"testing"
	"time"
)

// waitForSocketReady polls until the socket accepts connections.
func waitForSocketReady(t *testing.T, socket string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if IsSocketAlive(socket) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server did not listen on %s within %v", socket, timeout)
}

// runningServer is a server started in the background.
type runningServer struct {
	server *Server
	paths  *Paths
	done   chan struct{}
	err    error // valid after done is closed
}

// startServer runs a server in the background and returns once it accepts
// connections. The server is shut down when the test ends.
func startServer(t *testing.T, hc HandlerConfig) *runningServer {
	t.Helper()
	paths := PathsIn(shortTempDir(t))

	rs := &runningServer{
		server: NewServer(ServerConfig{
			Paths:   paths,
			Version: "test-1.0",
			Handler: NewHandler(nil, hc),
		}),
		paths: paths,
		done:  make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		rs.err = rs.server.Start(ctx)
		close(rs.done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-rs.done:
		case <-time.After(shutdownTimeout + time.Second):
			t.Error("server did not stop")
		}
	})

	waitForSocketReady(t, paths.Socket, 5*time.Second)
	return rs
}

func connect(t *testing.T, paths *Paths) *Client {
	t.Helper()
	client, err := Connect(paths.Socket)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// rawConn is a connection that speaks JSON-RPC without the Client.
type rawConn struct {
	conn net.Conn
	dec  *json.Decoder
}

func dialRaw(t *testing.T, paths *Paths) *rawConn {
	t.Helper()
	conn, err := net.Dial("unix", paths.Socket)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	return &rawConn{conn: conn, dec: json.NewDecoder(bufio.NewReader(conn))}
}

func (r *rawConn) send(t *testing.T, line string) {
	t.Helper()
	if _, err := r.conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
}

func (r *rawConn) read(t *testing.T) *Response {
	t.Helper()
	var resp Response
	if err := r.dec.Decode(&resp); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return &resp
}

func TestServer_StartAndPing(t *testing.T) {
	p := newProject(t, t.TempDir())
	rs := startServer(t, p.cfg)
	server, paths := rs.server, rs.paths

	client := connect(t, paths)
	result, err := client.Ping()
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if !result.Pong || result.Version != "test-1.0" || result.Root != p.root {
		t.Errorf("Ping() = %+v", result)
	}

	pid, err := paths.ReadPID()
	if err != nil {
		t.Fatalf("ReadPID() error = %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("PID = %d, want %d", pid, os.Getpid())
	}

	info, err := os.Stat(paths.Socket)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("socket permissions = %o, want 600", perm)
	}

	got := server.GetInfo()
	if got.Root != p.root || got.Watching || got.Version != "test-1.0" {
		t.Errorf("GetInfo() = %+v", got)
	}
}

func TestServer_AlreadyRunning(t *testing.T) {
	paths := startServer(t, HandlerConfig{}).paths

	second := NewServer(ServerConfig{Paths: paths})
	err := second.Start(context.Background())
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Start() error = %v, want ErrAlreadyRunning", err)
	}

	// The first server keeps its files.
	if !IsSocketAlive(paths.Socket) {
		t.Error("running server lost its socket")
	}
}

func TestServer_ReplacesStaleFiles(t *testing.T) {
	paths := PathsIn(shortTempDir(t))
	if err := paths.EnsureDir(); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(paths.PID, []byte("999999999"), 0o600)
	os.WriteFile(paths.Socket, []byte{}, 0o600)

	server := NewServer(ServerConfig{Paths: paths})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()

	waitForSocketReady(t, paths.Socket, 5*time.Second)
	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Start() error = %v", err)
	}

	if _, err := os.Stat(paths.PID); !os.IsNotExist(err) {
		t.Error("PID file left after shutdown")
	}
	if _, err := os.Stat(paths.Socket); !os.IsNotExist(err) {
		t.Error("socket left after shutdown")
	}
}

func TestServer_ShutdownViaRPC(t *testing.T) {
	rs := startServer(t, HandlerConfig{})

	client := connect(t, rs.paths)
	result, err := client.Shutdown()
	if err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if result.Message == "" {
		t.Error("expected a shutdown message")
	}

	select {
	case <-rs.done:
		if rs.err != nil {
			t.Errorf("Start() error = %v", rs.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	if IsSocketAlive(rs.paths.Socket) {
		t.Error("socket still answers after shutdown")
	}
}

func TestServer_ShutdownIdempotent(t *testing.T) {
	server := NewServer(ServerConfig{Paths: PathsIn(t.TempDir())})
	if err := server.Shutdown(); err != nil {
		t.Fatalf("first Shutdown() error = %v", err)
	}
	if err := server.Shutdown(); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}
	server.RequestShutdown()
}

func TestServer_InvalidRequests(t *testing.T) {
	paths := startServer(t, HandlerConfig{}).paths
	raw := dialRaw(t, paths)

	raw.send(t, `{"jsonrpc":"1.0","id":1,"method":"ping"}`)
	if resp := raw.read(t); resp.Error == nil || resp.Error.Code != ErrCodeInvalidRequest {
		t.Errorf("wrong version = %+v", resp)
	}

	raw.send(t, `{"jsonrpc":"2.0","id":2}`)
	if resp := raw.read(t); resp.Error == nil || resp.Error.Code != ErrCodeInvalidRequest {
		t.Errorf("missing method = %+v", resp)
	}

	raw.send(t, `{"jsonrpc":"2.0","id":"three","method":"ping"}`)
	if resp := raw.read(t); resp.Error == nil || resp.Error.Code != ErrCodeInvalidRequest {
		t.Errorf("mistyped id = %+v", resp)
	}

	// The connection is still usable.
	raw.send(t, `{"jsonrpc":"2.0","id":4,"method":"ping"}`)
	resp := raw.read(t)
	if resp.Error != nil || resp.ID == nil || *resp.ID != 4 {
		t.Errorf("ping after errors = %+v", resp)
	}
}

func TestServer_ParseErrorClosesConnection(t *testing.T) {
	paths := startServer(t, HandlerConfig{}).paths
	raw := dialRaw(t, paths)

	raw.send(t, `{"jsonrpc":"2.0",,}`)
	resp := raw.read(t)
	if resp.Error == nil || resp.Error.Code != ErrCodeParseError {
		t.Fatalf("expected parse error, got %+v", resp)
	}

	var next Response
	if err := raw.dec.Decode(&next); err == nil {
		t.Error("expected the connection to be closed after a parse error")
	}

	// Other clients are unaffected.
	if _, err := connect(t, paths).Ping(); err != nil {
		t.Errorf("Ping() on a new connection error = %v", err)
	}
}

func TestServer_NotificationGetsNoResponse(t *testing.T) {
	paths := startServer(t, HandlerConfig{}).paths
	raw := dialRaw(t, paths)

	raw.send(t, `{"jsonrpc":"2.0","method":"ping"}`)
	raw.send(t, `{"jsonrpc":"2.0","id":9,"method":"ping"}`)

	resp := raw.read(t)
	if resp.ID == nil || *resp.ID != 9 {
		t.Errorf("first response should answer id 9, got %+v", resp)
	}
}

func TestServer_BroadcastOnlyToSubscribers(t *testing.T) {
	p := newProject(t, t.TempDir())
	paths := startServer(t, p.cfg).paths

	subscriber := connect(t, paths)
	if _, err := subscriber.WatchStart(&WatchStartParams{}); err != nil {
		t.Fatalf("WatchStart() error = %v", err)
	}
	events, err := subscriber.SubscribeEvents()
	if err != nil {
		t.Fatalf("SubscribeEvents() error = %v", err)
	}

	p.write(t, "js/app.js", "a")
	builder := connect(t, paths)
	result, err := builder.BuildRun()
	if err != nil {
		t.Fatalf("BuildRun() error = %v", err)
	}
	if len(result.Added) != 1 {
		t.Errorf("BuildRun() = %+v", result)
	}

	// The builder is not subscribed, so its next read is its own response.
	if _, err := builder.Ping(); err != nil {
		t.Errorf("Ping() after build error = %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case notif, ok := <-events:
			if !ok {
				t.Fatal("event channel closed")
			}
			var params WatchEventParams
			if err := json.Unmarshal(notif.Params, &params); err != nil {
				t.Fatalf("bad event params: %v", err)
			}
			if params.Type == "built" {
				return
			}
		case <-deadline:
			t.Fatal("no built event received")
		}
	}
}
