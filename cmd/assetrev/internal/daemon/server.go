package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/albertocavalcante/assetrev/internal/log"
)

// ErrAlreadyRunning is returned by Start when another daemon answers on
// the socket.
var ErrAlreadyRunning = errors.New("daemon already running")

// shutdownTimeout bounds how long Shutdown waits for client goroutines.
const shutdownTimeout = 5 * time.Second

// Server is the daemon server that listens on a unix socket.
type Server struct {
	paths     *Paths
	listener  net.Listener
	handler   *Handler
	startTime time.Time
	version   string
	logger    *slog.Logger

	clients   map[*ClientConn]struct{}
	clientsMu sync.RWMutex

	shutdown    chan struct{}
	shutdownMu  sync.Mutex
	isShutdown  bool
	requested   bool
	wg          sync.WaitGroup
	shutdownErr error
}

// ClientConn represents a connected client.
type ClientConn struct {
	conn       net.Conn
	encoder    *json.Encoder
	decoder    *json.Decoder
	encoderMu  sync.Mutex
	subscribed atomic.Bool
	closed     bool
	closeMu    sync.Mutex
}

// ServerConfig configures the daemon server.
type ServerConfig struct {
	Paths   *Paths
	Version string
	Handler *Handler
}

// NewServer creates a new daemon server. Without a Handler the server
// answers ping, shutdown and watch/status only.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		paths:     cfg.Paths,
		version:   cfg.Version,
		clients:   make(map[*ClientConn]struct{}),
		shutdown:  make(chan struct{}),
		startTime: time.Now(),
		logger:    log.Component("daemon"),
	}

	if cfg.Handler != nil {
		s.handler = cfg.Handler
		s.handler.server = s
	} else {
		s.handler = NewHandler(s, HandlerConfig{})
	}
	return s
}

// Start listens for connections and blocks until the server shuts down
// through ctx, a signal or the shutdown RPC.
func (s *Server) Start(ctx context.Context) error {
	if err := s.listen(); err != nil {
		return err
	}

	s.logger.Info("daemon started",
		"pid", os.Getpid(),
		"socket", s.paths.Socket,
		"root", s.handler.Root(),
		"version", s.version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	s.wg.Add(1)
	go s.acceptLoop()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
	case sig := <-sigCh:
		s.logger.Info("received signal, shutting down", "signal", sig)
	case <-s.shutdown:
		s.logger.Info("shutdown requested via RPC")
	}

	return s.Shutdown()
}

// listen prepares the socket and PID file.
func (s *Server) listen() error {
	if IsSocketAlive(s.paths.Socket) {
		return fmt.Errorf("%w on %s", ErrAlreadyRunning, s.paths.Socket)
	}
	if _, err := CleanupStale(s.paths); err != nil {
		s.logger.Warn("failed to clean up stale files", "error", err)
	}

	if err := s.paths.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create daemon directory: %w", err)
	}

	// A socket left by a crashed daemon blocks Listen.
	if err := s.paths.RemoveSocket(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove old socket: %w", err)
	}

	listener, err := net.Listen("unix", s.paths.Socket)
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.paths.Socket, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	if err := s.paths.WritePID(); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.shuttingDown() {
				return
			}
			s.logger.Warn("accept error", "error", err)
			continue
		}

		client := &ClientConn{
			conn:    conn,
			encoder: json.NewEncoder(conn),
			decoder: json.NewDecoder(bufio.NewReader(conn)),
		}

		s.clientsMu.Lock()
		s.clients[client] = struct{}{}
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		s.logger.Debug("client connected", "client_count", clientCount)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleClient(client)
		}()
	}
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	return s.isShutdown
}

// handleClient processes requests from a single client until it
// disconnects.
func (s *Server) handleClient(client *ClientConn) {
	defer func() {
		client.Close()
		s.clientsMu.Lock()
		delete(s.clients, client)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()
		s.logger.Debug("client disconnected", "client_count", clientCount)
	}()

	for {
		var req Request
		if err := client.decoder.Decode(&req); err != nil {
			var typeErr *json.UnmarshalTypeError
			switch {
			case errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed):
				return
			case errors.As(err, &typeErr):
				// The value was consumed; the stream is still usable.
				if err := client.Send(NewErrorResponse(nil, ErrCodeInvalidRequest, "Invalid Request", err.Error())); err != nil {
					return
				}
				continue
			default:
				// The decoder cannot resync after malformed input.
				s.logger.Debug("failed to decode request", "error", err)
				_ = client.Send(NewErrorResponse(nil, ErrCodeParseError, "Parse error", nil))
				return
			}
		}

		if req.JSONRPC != JSONRPCVersion {
			resp := NewErrorResponse(req.ID, ErrCodeInvalidRequest, "Invalid Request: unsupported JSON-RPC version", nil)
			if err := client.Send(resp); err != nil {
				return
			}
			continue
		}
		if req.Method == "" {
			resp := NewErrorResponse(req.ID, ErrCodeInvalidRequest, "Invalid Request: method is required", nil)
			if err := client.Send(resp); err != nil {
				return
			}
			continue
		}

		if resp := s.handler.HandleRequest(client, &req); resp != nil {
			if err := client.Send(resp); err != nil {
				s.logger.Debug("failed to send response", "error", err)
				return
			}
		}
	}
}

// Shutdown performs a graceful shutdown of the server. It is safe to call
// more than once.
func (s *Server) Shutdown() error {
	s.shutdownMu.Lock()
	if s.isShutdown {
		err := s.shutdownErr
		s.shutdownMu.Unlock()
		return err
	}
	s.isShutdown = true
	s.shutdownMu.Unlock()

	s.logger.Info("shutting down daemon")

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("failed to close listener", "error", err)
		}
	}

	s.notifyShutdown()

	if s.handler != nil {
		s.handler.Stop()
	}

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clientsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		s.logger.Warn("shutdown timed out waiting for clients")
	}

	err := s.paths.Cleanup()
	if err != nil {
		s.logger.Warn("failed to cleanup daemon files", "error", err)
	}
	s.shutdownMu.Lock()
	s.shutdownErr = err
	s.shutdownMu.Unlock()

	s.logger.Info("daemon stopped")
	return err
}

// RequestShutdown asks Start to shut the server down.
func (s *Server) RequestShutdown() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	if !s.isShutdown && !s.requested {
		s.requested = true
		close(s.shutdown)
	}
}

func (s *Server) notifyShutdown() {
	notif, err := NewNotification(MethodWatchEvent, WatchEventParams{
		Type:      "shutdown",
		Message:   "daemon is shutting down",
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	s.Broadcast(notif)
}

// Broadcast sends a notification to all subscribed clients.
func (s *Server) Broadcast(notif *Notification) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		if client.subscribed.Load() {
			_ = client.Send(notif)
		}
	}
}

// GetInfo returns information about the running daemon.
func (s *Server) GetInfo() *DaemonInfo {
	s.clientsMu.RLock()
	clientCount := len(s.clients)
	s.clientsMu.RUnlock()

	info := &DaemonInfo{
		PID:         os.Getpid(),
		SocketPath:  s.paths.Socket,
		StartTime:   s.startTime,
		Version:     s.version,
		ClientCount: clientCount,
	}
	if s.handler != nil {
		info.Root = s.handler.Root()
		info.Watching = s.handler.GetWatchStatus().Watching
	}
	return info
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Send sends a message to the client. Safe for concurrent use.
func (c *ClientConn) Send(msg any) error {
	c.closeMu.Lock()
	closed := c.closed
	c.closeMu.Unlock()
	if closed {
		return net.ErrClosed
	}

	c.encoderMu.Lock()
	defer c.encoderMu.Unlock()
	return c.encoder.Encode(msg)
}

// Close closes the client connection.
func (c *ClientConn) Close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.Close()
}

// Subscribe enables event notifications for this client.
func (c *ClientConn) Subscribe() {
	c.subscribed.Store(true)
}

// Unsubscribe disables event notifications for this client.
func (c *ClientConn) Unsubscribe() {
	c.subscribed.Store(false)
}

// Subscribed reports whether the client receives event notifications.
func (c *ClientConn) Subscribed() bool {
	return c.subscribed.Load()
}
