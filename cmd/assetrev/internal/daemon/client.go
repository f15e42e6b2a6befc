package daemon

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"sync"
	"syscall"
	"time"
)

// ErrNotConnected is returned when trying to use a disconnected client.
var ErrNotConnected = errors.New("not connected to daemon")

// ErrDaemonNotRunning is returned when no daemon listens on the socket.
var ErrDaemonNotRunning = errors.New("daemon not running")

// DialTimeout bounds Connect.
const DialTimeout = 5 * time.Second

// Client is a client for one daemon connection. Calls are serialized;
// once SubscribeEvents is used the connection only delivers events.
type Client struct {
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
	callMu  sync.Mutex
	idGen   IDGenerator

	eventCh   chan *Notification
	eventOnce sync.Once
	closeOnce sync.Once
	closeCh   chan struct{}
}

// Connect connects to the daemon at the given socket path.
func Connect(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, DialTimeout)
	if err != nil {
		if isConnectionRefused(err) {
			return nil, ErrDaemonNotRunning
		}
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	return &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		decoder: json.NewDecoder(bufio.NewReader(conn)),
		closeCh: make(chan struct{}),
	}, nil
}

// ConnectProject connects to the daemon serving the project at root.
func ConnectProject(root string) (*Client, error) {
	return Connect(ProjectPaths(root).Socket)
}

// isConnectionRefused reports whether err means nothing listens on the
// socket, either because it is refused or the socket file is missing.
func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, fs.ErrNotExist)
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// call sends a request and waits for its response. Notifications that
// arrive first are skipped.
func (c *Client) call(method string, params any, result any) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	req, err := NewRequest(c.idGen.Next(), method, params)
	if err != nil {
		return err
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	for {
		resp = Response{}
		if err := c.decoder.Decode(&resp); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return ErrNotConnected
			}
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.ID != nil || resp.Error != nil {
			break
		}
	}

	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && resp.Result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}

// Ping sends a ping request to the daemon.
func (c *Client) Ping() (*PingResult, error) {
	var result PingResult
	if err := c.call(MethodPing, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Shutdown asks the daemon to shut down.
func (c *Client) Shutdown() (*ShutdownResult, error) {
	var result ShutdownResult
	if err := c.call(MethodShutdown, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Resolve resolves logical names to URLs.
func (c *Client) Resolve(names ...string) (*ResolveResult, error) {
	var result ResolveResult
	if err := c.call(MethodResolve, &ResolveParams{Names: names}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ManifestGet returns the current manifest.
func (c *Client) ManifestGet() (*ManifestGetResult, error) {
	var result ManifestGetResult
	if err := c.call(MethodManifestGet, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// BuildRun runs a build in the daemon.
func (c *Client) BuildRun() (*BuildRunResult, error) {
	var result BuildRunResult
	if err := c.call(MethodBuildRun, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StatusGet reports what the next build would change.
func (c *Client) StatusGet() (*StatusGetResult, error) {
	var result StatusGetResult
	if err := c.call(MethodStatusGet, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WatchStart starts watching the output root.
func (c *Client) WatchStart(params *WatchStartParams) (*WatchStartResult, error) {
	var result WatchStartResult
	if err := c.call(MethodWatchStart, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WatchStop stops watching.
func (c *Client) WatchStop() (*WatchStopResult, error) {
	var result WatchStopResult
	if err := c.call(MethodWatchStop, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WatchStatus returns the current watch status.
func (c *Client) WatchStatus() (*WatchStatusResult, error) {
	var result WatchStatusResult
	if err := c.call(MethodWatchStatus, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubscribeEvents returns a channel of server notifications. The server
// only sends events to clients that called WatchStart. The channel is
// closed when the connection closes. Do not issue calls afterwards.
func (c *Client) SubscribeEvents() (<-chan *Notification, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	c.eventOnce.Do(func() {
		c.eventCh = make(chan *Notification, 100)
		go c.readEvents()
	})
	return c.eventCh, nil
}

func (c *Client) readEvents() {
	defer close(c.eventCh)

	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		c.callMu.Lock()
		var notif Notification
		err := c.decoder.Decode(&notif)
		c.callMu.Unlock()

		if err != nil {
			var syntaxErr *json.SyntaxError
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.As(err, &syntaxErr) {
				return
			}
			continue
		}

		if notif.Method == "" {
			continue
		}
		select {
		case c.eventCh <- &notif:
		default:
			// Slow consumers lose events.
		}
	}
}

// IsDaemonRunningAt checks if the daemon is running at the given paths.
func IsDaemonRunningAt(paths *Paths) bool {
	return GetStatus(paths).Running
}

// GetDaemonInfo retrieves information about the daemon at paths.
func GetDaemonInfo(paths *Paths) (*DaemonInfo, error) {
	client, err := Connect(paths.Socket)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	ping, err := client.Ping()
	if err != nil {
		return nil, err
	}
	status, err := client.WatchStatus()
	if err != nil {
		return nil, err
	}

	info := &DaemonInfo{
		PID:        GetStatus(paths).PID,
		SocketPath: paths.Socket,
		Root:       ping.Root,
		Version:    ping.Version,
		Watching:   status.Watching,
	}
	if t, err := time.Parse(time.RFC3339, ping.StartTime); err == nil {
		info.StartTime = t
	}
	return info, nil
}
