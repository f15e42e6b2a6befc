package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/albertocavalcante/assetrev/cmd/assetrev/internal/build"
	"github.com/albertocavalcante/assetrev/cmd/assetrev/internal/watch"
	"github.com/albertocavalcante/assetrev/internal/log"
	"github.com/albertocavalcante/assetrev/pkg/config"
	"github.com/albertocavalcante/assetrev/pkg/resolve"
	"github.com/albertocavalcante/assetrev/pkg/revision"
)

// HandlerConfig configures the RPC handler.
type HandlerConfig struct {
	Builder  *build.Builder
	Pipeline *resolve.Pipeline

	// WatchDebounce is used when watch/start does not specify one.
	WatchDebounce time.Duration
	// WatchOutput receives the watcher's event log (nil = stdout).
	WatchOutput io.Writer
}

// NewHandlerConfig derives a handler configuration from an anchored config.
func NewHandlerConfig(cfg *config.Config) (HandlerConfig, error) {
	if cfg == nil {
		return HandlerConfig{}, fmt.Errorf("config is required")
	}
	opts, err := build.OptionsFromConfig(cfg)
	if err != nil {
		return HandlerConfig{}, err
	}
	builder, err := build.New(opts)
	if err != nil {
		return HandlerConfig{}, err
	}
	pipeline, err := resolve.FromConfig(cfg)
	if err != nil {
		return HandlerConfig{}, err
	}
	return HandlerConfig{
		Builder:       builder,
		Pipeline:      pipeline,
		WatchDebounce: time.Duration(cfg.Watch.Debounce) * time.Millisecond,
	}, nil
}

// Handler handles RPC method calls.
type Handler struct {
	server *Server
	cfg    HandlerConfig

	// ctx is cancelled by Stop and bounds builds started over RPC.
	ctx    context.Context
	cancel context.CancelFunc

	watchMu     sync.RWMutex
	watcher     *watch.Watcher
	watchCancel context.CancelFunc
	watchKinds  []string
}

// NewHandler creates a new RPC handler. server may be nil until the
// handler is passed to NewServer.
func NewHandler(server *Server, cfg HandlerConfig) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		server: server,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Root returns the output root served by this handler, or "".
func (h *Handler) Root() string {
	if h.cfg.Builder == nil {
		return ""
	}
	return h.cfg.Builder.Options().Root
}

// HandleRequest dispatches a request to the appropriate handler.
func (h *Handler) HandleRequest(client *ClientConn, req *Request) *Response {
	log.Component("daemon").Debug("handling request", "method", req.Method, "id", req.ID)

	// Notifications get no response.
	if req.ID == nil {
		return nil
	}

	switch req.Method {
	case MethodPing:
		return h.handlePing(req)
	case MethodShutdown:
		return h.handleShutdown(req)
	case MethodResolve:
		return h.handleResolve(req)
	case MethodManifestGet:
		return h.handleManifestGet(req)
	case MethodBuildRun:
		return h.handleBuildRun(req)
	case MethodStatusGet:
		return h.handleStatusGet(req)
	case MethodWatchStart:
		return h.handleWatchStart(client, req)
	case MethodWatchStop:
		return h.handleWatchStop(req)
	case MethodWatchStatus:
		return respond(req, h.GetWatchStatus())
	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}
}

// respond wraps result in a response for req.
func respond(req *Request, result any) *Response {
	resp, err := NewResponse(*req.ID, result)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to create response", nil)
	}
	return resp
}

func decodeParams(req *Request, v any) *Response {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "Invalid params", err.Error())
	}
	return nil
}

func notConfigured(req *Request, what string) *Response {
	return NewErrorResponse(req.ID, ErrCodeInternalError, fmt.Sprintf("daemon has no %s configured", what), nil)
}

func (h *Handler) handlePing(req *Request) *Response {
	result := PingResult{Pong: true, Root: h.Root()}
	if h.server != nil {
		result.Version = h.server.version
		result.Uptime = h.server.Uptime().String()
		result.StartTime = h.server.startTime.Format(time.RFC3339)
	}
	return respond(req, result)
}

func (h *Handler) handleShutdown(req *Request) *Response {
	resp := respond(req, ShutdownResult{Message: "daemon shutting down"})

	if h.server != nil {
		// Leave time for the response to reach the client.
		go func() {
			time.Sleep(100 * time.Millisecond)
			h.server.RequestShutdown()
		}()
	}
	return resp
}

func (h *Handler) handleResolve(req *Request) *Response {
	if h.cfg.Pipeline == nil {
		return notConfigured(req, "resolver")
	}
	var params ResolveParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if len(params.Names) == 0 {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "Invalid params", "names is required")
	}

	result := ResolveResult{
		URLs:       make(map[string]string, len(params.Names)),
		Strategies: make(map[string]string, len(params.Names)),
	}
	for _, name := range params.Names {
		r, err := h.cfg.Pipeline.ResolveDetailed(h.ctx, name)
		if err != nil {
			result.Unresolved = append(result.Unresolved, name)
			if result.Errors == nil {
				result.Errors = make(map[string]string)
			}
			result.Errors[name] = err.Error()
			continue
		}
		result.URLs[name] = r.URL
		result.Strategies[name] = r.Strategy
	}
	return respond(req, result)
}

func (h *Handler) handleManifestGet(req *Request) *Response {
	if h.cfg.Builder == nil {
		return notConfigured(req, "manifest")
	}
	store := h.cfg.Builder.Options().Store

	m, err := store.Load()
	if err != nil {
		var corrupt *revision.ManifestCorruptError
		if errors.As(err, &corrupt) {
			return NewErrorResponse(req.ID, ErrCodeManifestCorrupt, "Manifest corrupt", err.Error())
		}
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to load manifest", err.Error())
	}
	return respond(req, ManifestGetResult{
		Path:    store.Path(),
		Exists:  store.Exists(),
		Entries: m.Map(),
	})
}

func (h *Handler) handleBuildRun(req *Request) *Response {
	if h.cfg.Builder == nil {
		return notConfigured(req, "builder")
	}

	res, err := h.cfg.Builder.Run(h.ctx)
	if err != nil {
		h.broadcast("error", nil, err.Error())
		code := ErrCodeBuildFailed
		var corrupt *revision.ManifestCorruptError
		if errors.As(err, &corrupt) {
			code = ErrCodeManifestCorrupt
		}
		return NewErrorResponse(req.ID, code, "Build failed", err.Error())
	}

	result := buildRunResult(res)
	h.broadcast("built", nil, summarize(res))
	return respond(req, result)
}

func buildRunResult(res *build.Result) BuildRunResult {
	result := BuildRunResult{
		Status:    "ok",
		Added:     res.Changes.Added,
		Updated:   res.Changes.Updated,
		Unchanged: len(res.Changes.Unchanged),
		Deleted:   res.Deleted,
		Saved:     res.Saved,
		Duration:  res.Duration.String(),
	}
	for _, f := range res.Failed {
		result.Failed = append(result.Failed, f.Error())
	}
	if len(result.Failed) > 0 {
		result.Status = "partial"
	}
	return result
}

func summarize(res *build.Result) string {
	msg := fmt.Sprintf("%d added, %d updated, %d deleted",
		len(res.Changes.Added), len(res.Changes.Updated), len(res.Deleted))
	if len(res.Failed) > 0 {
		msg += fmt.Sprintf(", %d failed", len(res.Failed))
	}
	return msg
}

func (h *Handler) handleStatusGet(req *Request) *Response {
	if h.cfg.Builder == nil {
		return notConfigured(req, "builder")
	}
	report, err := h.cfg.Builder.Status(h.ctx)
	if err != nil {
		var corrupt *revision.ManifestCorruptError
		if errors.As(err, &corrupt) {
			return NewErrorResponse(req.ID, ErrCodeManifestCorrupt, "Manifest corrupt", err.Error())
		}
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Status failed", err.Error())
	}
	return respond(req, StatusGetResult{
		Pending: !report.Changes.IsEmpty(),
		Added:   report.Changes.Added,
		Updated: report.Changes.Updated,
		Stale:   report.Stale,
		Failed:  report.Failed,
	})
}

func (h *Handler) handleWatchStart(client *ClientConn, req *Request) *Response {
	if h.cfg.Builder == nil {
		return notConfigured(req, "builder")
	}
	var params WatchStartParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}

	h.watchMu.Lock()
	defer h.watchMu.Unlock()

	if client != nil {
		client.Subscribe()
	}

	if h.watcher != nil {
		return respond(req, WatchStartResult{
			Status: "already_watching",
			Root:   h.Root(),
			Kinds:  h.watchKinds,
		})
	}

	debounce := time.Duration(params.Debounce) * time.Millisecond
	if debounce <= 0 {
		debounce = h.cfg.WatchDebounce
	}

	w, err := watch.New(watch.Config{
		Builder:      h.cfg.Builder,
		Kinds:        params.Kinds,
		Debounce:     debounce,
		BuildOnStart: params.Build,
		OnBuild:      h.onWatchBuild,
		Writer:       h.cfg.WatchOutput,
		NoColor:      true,
	})
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to start watcher", err.Error())
	}

	ctx, cancel := context.WithCancel(h.ctx)
	h.watcher = w
	h.watchCancel = cancel
	h.watchKinds = params.Kinds

	go h.runWatcher(ctx, w)

	return respond(req, WatchStartResult{
		Status: "watching",
		Root:   h.Root(),
		Kinds:  params.Kinds,
	})
}

// runWatcher runs w until it stops and clears the watch state if w is
// still the current watcher.
func (h *Handler) runWatcher(ctx context.Context, w *watch.Watcher) {
	logger := log.Component("daemon")

	if err := w.Run(ctx); err != nil {
		logger.Warn("watcher stopped with error", "error", err)
		h.broadcast("error", nil, err.Error())
	}
	_ = w.Close()

	h.watchMu.Lock()
	if h.watcher == w {
		h.clearWatchLocked()
	}
	h.watchMu.Unlock()

	logger.Info("watcher stopped")
}

func (h *Handler) onWatchBuild(paths []string, res *build.Result, err error) {
	if err != nil {
		h.broadcast("error", paths, err.Error())
		return
	}
	h.broadcast("built", paths, summarize(res))
}

func (h *Handler) handleWatchStop(req *Request) *Response {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()

	if h.watcher == nil {
		return respond(req, WatchStopResult{Status: "not_watching"})
	}
	h.stopWatchLocked()
	return respond(req, WatchStopResult{Status: "stopped"})
}

// GetWatchStatus returns the current watch status.
func (h *Handler) GetWatchStatus() *WatchStatusResult {
	h.watchMu.RLock()
	defer h.watchMu.RUnlock()

	result := &WatchStatusResult{Watching: h.watcher != nil}
	if h.watcher == nil {
		return result
	}

	stats := h.watcher.Stats()
	result.Root = h.Root()
	result.Kinds = h.watchKinds
	result.Builds = stats.Builds
	result.Errors = stats.Errors
	if !stats.LastBuild.IsZero() {
		result.LastBuild = stats.LastBuild.Format(time.RFC3339)
	}
	return result
}

// Stop cancels in-flight work and stops any running watcher.
func (h *Handler) Stop() {
	h.cancel()

	h.watchMu.Lock()
	defer h.watchMu.Unlock()
	h.stopWatchLocked()
}

func (h *Handler) stopWatchLocked() {
	if h.watchCancel != nil {
		h.watchCancel()
	}
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
	h.clearWatchLocked()
}

func (h *Handler) clearWatchLocked() {
	h.watcher = nil
	h.watchCancel = nil
	h.watchKinds = nil
}

// broadcast sends a watch event to all subscribed clients.
func (h *Handler) broadcast(eventType string, paths []string, message string) {
	if h.server == nil {
		return
	}

	notif, err := NewNotification(MethodWatchEvent, WatchEventParams{
		Type:      eventType,
		Paths:     paths,
		Message:   message,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	h.server.Broadcast(notif)
}
