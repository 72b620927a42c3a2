// Package agent serves local host telemetry over the same wire protocol the
// client consumes: one WebSocket per (domain, topic, node) carrying
// "<category>_metrics" frames, JSON ping keepalives, and a REST disk list.
package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/rileyhilliard/nodewatch/internal/codec"
	"github.com/rileyhilliard/nodewatch/internal/logger"
	"github.com/rileyhilliard/nodewatch/internal/transport"
)

// Defaults for Options.
const (
	DefaultInterval     = time.Second
	DefaultPingInterval = 30 * time.Second
	shutdownTimeout     = 5 * time.Second
	readHeaderTimeout   = 10 * time.Second
)

// Options configures a Server.
type Options struct {
	// Node is the node id this agent answers for. Empty accepts any.
	Node string
	// Token, when set, must match the "token" query parameter.
	Token        string
	Interval     time.Duration
	PingInterval time.Duration
	Sampler      Sampler
	Logger       logger.Logger
}

// Server streams samples to connected clients.
type Server struct {
	opts     Options
	log      logger.Logger
	router   *mux.Router
	upgrader websocket.Upgrader
	active   atomic.Int32
}

// frame is an outbound message.
type frame struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.Sampler == nil {
		opts.Sampler = NewHostSampler()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Noop()
	}

	s := &Server{
		opts: opts,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
			},
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/disk_list/{node}", s.handleDiskList).Methods("GET")
	r.HandleFunc("/{domain}/ws/{topic}/{node}", s.handleStream).Methods("GET")
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Active returns the number of open streams.
func (s *Server) Active() int {
	return int(s.active.Load())
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("agent listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	return s.opts.Token == "" || r.URL.Query().Get("token") == s.opts.Token
}

func (s *Server) knownNode(node string) bool {
	return s.opts.Node == "" || node == s.opts.Node
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"node":    s.opts.Node,
		"streams": s.Active(),
	})
}

func (s *Server) handleDiskList(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		return
	}
	node := mux.Vars(r)["node"]
	if !s.knownNode(node) {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "unknown node " + node})
		return
	}

	disks, err := s.opts.Sampler.Disks(r.Context())
	if err != nil {
		s.log.Warn("disk list: %v", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"disks": disks})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	category := codec.Category(vars["topic"])
	if !category.Valid() {
		http.NotFound(w, r)
		return
	}
	if !s.knownNode(vars["node"]) {
		http.NotFound(w, r)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed: %v", err)
		return
	}
	readTimeout := 2 * s.opts.PingInterval
	if readTimeout < transport.DefaultReadTimeout {
		readTimeout = transport.DefaultReadTimeout
	}
	conn := transport.Wrap(ws, readTimeout)

	if !s.authorized(r) {
		s.log.Warn("rejecting stream %s: invalid token", r.URL.Path)
		_ = transport.CloseWithCode(conn, transport.ClosePolicyViolation, "invalid token")
		return
	}

	s.active.Add(1)
	defer s.active.Add(-1)
	s.log.Debug("stream opened: %s", r.URL.Path)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		// Pongs and anything else the client sends only refresh the deadline.
		for {
			if _, err := conn.ReadMessage(); err != nil {
				ce := transport.AsCloseError(err)
				if !ce.Clean || !transport.IsNormal(ce.Code) {
					s.log.Debug("stream %s read: %v", r.URL.Path, err)
				}
				return
			}
		}
	}()

	s.stream(ctx, conn, category)
	_ = conn.Close()
	wg.Wait()
	s.log.Debug("stream closed: %s", r.URL.Path)
}

// stream writes samples and pings until ctx is done or a write fails.
func (s *Server) stream(ctx context.Context, conn transport.Conn, category codec.Category) {
	sampleTicker := time.NewTicker(s.opts.Interval)
	defer sampleTicker.Stop()
	pingTicker := time.NewTicker(s.opts.PingInterval)
	defer pingTicker.Stop()

	typ := string(category) + "_metrics"
	if category == codec.CategoryMinigraphs {
		typ = string(category) + "_data"
	}

	send := func() bool {
		payload, err := s.opts.Sampler.Sample(ctx, category)
		f := frame{Type: typ, Data: payload, Timestamp: time.Now().UTC().Format(time.RFC3339)}
		if err != nil {
			f = frame{Type: "error", Message: err.Error()}
		}
		return s.write(conn, f)
	}

	if !send() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-sampleTicker.C:
			if !send() {
				return
			}
		case <-pingTicker.C:
			if !s.write(conn, frame{Type: "ping"}) {
				return
			}
		}
	}
}

func (s *Server) write(conn transport.Conn, f frame) bool {
	data, err := json.Marshal(f)
	if err != nil {
		s.log.Error("encoding %s frame: %v", f.Type, err)
		return false
	}
	if err := conn.WriteMessage(data); err != nil {
		s.log.Debug("write %s frame: %v", f.Type, err)
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
