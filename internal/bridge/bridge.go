// Package bridge is the WebSocket endpoint a CAD host extension connects to.
// The service sends requests over it and the extension answers them.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"schsync/internal/fault"
	"schsync/internal/metrics"
)

const (
	DefaultTimeout          = 60 * time.Second
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultKeepAlive        = 15 * time.Second

	pingTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second

	closeReplaced     = 4000
	closeInvalidHello = 4002
)

type AppInfo struct {
	Name       string `json:"name,omitempty"`
	Version    string `json:"version,omitempty"`
	EdaVersion string `json:"edaVersion,omitempty"`
}

type hello struct {
	Type  string   `json:"type"`
	Token string   `json:"token,omitempty"`
	App   *AppInfo `json:"app,omitempty"`
}

type request struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type RemoteError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type response struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
}

type ClientInfo struct {
	App           AppInfo   `json:"app"`
	ConnectedAt   time.Time `json:"connectedAt"`
	RemoteAddress string    `json:"remoteAddress,omitempty"`
}

type Status struct {
	Connected bool        `json:"connected"`
	Client    *ClientInfo `json:"client,omitempty"`
}

type client struct {
	conn        *websocket.Conn
	app         AppInfo
	connectedAt time.Time
	remote      string

	writeMu   sync.Mutex
	pendingMu sync.Mutex
	pending   map[string]chan response
	done      chan struct{}
	closeOnce sync.Once
}

// Server accepts one CAD host at a time. A newer connection replaces the
// current one.
type Server struct {
	upgrader         websocket.Upgrader
	timeout          time.Duration
	handshakeTimeout time.Duration
	keepAlive        time.Duration
	metrics          *metrics.Metrics
	log              *slog.Logger

	mu     sync.Mutex
	client *client
}

type Option func(*Server)

func WithTimeout(d time.Duration) Option          { return func(s *Server) { s.timeout = d } }
func WithHandshakeTimeout(d time.Duration) Option { return func(s *Server) { s.handshakeTimeout = d } }
func WithKeepAlive(d time.Duration) Option        { return func(s *Server) { s.keepAlive = d } }
func WithMetrics(m *metrics.Metrics) Option       { return func(s *Server) { s.metrics = m } }
func WithLogger(l *slog.Logger) Option            { return func(s *Server) { s.log = l } }

func NewServer(opts ...Option) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			// The extension runs inside the CAD web app, whose origin varies.
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1 << 20,
			WriteBufferSize: 1 << 20,
		},
		timeout:          DefaultTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
		keepAlive:        DefaultKeepAlive,
		log:              slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("bridge upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := &client{
		conn:    conn,
		remote:  r.RemoteAddr,
		pending: make(map[string]chan response),
		done:    make(chan struct{}),
	}
	if err := s.handshake(c); err != nil {
		s.log.Warn("bridge handshake failed", "remote", r.RemoteAddr, "error", err)
		closeWith(conn, closeInvalidHello, "Invalid hello")
		_ = conn.Close()
		return
	}

	s.attach(c)
	go s.ping(c)
	s.readLoop(c)
	s.detach(c)
}

func (s *Server) handshake(c *client) error {
	if err := c.conn.SetReadDeadline(time.Now().Add(s.handshakeTimeout)); err != nil {
		return err
	}
	var h hello
	if err := c.conn.ReadJSON(&h); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if h.Type != "hello" {
		return fmt.Errorf("unexpected first message type %q", h.Type)
	}
	if h.App != nil {
		c.app = *h.App
	}
	c.connectedAt = time.Now().UTC()
	return c.conn.SetReadDeadline(time.Time{})
}

func (s *Server) attach(c *client) {
	s.mu.Lock()
	prev := s.client
	s.client = c
	s.mu.Unlock()

	if prev != nil {
		closeWith(prev.conn, closeReplaced, "Replaced by new connection")
		prev.close()
	}
	s.metrics.SetBridgeConnected(true)
	s.log.Info("cad host connected", "remote", c.remote, "app", c.app.Name, "version", c.app.Version)
}

func (s *Server) detach(c *client) {
	c.close()
	s.mu.Lock()
	current := s.client == c
	if current {
		s.client = nil
	}
	s.mu.Unlock()
	if current {
		s.metrics.SetBridgeConnected(false)
	}
	s.log.Info("cad host disconnected", "remote", c.remote)
}

func (s *Server) readLoop(c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg response
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "response" {
			continue
		}
		c.deliver(msg)
	}
}

// ping keeps idle connections alive and lets the extension confirm the
// handshake.
func (s *Server) ping(c *client) {
	if s.keepAlive <= 0 {
		return
	}
	once := func() {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		if err := s.call(ctx, c, "ping", nil, nil, pingTimeout); err != nil {
			s.log.Debug("bridge ping failed", "error", err)
		}
	}
	once()
	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			once()
		}
	}
}

func (s *Server) active() *client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *Server) Connected() bool {
	return s.active() != nil
}

func (s *Server) Status() Status {
	c := s.active()
	if c == nil {
		return Status{}
	}
	return Status{
		Connected: true,
		Client:    &ClientInfo{App: c.app, ConnectedAt: c.connectedAt, RemoteAddress: c.remote},
	}
}

// Call sends method to the connected host and decodes its result into out,
// which may be nil.
func (s *Server) Call(ctx context.Context, method string, params, out any) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveBridgeCall(method, time.Since(start), err) }()

	c := s.active()
	if c == nil {
		return fault.New(fault.BridgeDisconnected, "CAD host bridge is not connected")
	}
	return s.call(ctx, c, method, params, out, s.timeout)
}

func (s *Server) call(ctx context.Context, c *client, method string, params, out any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id := uuid.NewString()
	ch := c.register(id)
	defer c.unregister(id)

	if err := c.write(request{Type: "request", ID: id, Method: method, Params: params}); err != nil {
		return fault.Wrap(fault.BridgeDisconnected, err, "send bridge request "+method)
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			code := msg.Error.Code
			if code == "" {
				code = fault.Internal
			}
			f := fault.New(code, msg.Error.Message)
			if len(msg.Error.Data) > 0 {
				f.WithDetails(msg.Error.Data)
			}
			return f
		}
		if out == nil || len(msg.Result) == 0 || string(msg.Result) == "null" {
			return nil
		}
		if err := json.Unmarshal(msg.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	case <-c.done:
		return fault.New(fault.BridgeDisconnected, "Bridge disconnected")
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fault.Wrap(fault.Timeout, ctx.Err(), "Bridge call timeout: "+method)
		}
		return ctx.Err()
	}
}

// Close drops the connected host, if any.
func (s *Server) Close() {
	if c := s.active(); c != nil {
		closeWith(c.conn, websocket.CloseGoingAway, "server shutting down")
		c.close()
	}
}

func (c *client) register(id string) chan response {
	ch := make(chan response, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	return ch
}

func (c *client) unregister(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *client) deliver(msg response) {
	c.pendingMu.Lock()
	ch, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.pendingMu.Unlock()
	if ok {
		ch <- msg
	}
}

func (c *client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}
