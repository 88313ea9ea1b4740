// Package server exposes the operator surface: a JSON state endpoint and a
// WebSocket that streams status and accepts operator commands.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"turret-ctrl/internal/observability"
	"turret-ctrl/internal/protocol"
	"turret-ctrl/internal/state"
)

const (
	readWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	pingPeriod   = 30 * time.Second
	maxMessage   = 65536
	shutdownWait = 5 * time.Second

	DefaultStatusInterval = 200 * time.Millisecond
)

// Config for the server
type Config struct {
	ListenAddr     string
	StatusInterval time.Duration
	// OnShutdown runs after an operator shutdown request sets exit.
	OnShutdown func()
}

// Server is the operator HTTP and WebSocket server
type Server struct {
	cfg       Config
	st        *state.Control
	log       zerolog.Logger
	clients   map[*Client]bool
	clientsMu sync.RWMutex
	upgrader  websocket.Upgrader
	staticFS  fs.FS
	httpSrv   *http.Server
}

// Client represents a connected WebSocket client
type Client struct {
	conn   *websocket.Conn
	server *Server
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// New creates a server over st. staticFS must hold a web directory, which
// is served at /.
func New(cfg Config, st *state.Control, staticFS fs.FS, log zerolog.Logger) (*Server, error) {
	webFS, err := fs.Sub(staticFS, "web")
	if err != nil {
		return nil, fmt.Errorf("failed to access embedded web files: %w", err)
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}

	s := &Server{
		cfg:      cfg,
		st:       st,
		log:      log,
		clients:  make(map[*Client]bool),
		staticFS: webFS,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // bench network only
			},
		},
	}
	return s, nil
}

// Handler returns the routes of the operator surface.
func (s *Server) Handler() http.Handler {
	observability.RegisterMetrics()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/state", s.handleState)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", http.FileServer(http.FS(s.staticFS)))
	return mux
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop. It returns http.ErrServerClosed after Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.clientsMu.Lock()
	s.httpSrv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: writeWait}
	srv := s.httpSrv
	s.clientsMu.Unlock()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("operator server listening")
	return srv.Serve(ln)
}

// Stop closes every client and shuts the HTTP server down.
func (s *Server) Stop() {
	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	srv := s.httpSrv
	s.clientsMu.Unlock()

	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn().Err(err).Msg("operator server shutdown")
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.st.Snapshot()); err != nil {
		s.log.Warn().Err(err).Msg("encode state")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	client := &Client{
		conn:   conn,
		server: s,
		send:   make(chan []byte, 256),
	}

	s.clientsMu.Lock()
	s.clients[client] = true
	s.clientsMu.Unlock()
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("operator connected")

	go client.writePump()
	go client.readPump()

	client.sendStatus()
}

func (c *Client) sendStatus() {
	c.sendMessage(protocol.TypeStatus, protocol.StatusPayload{
		Timestamp: time.Now().UnixMilli(),
		State:     c.server.st.Snapshot(),
	})
}

func (c *Client) sendMessage(msgType string, payload any) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		c.server.log.Error().Err(err).Str("type", msgType).Msg("create message")
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		c.server.log.Error().Err(err).Str("type", msgType).Msg("marshal message")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.server.log.Warn().Str("type", msgType).Msg("client send buffer full, dropping message")
	}
}

func (c *Client) sendError(code, message string) {
	c.sendMessage(protocol.TypeError, protocol.ErrorPayload{Code: code, Message: message})
}

func (c *Client) readPump() {
	defer func() {
		c.server.clientsMu.Lock()
		delete(c.server.clients, c)
		c.server.clientsMu.Unlock()
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.log.Warn().Err(err).Msg("websocket read")
			}
			return
		}

		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		c.sendError(protocol.ErrInvalidMessage, "Failed to parse message")
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		var payload protocol.PingPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, "Failed to parse ping payload")
			return
		}
		c.sendMessage(protocol.TypePong, protocol.PongPayload{
			ClientTimestamp: payload.Timestamp,
			ServerTimestamp: time.Now().UnixMilli(),
		})

	case protocol.TypeResetYaw:
		c.server.st.RequestYawReset()
		c.server.log.Info().Msg("operator requested yaw reset")
		c.sendMessage(protocol.TypeAck, protocol.AckPayload{Command: msg.Type})

	case protocol.TypeShutdown:
		c.server.st.RequestExit()
		c.server.log.Info().Msg("operator requested shutdown")
		c.sendMessage(protocol.TypeAck, protocol.AckPayload{Command: msg.Type})
		if c.server.cfg.OnShutdown != nil {
			c.server.cfg.OnShutdown()
		}

	default:
		c.server.log.Debug().Str("type", msg.Type).Msg("unknown message type")
		c.sendError(protocol.ErrUnknownType, "Unknown message type: "+msg.Type)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	status := time.NewTicker(c.server.cfg.StatusInterval)
	defer func() {
		ticker.Stop()
		status.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-status.C:
			c.sendStatus()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
