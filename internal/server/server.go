// Package server is the transport layer: it accepts websocket connections,
// frames JSON protocol messages in and out of the relay core, and exposes
// the metrics and administrative endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/murmur/internal/relay"
)

// Connection housekeeping. Pings keep half-dead connections from
// accumulating; the read limit bounds a single frame.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512 * 1024
)

// Config carries the server's listen address and the relay information
// document fields.
type Config struct {
	Addr        string
	Name        string
	Description string
	PubKey      string
	Contact     string
}

// Server owns the HTTP listener. The websocket endpoint, the metrics
// endpoint, and the administrative sweep hook share it.
type Server struct {
	relay    *relay.Relay
	cfg      Config
	log      *slog.Logger
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// New creates a Server. gatherer serves /metrics; pass the same registry
// given to the relay's WithMetrics.
func New(r *relay.Relay, cfg Config, log *slog.Logger, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		relay:    r,
		cfg:      cfg,
		log:      log,
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The protocol carries its own signatures; origin checks would
			// only break browser clients.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/admin/sweep", s.handleSweep)
	s.httpSrv = &http.Server{Addr: cfg.Addr, Handler: mux}

	return s
}

// ListenAndServe blocks until the context is canceled or the listener
// fails, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.cfg.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
}

// handleRoot upgrades websocket requests and answers relay information
// document requests on the same path.
func (s *Server) handleRoot(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		http.NotFound(w, req)
		return
	}
	if req.Header.Get("Accept") == "application/nostr+json" {
		s.handleInfo(w, req)
		return
	}
	if !websocket.IsWebSocketUpgrade(req) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "%s - a nostr relay\n", s.cfg.Name)
		return
	}

	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.log.Debug("upgrade failed", "remote", req.RemoteAddr, "error", err)
		return
	}
	go s.serveConn(conn)
}

// handleSweep is the administrative out-of-band expiration trigger.
func (s *Server) handleSweep(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	deleted, err := s.relay.Sweep(req.Context())
	if err != nil {
		s.log.Error("manual sweep failed", "error", err)
		http.Error(w, "sweep failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "deleted %d\n", deleted)
}

// serveConn runs one connection: a session, a read pump on this goroutine,
// and a write pump draining the session outbox.
func (s *Server) serveConn(conn *websocket.Conn) {
	sess := s.relay.NewSession()
	defer s.relay.Disconnect(sess)

	go s.writePump(conn, sess)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := context.Background()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("read failed", "session", sess.ID(), "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.relay.HandleMessage(ctx, sess, data)
	}
}

// writePump drains the session outbox onto the wire and keeps the
// connection alive with pings. Exits when the session closes or a write
// fails; either way the read pump notices and tears the connection down.
func (s *Server) writePump(conn *websocket.Conn, sess *relay.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sess.Outbox():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
