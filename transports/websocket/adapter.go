// Package websocket serves the control channel: one connection, one session,
// JSON envelopes both ways.
package websocket

import (
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/tiger/realtime-translator/api/wire"
	"github.com/tiger/realtime-translator/internal/session"
)

// HandlerConfig wires the websocket endpoint to the session layer.
type HandlerConfig struct {
	Session   session.Config
	Providers session.Providers
	Manager   *session.Manager
	Logger    *log.Logger

	// MaxMessageBytes caps one inbound frame; base64 audio chunks dominate.
	MaxMessageBytes int64
	WriteTimeout    time.Duration
	// SendBuffer is the outbound event queue per connection. A slow reader
	// loses events rather than stalling the pipeline.
	SendBuffer  int
	CheckOrigin func(*http.Request) bool
}

func (c HandlerConfig) withDefaults() HandlerConfig {
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 1 << 20
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// Handler upgrades HTTP requests and runs the per-connection loops.
type Handler struct {
	cfg      HandlerConfig
	upgrader websocket.Upgrader
}

// NewHandler constructs the websocket control-channel handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Providers.Recognizer == nil {
		return nil, fmt.Errorf("providers are required")
	}
	cfg = cfg.withDefaults()
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		cfg:      cfg,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
	}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(h.cfg.MaxMessageBytes)

	sessionID := session.NewID()
	logger := h.cfg.Logger.With("session", sessionID)

	outbound := make(chan wire.Envelope, h.cfg.SendBuffer)
	done := make(chan struct{})
	send := func(env wire.Envelope) {
		select {
		case outbound <- env:
		default:
			logger.Warn("outbound event dropped", "kind", string(env.Type))
		}
	}

	sess, err := session.New(sessionID, h.cfg.Session, h.cfg.Providers, send, h.cfg.Logger)
	if err != nil {
		logger.Error("session setup failed", "err", err)
		return
	}
	if err := h.cfg.Manager.Register(sess); err != nil {
		logger.Warn("connection refused", "err", err)
		return
	}
	logger.Info("connection open", "remote", r.RemoteAddr)

	writerDone := make(chan struct{})
	go h.writeLoop(conn, outbound, done, writerDone, logger)

	h.readLoop(conn, sess, send, logger)

	h.cfg.Manager.Unregister(sessionID)
	sess.Close()
	close(done)
	<-writerDone
	logger.Info("connection closed")
}

// readLoop dispatches inbound frames serially until the peer goes away.
func (h *Handler) readLoop(conn *websocket.Conn, sess *session.Session, send session.SendFunc, logger *log.Logger) {
	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("read failed", "err", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			send(errorEvent("messages must be JSON text frames"))
			continue
		}
		env, err := wire.ParseInbound(raw)
		if err != nil {
			logger.Warn("frame rejected", "err", err)
			send(errorEvent(err.Error()))
			continue
		}
		sess.Dispatch(env)
	}
}

// writeLoop is the single writer for the connection. Gorilla connections
// allow at most one concurrent writer, so all events funnel through here.
func (h *Handler) writeLoop(conn *websocket.Conn, outbound <-chan wire.Envelope, done, writerDone chan struct{}, logger *log.Logger) {
	defer close(writerDone)
	for {
		select {
		case env := <-outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteJSON(env); err != nil {
				logger.Warn("write failed", "err", err)
				return
			}
		case <-done:
			// Drain what the session produced before teardown.
			for {
				select {
				case env := <-outbound:
					_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
					if err := conn.WriteJSON(env); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func errorEvent(msg string) wire.Envelope {
	env, err := wire.NewEvent(wire.TypeError, wire.ErrorData{Error: msg})
	if err != nil {
		return wire.Envelope{Type: wire.TypeError}
	}
	return env
}
