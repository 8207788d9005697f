// Package ws streams task results to WebSocket clients. Every finished task
// is broadcast to all connected clients; clients may also submit tasks over
// the same connection when the server has an executor.
package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/asecn/asecn/internal/orchestrator"
)

// Subprotocol is negotiated on every accepted connection.
const Subprotocol = "asecn-results-v1"

const (
	defaultPingInterval = 30 * time.Second
	defaultSendBuffer   = 16
	writeTimeout        = 10 * time.Second
)

// TaskExecutor runs a task submitted over the socket.
type TaskExecutor interface {
	ExecuteTask(ctx context.Context, req orchestrator.TaskRequest) (*orchestrator.TaskResult, error)
}

// Config tunes the server. The zero value accepts unauthenticated clients.
type Config struct {
	APIKeys      []string         // Empty = no authentication.
	PingInterval time.Duration    // 0 = 30s.
	SendBuffer   int              // Per-client queued messages before the client is dropped. 0 = 16.
	Clients      prometheus.Gauge // Optional connected-clients gauge.
}

// Server manages result subscribers.
type Server struct {
	cfg    Config
	exec   TaskExecutor // nil = task.submit rejected.
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	inflight sync.WaitGroup
}

type client struct {
	id     string
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.closed) })
}

// NewServer creates a results server. exec may be nil.
func NewServer(exec TaskExecutor, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		cfg:     cfg,
		exec:    exec,
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Handler returns an http.Handler that upgrades connections to WebSocket.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleUpgrade)
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast sends res to every connected client. Its signature matches
// orchestrator.ResultObserver.
func (s *Server) Broadcast(_ context.Context, res *orchestrator.TaskResult) {
	if res == nil {
		return
	}
	env, err := NewEnvelope(MsgTaskResult, res)
	if err != nil {
		s.logger.Error("encoding task result", slog.String("error", err.Error()))
		return
	}
	env.TaskID = res.TaskID.String()
	data, err := json.Marshal(env)
	if err != nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		s.enqueue(c, data)
	}
}

// Close disconnects every client and waits for submitted tasks to finish.
func (s *Server) Close() {
	s.mu.RLock()
	for c := range s.clients {
		c.close()
	}
	s.mu.RUnlock()
	s.inflight.Wait()
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		s.logger.Error("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	s.handleConnection(r.Context(), conn)
}

func (s *Server) authorized(r *http.Request) bool {
	if len(s.cfg.APIKeys) == 0 {
		return true
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		return false
	}
	ok := false
	for _, key := range s.cfg.APIKeys {
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
			ok = true
		}
	}
	return ok
}

func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := s.register()
	defer s.unregister(c)

	s.logger.Info("results client connected", slog.String("client_id", c.id))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		s.writeLoop(ctx, conn, c)
	}()

	s.reply(c, MsgWelcome, "", WelcomePayload{
		Message:   "subscribed to task results",
		CanSubmit: s.exec != nil,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				s.logger.Info("results client disconnected", slog.String("client_id", c.id))
			} else {
				s.logger.Debug("results client connection ended",
					slog.String("client_id", c.id),
					slog.String("error", err.Error()),
				)
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.replyError(c, "", "invalid_message", "message is not a valid envelope")
			continue
		}
		s.handleMessage(ctx, c, &env)
	}

	cancel()
	<-writerDone
	_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
}

func (s *Server) handleMessage(ctx context.Context, c *client, env *Envelope) {
	switch env.Type {
	case MsgPong:
		s.logger.Debug("pong", slog.String("client_id", c.id))

	case MsgTaskSubmit:
		if s.exec == nil {
			s.replyError(c, env.ID, "submit_disabled", "task submission is not enabled on this connection")
			return
		}
		var req SubmitPayload
		if err := env.Decode(&req); err != nil || req.Description == "" {
			s.replyError(c, env.ID, "invalid_request", "description is required")
			return
		}
		s.reply(c, MsgTaskAccepted, "", AcceptedPayload{RequestID: env.ID})

		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			// The result reaches clients through Broadcast; only failures
			// that produce no result are reported here.
			if _, err := s.exec.ExecuteTask(context.WithoutCancel(ctx), req); err != nil {
				s.logger.Warn("submitted task rejected",
					slog.String("client_id", c.id),
					slog.String("error", err.Error()),
				)
				s.replyError(c, env.ID, "task_rejected", err.Error())
			}
		}()

	default:
		s.logger.Warn("unknown message type from results client",
			slog.String("client_id", c.id),
			slog.String("type", string(env.Type)),
		)
		s.replyError(c, env.ID, "unknown_type", "unknown message type "+string(env.Type))
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(s.pingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			_ = conn.Close(websocket.StatusGoingAway, "disconnected by gateway")
			return
		case data := <-c.send:
			if err := write(ctx, conn, data); err != nil {
				s.logger.Debug("results write failed",
					slog.String("client_id", c.id),
					slog.String("error", err.Error()),
				)
				return
			}
		case <-ticker.C:
			env, _ := NewEnvelope(MsgPing, nil)
			data, _ := json.Marshal(env)
			if err := write(ctx, conn, data); err != nil {
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// enqueue never blocks. A client whose buffer is full is disconnected.
func (s *Server) enqueue(c *client, data []byte) {
	select {
	case <-c.closed:
	case c.send <- data:
	default:
		s.logger.Warn("results client too slow, disconnecting", slog.String("client_id", c.id))
		c.close()
	}
}

func (s *Server) reply(c *client, t MessageType, taskID string, payload any) {
	env, err := NewEnvelope(t, payload)
	if err != nil {
		return
	}
	env.TaskID = taskID
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	s.enqueue(c, data)
}

func (s *Server) replyError(c *client, requestID, code, msg string) {
	s.reply(c, MsgError, "", ErrorPayload{Code: code, Message: msg, RequestID: requestID})
}

func (s *Server) register() *client {
	buf := s.cfg.SendBuffer
	if buf <= 0 {
		buf = defaultSendBuffer
	}
	c := &client{
		id:     uuid.New().String(),
		send:   make(chan []byte, buf),
		closed: make(chan struct{}),
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	if s.cfg.Clients != nil {
		s.cfg.Clients.Inc()
	}
	return c
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
	if ok && s.cfg.Clients != nil {
		s.cfg.Clients.Dec()
	}
}

func (s *Server) pingInterval() time.Duration {
	if s.cfg.PingInterval > 0 {
		return s.cfg.PingInterval
	}
	return defaultPingInterval
}
