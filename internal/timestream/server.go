// ABOUTME: Websocket server streaming player time to external visualisers
// ABOUTME: Broadcasts time updates and accepts remote transport commands
package timestream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stemdeck/stemdeck-go/pkg/stem"
	"go.uber.org/zap"
)

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	sendBuffer    = 64
)

// Controls is the subset of the player remote clients may drive
type Controls interface {
	Play() error
	Pause() error
	Seek(t float64) error
	SetRate(rate float64) error
	SetLoop(start, end float64) error
	ClearLoop() error
	Mute(key stem.ID, muted bool) error
	SetVolume(v float64) error
}

// Config holds server configuration
type Config struct {
	Addr     string
	Name     string
	Controls Controls // nil makes the stream read-only
	Logger   *zap.Logger
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan Message
}

// Server fans player events out to websocket clients
type Server struct {
	config   Config
	serverID string
	logger   *zap.Logger
	upgrader websocket.Upgrader
	router   *mux.Router

	httpServer *http.Server
	listener   net.Listener

	mu       sync.RWMutex
	clients  map[string]*client
	snapshot Snapshot

	wg sync.WaitGroup
}

// New creates a server. Call Start to listen or use Handler directly.
func New(config Config) *Server {
	if config.Name == "" {
		config.Name = "stemdeck"
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		logger:   logger,
		upgrader: websocket.Upgrader{
			// Local network tool; visualisers are served from anywhere
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.router}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("time stream server failed", zap.Error(err))
		}
	}()

	s.logger.Info("time stream listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Port returns the listening port, or 0 before Start
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Stop closes every client and shuts the listener down
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

// Clients returns the number of connected clients
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// PublishTime broadcasts the song time
func (s *Server) PublishTime(t float64) {
	s.mu.Lock()
	s.snapshot.SongTime = t
	s.mu.Unlock()
	s.broadcast(Message{Type: TypeTime, Payload: TimeUpdate{SongTime: t}})
}

// PublishPlayState broadcasts a play state change
func (s *Server) PublishPlayState(playing bool) {
	s.mu.Lock()
	s.snapshot.Playing = playing
	s.mu.Unlock()
	s.broadcast(Message{Type: TypeState, Payload: PlayState{Playing: playing}})
}

// PublishProgress broadcasts load progress
func (s *Server) PublishProgress(f float64) {
	s.mu.Lock()
	s.snapshot.Progress = f
	s.mu.Unlock()
	s.broadcast(Message{Type: TypeProgress, Payload: LoadProgress{Fraction: f}})
}

// PublishError broadcasts an error
func (s *Server) PublishError(err error) {
	s.broadcast(Message{Type: TypeError, Payload: ErrorMessage{Error: err.Error()}})
}

// broadcast queues msg for every client. Slow clients miss messages
// instead of stalling the player.
func (s *Server) broadcast(msg Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		select {
		case c.send <- msg:
		default:
			s.logger.Debug("dropping message for slow client", zap.String("client", c.id))
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan Message, sendBuffer),
	}

	s.mu.Lock()
	c.send <- Message{Type: TypeHello, Payload: Hello{
		ServerID: s.serverID,
		ClientID: c.id,
		Name:     s.config.Name,
		Version:  ProtocolVersion,
	}}
	c.send <- Message{Type: TypeSnapshot, Payload: s.snapshot}
	s.clients[c.id] = c
	s.mu.Unlock()

	s.logger.Info("time stream client connected",
		zap.String("client", c.id),
		zap.String("remote", r.RemoteAddr))

	done := make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.writer(c, done)
	}()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		close(done)
		s.logger.Info("time stream client disconnected", zap.String("client", c.id))
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		s.handleMessage(c, data)
	}
}

func (s *Server) writer(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Warn("failed to encode message", zap.Error(err))
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) handleMessage(c *client, data []byte) {
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		s.reply(c, fmt.Errorf("invalid message: %w", err))
		return
	}
	if msg.Type != TypeCommand {
		s.reply(c, fmt.Errorf("unexpected message type %q", msg.Type))
		return
	}

	var cmd Command
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		s.reply(c, fmt.Errorf("invalid command: %w", err))
		return
	}
	if err := s.execute(cmd); err != nil {
		s.reply(c, err)
	}
}

func (s *Server) execute(cmd Command) error {
	ctl := s.config.Controls
	if ctl == nil {
		return errors.New("remote control disabled")
	}

	s.logger.Debug("remote command", zap.String("command", cmd.Command))
	switch cmd.Command {
	case "play":
		return ctl.Play()
	case "pause":
		return ctl.Pause()
	case "seek":
		return ctl.Seek(cmd.Value)
	case "rate":
		return ctl.SetRate(cmd.Value)
	case "loop":
		return ctl.SetLoop(cmd.Start, cmd.End)
	case "clear_loop":
		return ctl.ClearLoop()
	case "volume":
		return ctl.SetVolume(cmd.Value)
	case "mute":
		key, err := stem.Parse(cmd.Track)
		if err != nil {
			return err
		}
		return ctl.Mute(key, cmd.Muted)
	default:
		return fmt.Errorf("unknown command %q", cmd.Command)
	}
}

func (s *Server) reply(c *client, err error) {
	select {
	case c.send <- Message{Type: TypeError, Payload: ErrorMessage{Error: err.Error()}}:
	default:
	}
}
