package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Krimson/ctg-stream/receiver/internal/fanout"
	"github.com/Krimson/ctg-stream/receiver/internal/stream"
)

const (
	// Время на запись одного сообщения
	writeWait = 10 * time.Second

	// Сколько ждем pong от клиента
	pongWait = 60 * time.Second

	// Период ping, должен быть меньше pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096

	DefaultSendBuffer = 256
)

var (
	errSendBufferFull = errors.New("send buffer full")
	errClientClosed   = errors.New("client closed")
)

// Ingestor принимает сэмплы, пришедшие через сокет
type Ingestor interface {
	Start(caseID string, opts stream.Options) (stream.Snapshot, error)
	Ingest(ctx context.Context, caseID string, in stream.Input) error
}

// Config - настройки транспорта
type Config struct {
	SendBuffer int
	// Defaults - шаг и горизонт, если клиент их не передал
	Defaults stream.Options
}

// Handler подключает клиентов к комнатам случаев
type Handler struct {
	rooms    *fanout.Hub
	ingest   Ingestor
	cfg      Config
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// Client представляет WebSocket клиента одного случая
type Client struct {
	id     string
	caseID string
	conn   *websocket.Conn
	logger *zap.Logger

	// Буферизованный канал исходящих сообщений
	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewHandler создает обработчик /ws/case/{id}
func NewHandler(rooms *fanout.Hub, ingest Ingestor, cfg Config, logger *zap.Logger) *Handler {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	return &Handler{
		rooms:  rooms,
		ingest: ingest,
		cfg:    cfg,
		logger: logger.Named("ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// В продакшене следует проверять домен
				return true
			},
		},
	}
}

// ServeHTTP обрабатывает WebSocket соединения
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]
	if caseID == "" {
		http.Error(w, "case id is required", http.StatusBadRequest)
		return
	}
	opts := parseOptions(r, h.cfg.Defaults)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.String("case_id", caseID), zap.Error(err))
		return
	}

	client := &Client{
		id:     uuid.NewString(),
		caseID: caseID,
		conn:   conn,
		logger: h.logger,
		send:   make(chan []byte, h.cfg.SendBuffer),
	}

	// hello уходит раньше любых событий комнаты
	if err := client.Send(fanout.Hello(caseID, opts.HorizonMinutes)); err != nil {
		conn.Close()
		return
	}
	h.rooms.Join(caseID, client)
	h.logger.Info("client connected", zap.String("case_id", caseID), zap.String("client_id", client.id))

	// Запускаем горутины для клиента
	go client.writePump()
	go h.readPump(client, opts)
}

func (c *Client) ID() string {
	return c.id
}

// Send ставит событие в очередь клиента, не блокируясь.
// Переполненный буфер закрывает клиента: комната удалит его сама.
func (c *Client) Send(ev fanout.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.closeLocked()
		return errSendBufferFull
	}
}

func (c *Client) close() {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump принимает сэмплы от клиента
func (h *Handler) readPump(c *Client, opts stream.Options) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.rooms.Leave(c.caseID, c)
		c.close()
		c.conn.Close()
		h.logger.Info("client disconnected", zap.String("case_id", c.caseID), zap.String("client_id", c.id))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	started := false
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", zap.String("case_id", c.caseID), zap.Error(err))
			}
			return
		}

		in, ok, err := parseSample(data)
		if err != nil {
			h.logger.Debug("malformed frame skipped", zap.String("case_id", c.caseID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		if !started {
			if _, err := h.ingest.Start(c.caseID, opts); err != nil && !errors.Is(err, stream.ErrStreamExists) {
				h.logger.Warn("failed to start stream", zap.String("case_id", c.caseID), zap.Error(err))
			}
			started = true
		}
		if err := h.ingest.Ingest(ctx, c.caseID, in); err != nil {
			h.logger.Warn("failed to ingest sample", zap.String("case_id", c.caseID), zap.Error(err))
		}
	}
}

// writePump отправляет сообщения клиенту и поддерживает ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
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
				c.logger.Debug("failed to write message", zap.String("case_id", c.caseID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// parseOptions читает H и stride из строки запроса
func parseOptions(r *http.Request, defaults stream.Options) stream.Options {
	opts := defaults
	q := r.URL.Query()

	if h, err := strconv.ParseFloat(q.Get("H"), 64); err == nil && !math.IsNaN(h) {
		h = math.Min(stream.MaxHorizonMinutes, math.Max(stream.MinHorizonMinutes, h))
		opts.HorizonMinutes = int(math.Round(h))
	}
	opts.HorizonMinutes = min(stream.MaxHorizonMinutes, max(stream.MinHorizonMinutes, opts.HorizonMinutes))

	if s, err := strconv.ParseFloat(q.Get("stride"), 64); err == nil && !math.IsNaN(s) && !math.IsInf(s, 0) {
		opts.StrideS = s
	}
	opts.StrideS = math.Max(1, opts.StrideS)
	return opts
}
