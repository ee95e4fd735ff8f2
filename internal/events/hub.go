// Пакет events — рассылка событий сессии подключённым WebSocket-клиентам.
// Hub владеет всеми соединениями в одной горутине; внешние вызовы
// передаются ей командами через канал.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/share-module/internal/domain/model"
)

const (
	writeDeadline     = 5 * time.Second
	defaultPongWait   = 60 * time.Second
	messageBufferSize = 16
	commandBufferSize = 256
)

// Ошибки регистрации клиента.
var (
	ErrTooManyClients = errors.New("достигнут лимит подписчиков сессии")
	ErrHubStopped     = errors.New("hub остановлен")
)

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sm_event_clients",
		Help: "Количество подключённых WebSocket-подписчиков.",
	})
	eventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sm_events_published_total",
		Help: "Количество опубликованных событий сессий (по типу).",
	}, []string{"type"})
	slowClientsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_event_slow_clients_total",
		Help: "Количество отключённых медленных подписчиков.",
	})
)

// --- Команды ---

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	sessionID string
	conn      *websocket.Conn
	errCh     chan error
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct {
	sessionID string
	conn      *websocket.Conn
}

func (cmdUnregister) hubCmd() {}

type cmdBroadcast struct {
	sessionID string
	data      []byte
	// final — после отправки закрыть все соединения сессии
	final bool
}

func (cmdBroadcast) hubCmd() {}

type cmdClientCount struct {
	sessionID string
	replyCh   chan int
}

func (cmdClientCount) hubCmd() {}

type cmdStop struct{}

func (cmdStop) hubCmd() {}

// --- Writer соединения ---

type clientWriter struct {
	conn       *websocket.Conn
	pingPeriod time.Duration
	sendCh     chan []byte
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	// draining — sendCh закрыт, writer завершится после отправки буфера
	draining bool
}

func newClientWriter(conn *websocket.Conn, pingPeriod time.Duration) *clientWriter {
	cw := &clientWriter{
		conn:       conn,
		pingPeriod: pingPeriod,
		sendCh:     make(chan []byte, messageBufferSize),
		done:       make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	defer cw.wg.Done()
	ticker := time.NewTicker(cw.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-cw.sendCh:
			if !ok {
				// Буфер отправлен — закрываем соединение штатно
				_ = cw.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				_ = cw.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				_ = cw.conn.Close()
				return
			}
			_ = cw.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			// Ответ pong продлевает read deadline в Serve
			if err := cw.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		case <-cw.done:
			return
		}
	}
}

// drain закрывает очередь: writer отправит оставшиеся сообщения и закроет соединение.
func (cw *clientWriter) drain() {
	if !cw.draining {
		cw.draining = true
		close(cw.sendCh)
	}
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.done)
		_ = cw.conn.Close()
	})
	cw.wg.Wait()
}

// --- Hub ---

// Hub — реестр подписчиков по сессиям.
type Hub struct {
	cmdCh      chan hubCmd
	stopped    chan struct{}
	clients    map[string]map[*websocket.Conn]*clientWriter
	maxClients int
	// pongWait — сколько ждать pong, прежде чем считать соединение мёртвым
	pongWait   time.Duration
	pingPeriod time.Duration
	logger     *slog.Logger
}

// NewHub создаёт и запускает Hub.
// maxClients — лимит одновременных подписчиков одной сессии.
func NewHub(maxClients int, logger *slog.Logger) *Hub {
	h := &Hub{
		cmdCh:      make(chan hubCmd, commandBufferSize),
		stopped:    make(chan struct{}),
		clients:    make(map[string]map[*websocket.Conn]*clientWriter),
		maxClients: maxClients,
		pongWait:   defaultPongWait,
		pingPeriod: defaultPongWait * 9 / 10,
		logger:     logger.With(slog.String("component", "event_hub")),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.stopped)
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			h.handleRegister(c)
		case cmdUnregister:
			h.handleUnregister(c.sessionID, c.conn)
		case cmdBroadcast:
			h.handleBroadcast(c)
		case cmdClientCount:
			c.replyCh <- len(h.clients[c.sessionID])
		case cmdStop:
			h.handleStop()
			return
		}
	}
}

func (h *Hub) handleRegister(c cmdRegister) {
	clients, ok := h.clients[c.sessionID]
	if !ok {
		clients = make(map[*websocket.Conn]*clientWriter)
		h.clients[c.sessionID] = clients
	}
	if len(clients) >= h.maxClients {
		h.logger.Warn("Отклонён подписчик: лимит сессии",
			slog.String("session_id", c.sessionID),
			slog.Int("max_clients", h.maxClients),
		)
		c.errCh <- fmt.Errorf("%w (%d)", ErrTooManyClients, h.maxClients)
		return
	}

	clients[c.conn] = newClientWriter(c.conn, h.pingPeriod)
	connectedClients.Inc()
	h.logger.Debug("Подписчик зарегистрирован",
		slog.String("session_id", c.sessionID),
		slog.Int("clients", len(clients)),
	)
	c.errCh <- nil
}

func (h *Hub) handleUnregister(sessionID string, conn *websocket.Conn) {
	clients, ok := h.clients[sessionID]
	if !ok {
		return
	}
	cw, ok := clients[conn]
	if !ok {
		return
	}

	cw.stop()
	delete(clients, conn)
	connectedClients.Dec()
	if len(clients) == 0 {
		delete(h.clients, sessionID)
	}
}

func (h *Hub) handleBroadcast(c cmdBroadcast) {
	clients, ok := h.clients[c.sessionID]
	if !ok {
		return
	}

	var slow []*websocket.Conn
	for conn, cw := range clients {
		if cw.draining {
			continue
		}
		select {
		case cw.sendCh <- c.data:
		default:
			slow = append(slow, conn)
		}
		if c.final {
			cw.drain()
		}
	}

	for _, conn := range slow {
		slowClientsTotal.Inc()
		h.logger.Warn("Отключён медленный подписчик", slog.String("session_id", c.sessionID))
		h.handleUnregister(c.sessionID, conn)
	}
}

func (h *Hub) handleStop() {
	for sessionID, clients := range h.clients {
		for _, cw := range clients {
			cw.stop()
			connectedClients.Dec()
		}
		delete(h.clients, sessionID)
	}
}

// send передаёт команду горутине Hub. После Stop команды отбрасываются.
func (h *Hub) send(cmd hubCmd) bool {
	select {
	case <-h.stopped:
		return false
	default:
	}
	select {
	case h.cmdCh <- cmd:
		return true
	case <-h.stopped:
		return false
	}
}

// --- Публичный API ---

// Register добавляет соединение в число подписчиков сессии.
// При ошибке соединение не закрывается: это делает вызывающий код.
func (h *Hub) Register(sessionID string, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	if !h.send(cmdRegister{sessionID: sessionID, conn: conn, errCh: errCh}) {
		return ErrHubStopped
	}
	select {
	case err := <-errCh:
		return err
	case <-h.stopped:
		return ErrHubStopped
	}
}

// Unregister удаляет соединение и закрывает его.
func (h *Hub) Unregister(sessionID string, conn *websocket.Conn) {
	h.send(cmdUnregister{sessionID: sessionID, conn: conn})
}

// Serve регистрирует соединение и читает из него до разрыва.
// Входящие сообщения игнорируются: канал односторонний.
// Клиент, не ответивший на ping за pongWait, отключается.
func (h *Hub) Serve(sessionID string, conn *websocket.Conn) error {
	if err := h.Register(sessionID, conn); err != nil {
		return err
	}
	defer h.Unregister(sessionID, conn)

	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

// Publish рассылает событие подписчикам сессии. Не блокирует вызывающего
// дольше постановки команды в очередь. Завершение сессии закрывает соединения.
func (h *Hub) Publish(ev model.SessionEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Ошибка сериализации события", slog.String("error", err.Error()))
		return
	}
	if h.send(cmdBroadcast{
		sessionID: ev.SessionID,
		data:      data,
		final:     ev.Type == model.EventSessionEnded || ev.Type == model.EventSessionExpired,
	}) {
		eventsPublishedTotal.WithLabelValues(string(ev.Type)).Inc()
	}
}

// ClientCount возвращает число подписчиков сессии.
func (h *Hub) ClientCount(sessionID string) int {
	replyCh := make(chan int, 1)
	if !h.send(cmdClientCount{sessionID: sessionID, replyCh: replyCh}) {
		return 0
	}
	select {
	case n := <-replyCh:
		return n
	case <-h.stopped:
		return 0
	}
}

// Stop закрывает все соединения и останавливает Hub. Повторный вызов безопасен.
func (h *Hub) Stop() {
	if h.send(cmdStop{}) {
		<-h.stopped
	}
}
