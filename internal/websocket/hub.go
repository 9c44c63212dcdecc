package websocket

import (
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"sourcetrader/internal/metrics"
	"sourcetrader/internal/models"
	"sourcetrader/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const broadcastBufferSize = 256

// Hub управляет подключениями live-ленты
//
// Функции:
// - Регистрация и отключение клиентов
// - Broadcast сообщений всем активным клиентам
// - Отключение медленных клиентов, не успевающих читать
//
// Использование:
// 1. hub := NewHub(logger)
// 2. go hub.Run()
// 3. hub.BroadcastSignal(signal)
// 4. hub.Stop() при завершении
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	dropped atomic.Int64

	mu     sync.RWMutex
	logger *utils.Logger
}

// NewHub создает новый Hub
func NewHub(logger *utils.Logger) *Hub {
	if logger == nil {
		logger = utils.L()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.WithComponent("websocket"),
	}
}

// Run запускает главный цикл Hub. Завершается после Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			metrics.WebsocketClients.Set(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			metrics.WebsocketClients.Set(float64(count))
			h.logger.Debug("client connected", utils.Int("clients", count))

		case client := <-h.unregister:
			h.removeClients(client)

		case message := <-h.broadcast:
			// копируем список под коротким RLock, отправляем без блокировки
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var slow []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					slow = append(slow, client)
				}
			}
			if len(slow) > 0 {
				h.removeClients(slow...)
				h.logger.Warn("removed slow clients", utils.Int("count", len(slow)))
			}
		}
	}
}

func (h *Hub) removeClients(clients ...*Client) {
	h.mu.Lock()
	for _, client := range clients {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client.send)
		}
	}
	count := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(count))
}

// Stop останавливает Run и закрывает все клиентские каналы
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast сериализует сообщение и ставит его в очередь.
// Не блокирует: при переполненной очереди сообщение отбрасывается.
func (h *Hub) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to encode broadcast message", utils.Err(err))
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		h.dropped.Add(1)
	}
}

// BroadcastSignal отправляет сохраненный сигнал
func (h *Hub) BroadcastSignal(signal *models.Signal) {
	h.Broadcast(NewSignalMessage(signal))
}

// BroadcastStats отправляет статистику по окнам
func (h *Hub) BroadcastStats(perf *models.Performance) {
	h.Broadcast(NewStatsMessage(perf))
}

// BroadcastSummary отправляет итог дневной сводки
func (h *Hub) BroadcastSummary(result *models.SummaryResult) {
	h.Broadcast(NewSummaryMessage(result))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages - число сообщений, отброшенных из-за переполнения очереди
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
