package handler

import (
	"context"
	"diabetes-ingest-go/internal/model"
	"diabetes-ingest-go/pkg/log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

const (
	clientBuffer = 16
	writeWait    = 10 * time.Second
)

// EventsHandler 通过 WebSocket 向监听者推送导入完成事件，同时作为 IngestService 的事件下游。
type EventsHandler struct {
	mu      sync.Mutex
	clients map[chan model.IngestionEvent]struct{}
}

// NewEventsHandler 创建一个新的 EventsHandler 实例。
func NewEventsHandler() *EventsHandler {
	return &EventsHandler{clients: make(map[chan model.IngestionEvent]struct{})}
}

// Publish 把事件分发给所有连接。慢连接的缓冲区满时丢弃该事件，不阻塞导入。
func (h *EventsHandler) Publish(ctx context.Context, event model.IngestionEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- event:
		default:
			log.Warnf("[EventsHandler] 连接缓冲区已满，丢弃事件 %s", event.EventID)
		}
	}
	return nil
}

// Name 用于日志中标识事件下游。
func (h *EventsHandler) Name() string { return "websocket" }

func (h *EventsHandler) subscribe() chan model.IngestionEvent {
	ch := make(chan model.IngestionEvent, clientBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventsHandler) unsubscribe(ch chan model.IngestionEvent) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// Stream 处理一个传入的 WebSocket 连接，直到客户端断开。
func (h *EventsHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	events := h.subscribe()
	defer h.unsubscribe(events)
	log.Infof("[EventsHandler] WebSocket 连接已建立: %s", c.ClientIP())

	// 客户端不发送数据，读循环只用于感知断开
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			log.Infof("[EventsHandler] WebSocket 连接已关闭: %s", c.ClientIP())
			return
		case event := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				log.Warnf("[EventsHandler] 推送事件失败: %v", err)
				return
			}
		}
	}
}
