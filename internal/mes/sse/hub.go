package sse

import (
	"fmt"
	"log"
	"sync"
)

// 实体变更主题：订阅者按表/实体类注册，任一行变更都会收到通知，
// 读侧收到后整体重算而不是增量修补。
const (
	TopicBatches       = "batches"
	TopicQCRecords     = "qc_records"
	TopicExternalMoves = "external_moves"
	TopicCartons       = "cartons"
)

// Event represents a Server-Sent Event
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client represents a connected SSE client
type Client struct {
	ID     string
	UserID string
	Events chan Event
}

// Watcher 进程内变更订阅者，按主题接收行变更通知
type Watcher func(topic string)

// Hub manages SSE client connections and in-process change watchers
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	watchers map[string][]Watcher
}

// GlobalHub is the singleton SSE Hub instance
var GlobalHub = NewHub()

// NewHub creates a new SSE Hub
func NewHub() *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		watchers: make(map[string][]Watcher),
	}
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	log.Printf("[SSE] Client registered: id=%s user=%s (total: %d)", client.ID, client.UserID, len(h.clients))
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		log.Printf("[SSE] Client unregistered: id=%s (total: %d)", clientID, len(h.clients))
	}
}

// Broadcast sends an event to all connected clients
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Events <- event:
		default:
			log.Printf("[SSE] Client %s buffer full, skipping event", client.ID)
		}
	}
}

// Watch 注册主题订阅者。订阅在进程生命周期内有效，没有退订语义。
func (h *Hub) Watch(topic string, w Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.watchers[topic] = append(h.watchers[topic], w)
}

// NotifyChange 写入方在任何行变更后调用：同步回调该主题的全部订阅者，
// 并向SSE客户端广播一条轻量变更事件。回调不可长时间阻塞。
func (h *Hub) NotifyChange(topic, entityID, action string) {
	h.mu.RLock()
	ws := h.watchers[topic]
	h.mu.RUnlock()

	for _, w := range ws {
		w(topic)
	}

	data := fmt.Sprintf(`{"topic":"%s","id":"%s","action":"%s"}`, topic, entityID, action)
	h.Broadcast(Event{
		EventType: "entity_change",
		Data:      data,
	})
}

// PublishWIPUpdate WIP快照重算完成后推送给看板客户端
func PublishWIPUpdate(computedAt string) {
	data := fmt.Sprintf(`{"computed_at":"%s"}`, computedAt)
	GlobalHub.Broadcast(Event{
		EventType: "wip_update",
		Data:      data,
	})
}

// PublishBatchChange 批次变更通知
func PublishBatchChange(batchID, action string) {
	GlobalHub.NotifyChange(TopicBatches, batchID, action)
}
