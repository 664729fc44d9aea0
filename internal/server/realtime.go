package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/orders"
)

const (
	RealtimeEventOrderPlaced = "order-placed"
	RealtimeEventOrderStatus = "order-status"
	realtimeEventHeartbeat   = "heartbeat"
	realtimeSourceBackend    = "storefront-api"
)

// RealtimeMessage notifies a customer about one of their orders.
type RealtimeMessage struct {
	CustomerID string
	EventType  string
	OrderID    string
	Status     orders.Status
	Timestamp  time.Time
}

type orderEventPayload struct {
	OrderID   string        `json:"orderId"`
	Status    orders.Status `json:"status"`
	Timestamp int64         `json:"timestamp"`
	Source    string        `json:"source"`
}

func newOrderMessage(eventType string, order orders.OrderView) RealtimeMessage {
	return RealtimeMessage{
		CustomerID: order.CustomerID,
		EventType:  eventType,
		OrderID:    order.ID,
		Status:     order.Status,
		Timestamp:  time.Now().UTC(),
	}
}

// RealtimeDispatcher fans order events out to the customer's open streams.
// Slow subscribers drop events rather than blocking publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, customerID string) (<-chan RealtimeMessage, func()) {
	if customerID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(customerID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregisterSubscriber(customerID, subscriber.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.CustomerID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.CustomerID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) subscriberCount(customerID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[customerID])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(customerID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[customerID]; !ok {
		d.subscribers[customerID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[customerID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(customerID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[customerID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, customerID)
		}
	}
	d.mu.Unlock()
}

func (h *httpHandler) handleOrderEvents(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, customerID(c))
	defer cleanup()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, orderEventPayload{
				OrderID:   message.OrderID,
				Status:    message.Status,
				Timestamp: message.Timestamp.Unix(),
				Source:    realtimeSourceBackend,
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, orderEventPayload{Timestamp: tick.UTC().Unix(), Source: realtimeSourceBackend})
			return true
		}
	})
}
