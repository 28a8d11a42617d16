package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	sseBuffer      = 64
	keepaliveEvery = 30 * time.Second
)

type sseFrame struct {
	event string
	data  []byte
}

// Broker fans engine events out to SSE subscribers. Slow clients drop
// frames rather than block the publisher.
type Broker struct {
	mu      sync.Mutex
	clients map[chan sseFrame]struct{}
	nextID  atomic.Int64
	memOnly atomic.Bool
	logger  *zap.Logger
}

func NewBroker(logger *zap.Logger) *Broker {
	return &Broker{
		clients: map[chan sseFrame]struct{}{},
		logger:  logger,
	}
}

// MarkMemoryOnly records that the engine runs without durable storage.
// Every subscriber, including late ones, learns it from the first
// status:update frame on their stream.
func (b *Broker) MarkMemoryOnly() {
	b.memOnly.Store(true)
}

// Publish implements paper.Notifier.
func (b *Broker) Publish(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		if b.logger != nil {
			b.logger.Warn("sse payload marshal failed", zap.String("event", event), zap.Error(err))
		}
		return
	}
	frame := sseFrame{event: event, data: data}
	b.mu.Lock()
	defer b.mu.Unlock()
	for client := range b.clients {
		select {
		case client <- frame:
		default:
		}
	}
}

func (b *Broker) subscribe() chan sseFrame {
	client := make(chan sseFrame, sseBuffer)
	b.mu.Lock()
	b.clients[client] = struct{}{}
	b.mu.Unlock()
	return client
}

func (b *Broker) unsubscribe(client chan sseFrame) {
	b.mu.Lock()
	delete(b.clients, client)
	b.mu.Unlock()
}

// Stream is the GET handler for the event stream.
func (b *Broker) Stream(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	client := b.subscribe()
	defer b.unsubscribe(client)

	hello := []byte(`{"connected":true}`)
	if b.memOnly.Load() {
		hello = []byte(`{"connected":true,"persistence":"memory"}`)
	}
	b.writeFrame(c, "status:update", hello)
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveEvery)
	defer keepalive.Stop()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(c.Writer, ": keepalive\n\n")
			flusher.Flush()
		case frame := <-client:
			b.writeFrame(c, frame.event, frame.data)
			flusher.Flush()
		}
	}
}

func (b *Broker) writeFrame(c *gin.Context, event string, data []byte) {
	fmt.Fprintf(c.Writer, "id: %d\nevent: %s\ndata: %s\n\n", b.nextID.Add(1), event, data)
}
