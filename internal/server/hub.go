// Package server coordinates client registration, message broadcast, and
// connection cleanup for the Relay chat system via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Hub owns the connection registry and the history buffer. Its event loop
// serializes registration, unregistration, history appends, and broadcast
// fan-out, so history order always matches the order recipients see.
type Hub struct {
	registry   *ConnectionRegistry
	history    *HistoryBuffer
	broadcast  chan BroadcastMessage
	register   chan *Client
	unregister chan *Client
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates and initializes a new Hub instance with an empty registry
// and a history buffer sized from the active configuration. The returned Hub
// is ready to manage WebSocket connections.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := currentConfig()
	return &Hub{
		registry:   NewConnectionRegistry(),
		history:    NewHistoryBuffer(cfg.HistoryLimit),
		broadcast:  make(chan BroadcastMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients from the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// GetBroadcastChan returns the channel used for broadcasting messages to all clients.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetBroadcastChan() chan<- BroadcastMessage {
	return h.broadcast
}

// ClientCount returns the number of currently registered clients.
func (h *Hub) ClientCount() int {
	return h.registry.Count()
}

// HistorySnapshot returns a copy of the buffered history, oldest first.
func (h *Hub) HistorySnapshot() []ChatMessage {
	return h.history.Snapshot()
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, and message broadcasting. This method should be called in a
// separate goroutine as it runs indefinitely.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}
			h.handleRegister(client)

		case client := <-h.unregister:
			h.removeClient(client, "disconnected")

		case broadcastMsg := <-h.broadcast:
			h.handleBroadcast(broadcastMsg)
		}
	}
}

// handleRegister adds the client to the registry, queues the history replay,
// and starts the client's pump goroutines. The replay is queued before the
// read pump starts, so it always precedes any live message the same client
// triggers.
func (h *Hub) handleRegister(client *Client) {
	h.registry.Register(client)
	log.Printf("Client %s registered from %s. Total clients: %d", client.id, client.addr, h.registry.Count())

	h.sendHistory(client)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// sendHistory queues a single history envelope for the given client. Nothing
// is sent when the buffer is empty.
func (h *Hub) sendHistory(client *Client) {
	messages := h.history.Snapshot()
	if len(messages) == 0 {
		return
	}

	payload, err := json.Marshal(HistoryEnvelope{Type: envelopeTypeHistory, Messages: messages})
	if err != nil {
		log.Printf("Error marshaling history for client %s: %v", client.id, err)
		return
	}

	if !h.deliver(client, payload) {
		log.Printf("Failed to queue history replay for client %s", client.id)
	}
}

// handleBroadcast appends the message to history and fans it out to every
// registered client, including the sender. The append and the fan-out happen
// back to back in the event loop, so no other message can interleave.
func (h *Hub) handleBroadcast(broadcastMsg BroadcastMessage) {
	h.history.Append(broadcastMsg.Record)

	payload, err := json.Marshal(MessageEnvelope{Type: envelopeTypeMessage, Message: broadcastMsg.Record})
	if err != nil {
		log.Printf("Error marshaling broadcast message: %v", err)
		return
	}

	recipients := h.registry.Snapshot()
	log.Printf("Broadcasting message from %q to %d clients", broadcastMsg.Record.Sender, len(recipients))

	var failed []*Client
	for _, client := range recipients {
		if !h.deliver(client, payload) {
			failed = append(failed, client)
		}
	}

	for _, client := range failed {
		h.removeClient(client, "send queue full")
	}
}

// deliver queues a payload for one client without blocking. A full queue
// counts as a delivery failure; one stalled recipient must not delay the
// rest of the fan-out.
func (h *Hub) deliver(client *Client, payload []byte) bool {
	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// removeClient drops the client from the registry and closes its send
// channel. Safe against double removal: only the call that actually removed
// the client closes the channel. Runs only on the hub goroutine.
func (h *Hub) removeClient(client *Client, reason string) {
	if client == nil {
		return
	}
	if h.registry.Unregister(client) {
		close(client.send)
		log.Printf("Client %s from %s removed (%s). Total clients: %d", client.id, client.addr, reason, h.registry.Count())
	}
}

// shutdownClients closes every active client connection.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	clients := h.registry.Snapshot()
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines
// to complete. It returns after all client connections are closed and
// goroutines have finished, or when the timeout is reached; stragglers are
// abandoned, not awaited indefinitely.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()

	// Wait for Run() to complete
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
