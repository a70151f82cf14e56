// Package integration contains integration tests for the Relay chat server.
//
// These tests verify that multiple components work together correctly by testing
// the complete system behavior with real HTTP servers, WebSocket connections,
// and end-to-end functionality. Integration tests ensure that the system works
// as expected when all components are assembled together.
package integration

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaychat/relaychat/internal/server"
)

type chatPayload struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

type chatRecord struct {
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

type envelope struct {
	Type     string       `json:"type"`
	Message  *chatRecord  `json:"message,omitempty"`
	Messages []chatRecord `json:"messages,omitempty"`
}

func mustMarshalPayload(t *testing.T, text, sender string) []byte {
	if t == nil {
		panic("testing.T is required")
	}
	t.Helper()
	payload, err := json.Marshal(chatPayload{Text: text, Sender: sender})
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	return payload
}

func readEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration) *envelope {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read envelope: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("Failed to unmarshal envelope: %v", err)
	}
	return &env
}

func readChatRecord(t *testing.T, conn *websocket.Conn, timeout time.Duration) *chatRecord {
	t.Helper()
	env := readEnvelope(t, conn, timeout)
	if env.Type != "message" || env.Message == nil {
		t.Fatalf("Expected message envelope, got type %q", env.Type)
	}
	return env.Message
}

func expectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	if conn == nil {
		t.Fatalf("nil connection provided to expectNoMessage")
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no message, but received one")
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of message: %v", err)
}

func configureServerForTest(t *testing.T, baseURL string, customize func(cfg *server.Config)) {
	if t == nil {
		panic("testing.T is required")
	}
	t.Helper()
	cfg := server.NewConfig()
	cfg.AllowedOrigins = append([]string{baseURL}, cfg.AllowedOrigins...)
	if customize != nil {
		customize(cfg)
	}
	server.SetConfig(cfg)
	t.Cleanup(func() {
		server.SetConfig(nil)
	})
}

func newOriginHeader(origin string) http.Header {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return header
}

// startTestHub starts a fresh hub for one test and shuts it down on cleanup.
func startTestHub(t *testing.T) *server.Hub {
	t.Helper()
	hub := server.NewHub()
	go hub.Run()
	t.Cleanup(func() {
		_ = hub.Shutdown(2 * time.Second)
	})
	return hub
}

// TestWebSocketEndpointIntegration tests the WebSocket endpoint with full server integration.
// It verifies that WebSocket connections can be established, messages can be sent and received,
// and the complete WebSocket functionality works in a real server environment.
func TestWebSocketEndpointIntegration(t *testing.T) {
	hub := startTestHub(t)

	mux := server.SetupRoutes(hub)
	testServer := httptest.NewServer(mux)
	defer testServer.Close()
	configureServerForTest(t, testServer.URL, nil)
	u, err := url.Parse(testServer.URL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	t.Run("Successful WebSocket Connection", func(t *testing.T) {
		conn, resp, err := websocket.DefaultDialer.Dial(u.String(), newOriginHeader(testServer.URL))
		if err != nil {
			t.Fatalf("Failed to connect to WebSocket: %v", err)
		}
		defer func() { _ = conn.Close() }()
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusSwitchingProtocols {
			t.Errorf("Expected status %d, got %d", http.StatusSwitchingProtocols, resp.StatusCode)
		}

		err = conn.WriteMessage(websocket.TextMessage, mustMarshalPayload(t, "Hello, WebSocket!", "alice"))
		if err != nil {
			t.Errorf("Failed to send message: %v", err)
		}

		// The sender is a recipient too and gets its own message back
		record := readChatRecord(t, conn, 2*time.Second)
		if record.Text != "Hello, WebSocket!" || record.Sender != "alice" {
			t.Errorf("Unexpected echoed record: %+v", record)
		}
		if record.Timestamp == "" {
			t.Error("Expected server-assigned timestamp on echoed record")
		}

		err = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			t.Errorf("Failed to send close message: %v", err)
		}
	})

	t.Run("Invalid HTTP Method", func(t *testing.T) {
		resp, err := http.Post(testServer.URL+"/ws", "text/plain", strings.NewReader("test"))
		if err != nil {
			t.Fatalf("Failed to make POST request: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("Expected status %d for POST request, got %d", http.StatusMethodNotAllowed, resp.StatusCode)
		}
	})

	t.Run("GET Without WebSocket Headers", func(t *testing.T) {
		resp, err := http.Get(testServer.URL + "/ws")
		if err != nil {
			t.Fatalf("Failed to make GET request: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected status %d for GET without WebSocket headers, got %d", http.StatusBadRequest, resp.StatusCode)
		}
	})
}

// TestWebSocketMessageBroadcasting tests the WebSocket message broadcasting functionality.
// It verifies that messages sent by one client are delivered to every connected
// client, sender included, and that malformed input is silently dropped.
func TestWebSocketMessageBroadcasting(t *testing.T) {
	hub := startTestHub(t)

	mux := server.SetupRoutes(hub)
	testServer := httptest.NewServer(mux)
	defer testServer.Close()
	configureServerForTest(t, testServer.URL, nil)

	u, err := url.Parse(testServer.URL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	const numClients = 3
	connections := make([]*websocket.Conn, numClients)
	for i := 0; i < numClients; i++ {
		conn, resp, err := websocket.DefaultDialer.Dial(u.String(), newOriginHeader(testServer.URL))
		if err != nil {
			t.Fatalf("Failed to connect client %d: %v", i, err)
		}
		defer func(c *websocket.Conn) { _ = c.Close() }(conn)
		defer func() { _ = resp.Body.Close() }()
		connections[i] = conn
	}

	// Give the hub time to register all clients
	time.Sleep(50 * time.Millisecond)

	// Send a message from the first client
	messageText := "Hello from client 0!"
	if err := connections[0].WriteMessage(websocket.TextMessage, mustMarshalPayload(t, messageText, "client-0")); err != nil {
		t.Fatalf("Failed to send message from client 0: %v", err)
	}

	// Every client receives the message, including the sender
	for i := 0; i < numClients; i++ {
		record := readChatRecord(t, connections[i], 2*time.Second)
		if record.Text != messageText {
			t.Errorf("Client %d: Expected text %q, got %q", i, messageText, record.Text)
		}
		if record.Sender != "client-0" {
			t.Errorf("Client %d: Expected sender %q, got %q", i, "client-0", record.Sender)
		}
		if record.Timestamp == "" {
			t.Errorf("Client %d: Expected a server timestamp", i)
		}
	}

	// Send malformed JSON from another client and ensure it is ignored
	if err := connections[1].WriteMessage(websocket.TextMessage, []byte("not valid json")); err != nil {
		t.Fatalf("Failed to send malformed message: %v", err)
	}

	for i := 0; i < numClients; i++ {
		expectNoMessage(t, connections[i], 150*time.Millisecond)
	}

	// A payload missing required fields is dropped the same way
	if err := connections[2].WriteMessage(websocket.TextMessage, []byte(`{"text":"no sender"}`)); err != nil {
		t.Fatalf("Failed to send incomplete message: %v", err)
	}

	for i := 0; i < numClients; i++ {
		expectNoMessage(t, connections[i], 150*time.Millisecond)
	}

	// Close all connections gracefully
	for i, conn := range connections {
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			t.Errorf("Failed to send close message for client %d: %v", i, err)
		}
	}
}

// TestWebSocketHistoryReplay verifies that a joining client receives the
// buffered history before any live traffic, and that clients connected before
// any message was sent receive no replay.
func TestWebSocketHistoryReplay(t *testing.T) {
	hub := startTestHub(t)

	mux := server.SetupRoutes(hub)
	testServer := httptest.NewServer(mux)
	defer testServer.Close()
	configureServerForTest(t, testServer.URL, nil)

	u, err := url.Parse(testServer.URL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	// First client joins an empty room: no history envelope
	first, firstResp, err := websocket.DefaultDialer.Dial(u.String(), newOriginHeader(testServer.URL))
	if err != nil {
		t.Fatalf("Failed to connect first client: %v", err)
	}
	defer func() { _ = first.Close() }()
	defer func() { _ = firstResp.Body.Close() }()

	expectNoMessage(t, first, 150*time.Millisecond)

	// First client sends two messages and reads back its own echoes
	for i := 0; i < 2; i++ {
		text := fmt.Sprintf("message %d", i)
		if err := first.WriteMessage(websocket.TextMessage, mustMarshalPayload(t, text, "first")); err != nil {
			t.Fatalf("Failed to send message %d: %v", i, err)
		}
		record := readChatRecord(t, first, 2*time.Second)
		if record.Text != text {
			t.Fatalf("Expected echo %q, got %q", text, record.Text)
		}
	}

	// Second client joins and must see the history replay before anything else
	second, secondResp, err := websocket.DefaultDialer.Dial(u.String(), newOriginHeader(testServer.URL))
	if err != nil {
		t.Fatalf("Failed to connect second client: %v", err)
	}
	defer func() { _ = second.Close() }()
	defer func() { _ = secondResp.Body.Close() }()

	env := readEnvelope(t, second, 2*time.Second)
	if env.Type != "history" {
		t.Fatalf("Expected history envelope first, got type %q", env.Type)
	}
	if len(env.Messages) != 2 {
		t.Fatalf("Expected 2 replayed messages, got %d", len(env.Messages))
	}
	for i, msg := range env.Messages {
		expected := fmt.Sprintf("message %d", i)
		if msg.Text != expected {
			t.Errorf("Replay position %d: expected %q, got %q", i, expected, msg.Text)
		}
		if msg.Sender != "first" {
			t.Errorf("Replay position %d: expected sender %q, got %q", i, "first", msg.Sender)
		}
	}

	// A live message after the replay reaches both clients
	if err := second.WriteMessage(websocket.TextMessage, mustMarshalPayload(t, "hello from second", "second")); err != nil {
		t.Fatalf("Failed to send live message: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"first": first, "second": second} {
		record := readChatRecord(t, conn, 2*time.Second)
		if record.Text != "hello from second" || record.Sender != "second" {
			t.Errorf("Client %s received unexpected record: %+v", name, record)
		}
	}
}

// TestWebSocketConnectionLifecycle tests the complete lifecycle of WebSocket connections.
// It verifies that connections can be established, used for communication, and properly
// closed, including testing multiple sequential connections.
func TestWebSocketConnectionLifecycle(t *testing.T) {
	hub := startTestHub(t)

	mux := server.SetupRoutes(hub)
	testServer := httptest.NewServer(mux)
	defer testServer.Close()
	configureServerForTest(t, testServer.URL, nil)
	u, err := url.Parse(testServer.URL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	t.Run("Connection and Disconnection", func(t *testing.T) {
		// Connect
		conn, resp, err := websocket.DefaultDialer.Dial(u.String(), newOriginHeader(testServer.URL))
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		// Test that connection is active
		err = conn.WriteMessage(websocket.PingMessage, nil)
		if err != nil {
			t.Errorf("Failed to send ping: %v", err)
		}

		// Close connection
		err = conn.Close()
		if err != nil {
			t.Errorf("Failed to close connection: %v", err)
		}
	})

	t.Run("Multiple Sequential Connections", func(t *testing.T) {
		// Connect and disconnect multiple times
		for i := 0; i < 3; i++ {
			conn, resp, err := websocket.DefaultDialer.Dial(u.String(), newOriginHeader(testServer.URL))
			if err != nil {
				t.Fatalf("Failed to connect on iteration %d: %v", i, err)
			}

			// Send a test message
			testMsg := "Test message " + string(rune('A'+i))
			if err := conn.WriteMessage(websocket.TextMessage, mustMarshalPayload(t, testMsg, "lifecycle")); err != nil {
				t.Errorf("Failed to send message on iteration %d: %v", i, err)
			}

			// Close connection
			_ = conn.Close()
			_ = resp.Body.Close()

			// Brief pause between connections
			time.Sleep(10 * time.Millisecond)
		}
	})
}

func TestWebSocketOriginValidation(t *testing.T) {
	hub := startTestHub(t)

	mux := server.SetupRoutes(hub)
	testServer := httptest.NewServer(mux)
	defer testServer.Close()

	allowedOrigin := "http://allowed.test"
	configureServerForTest(t, testServer.URL, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{testServer.URL, allowedOrigin}
	})

	u, err := url.Parse(testServer.URL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	t.Run("Allowed origin", func(t *testing.T) {
		header := http.Header{}
		header.Set("Origin", allowedOrigin)
		conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
		if err != nil {
			t.Fatalf("Expected allowed origin to succeed: %v", err)
		}
		t.Cleanup(func() {
			_ = conn.Close()
			if resp != nil {
				_ = resp.Body.Close()
			}
		})
		if resp.StatusCode != http.StatusSwitchingProtocols {
			t.Fatalf("Expected status %d, got %d", http.StatusSwitchingProtocols, resp.StatusCode)
		}
	})

	t.Run("Disallowed origin", func(t *testing.T) {
		header := http.Header{}
		header.Set("Origin", "http://blocked.test")
		conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
		if err == nil {
			_ = conn.Close()
			if resp != nil {
				_ = resp.Body.Close()
			}
			t.Fatalf("Expected disallowed origin to fail")
		}
		if resp == nil {
			t.Fatalf("Expected HTTP response for disallowed origin")
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("Expected status %d for disallowed origin, got %d", http.StatusForbidden, resp.StatusCode)
		}
	})
}

func TestWebSocketMessageSizeLimit(t *testing.T) {
	hub := startTestHub(t)

	mux := server.SetupRoutes(hub)
	testServer := httptest.NewServer(mux)
	defer testServer.Close()

	const limit int64 = 64
	configureServerForTest(t, testServer.URL, func(cfg *server.Config) {
		cfg.MaxMessageSize = limit
	})

	u, err := url.Parse(testServer.URL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	sender, senderResp, err := websocket.DefaultDialer.Dial(u.String(), newOriginHeader(testServer.URL))
	if err != nil {
		t.Fatalf("Failed to connect sender: %v", err)
	}
	defer func() { _ = sender.Close() }()
	defer func() { _ = senderResp.Body.Close() }()

	receiver, receiverResp, err := websocket.DefaultDialer.Dial(u.String(), newOriginHeader(testServer.URL))
	if err != nil {
		t.Fatalf("Failed to connect receiver: %v", err)
	}
	defer func() { _ = receiver.Close() }()
	defer func() { _ = receiverResp.Body.Close() }()

	oversizedText := strings.Repeat("A", int(limit)+10)
	oversizedPayload := mustMarshalPayload(t, oversizedText, "sender")
	if int64(len(oversizedPayload)) <= limit {
		t.Fatalf("Test payload is not oversized: %d bytes", len(oversizedPayload))
	}

	if err := sender.WriteMessage(websocket.TextMessage, oversizedPayload); err != nil && !websocket.IsCloseError(err, websocket.CloseMessageTooBig) {
		t.Fatalf("Unexpected error writing oversized message: %v", err)
	}

	expectNoMessage(t, receiver, 200*time.Millisecond)

	if err := sender.SetReadDeadline(time.Now().Add(200 * time.Millisecond)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	if _, _, readErr := sender.ReadMessage(); readErr == nil {
		t.Fatalf("Expected connection closure after oversized message")
	}
}
