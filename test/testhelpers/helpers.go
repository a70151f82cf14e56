// Package testhelpers provides common utilities and helper functions for testing the Relay chat server.
//
// This package contains reusable test utilities that are shared across unit and integration tests.
// It provides functions for creating test servers, making HTTP requests, speaking the chat wire
// protocol, and asserting response properties to reduce code duplication in test files.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// ChatPayload is the inbound wire shape clients send on the chat socket.
type ChatPayload struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// Envelope is the outbound wire shape the server sends. History envelopes
// carry Messages; message envelopes carry Message.
type Envelope struct {
	Type     string        `json:"type"`
	Message  *ChatRecord   `json:"message,omitempty"`
	Messages []*ChatRecord `json:"messages,omitempty"`
}

// ChatRecord is a single stamped chat message as delivered by the server.
type ChatRecord struct {
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// CreateTestServerWithConfig creates a test server with custom timeout configuration.
// It allows specifying custom read, write, and idle timeouts for testing server behavior
// under different timeout conditions.
func CreateTestServerWithConfig(
	handler http.Handler,
	readTimeout, writeTimeout, idleTimeout time.Duration,
) *httptest.Server {
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	testServer := httptest.NewUnstartedServer(handler)
	testServer.Config = server
	testServer.Start()
	return testServer
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
// It fails the test with a descriptive error message if the content types don't match.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	// Set a proper origin header for testing
	headers := http.Header{}
	headers.Set("Origin", "http://localhost:8080")

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendChatMessage sends a chat payload with the given text and sender over
// the WebSocket connection.
func SendChatMessage(conn *websocket.Conn, text, sender string) error {
	return conn.WriteJSON(ChatPayload{Text: text, Sender: sender})
}

// ReceiveEnvelope reads one server envelope from the WebSocket connection
// within the given timeout.
func ReceiveEnvelope(conn *websocket.Conn, timeout time.Duration) (*Envelope, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	var envelope Envelope
	if err := conn.ReadJSON(&envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}

// ReceiveChatMessage reads envelopes until a message envelope arrives and
// returns its record. History envelopes received along the way are skipped.
func ReceiveChatMessage(conn *websocket.Conn, timeout time.Duration) (*ChatRecord, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		envelope, err := ReceiveEnvelope(conn, remaining)
		if err != nil {
			return nil, err
		}
		if envelope.Type == "message" && envelope.Message != nil {
			return envelope.Message, nil
		}
	}
}

// SendRawMessage sends a raw byte message over the WebSocket connection.
func SendRawMessage(conn *websocket.Conn, messageType int, data []byte) error {
	return conn.WriteMessage(messageType, data)
}

// ReceiveRawMessage reads a raw message from the WebSocket connection.
func ReceiveRawMessage(conn *websocket.Conn) (int, []byte, error) {
	return conn.ReadMessage()
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// AssertRecord checks that a received chat record carries the expected text
// and sender and a non-empty timestamp.
func AssertRecord(t *testing.T, record *ChatRecord, expectedText, expectedSender string) {
	t.Helper()

	if record == nil {
		t.Error("Expected a chat record, got nil")
		return
	}
	if record.Text != expectedText {
		t.Errorf("Expected text %q, got %q", expectedText, record.Text)
	}
	if record.Sender != expectedSender {
		t.Errorf("Expected sender %q, got %q", expectedSender, record.Sender)
	}
	if record.Timestamp == "" {
		t.Error("Expected record to carry a server timestamp")
	}
}

// ExpectNoMessage verifies that no envelope arrives on the connection within
// the given window.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	envelope, err := ReceiveEnvelope(conn, window)
	if err == nil {
		t.Errorf("Expected no message, but received envelope of type %q", envelope.Type)
	}
}

// CreateJSONMessage creates a JSON-encoded chat payload with the given text
// and sender.
func CreateJSONMessage(text, sender string) ([]byte, error) {
	return json.Marshal(ChatPayload{Text: text, Sender: sender})
}
