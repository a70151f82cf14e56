// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// NewWebSocketHandler returns the upgrade handler for the chat endpoint.
// It validates that the request uses the GET method, upgrades the HTTP
// connection to WebSocket, and hands the new client to the given hub, which
// replays history and starts the read/write pumps.
func NewWebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)
		hub.register <- client
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Relay chat server is running!")
}

// TestPageHandler serves an HTML test page for exercising the relay protocol.
// It connects to the WebSocket endpoint, renders the history replay on join,
// and sends {"text","sender"} payloads.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Relay Chat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        #senderInput { width: 120px; }
        #messageInput { width: 300px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        .history { color: gray; }
    </style>
</head>
<body>
    <h1>Relay Chat Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="senderInput" placeholder="Name" value="guest">
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const senderInput = document.getElementById('senderInput');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addMessage(msg, cls) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            if (cls) el.className = cls;
            el.textContent = '[' + msg.timestamp + '] ' + msg.sender + ': ' + msg.text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function addNote(text) {
            const el = document.createElement('div');
            el.style.color = 'gray';
            el.innerHTML = '<em>' + text + '</em>';
            messagesDiv.appendChild(el);
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            ws = new WebSocket('ws://' + location.host + '/ws');

            ws.onopen = function() {
                addNote('Connected to relay server');
                updateStatus(true);
            };

            ws.onmessage = function(event) {
                const data = JSON.parse(event.data);
                if (data.type === 'history') {
                    addNote('Replaying ' + data.messages.length + ' recent messages');
                    for (const msg of data.messages) {
                        addMessage(msg, 'history');
                    }
                } else if (data.type === 'message') {
                    addMessage(data.message);
                }
            };

            ws.onclose = function() {
                addNote('Connection closed');
                updateStatus(false);
                ws = null;
            };

            ws.onerror = function(error) {
                addNote('Connection error: ' + error);
                updateStatus(false);
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            const sender = senderInput.value.trim() || 'guest';
            if (text && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({text: text, sender: sender}));
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}
