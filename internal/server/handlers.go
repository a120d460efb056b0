package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/chatrelay/internal/transport"
)

const healthBody = "Chat relay is running!"

// WebSocketHandler upgrades GET requests from allowed origins and attaches
// the resulting connection to hub. Each WebSocket message is one frame.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	cfg := hub.Config()
	policy := newOriginPolicy(cfg.AllowedOrigins, hub.log)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.checkOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.WithError(err).WithField("addr", r.RemoteAddr).Warn("WebSocket upgrade failed")
			return
		}

		conn := transport.NewWebSocketConn(ws, cfg.MaxMessageSize, cfg.WriteTimeout, r.RemoteAddr)
		if err := hub.Attach(conn); err != nil {
			hub.log.WithError(err).WithField("addr", r.RemoteAddr).Info("Rejected WebSocket connection")
		}
	}
}

// HealthHandler reports that the process is up.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, healthBody)
}

// UsersHandler serves the current directory snapshot as JSON.
func UsersHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		snapshot := hub.Directory().Snapshot()
		users := make([]UserInfo, 0, len(snapshot))
		for _, e := range snapshot {
			users = append(users, userInfo(e))
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(users); err != nil {
			hub.log.WithError(err).Warn("Error writing users response")
		}
	}
}

// TestPageHandler serves a browser page that speaks the relay protocol
// over /ws.
func TestPageHandler(log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := fmt.Fprint(w, testPage); err != nil {
			log.WithError(err).Warn("Error writing HTML response")
		}
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Chat Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #frames {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:disabled { background-color: #999; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Chat Relay Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="idInput" placeholder="id">
        <input type="text" id="nickInput" placeholder="nickname">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div style="margin-top: 10px">
        <input type="text" id="frameInput" placeholder="MSG:hello, PRIV:id|text, NICK:name, PING" size="50" disabled>
        <button id="sendButton" onclick="sendFrame()" disabled>Send</button>
    </div>

    <div id="frames"></div>

    <script>
        let ws = null;
        const framesDiv = document.getElementById('frames');
        const frameInput = document.getElementById('frameInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addLine(text, color) {
            const line = document.createElement('div');
            line.style.color = color;
            line.textContent = text;
            framesDiv.appendChild(line);
            framesDiv.scrollTop = framesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            frameInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const id = document.getElementById('idInput').value.trim();
            const nick = document.getElementById('nickInput').value.trim();
            if (!id) {
                addLine('an id is required', 'red');
                return;
            }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');

            ws.onopen = function() {
                ws.send('ID:' + id + '\nNICK:' + nick + '\n');
                addLine('connected as ' + id, 'gray');
                updateStatus(true);
            };
            ws.onmessage = function(event) {
                addLine('< ' + event.data, 'green');
            };
            ws.onclose = function() {
                addLine('connection closed', 'gray');
                updateStatus(false);
                ws = null;
            };
            ws.onerror = function() {
                addLine('connection error', 'red');
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendFrame() {
            const frame = frameInput.value;
            if (frame && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(frame);
                addLine('> ' + frame, 'blue');
                frameInput.value = '';
            }
        }

        frameInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendFrame();
            }
        });
    </script>
</body>
</html>`
