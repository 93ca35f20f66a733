package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	webSocketReadBufferSize  = 8192
	webSocketWriteBufferSize = 8192 * 2

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// Uploads queued while a conversion is running.
	pendingUploads = 4
)

// Stream upgrades to a WebSocket. Each binary message is an image encoded
// with the parameters of the upgrade URL; the reply is the sprite list as a
// binary message or a {"error": "..."} text message.
func Stream(w http.ResponseWriter, r *http.Request) {
	cfg := settings()

	params, err := parseEncodeParams(r.URL.Query(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  webSocketReadBufferSize,
		WriteBufferSize: webSocketWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return IsAllowedOrigin(r.Header.Get("Origin"), cfg.Security.AllowedOrigins, r.Host)
		},
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade websocket: %v", err)
		return
	}

	defer func() {
		if err := wsConn.Close(); err != nil {
			log.Debug("error closing websocket: %v", err)
		}
	}()

	wsConn.SetReadLimit(cfg.Security.MaxUploadBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	uploads := make(chan []byte, pendingUploads)
	go readUploads(ctx, wsConn, uploads, cancel)
	writeSpriteLists(ctx, wsConn, uploads, params)
}

// readUploads forwards binary messages to uploads until the peer goes away.
func readUploads(ctx context.Context, wsConn *websocket.Conn, uploads chan<- []byte, cancel context.CancelFunc) {
	defer cancel()
	defer close(uploads)

	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(pongWait))
	})
	_ = wsConn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		msgType, data, err := wsConn.ReadMessage()
		if err != nil {
			if !isClosedError(err) {
				log.Warn("error reading message from ws: %v", err)
			}
			return
		}
		_ = wsConn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.BinaryMessage {
			data = nil
		}

		select {
		case uploads <- data:
		case <-ctx.Done():
			return
		}
	}
}

// writeSpriteLists converts queued uploads and is the only writer of wsConn.
func writeSpriteLists(ctx context.Context, wsConn *websocket.Conn, uploads <-chan []byte, params encodeParams) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wsConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case data, ok := <-uploads:
			if !ok {
				return
			}
			if err := replyTo(wsConn, data, params); err != nil {
				if !isClosedError(err) {
					log.Warn("failed sending message to ws: %v", err)
				}
				return
			}
		}
	}
}

func replyTo(wsConn *websocket.Conn, data []byte, params encodeParams) error {
	_ = wsConn.SetWriteDeadline(time.Now().Add(writeWait))

	if data == nil {
		return sendError(wsConn, badRequest("binary image message expected"))
	}

	out, err := encodeImage(data, params)
	if err != nil {
		log.Debug("ws conversion failed: %v", err)
		return sendError(wsConn, err)
	}
	return wsConn.WriteMessage(websocket.BinaryMessage, out)
}

func sendError(wsConn *websocket.Conn, err error) error {
	msg, merr := json.Marshal(errorResponse{Error: err.Error()})
	if merr != nil {
		return merr
	}
	return wsConn.WriteMessage(websocket.TextMessage, msg)
}

func isClosedError(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
		errors.Is(err, net.ErrClosed) ||
		strings.HasSuffix(err.Error(), "use of closed network connection")
}

// IsAllowedOrigin reports whether a browser origin may use the service.
// With no configured origins only same-host requests are allowed.
func IsAllowedOrigin(origin string, allowedOrigins []string, host string) bool {
	if origin == "" {
		return true
	}

	for _, allowed := range allowedOrigins {
		if strings.TrimSuffix(strings.TrimSpace(allowed), "/") == strings.TrimSuffix(origin, "/") {
			return true
		}
	}

	if len(allowedOrigins) > 0 {
		return false
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == host || u.Hostname() == "localhost" || u.Hostname() == "127.0.0.1"
}
