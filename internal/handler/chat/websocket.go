package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	sessionService "github.com/zhouzirui/mindful/backend/internal/service/session"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultPingInterval = 54 * time.Second
)

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// handleWebSocket 处理WebSocket连接，消息处理与 REST 接口共用同一套编排逻辑
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	current, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, sessionService.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Printf("[websocket] load session failed: %v", err)
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	// gorilla 连接不支持并发写，ping 与业务消息共用 writes 保护。
	writes := make(chan struct{}, 1)
	go h.pingLoop(ctx, conn, writes)

	h.send(conn, writes, outgoingMessage{
		Type:      "connected",
		SessionID: sessionID,
		Data:      map[string]any{"messageCount": len(current.Messages)},
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, writes, sessionID, "session mismatch")
		} else {
			h.handleSocketMessage(ctx, conn, writes, sessionID, &msg)
		}

		// 处理消息期间不读取连接，pong 不会续期读超时，需在处理完成后重新设置。
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
}

func (h *Handler) handleSocketMessage(ctx context.Context, conn *websocket.Conn, writes chan struct{}, sessionID string, msg *inboundMessage) {
	switch msg.Type {
	case "message":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			h.sendError(conn, writes, sessionID, "invalid message payload")
			return
		}

		result, err := h.exchange(ctx, sessionID, text.Text)
		if err != nil {
			_, message := statusForError(err)
			h.sendError(conn, writes, sessionID, message)
			return
		}

		h.send(conn, writes, outgoingMessage{
			Type:      "reply",
			SessionID: sessionID,
			Data: map[string]any{
				"text":         result.Reply,
				"messageCount": result.Messages,
			},
		})
		if result.Evaluation != nil {
			h.send(conn, writes, outgoingMessage{
				Type:      "evaluation",
				SessionID: sessionID,
				Data:      result.Evaluation,
			})
		}
	default:
		h.sendError(conn, writes, sessionID, "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) send(conn *websocket.Conn, writes chan struct{}, msg outgoingMessage) {
	msg.Timestamp = time.Now().Unix()

	writes <- struct{}{}
	defer func() { <-writes }()

	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", msg.Type, err)
	}
}

func (h *Handler) sendError(conn *websocket.Conn, writes chan struct{}, sessionID, message string) {
	h.send(conn, writes, outgoingMessage{
		Type:      "error",
		SessionID: sessionID,
		Data:      map[string]string{"message": message},
	})
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn, writes chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writes <- struct{}{}
			err := conn.WriteMessage(websocket.PingMessage, nil)
			<-writes
			if err != nil {
				return
			}
		}
	}
}
