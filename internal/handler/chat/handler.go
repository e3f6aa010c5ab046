package chat

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/mindful/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/mindful/backend/internal/middleware"
	"github.com/zhouzirui/mindful/backend/internal/model/session"
	sessionService "github.com/zhouzirui/mindful/backend/internal/service/session"
	"github.com/zhouzirui/mindful/backend/pkg/utils"
)

// ReplyGenerator 生成治疗师回复，便于测试与替换实现
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, history []session.Message) (string, error)
}

// Evaluator 根据对话记录生成健康评估
type Evaluator interface {
	Evaluate(ctx context.Context, transcript string) (session.Evaluation, error)
}

// Config 聊天处理器的可调参数
type Config struct {
	// EvaluationInterval 每累计多少条消息触发一次评估，0 表示不评估。
	EvaluationInterval int
	// AllowedOrigins 与 HTTP 路由共用的跨域白名单，同样约束 WebSocket 握手。
	AllowedOrigins []string
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	sessions           *sessionService.Store
	replies            ReplyGenerator
	evaluator          Evaluator
	evaluationInterval int
	origins            middlewarePkg.OriginMatcher
	upgrader           websocket.Upgrader
	readTimeout        time.Duration
	pingInterval       time.Duration
}

// New 创建聊天处理器。replies 或 evaluator 为 nil 时对应功能不可用。
func New(sessions *sessionService.Store, replies ReplyGenerator, evaluator Evaluator, cfg Config) *Handler {
	h := &Handler{
		sessions:           sessions,
		replies:            replies,
		evaluator:          evaluator,
		evaluationInterval: cfg.EvaluationInterval,
		origins:            middlewarePkg.NewOriginMatcher(cfg.AllowedOrigins),
		readTimeout:        defaultReadTimeout,
		pingInterval:       defaultPingInterval,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return h
}

// checkOrigin 放行无 Origin 的非浏览器客户端与同源页面，其余按白名单判断。
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	if h.origins.Allowed(origin) {
		return true
	}
	log.Printf("[websocket] rejected origin %q", origin)
	return false
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/session", func(sr chi.Router) {
		sr.Post("/create", h.handleCreateSession)
		sr.Post("/message", h.handleMessage)
		sr.Get("/{sessionID}/ws", h.handleWebSocket)
	})
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	created, err := h.sessions.Create(r.Context())
	if err != nil {
		log.Printf("[chat] create session failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	metrics.SessionsCreated.Inc()
	utils.RespondJSON(w, http.StatusOK, map[string]string{"sessionId": created.ID})
}

// handleMessage 处理用户消息并返回治疗师回复
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
	}

	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.exchange(r.Context(), payload.SessionID, payload.Message)
	if err != nil {
		status, message := statusForError(err)
		utils.RespondError(w, status, message)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"response": result.Reply})
}

// statusForError 将编排错误映射为 HTTP 状态码与对外消息。
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, errMissingFields):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, sessionService.ErrSessionNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, errAIUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, errUpstream):
		return http.StatusInternalServerError, err.Error()
	default:
		log.Printf("[chat] message handling failed: %v", err)
		return http.StatusInternalServerError, "internal error"
	}
}
