package admin

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mindful/backend/internal/model/session"
	sessionService "github.com/zhouzirui/mindful/backend/internal/service/session"
	"github.com/zhouzirui/mindful/backend/pkg/utils"
)

// Handler 管理端会话查看与清理的HTTP处理器
type Handler struct {
	sessions *sessionService.Store
}

// New 创建管理端处理器
func New(sessions *sessionService.Store) *Handler {
	return &Handler{
		sessions: sessions,
	}
}

// RegisterRoutes 注册管理端路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/sessions", func(ar chi.Router) {
		ar.Get("/", h.handleListSessions)
		ar.Delete("/", h.handleDeleteAll)
		ar.Get("/{sessionID}", h.handleGetSession)
		ar.Delete("/{sessionID}", h.handleDeleteSession)
	})
}

// handleListSessions 列出会话摘要，不含消息正文
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	records, err := h.sessions.List(r.Context())
	if err != nil {
		log.Printf("[admin] list sessions failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	summaries := make([]session.Summary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, record.Summary())
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	record, err := h.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, sessionService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Printf("[admin] load session failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"session": record})
}

// handleDeleteAll 删除全部会话，单条失败只记录日志
func (h *Handler) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.sessions.DeleteAll(r.Context())
	if err != nil {
		log.Printf("[admin] delete sessions failed after %d: %v", deleted, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete sessions")
		return
	}

	log.Printf("[admin] deleted %d sessions", deleted)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("deleted %d sessions", deleted)})
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	deleted, err := h.sessions.Delete(r.Context(), sessionID)
	if err != nil {
		log.Printf("[admin] delete session %s failed: %v", sessionID, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	if !deleted {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
