package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/newsdigest/internal/middleware"
	"github.com/hitoshi/newsdigest/internal/model"
)

// AdminHandler は共有クレデンシャルで保護された購読者管理エンドポイントを処理する。
type AdminHandler struct {
	service    SubscriptionServiceInterface
	adminToken string
}

// NewAdminHandler はAdminHandlerの新しいインスタンスを生成する。
func NewAdminHandler(service SubscriptionServiceInterface, adminToken string) *AdminHandler {
	return &AdminHandler{
		service:    service,
		adminToken: adminToken,
	}
}

// adminSubscriber は管理APIのレスポンスに含める購読者表現。
type adminSubscriber struct {
	Email    string `json:"email"`
	LastSent string `json:"last_sent,omitempty"`
}

// authorize は共有クレデンシャルを定数時間比較で検証する。
// どの検証段階で失敗したかは開示しない。
func (h *AdminHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	token := r.URL.Query().Get("token")
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
		middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewUnauthorizedError())
		return false
	}
	return true
}

// List はGET /admin/subscribersを処理する。
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	subs, err := h.service.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"count":       len(subs),
		"subscribers": toAdminSubscribers(subs),
	})
}

// Add はPOST /admin/subscribersを処理する。登録済みでも成功を返す（冪等）。
func (h *AdminHandler) Add(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidEmailError())
		return
	}

	added, err := h.service.Subscribe(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"added": added,
	})
}

// Remove はDELETE /admin/subscribersを処理する。
func (h *AdminHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	removed, err := h.service.Remove(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !removed {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewSubscriberNotFoundError())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"removed": true,
	})
}

func toAdminSubscribers(subs []*model.Subscriber) []adminSubscriber {
	out := make([]adminSubscriber, 0, len(subs))
	for _, s := range subs {
		entry := adminSubscriber{Email: s.Email}
		if s.LastSent != nil {
			entry.LastSent = s.LastSent.Format("2006-01-02 15:04")
		}
		out = append(out, entry)
	}
	return out
}
