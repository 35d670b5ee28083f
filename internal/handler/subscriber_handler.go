// Package handler はHTTP APIのハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"

	"github.com/hitoshi/newsdigest/internal/middleware"
	"github.com/hitoshi/newsdigest/internal/model"
)

// SubscriptionServiceInterface は購読サービスのインターフェース（handler視点）。
type SubscriptionServiceInterface interface {
	Subscribe(ctx context.Context, email string) (bool, error)
	Unsubscribe(ctx context.Context, email, token string) error
	List(ctx context.Context) ([]*model.Subscriber, error)
	Remove(ctx context.Context, email string) (bool, error)
}

// SubscriberHandler は購読登録・解除の公開エンドポイントを処理する。
type SubscriberHandler struct {
	service SubscriptionServiceInterface
}

// NewSubscriberHandler はSubscriberHandlerの新しいインスタンスを生成する。
func NewSubscriberHandler(service SubscriptionServiceInterface) *SubscriberHandler {
	return &SubscriberHandler{service: service}
}

// subscribeRequest はPOST /subscribeのリクエストボディ。
type subscribeRequest struct {
	Email string `json:"email"`
}

// Subscribe はPOST /subscribeを処理する。登録済みでも成功を返す（冪等）。
func (h *SubscriberHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidEmailError())
		return
	}

	if _, err := h.service.Subscribe(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"message": "Subscribed!",
	})
}

// Unsubscribe はGET /unsubscribeを処理する。
// メール内のリンクから直接開かれるため、成功時はHTMLを返す。
func (h *SubscriberHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	token := r.URL.Query().Get("token")

	if err := h.service.Unsubscribe(r.Context(), email, token); err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "<h3>%s unsubscribed successfully.</h3>", html.EscapeString(model.NormalizeEmail(email)))
}

// writeServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// APIError以外はすべて内部エラーとして扱い、詳細はログのみに残す。
func writeServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, statusForAPIError(apiErr), apiErr)
		return
	}

	slog.Error("ハンドラーで内部エラーが発生しました", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// statusForAPIError はエラーコードからHTTPステータスコードを導出する。
func statusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidEmail:
		return http.StatusBadRequest
	case model.ErrCodeInvalidToken, model.ErrCodeUnauthorized:
		return http.StatusForbidden
	case model.ErrCodeSubscriberNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
