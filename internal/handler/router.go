package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/newsdigest/internal/metrics"
	"github.com/hitoshi/newsdigest/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	SubscriptionService SubscriptionServiceInterface
	AdminToken          string
	CORSAllowedOrigin   string
	RateLimiter         *middleware.RateLimiter
	Logger              *slog.Logger
	Gatherer            prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware → SecurityHeadersMiddleware → CORSMiddleware
//
// 公開エンドポイント（購読・購読解除）にはクライアントIP単位のレート制限を追加する。
// 管理エンドポイントは共有クレデンシャルで保護され、レート制限の対象外。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	subHandler := NewSubscriberHandler(deps.SubscriptionService)
	adminHandler := NewAdminHandler(deps.SubscriptionService, deps.AdminToken)

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheusスクレイプ
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 公開エンドポイント（レート制限付き） ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware())

		r.Post("/subscribe", subHandler.Subscribe)
		r.Get("/unsubscribe", subHandler.Unsubscribe)
	})

	// --- 管理エンドポイント ---
	r.Route("/admin/subscribers", func(r chi.Router) {
		r.Get("/", adminHandler.List)
		r.Post("/", adminHandler.Add)
		r.Delete("/", adminHandler.Remove)
	})

	return r
}
