package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/newsdigest/internal/config"
	"github.com/hitoshi/newsdigest/internal/database"
	"github.com/hitoshi/newsdigest/internal/delivery"
	"github.com/hitoshi/newsdigest/internal/digest"
	"github.com/hitoshi/newsdigest/internal/handler"
	"github.com/hitoshi/newsdigest/internal/ingest"
	"github.com/hitoshi/newsdigest/internal/logger"
	"github.com/hitoshi/newsdigest/internal/metrics"
	"github.com/hitoshi/newsdigest/internal/middleware"
	"github.com/hitoshi/newsdigest/internal/model"
	"github.com/hitoshi/newsdigest/internal/repository"
	"github.com/hitoshi/newsdigest/internal/security"
	"github.com/hitoshi/newsdigest/internal/subscription"
	"github.com/hitoshi/newsdigest/internal/summarizer"
	"github.com/hitoshi/newsdigest/internal/token"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("site", cfg.SiteName),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandDaily:
		return runDaily(cfg)
	case CommandWeekly:
		return runWeekly(cfg)
	case CommandSendTest:
		if len(args) < 2 {
			return fmt.Errorf("send-test requires a recipient email address")
		}
		return runSendTest(cfg, args[1])
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*repository.PostgresItemRepo, *repository.PostgresSubscriberRepo, func(), error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	itemRepo := repository.NewPostgresItemRepo(db)
	subRepo := repository.NewPostgresSubscriberRepo(db)
	return itemRepo, subRepo, func() { db.Close() }, nil
}

// runServe は購読者管理APIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続とリポジトリの初期化
	_, subRepo, closeDB, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	// 2. ドメインサービスの初期化
	tokenService := token.NewService(cfg.UnsubscribeSecret)
	subService := subscription.NewService(subRepo, tokenService, slog.Default())

	// 3. Prometheusレジストリの初期化
	// 収集・配信ジョブは別プロセスで動くため、ここでは登録のみ行い
	// /metrics のスクレイプ対象として公開する。
	registry := prometheus.NewRegistry()
	metrics.NewCollector(registry)

	// 4. レート制限の初期化（configはreq/min単位、rate.Limitはreq/sec単位）
	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.Rate = rate.Limit(float64(cfg.RateLimitSubscribe) / 60.0)
	rlCfg.Burst = cfg.RateLimitSubscribe
	rateLimiter := middleware.NewRateLimiter(rlCfg)
	defer rateLimiter.Stop()

	// 5. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		SubscriptionService: subService,
		AdminToken:          cfg.AdminToken,
		CORSAllowedOrigin:   cfg.CORSAllowedOrigin,
		RateLimiter:         rateLimiter,
		Logger:              slog.Default(),
		Gatherer:            registry,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runDaily はフィード収集ジョブを1回実行する。
// フィードをフェッチし、関連度フィルタを通過した記事を記事ログに追記する。
// 同一URLの記事は追記されず、再実行は安全（冪等）。
func runDaily(cfg *config.Config) error {
	itemRepo, _, closeDB, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	sanitizer := security.NewContentSanitizer()
	ssrfGuard := security.NewSSRFGuard()

	job := ingest.NewCollector(
		itemRepo, ssrfGuard, sanitizer, collector, slog.Default(),
		cfg.FeedURL, cfg.Keywords, cfg.MaxArticles,
		cfg.FetchTimeout, cfg.FetchMaxSize, cfg.Location(),
	)

	added, err := job.Run(context.Background())
	if err != nil {
		return fmt.Errorf("feed collection failed: %w", err)
	}

	slog.Info("feed collection completed",
		slog.String("feed_url", cfg.FeedURL),
		slog.Int("items_added", added),
	)
	return nil
}

// runWeekly はダイジェスト編纂・配信ジョブを1回実行する。
// 直近の時間窓の記事からダイジェストを編纂し、アーカイブビューを更新した上で
// 全購読者にメール配信する。窓内に記事がない場合は配信をスキップする。
func runWeekly(cfg *config.Config) error {
	itemRepo, subRepo, closeDB, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx := context.Background()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	sanitizer := security.NewContentSanitizer()

	// 1. ダイジェストの編纂
	summarizerClient := summarizer.NewClient(
		&http.Client{Timeout: cfg.SummarizeTimeout},
		slog.Default(), collector,
		cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIMaxTokens,
	)
	compiler := digest.NewCompiler(
		itemRepo, summarizerClient, sanitizer, collector, slog.Default(),
		cfg.OutDir, cfg.SiteName, cfg.WindowDays, cfg.Location(),
	)

	doc, err := compiler.CompilePeriod(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("digest compilation failed: %w", err)
	}

	// 2. アーカイブビューの更新
	materializer := digest.NewMaterializer(cfg.OutDir, cfg.SiteName, slog.Default())
	if err := materializer.RefreshViews(); err != nil {
		return fmt.Errorf("archive refresh failed: %w", err)
	}

	if doc == nil {
		slog.Info("no items in window, skipping delivery")
		return nil
	}

	// 3. 既定購読者のシーディング（ストアが空の場合のみ）
	tokenService := token.NewService(cfg.UnsubscribeSecret)
	subService := subscription.NewService(subRepo, tokenService, slog.Default())

	seeded, err := subService.EnsureDefaults(ctx, cfg.DefaultSubscribers)
	if err != nil {
		return fmt.Errorf("subscriber seeding failed: %w", err)
	}
	if seeded > 0 {
		slog.Info("default subscribers seeded", slog.Int("count", seeded))
	}

	// 4. 全購読者への配信
	subs, err := subService.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscribers: %w", err)
	}
	if len(subs) == 0 {
		slog.Info("no subscribers, skipping delivery")
		return nil
	}

	sender := delivery.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.EmailFrom)
	deliveryService := delivery.NewService(
		subRepo, sender, tokenService, collector, slog.Default(),
		cfg.BaseURL, cfg.SiteName,
	)

	outcomes := deliveryService.Deliver(ctx, doc, subs)

	sent := 0
	for _, o := range outcomes {
		if o.Sent {
			sent++
		}
	}
	slog.Info("digest delivery completed",
		slog.String("period", doc.PeriodLabel()),
		slog.Int("sent", sent),
		slog.Int("failed", len(outcomes)-sent),
	)

	if sent == 0 {
		return fmt.Errorf("delivery failed for all %d subscribers", len(outcomes))
	}
	return nil
}

// runSendTest は最新のダイジェストを指定アドレスに1通だけテスト配信する。
// last_sentは更新しない。ダイジェストが1つも存在しない場合はエラーを返す。
func runSendTest(cfg *config.Config, email string) error {
	materializer := digest.NewMaterializer(cfg.OutDir, cfg.SiteName, slog.Default())

	fullPath, err := materializer.LatestDocumentPath()
	if err != nil {
		return fmt.Errorf("failed to locate latest digest: %w", err)
	}
	if fullPath == "" {
		return fmt.Errorf("no digest documents found in %s", cfg.OutDir)
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return fmt.Errorf("failed to read digest document: %w", err)
	}

	relPath, err := filepath.Rel(cfg.OutDir, fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve digest path: %w", err)
	}

	doc, err := documentFromPath(filepath.ToSlash(relPath), string(content), cfg.WindowDays, cfg.Location())
	if err != nil {
		return err
	}

	tokenService := token.NewService(cfg.UnsubscribeSecret)
	sender := delivery.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.EmailFrom)

	// テスト配信はlast_sentを更新しないため、購読者ストアへの接続は不要。
	deliveryService := delivery.NewService(
		nil, sender, tokenService, nil, slog.Default(),
		cfg.BaseURL, cfg.SiteName,
	)

	if err := deliveryService.DeliverTest(context.Background(), doc, email); err != nil {
		return err
	}

	slog.Info("test digest sent",
		slog.String("email", email),
		slog.String("period", doc.PeriodLabel()),
	)
	return nil
}

// documentFromPath はアーカイブ上の相対パスと本文からDigestDocumentを復元する。
// 期間終了日はファイル名（weekly-YYYY-MM-DD.html）から読み取る。
func documentFromPath(path, content string, windowDays int, loc *time.Location) (*model.DigestDocument, error) {
	base := filepath.Base(path)
	dateStr := strings.TrimSuffix(strings.TrimPrefix(base, "weekly-"), ".html")

	end, err := time.ParseInLocation(model.DateLayout, dateStr, loc)
	if err != nil {
		return nil, fmt.Errorf("unexpected digest file name %q: %w", base, err)
	}

	return &model.DigestDocument{
		PeriodStart: end.AddDate(0, 0, -(windowDays - 1)),
		PeriodEnd:   end,
		Content:     content,
		Path:        path,
	}, nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
