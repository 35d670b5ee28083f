// Package ingest はフィードからの記事収集ジョブを提供する。
// SSRF検証付きのHTTPフェッチ、gofeedによるパース、関連度フィルタ、
// 記事ログへの追記を1回の実行として実施する。
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/newsdigest/internal/model"
)

// snippetMaxRunes はスニペットの最大文字数。超過分は切り捨てる。
const snippetMaxRunes = 1200

// ItemAppender は記事ログへの追記処理のインターフェース。
type ItemAppender interface {
	AppendBatch(ctx context.Context, items []*model.Item, day time.Time, maxItems int) (int, error)
}

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// TextStripper はHTMLからプレーンテキストを抽出するインターフェース。
type TextStripper interface {
	StripToText(html string) string
}

// MetricsRecorder は収集ジョブのメトリクス記録のインターフェース。
type MetricsRecorder interface {
	RecordFetchSuccess()
	RecordFetchFailure(reason string)
	RecordItemsAppended(count int)
}

// Collector はフィードの収集実行を担う。
// フェッチ失敗時は記事ログに一切書き込まずエラーを返す。
type Collector struct {
	itemRepo    ItemAppender
	ssrfGuard   SSRFValidator
	stripper    TextStripper
	metrics     MetricsRecorder
	logger      *slog.Logger
	feedURL     string
	keywords    []string
	maxArticles int
	timeout     time.Duration
	maxBodySize int64
	loc         *time.Location
	// now はテスト用に差し替え可能な現在時刻の取得関数。
	now func() time.Time
}

// NewCollector はCollectorの新しいインスタンスを生成する。
func NewCollector(
	itemRepo ItemAppender,
	ssrfGuard SSRFValidator,
	stripper TextStripper,
	metrics MetricsRecorder,
	logger *slog.Logger,
	feedURL string,
	keywords []string,
	maxArticles int,
	timeout time.Duration,
	maxBodySize int64,
	loc *time.Location,
) *Collector {
	return &Collector{
		itemRepo:    itemRepo,
		ssrfGuard:   ssrfGuard,
		stripper:    stripper,
		metrics:     metrics,
		logger:      logger,
		feedURL:     feedURL,
		keywords:    keywords,
		maxArticles: maxArticles,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		loc:         loc,
		now:         time.Now,
	}
}

// Run はフィードを1回収集し、追記された記事数を返す。
// 同一URLの記事は追記されず、当日の記事数が上限に達した時点で残りは破棄される。
func (c *Collector) Run(ctx context.Context) (int, error) {
	start := c.now()
	collectionDay := dateOf(start.In(c.loc))

	// SSRF検証
	if err := c.ssrfGuard.ValidateURL(c.feedURL); err != nil {
		c.logger.Error("SSRF検証に失敗しました",
			slog.String("feed_url", c.feedURL),
			slog.String("error", err.Error()),
		)
		c.metrics.RecordFetchFailure("ssrf")
		return 0, fmt.Errorf("SSRF検証に失敗しました: %w", err)
	}

	entries, err := c.fetchEntries(ctx)
	if err != nil {
		c.metrics.RecordFetchFailure("fetch")
		return 0, err
	}

	// 関連度フィルタを通過した候補のみ保存対象にする
	candidates := make([]*model.Item, 0, len(entries))
	for _, entry := range entries {
		if !MatchesKeywords(entry.Title, entry.Summary, c.keywords) {
			continue
		}
		candidates = append(candidates, c.buildItem(entry, collectionDay))
	}

	appended, err := c.itemRepo.AppendBatch(ctx, candidates, collectionDay, c.maxArticles)
	if err != nil {
		c.logger.Error("記事ログへの追記に失敗しました",
			slog.String("feed_url", c.feedURL),
			slog.String("error", err.Error()),
		)
		c.metrics.RecordFetchFailure("store")
		return 0, fmt.Errorf("記事ログへの追記に失敗しました: %w", err)
	}

	c.metrics.RecordFetchSuccess()
	c.metrics.RecordItemsAppended(appended)

	c.logger.Info("フィード収集が完了しました",
		slog.String("feed_url", c.feedURL),
		slog.Int("entries_total", len(entries)),
		slog.Int("entries_matched", len(candidates)),
		slog.Int("items_appended", appended),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return appended, nil
}

// fetchEntries はフィードをフェッチしてパースする。
func (c *Collector) fetchEntries(ctx context.Context) ([]model.ParsedEntry, error) {
	client := c.ssrfGuard.NewSafeClient(c.timeout, c.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}

	req.Header.Set("User-Agent", "NewsDigest/1.0 Feed Collector")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := client.Do(req)
	if err != nil {
		c.logger.Error("HTTPリクエストに失敗しました",
			slog.String("feed_url", c.feedURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("フィードがエラーステータスを返しました",
			slog.String("feed_url", c.feedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("フィードがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	parser := gofeed.NewParser()
	parsedFeed, err := parser.ParseString(string(body))
	if err != nil {
		c.logger.Error("フィードのパースに失敗しました",
			slog.String("feed_url", c.feedURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("フィードのパースに失敗しました: %w", err)
	}

	return convertGofeedItems(parsedFeed.Items), nil
}

// buildItem はParsedEntryから保存用のItemを構築する。
// 公開日時が不明な記事は収集日を代用する。
func (c *Collector) buildItem(entry model.ParsedEntry, collectionDay time.Time) *model.Item {
	date := collectionDay
	if entry.PublishedAt != nil {
		date = dateOf(entry.PublishedAt.In(c.loc))
	}

	snippet := truncateRunes(c.stripper.StripToText(entry.Summary), snippetMaxRunes)

	return &model.Item{
		ID:        uuid.New().String(),
		Date:      date,
		Title:     strings.TrimSpace(entry.Title),
		URL:       entry.Link,
		Snippet:   snippet,
		CreatedAt: c.now(),
	}
}

// MatchesKeywords はタイトルまたは概要がキーワードのいずれかを含むか判定する。
// 比較は大文字小文字を区別しない。キーワードが空の場合は全記事が対象になる。
func MatchesKeywords(title, summary string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(title + " " + summary)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// convertGofeedItems はgofeedの記事をmodel.ParsedEntryに変換する。
// リンクとタイトルのない記事は破棄する。
func convertGofeedItems(items []*gofeed.Item) []model.ParsedEntry {
	entries := make([]model.ParsedEntry, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		entry := model.ParsedEntry{
			Title:   item.Title,
			Link:    item.Link,
			Summary: item.Description,
		}

		// Descriptionが空の場合はContentを使用
		if entry.Summary == "" && item.Content != "" {
			entry.Summary = item.Content
		}

		// 公開日時: published > updated の優先順
		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			entry.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			entry.PublishedAt = &t
		}

		// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
		if entry.Link == "" && item.GUID != "" &&
			(strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://")) {
			entry.Link = item.GUID
		}

		if entry.Link == "" || strings.TrimSpace(entry.Title) == "" {
			continue
		}

		entries = append(entries, entry)
	}

	return entries
}

// dateOf は時刻成分を落として日付のみにする。タイムゾーンは維持する。
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// truncateRunes は文字数ベースでsを最大nに切り詰める。
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
