package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/newsdigest/internal/model"
)

// mockItemAppender はItemAppenderのモック実装。
type mockItemAppender struct {
	items    []*model.Item
	day      time.Time
	maxItems int
	calls    int
	err      error
}

func (m *mockItemAppender) AppendBatch(ctx context.Context, items []*model.Item, day time.Time, maxItems int) (int, error) {
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	m.items = items
	m.day = day
	m.maxItems = maxItems
	return len(items), nil
}

// mockSSRFGuard はSSRF検証をバイパスするモック実装。
type mockSSRFGuard struct {
	validateErr error
}

func (m *mockSSRFGuard) ValidateURL(rawURL string) error {
	return m.validateErr
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

// mockStripper はタグ除去の簡易モック実装。
type mockStripper struct{}

var tagRe = regexp.MustCompile(`<[^>]*>`)

func (m *mockStripper) StripToText(html string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(html, ""))
}

// mockMetrics はMetricsRecorderのモック実装。
type mockMetrics struct {
	successes int
	failures  map[string]int
	appended  int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{failures: make(map[string]int)}
}

func (m *mockMetrics) RecordFetchSuccess()              { m.successes++ }
func (m *mockMetrics) RecordFetchFailure(reason string) { m.failures[reason]++ }
func (m *mockMetrics) RecordItemsAppended(count int)    { m.appended += count }

const rssTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Test Feed</title>
<link>https://example.com</link>
%s
</channel>
</rss>`

func rssItem(title, link, desc, pubDate string) string {
	var b strings.Builder
	b.WriteString("<item>")
	b.WriteString("<title>" + title + "</title>")
	b.WriteString("<link>" + link + "</link>")
	b.WriteString("<description>" + desc + "</description>")
	if pubDate != "" {
		b.WriteString("<pubDate>" + pubDate + "</pubDate>")
	}
	b.WriteString("</item>")
	return b.String()
}

func newTestCollector(feedURL string, appender *mockItemAppender, metrics *mockMetrics, keywords []string) *Collector {
	c := NewCollector(
		appender,
		&mockSSRFGuard{},
		&mockStripper{},
		metrics,
		slog.New(slog.NewTextHandler(&strings.Builder{}, nil)),
		feedURL,
		keywords,
		10,
		5*time.Second,
		1024*1024,
		time.FixedZone("CST", -6*3600),
	)
	c.now = func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	}
	return c
}

func TestCollector_Run_AppendsMatchedEntries(t *testing.T) {
	feed := fmt.Sprintf(rssTemplate,
		rssItem("New biotech funding round", "https://example.com/a", "<p>A biotech startup raised money.</p>", "Sun, 08 Jun 2025 09:00:00 GMT")+
			rssItem("Celebrity gossip roundup", "https://example.com/b", "Nothing relevant here.", "Sun, 08 Jun 2025 10:00:00 GMT")+
			rssItem("Hospital AI pilot expands", "https://example.com/c", "An ai pilot in a hospital.", "Mon, 09 Jun 2025 09:00:00 GMT"),
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feed)
	}))
	defer server.Close()

	appender := &mockItemAppender{}
	metrics := newMockMetrics()
	c := newTestCollector(server.URL, appender, metrics, []string{"biotech", "hospital"})

	appended, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if appended != 2 {
		t.Errorf("appended = %d, want 2", appended)
	}
	if len(appender.items) != 2 {
		t.Fatalf("保存候補数 = %d, want 2", len(appender.items))
	}

	if appender.items[0].Title != "New biotech funding round" {
		t.Errorf("items[0].Title = %q", appender.items[0].Title)
	}
	if appender.items[0].Snippet != "A biotech startup raised money." {
		t.Errorf("items[0].Snippet = %q", appender.items[0].Snippet)
	}
	// pubDateはUTC-6に変換した上で日付化される
	if got := appender.items[0].DateString(); got != "2025-06-08" {
		t.Errorf("items[0].Date = %s, want 2025-06-08", got)
	}
	if appender.maxItems != 10 {
		t.Errorf("maxItems = %d, want 10", appender.maxItems)
	}
	if metrics.successes != 1 || metrics.appended != 2 {
		t.Errorf("metrics: successes=%d appended=%d", metrics.successes, metrics.appended)
	}
}

func TestCollector_Run_DateFallsBackToCollectionDay(t *testing.T) {
	feed := fmt.Sprintf(rssTemplate,
		rssItem("Undated ai article", "https://example.com/x", "ai news", ""),
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feed)
	}))
	defer server.Close()

	appender := &mockItemAppender{}
	c := newTestCollector(server.URL, appender, newMockMetrics(), []string{"ai"})

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(appender.items) != 1 {
		t.Fatalf("保存候補数 = %d, want 1", len(appender.items))
	}
	// 2025-06-15 12:00 UTC は UTC-6 では 2025-06-15 06:00
	if got := appender.items[0].DateString(); got != "2025-06-15" {
		t.Errorf("Date = %s, want 2025-06-15（収集日）", got)
	}
}

func TestCollector_Run_FetchFailure_NoWrites(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	appender := &mockItemAppender{}
	metrics := newMockMetrics()
	c := newTestCollector(server.URL, appender, metrics, nil)

	if _, err := c.Run(context.Background()); err == nil {
		t.Fatal("HTTPエラー時にエラーが返らなかった")
	}
	if appender.calls != 0 {
		t.Error("フェッチ失敗時に記事ログへの書き込みが発生した")
	}
	if metrics.failures["fetch"] != 1 {
		t.Errorf("fetch失敗メトリクス = %d, want 1", metrics.failures["fetch"])
	}
}

func TestCollector_Run_ParseFailure_NoWrites(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not a feed")
	}))
	defer server.Close()

	appender := &mockItemAppender{}
	c := newTestCollector(server.URL, appender, newMockMetrics(), nil)

	if _, err := c.Run(context.Background()); err == nil {
		t.Fatal("パース失敗時にエラーが返らなかった")
	}
	if appender.calls != 0 {
		t.Error("パース失敗時に記事ログへの書き込みが発生した")
	}
}

func TestCollector_Run_SSRFRejected(t *testing.T) {
	appender := &mockItemAppender{}
	metrics := newMockMetrics()
	c := newTestCollector("http://169.254.169.254/feed", appender, metrics, nil)
	c.ssrfGuard = &mockSSRFGuard{validateErr: errors.New("blocked network")}

	if _, err := c.Run(context.Background()); err == nil {
		t.Fatal("SSRF検証失敗時にエラーが返らなかった")
	}
	if appender.calls != 0 {
		t.Error("SSRF検証失敗時に記事ログへの書き込みが発生した")
	}
	if metrics.failures["ssrf"] != 1 {
		t.Errorf("ssrf失敗メトリクス = %d, want 1", metrics.failures["ssrf"])
	}
}

func TestCollector_Run_StoreFailure(t *testing.T) {
	feed := fmt.Sprintf(rssTemplate, rssItem("ai item", "https://example.com/a", "ai", ""))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feed)
	}))
	defer server.Close()

	appender := &mockItemAppender{err: errors.New("db down")}
	c := newTestCollector(server.URL, appender, newMockMetrics(), nil)

	if _, err := c.Run(context.Background()); err == nil {
		t.Fatal("ストア障害時にエラーが返らなかった")
	}
}

func TestMatchesKeywords(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		summary  string
		keywords []string
		want     bool
	}{
		{
			name:     "タイトルが一致",
			title:    "Digital Health funding news",
			summary:  "",
			keywords: []string{"digital health"},
			want:     true,
		},
		{
			name:     "概要が一致",
			title:    "Weekly update",
			summary:  "A new HOSPITAL opened.",
			keywords: []string{"hospital"},
			want:     true,
		},
		{
			name:     "大文字小文字を区別しない",
			title:    "BIOTECH news",
			summary:  "",
			keywords: []string{"Biotech"},
			want:     true,
		},
		{
			name:     "一致なし",
			title:    "Sports results",
			summary:  "Football scores.",
			keywords: []string{"pharma", "medtech"},
			want:     false,
		},
		{
			name:     "キーワード未指定は全件一致",
			title:    "Anything",
			summary:  "",
			keywords: nil,
			want:     true,
		},
		{
			name:     "空キーワードは無視される",
			title:    "Sports results",
			summary:  "",
			keywords: []string{""},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesKeywords(tt.title, tt.summary, tt.keywords); got != tt.want {
				t.Errorf("MatchesKeywords() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	long := strings.Repeat("あ", snippetMaxRunes+100)
	got := truncateRunes(long, snippetMaxRunes)
	if len([]rune(got)) != snippetMaxRunes {
		t.Errorf("truncateRunes長 = %d, want %d", len([]rune(got)), snippetMaxRunes)
	}

	short := "short text"
	if truncateRunes(short, snippetMaxRunes) != short {
		t.Error("上限未満の文字列が変更された")
	}
}
