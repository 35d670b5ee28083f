// Package digest はダイジェストの編纂とアーカイブビューの維持を提供する。
package digest

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hitoshi/newsdigest/internal/model"
)

// ItemLister は期間指定での記事取得のインターフェース。
type ItemLister interface {
	ListByDateRange(ctx context.Context, start, end time.Time) ([]*model.Item, error)
}

// Summarizer は外部要約APIのインターフェース。
type Summarizer interface {
	Summarize(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// FragmentSanitizer は要約出力のサニタイズのインターフェース。
// 要約APIの出力は整形式である保証がないため、保存前に必ず通す。
type FragmentSanitizer interface {
	SanitizeFragment(rawHTML string) string
}

// CompileMetrics は編纂ジョブのメトリクス記録のインターフェース。
type CompileMetrics interface {
	RecordDigestCompiled()
}

// Compiler は時間窓の記事からDigestDocumentを編纂する。
// 窓が空の場合は何も生成せず正常終了する。要約API失敗時は
// 部分的なドキュメントを一切書き込まない（全生成か無生成か）。
type Compiler struct {
	items      ItemLister
	summarizer Summarizer
	sanitizer  FragmentSanitizer
	metrics    CompileMetrics
	logger     *slog.Logger
	outDir     string
	siteName   string
	windowDays int
	loc        *time.Location
}

// NewCompiler はCompilerの新しいインスタンスを生成する。
func NewCompiler(
	items ItemLister,
	summarizer Summarizer,
	sanitizer FragmentSanitizer,
	metrics CompileMetrics,
	logger *slog.Logger,
	outDir string,
	siteName string,
	windowDays int,
	loc *time.Location,
) *Compiler {
	return &Compiler{
		items:      items,
		summarizer: summarizer,
		sanitizer:  sanitizer,
		metrics:    metrics,
		logger:     logger,
		outDir:     outDir,
		siteName:   siteName,
		windowDays: windowDays,
		loc:        loc,
	}
}

// CompilePeriod は指定の期間終了日までの時間窓のダイジェストを編纂する。
// 窓は[end-(windowDays-1), end]の両端を含むwindowDays日間。
// 窓内に記事がない場合は(nil, nil)を返す。
func (c *Compiler) CompilePeriod(ctx context.Context, end time.Time) (*model.DigestDocument, error) {
	endDay := dateOf(end.In(c.loc))
	startDay := endDay.AddDate(0, 0, -(c.windowDays - 1))

	items, err := c.items.ListByDateRange(ctx, startDay, endDay)
	if err != nil {
		return nil, fmt.Errorf("期間内の記事取得に失敗しました: %w", err)
	}

	if len(items) == 0 {
		c.logger.Info("時間窓に記事がないため編纂をスキップします",
			slog.String("start", startDay.Format(model.DateLayout)),
			slog.String("end", endDay.Format(model.DateLayout)),
		)
		return nil, nil
	}

	fragment, err := c.summarizer.Summarize(ctx, c.systemPrompt(), c.userPrompt(items))
	if err != nil {
		return nil, fmt.Errorf("要約の生成に失敗しました: %w", err)
	}

	doc := &model.DigestDocument{
		PeriodStart: startDay,
		PeriodEnd:   endDay,
		ProducedAt:  time.Now(),
		Path:        documentPath(endDay),
	}
	doc.Content = wrapDocument(c.siteName, c.sanitizer.SanitizeFragment(fragment), doc.PeriodLabel())

	if err := c.writeDocument(doc); err != nil {
		return nil, err
	}

	c.metrics.RecordDigestCompiled()
	c.logger.Info("ダイジェストを編纂しました",
		slog.String("path", doc.Path),
		slog.Int("item_count", len(items)),
	)

	return doc, nil
}

// systemPrompt は要約APIへのシステム指示を返す。
func (c *Compiler) systemPrompt() string {
	return fmt.Sprintf(
		"You are an expert %s technology analyst. Output valid HTML only (no markdown).",
		c.siteName,
	)
}

// userPrompt は窓内の記事を1行1記事のマニフェストに整形してプロンプトを組み立てる。
func (c *Compiler) userPrompt(items []*model.Item) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%s: %s — %s (%s)", item.DateString(), item.Title, item.Snippet, item.URL))
	}

	var b strings.Builder
	b.WriteString("Create a weekly digest for " + c.siteName + " leaders. ")
	b.WriteString("Begin with <h2>What matters</h2> and 2-4 short <p> paragraphs, ")
	b.WriteString("then group stories by theme using <h2> headings with short <ul><li> bullets. ")
	b.WriteString("Each bullet must end with a source link as <a href=\"...\">Source</a>. ")
	b.WriteString("Close all tags properly.\nArticles:\n")
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

// documentPath は期間終了日から相対出力パスを導出する。
func documentPath(endDay time.Time) string {
	return filepath.Join(endDay.Format("2006-01"), "weekly-"+endDay.Format(model.DateLayout)+".html")
}

// wrapDocument はサニタイズ済みフラグメントを固定のドキュメントシェルで包む。
// 生成時刻を含めないため、同一入力からは常に同一バイト列が得られる。
func wrapDocument(siteName, fragment, periodLabel string) string {
	title := html.EscapeString(siteName) + " — Weekly Summary (" + html.EscapeString(periodLabel) + ")"
	return `<!doctype html><html lang="en"><head><meta charset="utf-8">
<title>` + title + `</title>
<meta name="viewport" content="width=device-width,initial-scale=1">
<style>body{font-family:Arial,Helvetica,sans-serif;background:#f9fafb;color:#111827;padding:2rem;}</style>
</head><body><h1>` + title + `</h1>
` + fragment + `
</body></html>
`
}

// writeDocument はドキュメントを一時ファイル経由でアトミックに書き込む。
func (c *Compiler) writeDocument(doc *model.DigestDocument) error {
	fullPath := filepath.Join(c.outDir, doc.Path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".weekly-*.tmp")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(doc.Content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ドキュメントの書き込みに失敗しました: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("一時ファイルのクローズに失敗しました: %w", err)
	}

	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ドキュメントの配置に失敗しました: %w", err)
	}

	return nil
}

// dateOf は時刻成分を落として日付のみにする。タイムゾーンは維持する。
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
