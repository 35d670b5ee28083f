package digest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/hitoshi/newsdigest/internal/model"
)

const (
	// latestFile は最新ダイジェストを常に映す派生アーティファクト。
	latestFile = "latest.html"
	// indexFile は月別のアーカイブ索引。
	indexFile = "index.html"
	// manifestFile はアーティファクトの順序キーを記録するサイドカー。
	// ファイルのmtimeには一切依存しない。
	manifestFile = "archive-manifest.json"
)

// weeklyFileRe は <YYYY-MM>/weekly-<YYYY-MM-DD>.html の相対パスに一致する。
var weeklyFileRe = regexp.MustCompile(`^\d{4}-\d{2}/weekly-(\d{4}-\d{2}-\d{2})\.html$`)

// archiveManifest はドキュメント発見順の採番を永続化する。
// 終了日が同一のドキュメント間の決定的なタイブレークに使用する。
type archiveManifest struct {
	NextSeq int            `json:"next_seq"`
	Entries map[string]int `json:"entries"`
}

// archiveEntry は順序付け済みのドキュメント1件を表す。
type archiveEntry struct {
	relPath string
	endDate time.Time
	seq     int
}

// Materializer は生成済みDigestDocument群から派生ビューを維持する。
// latestポインタと月別アーカイブ索引の2つを管理し、再実行は真の無操作になる。
type Materializer struct {
	outDir   string
	siteName string
	logger   *slog.Logger
}

// NewMaterializer はMaterializerの新しいインスタンスを生成する。
func NewMaterializer(outDir, siteName string, logger *slog.Logger) *Materializer {
	return &Materializer{
		outDir:   outDir,
		siteName: siteName,
		logger:   logger,
	}
}

// RefreshViews はlatestポインタとアーカイブ索引を再構築する。
// 新しいドキュメントがない場合、既存アーティファクトは一切書き換えない。
func (m *Materializer) RefreshViews() error {
	entries, err := m.scanDocuments()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		m.logger.Info("ダイジェストが存在しないためビュー更新をスキップします")
		return nil
	}

	// 新しい順: 終了日降順、同日なら発見順の採番降順
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].endDate.Equal(entries[j].endDate) {
			return entries[i].endDate.After(entries[j].endDate)
		}
		return entries[i].seq > entries[j].seq
	})

	newest := entries[0]
	newestContent, err := os.ReadFile(filepath.Join(m.outDir, newest.relPath))
	if err != nil {
		return fmt.Errorf("最新ダイジェストの読み取りに失敗しました: %w", err)
	}

	changedLatest, err := writeIfChanged(filepath.Join(m.outDir, latestFile), newestContent)
	if err != nil {
		return fmt.Errorf("latestポインタの更新に失敗しました: %w", err)
	}

	changedIndex, err := writeIfChanged(filepath.Join(m.outDir, indexFile), m.renderIndex(entries))
	if err != nil {
		return fmt.Errorf("アーカイブ索引の更新に失敗しました: %w", err)
	}

	m.logger.Info("アーカイブビューを更新しました",
		slog.Int("document_count", len(entries)),
		slog.String("newest", newest.relPath),
		slog.Bool("latest_rewritten", changedLatest),
		slog.Bool("index_rewritten", changedIndex),
	)

	return nil
}

// LatestDocumentPath は順序キー上で最新のドキュメントのパス（出力ディレクトリ結合済み）を返す。
// ドキュメントが1つも存在しない場合は空文字列を返す。
func (m *Materializer) LatestDocumentPath() (string, error) {
	entries, err := m.scanDocuments()
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}

	newest := entries[0]
	for _, e := range entries[1:] {
		if e.endDate.After(newest.endDate) || (e.endDate.Equal(newest.endDate) && e.seq > newest.seq) {
			newest = e
		}
	}
	return filepath.Join(m.outDir, newest.relPath), nil
}

// scanDocuments は出力ディレクトリを走査し、順序キーを確定した一覧を返す。
// 新規に発見したドキュメントにはマニフェスト上で連番を採番する。
func (m *Materializer) scanDocuments() ([]archiveEntry, error) {
	manifest, err := m.loadManifest()
	if err != nil {
		return nil, err
	}

	var entries []archiveEntry
	manifestDirty := false

	walkErr := filepath.WalkDir(m.outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(m.outDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		match := weeklyFileRe.FindStringSubmatch(rel)
		if match == nil {
			return nil
		}
		endDate, err := time.Parse(model.DateLayout, match[1])
		if err != nil {
			// ファイル名に日付を持たないものは順序付け不能なので対象外
			return nil
		}

		seq, known := manifest.Entries[rel]
		if !known {
			seq = manifest.NextSeq
			manifest.Entries[rel] = seq
			manifest.NextSeq++
			manifestDirty = true
		}

		entries = append(entries, archiveEntry{relPath: rel, endDate: endDate, seq: seq})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("出力ディレクトリの走査に失敗しました: %w", walkErr)
	}

	if manifestDirty {
		if err := m.saveManifest(manifest); err != nil {
			return nil, err
		}
	}

	return entries, nil
}

func (m *Materializer) loadManifest() (*archiveManifest, error) {
	manifest := &archiveManifest{Entries: make(map[string]int)}

	data, err := os.ReadFile(filepath.Join(m.outDir, manifestFile))
	if os.IsNotExist(err) {
		return manifest, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アーカイブマニフェストの読み取りに失敗しました: %w", err)
	}

	if err := json.Unmarshal(data, manifest); err != nil {
		return nil, fmt.Errorf("アーカイブマニフェストのパースに失敗しました: %w", err)
	}
	if manifest.Entries == nil {
		manifest.Entries = make(map[string]int)
	}
	return manifest, nil
}

func (m *Materializer) saveManifest(manifest *archiveManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("アーカイブマニフェストのエンコードに失敗しました: %w", err)
	}
	if _, err := writeIfChanged(filepath.Join(m.outDir, manifestFile), append(data, '\n')); err != nil {
		return fmt.Errorf("アーカイブマニフェストの保存に失敗しました: %w", err)
	}
	return nil
}

// renderIndex は月別・新しい順のアーカイブ索引HTMLを生成する。
// entriesは新しい順にソート済みであること。
func (m *Materializer) renderIndex(entries []archiveEntry) []byte {
	var b bytes.Buffer
	title := html.EscapeString(m.siteName) + " — Digest Archive"

	b.WriteString(`<!doctype html><html lang="en"><head><meta charset="utf-8">
<title>` + title + `</title>
<style>body{font-family:Arial,Helvetica,sans-serif;background:#f9fafb;color:#111827;padding:2rem;}</style>
</head><body><h1>` + title + `</h1>
`)

	currentMonth := ""
	for _, e := range entries {
		month := e.endDate.Format("2006-01")
		if month != currentMonth {
			if currentMonth != "" {
				b.WriteString("</ul>\n")
			}
			b.WriteString("<h2>" + e.endDate.Format("January 2006") + "</h2>\n<ul>\n")
			currentMonth = month
		}
		label := "Week ending " + e.endDate.Format(model.DateLayout)
		b.WriteString(`<li><a href="` + html.EscapeString(e.relPath) + `">` + label + "</a></li>\n")
	}
	if currentMonth != "" {
		b.WriteString("</ul>\n")
	}

	b.WriteString("</body></html>\n")
	return b.Bytes()
}

// writeIfChanged は既存内容と異なる場合のみアトミックに書き込む。
// 戻り値は実際に書き込んだかどうか。
func writeIfChanged(path string, content []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, content) {
		return false, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return false, err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return false, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return false, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return false, err
	}
	return true, nil
}
