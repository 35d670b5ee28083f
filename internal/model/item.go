// Package model はドメインモデルを定義する。
package model

import "time"

// DateLayout は収集日・期間境界の表現に使用する日付フォーマット。
const DateLayout = "2006-01-02"

// Item はフィードから収集した記事を表す。
// URLがストア全体で一意のキーとなり、一度登録された記事は不変（追記専用ログ）。
type Item struct {
	ID        string
	Date      time.Time // レポートタイムゾーンにおける収集日（時刻成分なし）
	Title     string
	URL       string
	Snippet   string // タグ除去・空白正規化済みテキスト
	Seq       int64  // 取り込み順序。同一日付内の安定ソートに使用する
	CreatedAt time.Time
}

// ParsedEntry はフィードパーサーから取得した未保存の記事候補を表す。
// 関連度フィルタと重複判定を通過したものだけがItemとして保存される。
type ParsedEntry struct {
	Title       string
	Link        string
	Summary     string // 未サニタイズのHTML
	PublishedAt *time.Time
}

// DateString はItemの収集日をYYYY-MM-DD形式で返す。
func (i *Item) DateString() string {
	return i.Date.Format(DateLayout)
}
