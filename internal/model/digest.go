package model

import "time"

// DigestDocument は一定期間の記事をまとめた配信用ドキュメントを表す。
// (月, 期間終了日)の組につき高々1つ存在し、同一入力での再生成は同一パスを上書きする。
type DigestDocument struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Content     string // 完成済みHTMLドキュメント
	ProducedAt  time.Time
	Path        string // OutDir配下の相対パス（<YYYY-MM>/weekly-<end>.html）
}

// PeriodLabel は件名やバナーに使用する期間表記を返す。
func (d *DigestDocument) PeriodLabel() string {
	return d.PeriodStart.Format(DateLayout) + " – " + d.PeriodEnd.Format(DateLayout)
}

// DeliveryOutcome は購読者1件に対する配信結果を表す。
// 一部の宛先が失敗しても残りの配信は継続される（部分失敗の隔離）。
type DeliveryOutcome struct {
	Email string
	Sent  bool
	Err   error
}
