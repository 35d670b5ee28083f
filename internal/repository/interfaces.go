// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/newsdigest/internal/model"
)

// ItemRepository は記事ログの永続化インターフェース。
// 記事は追記専用であり、更新・削除の操作は提供しない。
// URLの一意性はストア側で保証される。
type ItemRepository interface {
	// AppendBatch は候補記事を1トランザクションで追記する。
	// ストア全体でURLが既出の記事はスキップし、day当日の記事数が
	// maxItemsに達した時点で残りを破棄する。戻り値は実際に追加された件数。
	// 同時実行される収集ジョブはアドバイザリロックで直列化され、
	// 2つのジョブが同一URLを二重に追加することはない。
	AppendBatch(ctx context.Context, items []*model.Item, day time.Time, maxItems int) (int, error)

	// CountByDate は指定日の記事数を返す。
	CountByDate(ctx context.Context, day time.Time) (int, error)

	// ListByDateRange は収集日が[start, end]（両端含む）の記事を
	// 日付昇順・取り込み順で返す。該当がない場合は空スライスを返す。
	ListByDateRange(ctx context.Context, start, end time.Time) ([]*model.Item, error)

	// CountAll は記事ログの総件数を返す。
	CountAll(ctx context.Context) (int, error)
}

// SubscriberRepository は購読者データの永続化インターフェース。
// メールアドレスは正規化済み（小文字）で渡されることを前提とする。
type SubscriberRepository interface {
	// Find は指定メールアドレスの購読者を取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, email string) (*model.Subscriber, error)

	// Add は購読者を追加する。既に登録済みの場合は何もせずfalseを返す（冪等）。
	Add(ctx context.Context, email string) (bool, error)

	// Remove は購読者を削除する。未登録の場合は何もせずfalseを返す。
	Remove(ctx context.Context, email string) (bool, error)

	// List は全購読者をメールアドレス昇順で返す。
	List(ctx context.Context) ([]*model.Subscriber, error)

	// UpdateLastSent は配信成功後にlast_sentを更新する。
	// 配信ステージ以外から呼び出してはならない。
	UpdateLastSent(ctx context.Context, email string, sentAt time.Time) error
}
