package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/newsdigest/internal/model"
)

// ingestLockID は収集ジョブの直列化に使用するアドバイザリロックのキー。
// 2つの収集ジョブが同時に「URL未登録」を観測して二重追加することを防ぐ。
const ingestLockID = 0x6e657773 // "news"

// PostgresItemRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresItemRepo struct {
	db *sql.DB
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db *sql.DB) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

// AppendBatch は候補記事を1トランザクションで追記する。
// トランザクション内でアドバイザリロックを取得し、当日件数の確認と
// ON CONFLICT DO NOTHINGによるURL重複排除を行う。
// コミット前に失敗した場合、ストアは一切変更されない。
func (r *PostgresItemRepo) AppendBatch(ctx context.Context, items []*model.Item, day time.Time, maxItems int) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	// 収集ジョブ間の直列化（トランザクション終了時に自動解放）
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, ingestLockID); err != nil {
		return 0, fmt.Errorf("アドバイザリロックの取得に失敗しました: %w", err)
	}

	var todayCount int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE date = $1`,
		day.Format(model.DateLayout),
	).Scan(&todayCount)
	if err != nil {
		return 0, fmt.Errorf("当日件数の取得に失敗しました: %w", err)
	}

	added := 0
	for _, item := range items {
		// 当日の上限に達したら残りは破棄する
		if todayCount+added >= maxItems {
			break
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO items (id, date, title, url, snippet, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (url) DO NOTHING`,
			item.ID, item.Date.Format(model.DateLayout), item.Title,
			item.URL, item.Snippet, item.CreatedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("記事の追記に失敗しました: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("追記結果の取得に失敗しました: %w", err)
		}
		if affected > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return added, nil
}

// CountByDate は指定日の記事数を返す。
func (r *PostgresItemRepo) CountByDate(ctx context.Context, day time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE date = $1`,
		day.Format(model.DateLayout),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("当日件数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// ListByDateRange は収集日が[start, end]（両端含む）の記事を返す。
// 日付昇順、同一日付内は取り込み順（seq昇順）で安定ソートされる。
func (r *PostgresItemRepo) ListByDateRange(ctx context.Context, start, end time.Time) ([]*model.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, date, title, url, snippet, seq, created_at
		 FROM items
		 WHERE date >= $1 AND date <= $2
		 ORDER BY date ASC, seq ASC`,
		start.Format(model.DateLayout), end.Format(model.DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("期間内記事の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	items := []*model.Item{}
	for rows.Next() {
		item := &model.Item{}
		if err := rows.Scan(
			&item.ID, &item.Date, &item.Title, &item.URL,
			&item.Snippet, &item.Seq, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("記事行の読み取りに失敗しました: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("期間内記事の走査に失敗しました: %w", err)
	}

	return items, nil
}

// CountAll は記事ログの総件数を返す。
func (r *PostgresItemRepo) CountAll(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count); err != nil {
		return 0, fmt.Errorf("総件数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ ItemRepository = (*PostgresItemRepo)(nil)
