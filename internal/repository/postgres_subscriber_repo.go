package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/newsdigest/internal/model"
)

// PostgresSubscriberRepo はPostgreSQLを使用した購読者リポジトリ。
type PostgresSubscriberRepo struct {
	db *sql.DB
}

// NewPostgresSubscriberRepo はPostgresSubscriberRepoを生成する。
func NewPostgresSubscriberRepo(db *sql.DB) *PostgresSubscriberRepo {
	return &PostgresSubscriberRepo{db: db}
}

// Find は指定メールアドレスの購読者を取得する。見つからない場合はnilを返す。
func (r *PostgresSubscriberRepo) Find(ctx context.Context, email string) (*model.Subscriber, error) {
	sub := &model.Subscriber{}
	var lastSent sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT email, last_sent, created_at FROM subscribers WHERE email = $1`,
		email,
	).Scan(&sub.Email, &lastSent, &sub.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("購読者の取得に失敗しました: %w", err)
	}

	if lastSent.Valid {
		sub.LastSent = &lastSent.Time
	}

	return sub, nil
}

// Add は購読者を追加する。既に登録済みの場合は何もせずfalseを返す（冪等）。
func (r *PostgresSubscriberRepo) Add(ctx context.Context, email string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO subscribers (email, created_at) VALUES ($1, now())
		 ON CONFLICT (email) DO NOTHING`,
		email,
	)
	if err != nil {
		return false, fmt.Errorf("購読者の追加に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("追加結果の取得に失敗しました: %w", err)
	}
	return affected > 0, nil
}

// Remove は購読者を削除する。未登録の場合は何もせずfalseを返す。
func (r *PostgresSubscriberRepo) Remove(ctx context.Context, email string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM subscribers WHERE email = $1`,
		email,
	)
	if err != nil {
		return false, fmt.Errorf("購読者の削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return affected > 0, nil
}

// List は全購読者をメールアドレス昇順で返す。
func (r *PostgresSubscriberRepo) List(ctx context.Context) ([]*model.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT email, last_sent, created_at FROM subscribers ORDER BY email ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("購読者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	subs := []*model.Subscriber{}
	for rows.Next() {
		sub := &model.Subscriber{}
		var lastSent sql.NullTime
		if err := rows.Scan(&sub.Email, &lastSent, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("購読者行の読み取りに失敗しました: %w", err)
		}
		if lastSent.Valid {
			sub.LastSent = &lastSent.Time
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購読者一覧の走査に失敗しました: %w", err)
	}

	return subs, nil
}

// UpdateLastSent は配信成功後にlast_sentを更新する。
func (r *PostgresSubscriberRepo) UpdateLastSent(ctx context.Context, email string, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE subscribers SET last_sent = $2 WHERE email = $1`,
		email, sentAt,
	)
	if err != nil {
		return fmt.Errorf("last_sentの更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SubscriberRepository = (*PostgresSubscriberRepo)(nil)
