// Package subscription は購読者ライフサイクルのドメインロジックを提供する。
package subscription

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/newsdigest/internal/model"
	"github.com/hitoshi/newsdigest/internal/repository"
)

// TokenVerifier は購読解除トークン検証のインターフェース。
type TokenVerifier interface {
	Verify(email, token string) bool
}

// Service は購読登録・解除・管理操作のビジネスロジックを提供する。
// 購読者ストアへの変更はすべてこのサービスを経由する。
type Service struct {
	subRepo repository.SubscriberRepository
	tokens  TokenVerifier
	logger  *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(subRepo repository.SubscriberRepository, tokens TokenVerifier, logger *slog.Logger) *Service {
	return &Service{
		subRepo: subRepo,
		tokens:  tokens,
		logger:  logger,
	}
}

// Subscribe は購読者を登録する。登録済みの場合は何もしない（冪等）。
// 戻り値は新規登録されたかどうか。
func (s *Service) Subscribe(ctx context.Context, email string) (bool, error) {
	if !model.IsValidEmail(email) {
		return false, model.NewInvalidEmailError()
	}
	normalized := model.NormalizeEmail(email)

	added, err := s.subRepo.Add(ctx, normalized)
	if err != nil {
		return false, fmt.Errorf("購読者の登録に失敗しました: %w", err)
	}

	if added {
		s.logger.Info("購読者を登録しました", slog.String("email", normalized))
	}
	return added, nil
}

// Unsubscribe はトークン検証済みの購読解除を行う。
// トークンが不正な場合、どの検証段階で失敗したかは開示しない。
func (s *Service) Unsubscribe(ctx context.Context, email, token string) error {
	if !model.IsValidEmail(email) {
		return model.NewInvalidEmailError()
	}
	normalized := model.NormalizeEmail(email)

	if !s.tokens.Verify(normalized, token) {
		s.logger.Warn("購読解除トークンの検証に失敗しました", slog.String("email", normalized))
		return model.NewInvalidTokenError()
	}

	removed, err := s.subRepo.Remove(ctx, normalized)
	if err != nil {
		return fmt.Errorf("購読者の削除に失敗しました: %w", err)
	}
	if !removed {
		return model.NewSubscriberNotFoundError()
	}

	s.logger.Info("購読を解除しました", slog.String("email", normalized))
	return nil
}

// List は全購読者をメールアドレス昇順で返す。
func (s *Service) List(ctx context.Context) ([]*model.Subscriber, error) {
	subs, err := s.subRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("購読者一覧の取得に失敗しました: %w", err)
	}
	return subs, nil
}

// Remove は管理操作として購読者を削除する。トークン検証は行わない。
// 戻り値は実際に削除されたかどうか。
func (s *Service) Remove(ctx context.Context, email string) (bool, error) {
	if !model.IsValidEmail(email) {
		return false, model.NewInvalidEmailError()
	}
	normalized := model.NormalizeEmail(email)

	removed, err := s.subRepo.Remove(ctx, normalized)
	if err != nil {
		return false, fmt.Errorf("購読者の削除に失敗しました: %w", err)
	}
	if removed {
		s.logger.Info("購読者を削除しました", slog.String("email", normalized))
	}
	return removed, nil
}

// EnsureDefaults はストアが空の場合にデフォルト購読者を登録する。
// 既に1件でも登録がある場合は何もしない。戻り値は登録した件数。
func (s *Service) EnsureDefaults(ctx context.Context, emails []string) (int, error) {
	existing, err := s.subRepo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("購読者一覧の取得に失敗しました: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	seeded := 0
	for _, email := range emails {
		if !model.IsValidEmail(email) {
			s.logger.Warn("不正なデフォルト購読者をスキップします", slog.String("email", email))
			continue
		}
		added, err := s.subRepo.Add(ctx, model.NormalizeEmail(email))
		if err != nil {
			return seeded, fmt.Errorf("デフォルト購読者の登録に失敗しました: %w", err)
		}
		if added {
			seeded++
		}
	}

	if seeded > 0 {
		s.logger.Info("デフォルト購読者を登録しました", slog.Int("count", seeded))
	}
	return seeded, nil
}
