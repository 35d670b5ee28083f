package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/newsdigest/internal/model"
)

// footerMarker は配信用フッターの重複挿入を防ぐための目印。
// 既にこの目印を含む本文には二度とフッターを挿入しない。
const footerMarker = "<!-- digest-unsubscribe-footer -->"

// TokenIssuer は購読解除トークン発行のインターフェース。
type TokenIssuer interface {
	Issue(email string) string
}

// LastSentUpdater は配信成功の記録のインターフェース。
type LastSentUpdater interface {
	UpdateLastSent(ctx context.Context, email string, sentAt time.Time) error
}

// DeliveryMetrics は配信結果のメトリクス記録のインターフェース。
type DeliveryMetrics interface {
	RecordDelivery(sent bool)
}

// noopDeliveryMetrics は計測を行わないDeliveryMetrics。
type noopDeliveryMetrics struct{}

func (noopDeliveryMetrics) RecordDelivery(bool) {}

// Service はダイジェストの購読者ごとの個別化と配信を行う。
// 1宛先の失敗は残りの宛先の配信を妨げない（部分失敗の隔離）。
// ステージ内での再試行は行わず、バッチ全体の再実行は外部のスケジューラに委ねる。
type Service struct {
	subscribers LastSentUpdater
	sender      MailSender
	tokens      TokenIssuer
	metrics     DeliveryMetrics
	logger      *slog.Logger
	baseURL     string
	siteName    string
	// now はテスト用に差し替え可能な現在時刻の取得関数。
	now func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// metricsにnilを渡すと計測は行われない。
func NewService(
	subscribers LastSentUpdater,
	sender MailSender,
	tokens TokenIssuer,
	metrics DeliveryMetrics,
	logger *slog.Logger,
	baseURL string,
	siteName string,
) *Service {
	if metrics == nil {
		metrics = noopDeliveryMetrics{}
	}
	return &Service{
		subscribers: subscribers,
		sender:      sender,
		tokens:      tokens,
		metrics:     metrics,
		logger:      logger,
		baseURL:     strings.TrimRight(baseURL, "/"),
		siteName:    siteName,
		now:         time.Now,
	}
}

// Deliver はドキュメントを全購読者に配信し、宛先ごとの結果を返す。
// 送信成功が確認できた購読者のみlast_sentを更新する。
func (s *Service) Deliver(ctx context.Context, doc *model.DigestDocument, subs []*model.Subscriber) []model.DeliveryOutcome {
	subject := fmt.Sprintf("%s — Weekly Summary (%s)", s.siteName, doc.PeriodLabel())
	safeBody := EmailSafeFragment(doc.Content)

	outcomes := make([]model.DeliveryOutcome, 0, len(subs))
	for _, sub := range subs {
		outcome := s.deliverOne(ctx, sub.Email, subject, safeBody)
		s.metrics.RecordDelivery(outcome.Sent)
		outcomes = append(outcomes, outcome)
	}

	sent := 0
	for _, o := range outcomes {
		if o.Sent {
			sent++
		}
	}
	s.logger.Info("ダイジェストの配信が完了しました",
		slog.String("period", doc.PeriodLabel()),
		slog.Int("subscribers", len(subs)),
		slog.Int("sent", sent),
		slog.Int("failed", len(subs)-sent),
	)

	return outcomes
}

// DeliverTest は指定アドレス1件に件名を変えて配信する。last_sentは更新しない。
func (s *Service) DeliverTest(ctx context.Context, doc *model.DigestDocument, email string) error {
	subject := fmt.Sprintf("[Test] %s — Weekly Summary (%s)", s.siteName, doc.PeriodLabel())
	body := s.personalize(EmailSafeFragment(doc.Content), email)

	if err := s.sender.Send(email, subject, body); err != nil {
		return fmt.Errorf("テスト配信に失敗しました: %w", err)
	}
	return nil
}

// deliverOne は1購読者への個別化と送信を行う。
func (s *Service) deliverOne(ctx context.Context, email, subject, safeBody string) model.DeliveryOutcome {
	body := s.personalize(safeBody, email)

	if err := s.sender.Send(email, subject, body); err != nil {
		s.logger.Error("購読者への送信に失敗しました",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return model.DeliveryOutcome{Email: email, Sent: false, Err: err}
	}

	if err := s.subscribers.UpdateLastSent(ctx, email, s.now()); err != nil {
		// 送信自体は成功している。記録の失敗は結果を覆さずログに残す。
		s.logger.Error("last_sentの更新に失敗しました",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
	}

	return model.DeliveryOutcome{Email: email, Sent: true}
}

// personalize は本文を購読解除フッター付きのメールテンプレートで包む。
// 既に個別化済みの本文（目印を含む）はそのまま返す（冪等）。
func (s *Service) personalize(body, email string) string {
	if strings.Contains(body, footerMarker) {
		return body
	}

	unsubscribe := s.unsubscribeURL(email)

	var b strings.Builder
	b.WriteString("<html><body style='font-family:Arial;background:#fff;'>\n")
	b.WriteString("<table align='center' width='90%' style='max-width:900px;border:1px solid #e5e7eb;padding:20px;'>\n")
	b.WriteString("<tr><td><h2>" + s.siteName + " Weekly Summary</h2>\n")
	b.WriteString(body)
	b.WriteString("\n<hr>" + footerMarker + "\n")
	b.WriteString("<p style='font-size:12px;color:#6b7280;text-align:center'>\n")
	b.WriteString("You're receiving this because you subscribed.<br>\n")
	b.WriteString("<a href='" + unsubscribe + "' style='color:#2563eb;'>Unsubscribe</a></p>\n")
	b.WriteString("</td></tr></table></body></html>")
	return b.String()
}

// unsubscribeURL はトークン付きの購読解除リンクを組み立てる。
func (s *Service) unsubscribeURL(email string) string {
	token := s.tokens.Issue(email)
	return fmt.Sprintf("%s/unsubscribe?email=%s&token=%s", s.baseURL, url.QueryEscape(email), token)
}
