// Package token は購読解除リンクの検証可能トークンを提供する。
//
// トークンはHMAC-SHA256(secret, 正規化済みemail)の16進表現として決定的に導出され、
// どこにも保存されない。購読者ごとの秘密情報を持たないため、ストレージを失っても
// email + secretから再生成できる。secretのローテーションにより、発行済みの
// 全リンクが一括で無効化される（これが唯一の失効手段）。
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/hitoshi/newsdigest/internal/model"
)

// Service は購読解除トークンの発行と検証を行う。
type Service struct {
	secret []byte
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

// Issue はメールアドレスに対応するトークンを導出する。
// 決定的な一方向関数であり、副作用を持たない。
// secretが変わらない限り、同一のメールアドレスには常に同一のトークンが対応する。
func (s *Service) Issue(email string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(model.NormalizeEmail(email)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify はトークンがメールアドレスに対して有効かを検証する。
// Issueを再計算し定数時間比較する。不正な形式の入力はエラーにならず、
// 単に検証失敗としてfalseを返す。
func (s *Service) Verify(email, token string) bool {
	expected := s.Issue(email)
	return hmac.Equal([]byte(expected), []byte(token))
}
