package model

import (
	"strings"
	"time"
)

// Subscriber は配信先の購読者を表す。
// Emailは小文字正規化された一意キー。LastSentは配信ステージのみが更新する。
type Subscriber struct {
	Email     string
	LastSent  *time.Time
	CreatedAt time.Time
}

// NormalizeEmail はメールアドレスを正規化する（前後空白除去と小文字化）。
// 購読者の一意性判定とトークン導出の双方で同じ正規化を使用すること。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail はメールアドレスの形式を簡易検証する。
// 厳密なRFC検証は行わず、明らかに不正な入力のみを弾く。
func IsValidEmail(email string) bool {
	email = NormalizeEmail(email)
	if email == "" {
		return false
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	if strings.Count(email, "@") != 1 {
		return false
	}
	return !strings.ContainsAny(email, " \t\r\n")
}
