// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ（購読者向けのため英語）
	Category string // カテゴリ: auth, validation, digest, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeSubscriberNotFound = "SUBSCRIBER_NOT_FOUND"
	ErrCodeFetchFailed        = "FETCH_FAILED"
	ErrCodeSummarizeFailed    = "SUMMARIZE_FAILED"
)

// NewInvalidEmailError はメールアドレス形式不正エラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "Invalid email address.",
		Category: "validation",
		Action:   "Enter a valid email address and try again.",
	}
}

// NewInvalidTokenError は購読解除トークン検証失敗エラーを生成する。
// メールアドレスとトークンのどちらが不正かは開示しない。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "Invalid or expired unsubscribe link.",
		Category: "auth",
		Action:   "Use the unsubscribe link from your most recent digest email.",
	}
}

// NewUnauthorizedError は管理クレデンシャル検証失敗エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Unauthorized.",
		Category: "auth",
		Action:   "Check the admin credential.",
	}
}

// NewSubscriberNotFoundError は購読者未登録エラーを生成する。
func NewSubscriberNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSubscriberNotFound,
		Message:  "Email address is not subscribed.",
		Category: "validation",
		Action:   "Check the email address.",
	}
}
