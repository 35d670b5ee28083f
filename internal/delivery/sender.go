// Package delivery はダイジェストの購読者へのメール配信を提供する。
package delivery

import (
	"fmt"
	"net/smtp"
	"strings"
)

// MailSender はメール送信のインターフェース。失敗は宛先単位で扱う。
type MailSender interface {
	Send(to, subject, htmlBody string) error
}

// SMTPSender は認証付きSMTPでHTMLメールを送信するMailSender実装。
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
}

var _ MailSender = (*SMTPSender)(nil)

// NewSMTPSender はSMTPSenderの新しいインスタンスを生成する。
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// Send はHTMLメールを1宛先に送信する。
// サーバーがSTARTTLSを提供する場合、smtp.SendMailが自動的に使用する。
func (s *SMTPSender) Send(to, subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	auth := smtp.PlainAuth("", s.username, s.password, s.host)

	msg := buildMessage(s.from, to, subject, htmlBody)

	if err := smtp.SendMail(addr, auth, s.from, []string{to}, msg); err != nil {
		return fmt.Errorf("メール送信に失敗しました: %w", err)
	}
	return nil
}

// buildMessage はヘッダー付きのMIMEメッセージを組み立てる。
func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")
	return []byte(b.String())
}
