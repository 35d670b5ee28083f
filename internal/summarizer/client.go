// Package summarizer はOpenAI Responses APIによる記事要約機能を提供する。
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// defaultEndpoint はOpenAI Responses APIのエンドポイント。
const defaultEndpoint = "https://api.openai.com/v1/responses"

// LatencyRecorder は要約API呼び出しのレイテンシ記録のインターフェース。
type LatencyRecorder interface {
	RecordSummarizerLatency(duration time.Duration)
}

// noopLatencyRecorder は計測を行わないLatencyRecorder。
type noopLatencyRecorder struct{}

func (noopLatencyRecorder) RecordSummarizerLatency(time.Duration) {}

// Client はOpenAI Responses APIのクライアント。
// 役割付きのプロンプト（system + user）を送信し、生成されたテキストを返す。
type Client struct {
	httpClient      *http.Client
	logger          *slog.Logger
	metrics         LatencyRecorder
	endpoint        string // テスト用にエンドポイントを差し替え可能
	apiKey          string
	model           string
	maxOutputTokens int
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLが空の場合はOpenAIの公式エンドポイントを使用する。
// metricsにnilを渡すと計測は行われない。
func NewClient(
	httpClient *http.Client,
	logger *slog.Logger,
	metrics LatencyRecorder,
	baseURL string,
	apiKey string,
	model string,
	maxOutputTokens int,
) *Client {
	if metrics == nil {
		metrics = noopLatencyRecorder{}
	}
	endpoint := defaultEndpoint
	if baseURL != "" {
		endpoint = strings.TrimRight(baseURL, "/") + "/responses"
	}
	return &Client{
		httpClient:      httpClient,
		logger:          logger,
		metrics:         metrics,
		endpoint:        endpoint,
		apiKey:          apiKey,
		model:           model,
		maxOutputTokens: maxOutputTokens,
	}
}

// request はResponses APIのリクエストボディ。
type request struct {
	Model           string    `json:"model"`
	Input           []message `json:"input"`
	MaxOutputTokens int       `json:"max_output_tokens,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// response はResponses APIのレスポンスボディ。
// outputの各要素のうちtype=messageのcontentからoutput_textを抽出する。
type response struct {
	Output []outputItem `json:"output"`
	Error  *apiError    `json:"error"`
}

type outputItem struct {
	Type    string          `json:"type"`
	Content []outputContent `json:"content"`
}

type outputContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Summarize はsystem/userの2ロールでプロンプトを送信し、生成テキストを返す。
// モデルがコードフェンスで囲った出力を返した場合はフェンスを除去する。
func (c *Client) Summarize(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := request{
		Model: c.model,
		Input: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxOutputTokens: c.maxOutputTokens,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("要約APIの呼び出しに失敗しました",
			slog.String("model", c.model),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("要約APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.RecordSummarizerLatency(time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("要約APIがエラーステータスを返しました",
			slog.String("model", c.model),
			slog.Int("http_status", resp.StatusCode),
		)
		return "", fmt.Errorf("要約APIがステータス %d を返しました", resp.StatusCode)
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("要約APIがエラーを返しました: %s", parsed.Error.Message)
	}

	text := extractOutputText(parsed)
	if text == "" {
		return "", fmt.Errorf("要約APIのレスポンスに出力テキストが含まれていません")
	}

	return StripCodeFence(text), nil
}

// extractOutputText はtype=messageの出力からoutput_textを連結して返す。
func extractOutputText(resp response) string {
	var b strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, content := range item.Content {
			if content.Type == "output_text" {
				b.WriteString(content.Text)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// StripCodeFence は出力全体を囲うMarkdownコードフェンスを除去する。
// フェンスで囲われていない場合は入力をそのまま返す。
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}

	// 先頭行は ``` または ```html のような言語指定付きフェンス
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
