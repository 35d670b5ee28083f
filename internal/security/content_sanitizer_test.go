package security

import (
	"strings"
	"testing"
)

// TestSanitizeFragment_AllowedTags は許可タグが保持されることをテストする。
func TestSanitizeFragment_AllowedTags(t *testing.T) {
	s := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "見出しと段落",
			input: "<h2>Theme</h2><p>body</p>",
			want:  "<h2>Theme</h2><p>body</p>",
		},
		{
			name:  "箇条書き",
			input: "<ul><li>one</li><li>two</li></ul>",
			want:  "<ul><li>one</li><li>two</li></ul>",
		},
		{
			name:  "強調",
			input: "<p><strong>bold</strong> and <em>italic</em></p>",
			want:  "<p><strong>bold</strong> and <em>italic</em></p>",
		},
		{
			name:  "区切り線",
			input: "<p>a</p><hr><p>b</p>",
			want:  "<p>a</p><hr><p>b</p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.SanitizeFragment(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeFragment(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitizeFragment_RemovesDangerousContent は危険なタグ・属性が除去されることをテストする。
func TestSanitizeFragment_RemovesDangerousContent(t *testing.T) {
	s := NewContentSanitizer()

	tests := []struct {
		name       string
		input      string
		mustAbsent []string
	}{
		{
			name:       "scriptタグ",
			input:      `<p>ok</p><script>alert(1)</script>`,
			mustAbsent: []string{"<script", "alert"},
		},
		{
			name:       "styleタグ",
			input:      `<style>body{display:none}</style><p>ok</p>`,
			mustAbsent: []string{"<style", "display:none"},
		},
		{
			name:       "iframeタグ",
			input:      `<iframe src="https://evil.example"></iframe><p>ok</p>`,
			mustAbsent: []string{"<iframe"},
		},
		{
			name:       "formタグ",
			input:      `<form action="/x"><button>Print</button></form><p>ok</p>`,
			mustAbsent: []string{"<form", "<button"},
		},
		{
			name:       "on*イベント属性",
			input:      `<p onclick="alert(1)">ok</p>`,
			mustAbsent: []string{"onclick"},
		},
		{
			name:       "javascriptスキームのリンク",
			input:      `<a href="javascript:alert(1)">x</a>`,
			mustAbsent: []string{"javascript:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.SanitizeFragment(tt.input)
			for _, bad := range tt.mustAbsent {
				if strings.Contains(got, bad) {
					t.Errorf("サニタイズ結果に %q が残っています: %q", bad, got)
				}
			}
			if !strings.Contains(got, "ok") && strings.Contains(tt.input, ">ok<") {
				t.Errorf("安全なコンテンツまで除去されています: %q", got)
			}
		})
	}
}

// TestSanitizeFragment_LinkAttributes はリンクにtarget/relが付与されることをテストする。
func TestSanitizeFragment_LinkAttributes(t *testing.T) {
	s := NewContentSanitizer()

	got := s.SanitizeFragment(`<a href="https://example.com/article">Source</a>`)

	if !strings.Contains(got, `href="https://example.com/article"`) {
		t.Errorf("hrefが保持されていません: %q", got)
	}
	if !strings.Contains(got, `target="_blank"`) {
		t.Errorf("target=_blankが付与されていません: %q", got)
	}
	if !strings.Contains(got, "noopener") || !strings.Contains(got, "noreferrer") {
		t.Errorf("rel属性が付与されていません: %q", got)
	}
}

// TestSanitizeFragment_Idempotent は同一入力に対し常に同一出力となることをテストする。
func TestSanitizeFragment_Idempotent(t *testing.T) {
	s := NewContentSanitizer()

	input := `<h2>News</h2><ul><li>a <a href="https://example.com">Source</a></li></ul><script>x</script>`
	first := s.SanitizeFragment(input)
	second := s.SanitizeFragment(first)

	if first != second {
		t.Errorf("サニタイズが冪等ではありません:\nfirst:  %q\nsecond: %q", first, second)
	}
}

// TestStripToText はタグ除去と空白正規化をテストする。
func TestStripToText(t *testing.T) {
	s := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "タグ除去",
			input: "<p>Hospital <b>AI</b> rollout</p>",
			want:  "Hospital AI rollout",
		},
		{
			name:  "連続空白の正規化",
			input: "line one\n\n\tline   two",
			want:  "line one line two",
		},
		{
			name:  "前後空白の除去",
			input: "  <div> padded </div>  ",
			want:  "padded",
		},
		{
			name:  "空入力",
			input: "",
			want:  "",
		},
		{
			name:  "タグのみ",
			input: "<br><hr>",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.StripToText(tt.input)
			if got != tt.want {
				t.Errorf("StripToText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
