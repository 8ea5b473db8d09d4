package security

import (
	"strings"
	"testing"
)

func TestSanitize_StripsMarkup(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "今日はいい天気", "今日はいい天気"},
		{"タグは除去され中身は残る", "<b>太字</b>と<i>斜体</i>", "太字と斜体"},
		{"scriptは中身ごと除去", "hi<script>alert('x')</script>", "hi"},
		{"イベント属性付きのimgは除去", `<img src=x onerror="alert(1)">猫`, "猫"},
		{"前後の空白は削除", "   hello  ", "hello"},
		{"空文字列", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize_NoExecutableMarkupSurvives(t *testing.T) {
	sanitizer := NewTextSanitizer()

	payloads := []string{
		`<svg onload=alert(1)>`,
		`<a href="javascript:alert(1)">click</a>`,
		`<iframe src="https://evil.example"></iframe>`,
		`"><script>alert(document.cookie)</script>`,
	}
	for _, p := range payloads {
		got := sanitizer.Sanitize(p)
		for _, bad := range []string{"<script", "<svg", "<iframe", "javascript:", "<a "} {
			if strings.Contains(strings.ToLower(got), bad) {
				t.Errorf("Sanitize(%q) = %q, still contains %q", p, got, bad)
			}
		}
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()

	once := sanitizer.Sanitize("<p>行1</p><p>行2</p>")
	if twice := sanitizer.Sanitize(once); once != twice {
		t.Errorf("Sanitize is not idempotent: %q -> %q", once, twice)
	}
}
