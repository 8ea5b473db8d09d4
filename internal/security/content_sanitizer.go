package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は投稿・コメント本文からHTMLを除去するインターフェース。
type TextSanitizer interface {
	// Sanitize は全てのタグを取り除き、前後の空白を削除したテキストを返す。
	// 空文字列の入力には空文字列を返す。
	Sanitize(raw string) string
}

// textSanitizer はbluemondayのStrictPolicyを使うTextSanitizer実装。
// Policyは生成後は読み取り専用のため、並行利用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
