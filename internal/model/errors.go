package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, social, dependency, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodePostNotFound       = "POST_NOT_FOUND"
	ErrCodeCommentNotFound    = "COMMENT_NOT_FOUND"
	ErrCodeReactNotFound      = "REACT_NOT_FOUND"
	ErrCodeAlreadyFriends     = "ALREADY_FRIENDS"
	ErrCodeRequestNotFound    = "REQUEST_NOT_FOUND"
	ErrCodeNotFriends         = "NOT_FRIENDS"
	ErrCodeDuplicateField     = "DUPLICATE_FIELD"
	ErrCodeAlreadyVerified    = "ALREADY_VERIFIED"
	ErrCodeEmailDelivery      = "EMAIL_DELIVERY_FAILED"
	ErrCodeUploadFailed       = "UPLOAD_FAILED"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。複数のメッセージは1つに連結する。
func NewValidationError(messages ...string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  strings.Join(messages, ". "),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUnauthorizedError は認証エラーを生成する。
// トークン不正・期限切れ・失効の区別はクライアントに返さない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証されていません。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワード不一致のエラーを生成する。
// どちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewInvalidTokenError はメール認証・パスワードリセット用トークンが無効な場合のエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "トークンが無効または期限切れです。",
		Category: "auth",
		Action:   "もう一度手続きをやり直してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "権限を持つアカウントで実行してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "social",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewPostNotFoundError は投稿が見つからない場合のエラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定された投稿が見つかりません: %s", postID),
		Category: "social",
		Action:   "投稿IDを確認してください。",
	}
}

// NewCommentNotFoundError はコメントが見つからない場合のエラーを生成する。
func NewCommentNotFoundError(commentID string) *APIError {
	return &APIError{
		Code:     ErrCodeCommentNotFound,
		Message:  fmt.Sprintf("指定されたコメントが見つかりません: %s", commentID),
		Category: "social",
		Action:   "コメントIDを確認してください。",
	}
}

// NewReactNotFoundError はリアクションが見つからない場合のエラーを生成する。
func NewReactNotFoundError(reactID string) *APIError {
	return &APIError{
		Code:     ErrCodeReactNotFound,
		Message:  fmt.Sprintf("指定されたリアクションが見つかりません: %s", reactID),
		Category: "social",
		Action:   "リアクションIDを確認してください。",
	}
}

// NewAlreadyFriendsError は既にフレンドである場合のエラーを生成する。
func NewAlreadyFriendsError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyFriends,
		Message:  "既にフレンドです。",
		Category: "social",
		Action:   "フレンド一覧を確認してください。",
	}
}

// NewRequestNotFoundError は対応するフレンドリクエストが存在しない場合のエラーを生成する。
func NewRequestNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeRequestNotFound,
		Message:  "このユーザーからのフレンドリクエストはありません。",
		Category: "social",
		Action:   "リクエスト一覧を確認してください。",
	}
}

// NewNotFriendsError はフレンドでないユーザーを解除しようとした場合のエラーを生成する。
func NewNotFriendsError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFriends,
		Message:  "このユーザーとはフレンドではありません。",
		Category: "social",
		Action:   "フレンド一覧を確認してください。",
	}
}

// NewDuplicateFieldError は一意制約に違反した場合のエラーを生成する。
func NewDuplicateFieldError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateField,
		Message:  fmt.Sprintf("この%sは既に使用されています。", field),
		Category: "validation",
		Action:   "別の値を指定してください。",
	}
}

// NewAlreadyVerifiedError はメール認証済みのアカウントを再認証しようとした場合のエラーを生成する。
func NewAlreadyVerifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyVerified,
		Message:  "このアカウントは既に有効化されています。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewEmailDeliveryError はメール送信失敗エラーを生成する。
func NewEmailDeliveryError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailDelivery,
		Message:  "メールの送信に失敗しました。",
		Category: "dependency",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUploadError は画像アップロード失敗エラーを生成する。
func NewUploadError() *APIError {
	return &APIError{
		Code:     ErrCodeUploadFailed,
		Message:  "画像のアップロードに失敗しました。",
		Category: "dependency",
		Action:   "画像形式を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLは使用できません。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエスト数が制限を超えました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
