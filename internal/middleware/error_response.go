package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/friendsplace/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 4xxはstatus=fail、5xxはstatus=errorとする。
type ErrorResponseBody struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
	// Detail は開発環境でのみ予期しないエラーの内容を返す。
	Detail string `json:"detail,omitempty"`
}

// StatusCode はAPIErrorのコードに対応するHTTPステータスを返す。
func StatusCode(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeRequestNotFound, model.ErrCodeNotFriends,
		model.ErrCodeAlreadyVerified, model.ErrCodeInvalidURL, model.ErrCodeSSRFBlocked:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeUserNotFound, model.ErrCodePostNotFound,
		model.ErrCodeCommentNotFound, model.ErrCodeReactNotFound:
		return http.StatusNotFound
	case model.ErrCodeAlreadyFriends, model.ErrCodeDuplicateField:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeErrorBody(w, statusCode, apiErr, "")
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// WriteError はサービス層のエラーをレスポンスに変換する。
// APIError以外はログに記録してINTERNAL_ERRORを返し、detailがtrueの場合のみ内容を含める。
func WriteError(w http.ResponseWriter, r *http.Request, err error, detail bool) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, StatusCode(apiErr), apiErr)
		return
	}

	slog.ErrorContext(r.Context(), "unexpected error",
		slog.String("method", r.Method),
		slog.String("path", routePath(r)),
		slog.String("error", err.Error()),
	)
	var msg string
	if detail {
		msg = err.Error()
	}
	writeErrorBody(w, http.StatusInternalServerError, model.NewInternalError(), msg)
}

func writeErrorBody(w http.ResponseWriter, statusCode int, apiErr *model.APIError, detail string) {
	status := "fail"
	if statusCode >= http.StatusInternalServerError {
		status = "error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Status:   status,
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Detail:   detail,
	})
}
