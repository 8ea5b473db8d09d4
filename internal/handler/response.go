// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/friendsplace/internal/middleware"
	"github.com/hitoshi/friendsplace/internal/model"
)

// maxJSONBody はJSONリクエストボディの上限バイト数。
const maxJSONBody = 1 << 20

// successEnvelope は成功レスポンスの共通フォーマット。
type successEnvelope struct {
	Status  string `json:"status"`
	Results *int   `json:"results,omitempty"`
	Data    any    `json:"data"`
}

// responder はエラー応答の方針を保持する。各ハンドラーに埋め込む。
type responder struct {
	// detail がtrueの場合、予期しないエラーの内容をレスポンスに含める
	detail bool
}

func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	middleware.WriteError(w, r, err, rs.detail)
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(successEnvelope{Status: "success", Data: data})
}

func writeList(w http.ResponseWriter, n int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(successEnvelope{Status: "success", Results: &n, Data: data})
}

// decodeJSON はリクエストボディをvにデコードする。未知のフィールドはエラーとする。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return model.NewValidationError("リクエストボディが空です")
		}
		return model.NewValidationError("リクエストボディの形式が正しくありません")
	}
	return nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// readFormFile はmultipartフォームのファイルを読み込む。ファイルがなければnilを返す。
func readFormFile(r *http.Request, field string, limit int64) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewValidationError("画像ファイルを読み込めませんでした")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, model.NewValidationError("画像ファイルを読み込めませんでした")
	}
	return data, nil
}

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID         string              `json:"id"`
	FirstName  string              `json:"firstName"`
	LastName   string              `json:"lastName"`
	Username   string              `json:"username"`
	Email      string              `json:"email"`
	Role       model.Role          `json:"role"`
	IsVerified bool                `json:"isVerified"`
	Gender     model.Gender        `json:"gender"`
	BirthYear  int                 `json:"birthYear"`
	BirthMonth int                 `json:"birthMonth"`
	BirthDate  int                 `json:"birthDate"`
	Avatar     string              `json:"avatar,omitempty"`
	CoverPhoto string              `json:"coverPhoto,omitempty"`
	Details    model.Details       `json:"details"`
	Friends    []string            `json:"friends"`
	Requests   []string            `json:"requests"`
	SavedPosts []savedPostResponse `json:"savedPosts"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

type savedPostResponse struct {
	PostID  string    `json:"post"`
	SavedAt time.Time `json:"savedAt"`
}

func toUserResponse(u *model.User) userResponse {
	saved := make([]savedPostResponse, 0, len(u.SavedPosts))
	for _, sp := range u.SavedPosts {
		saved = append(saved, savedPostResponse{PostID: sp.PostID, SavedAt: sp.SavedAt})
	}
	return userResponse{
		ID:         u.ID,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Username:   u.Username,
		Email:      u.Email,
		Role:       u.Role,
		IsVerified: u.IsVerified,
		Gender:     u.Gender,
		BirthYear:  u.BirthYear,
		BirthMonth: u.BirthMonth,
		BirthDate:  u.BirthDate,
		Avatar:     u.Avatar,
		CoverPhoto: u.CoverPhoto,
		Details:    u.Details,
		Friends:    nonNil(u.Friends),
		Requests:   nonNil(u.Requests),
		SavedPosts: saved,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

type summaryResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar,omitempty"`
}

func toSummaries(in []*model.UserSummary) []summaryResponse {
	out := make([]summaryResponse, 0, len(in))
	for _, s := range in {
		out = append(out, summaryResponse{
			ID:        s.ID,
			FirstName: s.FirstName,
			LastName:  s.LastName,
			Username:  s.Username,
			Avatar:    s.Avatar,
		})
	}
	return out
}

type postResponse struct {
	ID         string    `json:"id"`
	User       string    `json:"user"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	Background string    `json:"background,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toPostResponse(p *model.Post) postResponse {
	return postResponse{
		ID:         p.ID,
		User:       p.UserID,
		Text:       p.Text,
		Image:      p.Image,
		Background: p.Background,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

type commentResponse struct {
	ID        string    `json:"id"`
	Post      string    `json:"post"`
	User      string    `json:"user"`
	Comment   string    `json:"comment,omitempty"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toCommentResponses(in []*model.Comment) []commentResponse {
	out := make([]commentResponse, 0, len(in))
	for _, c := range in {
		out = append(out, toCommentResponse(c))
	}
	return out
}

func toCommentResponse(c *model.Comment) commentResponse {
	return commentResponse{
		ID:        c.ID,
		Post:      c.PostID,
		User:      c.UserID,
		Comment:   c.Comment,
		Image:     c.Image,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type reactResponse struct {
	ID        string          `json:"id"`
	Post      string          `json:"post"`
	User      string          `json:"user"`
	React     model.ReactType `json:"react"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func toReactResponses(in []*model.React) []reactResponse {
	out := make([]reactResponse, 0, len(in))
	for _, rc := range in {
		out = append(out, toReactResponse(rc))
	}
	return out
}

func toReactResponse(rc *model.React) reactResponse {
	return reactResponse{
		ID:        rc.ID,
		Post:      rc.PostID,
		User:      rc.UserID,
		React:     rc.React,
		CreatedAt: rc.CreatedAt,
		UpdatedAt: rc.UpdatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// currentUser はセッションミドルウェアが注入したユーザーを返す。
func currentUser(r *http.Request) (*model.User, error) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		return nil, model.NewUnauthorizedError()
	}
	return u, nil
}
