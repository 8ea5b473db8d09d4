package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/friendsplace/internal/model"
)

func TestReactHandler_React_StatusByOutcome(t *testing.T) {
	tests := []struct {
		outcome    model.ReactOutcome
		wantStatus int
	}{
		{model.ReactCreated, http.StatusCreated},
		{model.ReactUpdated, http.StatusOK},
		{model.ReactRemoved, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			svc := &mockReactService{
				reactFn: func(ctx context.Context, postID, userID string, value model.ReactType) (model.ReactOutcome, error) {
					if postID != "p1" || userID != "alice" || value != model.ReactHaha {
						t.Errorf("args = %q/%q/%q", postID, userID, value)
					}
					return tt.outcome, nil
				},
			}
			h := NewReactHandler(svc, false)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/posts/p1/reacts", strings.NewReader(`{"react":"haha"}`))
			req = withUser(withChiURLParam(req, "postId", "p1"), alice)
			w := httptest.NewRecorder()
			h.React(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusNoContent && w.Body.Len() != 0 {
				t.Errorf("body = %q, want empty", w.Body.String())
			}
		})
	}
}

func TestReactHandler_React_InvalidValue(t *testing.T) {
	svc := &mockReactService{
		reactFn: func(ctx context.Context, postID, userID string, value model.ReactType) (model.ReactOutcome, error) {
			return "", model.NewValidationError("リアクションの種類が不正です: " + string(value))
		},
	}
	h := NewReactHandler(svc, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts/p1/reacts", strings.NewReader(`{"react":"meh"}`))
	req = withUser(withChiURLParam(req, "postId", "p1"), alice)
	w := httptest.NewRecorder()
	h.React(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestReactHandler_AdminCreate_DefaultsUserToRequester(t *testing.T) {
	svc := &mockReactService{
		createFn: func(ctx context.Context, postID, userID string, value model.ReactType) (*model.React, error) {
			if userID != "admin" {
				t.Errorf("userID = %q, want admin", userID)
			}
			return &model.React{ID: "r1", PostID: postID, UserID: userID, React: value}, nil
		},
	}
	h := NewReactHandler(svc, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reacts", strings.NewReader(`{"post":"p1","react":"like"}`))
	req = withUser(req, admin)
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
}

func TestReactHandler_AdminCreate_Duplicate(t *testing.T) {
	svc := &mockReactService{
		createFn: func(context.Context, string, string, model.ReactType) (*model.React, error) {
			return nil, model.NewDuplicateFieldError("リアクション")
		},
	}
	h := NewReactHandler(svc, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reacts", strings.NewReader(`{"post":"p1","user":"bob","react":"like"}`))
	req = withUser(req, admin)
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestReactHandler_Get_NotFound(t *testing.T) {
	h := NewReactHandler(&mockReactService{}, false)

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/reacts/r404", nil), "id", "r404")
	w := httptest.NewRecorder()
	h.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if body := parseAPIErrorResponse(t, w); body["code"] != model.ErrCodeReactNotFound {
		t.Errorf("code = %q", body["code"])
	}
}
