package model

import "time"

// MaxPostTextLength は投稿本文の最大文字数。
const MaxPostTextLength = 3000

// Post はユーザーの投稿を表す。UserIDは作成後に変更しない。
type Post struct {
	ID         string
	UserID     string
	Text       string
	Image      string
	Background string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Comment は投稿へのコメントを表す。
type Comment struct {
	ID        string
	PostID    string
	UserID    string
	Comment   string
	Image     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReactType はリアクションの種類を表す。
type ReactType string

const (
	ReactLike  ReactType = "like"
	ReactLove  ReactType = "love"
	ReactHaha  ReactType = "haha"
	ReactSad   ReactType = "sad"
	ReactAngry ReactType = "angry"
	ReactWow   ReactType = "wow"
)

// Valid は許容されたリアクション種別かを返す。
func (t ReactType) Valid() bool {
	switch t {
	case ReactLike, ReactLove, ReactHaha, ReactSad, ReactAngry, ReactWow:
		return true
	}
	return false
}

// React は(投稿, ユーザー)ごとに最大1件のリアクションを表す。
type React struct {
	ID        string
	PostID    string
	UserID    string
	React     ReactType
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReactOutcome はリアクション操作の結果を表す。
type ReactOutcome string

const (
	ReactCreated ReactOutcome = "created"
	ReactUpdated ReactOutcome = "updated"
	ReactRemoved ReactOutcome = "removed"
)

// FriendOutcome はフレンド操作の結果を表す。
type FriendOutcome string

const (
	FriendRequestSent      FriendOutcome = "sent"
	FriendRequestCancelled FriendOutcome = "cancelled"
	FriendRequestAccepted  FriendOutcome = "accepted"
	FriendRequestRejected  FriendOutcome = "rejected"
	FriendRemoved          FriendOutcome = "removed"
)
