// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限ロールを表す。
type Role string

const (
	// RoleUser は一般ユーザー。
	RoleUser Role = "user"
	// RoleAdmin は管理者。
	RoleAdmin Role = "admin"
)

// Gender はユーザーの性別を表す。
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Relationship の許容値。
const (
	RelationshipSingle         = "single"
	RelationshipInRelationship = "in a relationship"
	RelationshipMarried        = "married"
	RelationshipDivorced       = "divorced"
)

// User はサービス利用ユーザーを表す。
// Friends と Requests はグラフテーブルから読み出した派生ビューで、
// 書き込みは必ずソーシャルグラフ側の操作を通す。
type User struct {
	ID                string
	FirstName         string
	LastName          string
	Username          string
	Email             string
	PasswordHash      string
	PasswordChangedAt *time.Time
	EmailChangedAt    *time.Time
	Role              Role
	IsVerified        bool
	Gender            Gender
	BirthYear         int
	BirthMonth        int
	BirthDate         int
	Avatar            string
	CoverPhoto        string
	Details           Details
	Friends           []string
	Requests          []string
	SavedPosts        []SavedPost
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Details はプロフィール詳細を表す。jsonbカラムとして保存する。
type Details struct {
	Bio          string `json:"bio,omitempty"`
	Job          string `json:"job,omitempty"`
	Workplace    string `json:"workplace,omitempty"`
	HighSchool   string `json:"highSchool,omitempty"`
	College      string `json:"college,omitempty"`
	CurrentCity  string `json:"currentCity,omitempty"`
	HomeTown     string `json:"homeTown,omitempty"`
	Relationship string `json:"relationship,omitempty"`
	Instagram    string `json:"instagram,omitempty"`
	LinkedIn     string `json:"linkedin,omitempty"`
	Twitter      string `json:"twitter,omitempty"`
}

// SavedPost はユーザーが保存した投稿を表す。
type SavedPost struct {
	PostID  string
	SavedAt time.Time
}

// UserSummary はフレンド一覧などで返すプロフィール概要。
type UserSummary struct {
	ID        string
	FirstName string
	LastName  string
	Username  string
	Avatar    string
}

// HasRole はユーザーが指定ロールのいずれかを持つかを返す。
func (u *User) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// UserPatch はユーザーの部分更新内容を表す。nilのフィールドは変更しない。
type UserPatch struct {
	FirstName         *string
	LastName          *string
	Username          *string
	Email             *string
	PasswordHash      *string
	PasswordChangedAt *time.Time
	Role              *Role
	IsVerified        *bool
	Gender            *Gender
	BirthYear         *int
	BirthMonth        *int
	BirthDate         *int
	Avatar            *string
	CoverPhoto        *string
	Details           *Details
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (p UserPatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Username == nil &&
		p.Email == nil && p.PasswordHash == nil && p.PasswordChangedAt == nil &&
		p.Role == nil && p.IsVerified == nil && p.Gender == nil &&
		p.BirthYear == nil && p.BirthMonth == nil && p.BirthDate == nil &&
		p.Avatar == nil && p.CoverPhoto == nil && p.Details == nil
}
