// Package model はドメインモデルを定義する。
package model

import "encoding/json"

// RoleAdmin は管理画面へのアクセスを許可するロール名。
const RoleAdmin = "admin"

// Credentials はサインイン用の資格情報を表す。
// リクエストペイロードとしてのみ使用し、保存しない。
// パスワードの妥当性はバックエンドが判定する。
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignUpRequest は会員登録リクエストのペイロード。
type SignUpRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// ProfileUpdate はプロフィール更新リクエストのペイロード。
type ProfileUpdate struct {
	Name  string `json:"name,omitempty" validate:"omitempty,max=100"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

// PasswordReset はパスワードリセット要求のペイロード。
type PasswordReset struct {
	Email string `json:"email" validate:"required,email"`
}

// TokenPair はアクセストークンとリフレッシュトークンの組。
// どちらもバックエンドが発行する不透明な文字列として扱う。
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthResult はサインイン成功時にバックエンドが返すdataの内容。
type AuthResult struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	User         json.RawMessage `json:"user,omitempty"`
}

// User はセッションストアにキャッシュされたユーザープロフィール。
// プロフィールはバックエンド定義の不透明なJSONであり、既知のフィールドのみ読み取る。
// Rawには受信したJSONをそのまま保持する。
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`

	Raw json.RawMessage `json:"-"`
}

// IsAdmin はユーザーが管理者ロールを持つかを返す。
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// ParseUser はキャッシュされたプロフィールJSONをUserに変換する。
// idは文字列・数値のどちらでも受け付ける。
func ParseUser(raw []byte) (*User, error) {
	var aux struct {
		ID    json.RawMessage `json:"id"`
		ID2   json.RawMessage `json:"_id"`
		Email string          `json:"email"`
		Name  string          `json:"name"`
		Role  string          `json:"role"`
	}
	if err := json.Unmarshal(raw, &aux); err != nil {
		return nil, err
	}

	id := aux.ID
	if len(id) == 0 {
		id = aux.ID2
	}

	return &User{
		ID:    rawIDString(id),
		Email: aux.Email,
		Name:  aux.Name,
		Role:  aux.Role,
		Raw:   append(json.RawMessage(nil), raw...),
	}, nil
}

// rawIDString はJSONのid値を文字列に正規化する。
func rawIDString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
