// Package session はブラウザセッションに紐づくキー・バリューストアを提供する。
// 認証トークンとキャッシュされたユーザープロフィールを保持する。
package session

import (
	"context"
	"fmt"

	"github.com/hitoshi/storefront/internal/model"
)

// セッションストアのキー。
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

// AllKeys はセッションストアが扱う全キー。
var AllKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUser}

// Backend はセッションIDとキーで値を保存する永続化インターフェース。
type Backend interface {
	// Get は値を取得する。存在しない場合はfalseを返す。
	Get(ctx context.Context, sessionID, key string) (string, bool, error)
	// Set は値を保存する。
	Set(ctx context.Context, sessionID, key, value string) error
	// Delete は指定キーを削除する。存在しないキーは無視する。
	Delete(ctx context.Context, sessionID string, keys ...string) error
}

// Store は1つのブラウザセッションにスコープされたストア。
// リクエストごとに生成し、APIクライアントやAuthクライアントへ明示的に渡す。
type Store struct {
	backend Backend
	id      string
}

// NewStore はStoreを生成する。
func NewStore(backend Backend, sessionID string) *Store {
	return &Store{backend: backend, id: sessionID}
}

// ID はセッションIDを返す。
func (s *Store) ID() string {
	return s.id
}

// Get は値を取得する。
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.backend.Get(ctx, s.id, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to read session key %s: %w", key, err)
	}
	return v, ok, nil
}

// Set は値を保存する。
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.backend.Set(ctx, s.id, key, value); err != nil {
		return fmt.Errorf("failed to write session key %s: %w", key, err)
	}
	return nil
}

// Remove は指定キーを削除する。
func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if err := s.backend.Delete(ctx, s.id, keys...); err != nil {
		return fmt.Errorf("failed to remove session keys: %w", err)
	}
	return nil
}

// AccessToken はアクセストークンを返す。未保存の場合は空文字列を返す。
// apiclient.TokenSourceを満たす。
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	v, _, err := s.Get(ctx, KeyAccessToken)
	return v, err
}

// RefreshToken はリフレッシュトークンを返す。未保存の場合は空文字列を返す。
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	v, _, err := s.Get(ctx, KeyRefreshToken)
	return v, err
}

// SaveTokens はトークンの組を保存する。空のトークンは保存しない。
func (s *Store) SaveTokens(ctx context.Context, tokens model.TokenPair) error {
	if tokens.AccessToken != "" {
		if err := s.Set(ctx, KeyAccessToken, tokens.AccessToken); err != nil {
			return err
		}
	}
	if tokens.RefreshToken != "" {
		if err := s.Set(ctx, KeyRefreshToken, tokens.RefreshToken); err != nil {
			return err
		}
	}
	return nil
}

// SaveUser はユーザープロフィールのJSONをそのまま保存する。
func (s *Store) SaveUser(ctx context.Context, raw []byte) error {
	return s.Set(ctx, KeyUser, string(raw))
}

// Clear はトークンとプロフィールを全て削除する。
func (s *Store) Clear(ctx context.Context) error {
	return s.Remove(ctx, AllKeys...)
}

// MoveTo は保存済みの値を新しいセッションIDへ移し、元のセッションから削除する。
// 移動後のStoreを返す。
func (s *Store) MoveTo(ctx context.Context, newID string) (*Store, error) {
	moved := NewStore(s.backend, newID)
	for _, key := range AllKeys {
		v, ok, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := moved.Set(ctx, key, v); err != nil {
			return nil, err
		}
	}
	if err := s.Clear(ctx); err != nil {
		return nil, err
	}
	return moved, nil
}
