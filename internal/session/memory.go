package session

import (
	"context"
	"sync"
	"time"
)

// memoryEntry は1セッション分の値と有効期限を保持する。
type memoryEntry struct {
	values    map[string]string
	expiresAt time.Time
}

// MemoryBackend はプロセス内メモリにセッションを保持するBackend。
// 書き込みのたびに有効期限を延長し、期限切れのセッションは定期的に削除する。
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
	stopCh  chan struct{}
}

// NewMemoryBackend はMemoryBackendを生成し、バックグラウンドのクリーンアップを開始する。
func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	b := &MemoryBackend{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go b.cleanupLoop()
	return b
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (b *MemoryBackend) Stop() {
	close(b.stopCh)
}

// Get は値を取得する。
func (b *MemoryBackend) Get(_ context.Context, sessionID, key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[sessionID]
	if !ok || b.now().After(entry.expiresAt) {
		return "", false, nil
	}
	v, ok := entry.values[key]
	return v, ok, nil
}

// Set は値を保存する。
func (b *MemoryBackend) Set(_ context.Context, sessionID, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[sessionID]
	if !ok || b.now().After(entry.expiresAt) {
		entry = &memoryEntry{values: make(map[string]string)}
		b.entries[sessionID] = entry
	}
	entry.values[key] = value
	entry.expiresAt = b.now().Add(b.ttl)
	return nil
}

// Delete は指定キーを削除する。値が空になったセッションは破棄する。
func (b *MemoryBackend) Delete(_ context.Context, sessionID string, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[sessionID]
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(entry.values, k)
	}
	if len(entry.values) == 0 {
		delete(b.entries, sessionID)
	}
	return nil
}

// Len は保持しているセッション数を返す。テスト用。
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// cleanup は期限切れのセッションを削除する。
func (b *MemoryBackend) cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for id, entry := range b.entries {
		if now.After(entry.expiresAt) {
			delete(b.entries, id)
		}
	}
}

// cleanupLoop は1分ごとに期限切れセッションを削除する。
func (b *MemoryBackend) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.cleanup()
		case <-b.stopCh:
			return
		}
	}
}

// compile-time interface check
var _ Backend = (*MemoryBackend)(nil)
