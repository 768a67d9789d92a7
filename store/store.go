package store

import (
	"context"
	"errors"

	"content_draft_generator/generator"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// Store 保存会话状态。会话只在一次交互期间有效，实现可以按 TTL 过期。
type Store interface {
	Save(ctx context.Context, sess *generator.Session) error
	Load(ctx context.Context, id string) (*generator.Session, error)
	Delete(ctx context.Context, id string) error
}
