package session

import "context"

// Store persists per-user session snapshots. Get never fails on absence: a
// user without a record receives a fresh idle session. Every workflow
// transition writes through Set before control returns to the transport.
type Store interface {
	Get(ctx context.Context, userID int64) (Session, error)
	Set(ctx context.Context, s Session) error
}
