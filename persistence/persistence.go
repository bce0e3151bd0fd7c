package persistence

import (
	"context"

	"github.com/aegisframework/aegis/types"
)

// RegistryStore mirrors registry mutations durably and rehydrates the
// in-memory store on startup.
type RegistryStore interface {
	// SaveRecord upserts a record snapshot.
	SaveRecord(ctx context.Context, rec *types.ResourceRecord) error

	// LoadRecords returns every stored record.
	LoadRecords(ctx context.Context) ([]*types.ResourceRecord, error)

	// DeleteRecord removes a record. Deleting a missing id is not an error.
	DeleteRecord(ctx context.Context, id string) error

	Close() error
}

// SessionStore persists principal session snapshots.
type SessionStore interface {
	// SaveSession upserts a session snapshot. Callers must pass a snapshot,
	// not the live session.
	SaveSession(ctx context.Context, sess *types.Session) error

	// LoadSession returns the stored session or NOT_FOUND.
	LoadSession(ctx context.Context, id string) (*types.Session, error)

	// DeleteSession removes a session. Deleting a missing id is not an error.
	DeleteSession(ctx context.Context, id string) error

	Close() error
}
