package domain

import (
	"context"

	"github.com/google/uuid"
)

// MergeTx is the transaction-scoped mutation set for an identity merge.
// Every method applies inside one database transaction; any returned error
// rolls back all of them.
type MergeTx interface {
	TransferBackups(ctx context.Context, fromDevice, toDevice uuid.UUID) (int, error)
	CopyConnectionCredentials(ctx context.Context, fromDevice, toDevice uuid.UUID) error
	CopySubscriber(ctx context.Context, fromDevice, toDevice uuid.UUID) error
	UpdateTags(ctx context.Context, id uuid.UUID, tags []string) error
	SetOffline(ctx context.Context, id uuid.UUID) error
}

// MergeRunner executes fn atomically. The identity merge is the one place in
// the system where multi-row mutation must be all-or-nothing.
type MergeRunner interface {
	RunMerge(ctx context.Context, fn func(tx MergeTx) error) error
}

// MergeResult reports what an identity merge moved, or attempted to move
// when Err is set and everything was rolled back.
type MergeResult struct {
	Merged              bool      `json:"merged"`
	PredecessorID       uuid.UUID `json:"predecessor_id"`
	SuccessorID         uuid.UUID `json:"successor_id"`
	BackupsTransferred  int       `json:"backups_transferred"`
	CredentialsCopied   bool      `json:"credentials_copied"`
	SubscriberCopied    bool      `json:"subscriber_copied"`
	Err                 string    `json:"error,omitempty"`
}
