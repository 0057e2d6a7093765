package domain

import (
	"context"
	"time"
)

// CwmpSession is the per-conversation protocol state. A conversation spans
// multiple HTTP round-trips that may be served by different processes, so
// this state must round-trip through the session store between requests.
type CwmpSession struct {
	DeviceKey    string    `json:"device_key"`
	CwmpID       string    `json:"cwmp_id"`
	Namespace    string    `json:"namespace"`
	MessageCount int       `json:"message_count"`
	// TaskID is the in-flight task whose RPC was sent in the previous
	// round-trip and is still awaiting the device's response.
	TaskID string `json:"task_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type SessionStore interface {
	Get(ctx context.Context, deviceKey string) (*CwmpSession, error)
	Save(ctx context.Context, session *CwmpSession) error
	// Delete ends the conversation; called when the device posts an empty
	// body to signal session end.
	Delete(ctx context.Context, deviceKey string) error
}
