package session

import "context"

// Store persists sessions. Implementations must be safe for concurrent use.
type Store interface {
	// Create allocates a new session with a fresh ID.
	Create(ctx context.Context) (*Session, error)
	// Get returns a session by ID, or *ErrSessionNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// List returns up to limit session summaries, most recently updated first.
	List(ctx context.Context, limit int) ([]Summary, error)
	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
	// AddMessage appends a message and bumps UpdatedAt.
	AddMessage(ctx context.Context, id string, msg Message) error
	// UpdateTitle sets the session title.
	UpdateTitle(ctx context.Context, id string, title string) error
	// AddTokens adds to the session's running token total.
	AddTokens(ctx context.Context, id string, tokens int) error
}
