package bus

import (
	"context"

	"github.com/haventide/compass-backend/internal/realtime"
)

// Bus fans SSE messages across processes. Workers publish; the API
// process forwards into its local hub.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
