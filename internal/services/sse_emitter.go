package services

import (
	"context"

	"github.com/haventide/compass-backend/internal/realtime"
	"github.com/haventide/compass-backend/internal/realtime/bus"
)

// SSEEmitter is the seam between services and transport: the API
// process emits straight into its hub, workers publish over Redis.
type SSEEmitter interface {
	Emit(ctx context.Context, msg realtime.SSEMessage)
}

type HubEmitter struct{ Hub *realtime.SSEHub }

func (e *HubEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	e.Hub.Broadcast(msg)
}

type RedisEmitter struct{ Bus bus.Bus }

func (e *RedisEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	_ = e.Bus.Publish(ctx, msg)
}
