package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// Repositories fall back to their own handle when Tx is nil, so callers
// only set it when several writes must commit together.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// DB picks the active handle: the enclosing transaction when set,
// otherwise the repository's own fallback, already scoped to Ctx.
func (c Context) DB(fallback *gorm.DB) *gorm.DB {
	if c.Tx != nil {
		return c.Tx.WithContext(c.Ctx)
	}
	return fallback.WithContext(c.Ctx)
}
