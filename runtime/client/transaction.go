package client

import (
	"context"
	"fmt"

	"github.com/astro-dev-lab/tablekit/driver"
)

// TransactionFunc runs inside a transaction. A returned error rolls the
// transaction back; a panic rolls back and re-panics.
type TransactionFunc func(tx driver.Tx) error

// Transaction executes fn inside a driver transaction. Statements run in a
// transaction bypass the cache, so the whole table set touched by the
// transaction is evicted after commit.
func (c *Client) Transaction(ctx context.Context, tables []string, fn TransactionFunc) error {
	tx, err := c.drv.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	if c.cache != nil && len(tables) > 0 {
		c.cache.InvalidateTables(tables...)
	}
	return nil
}
