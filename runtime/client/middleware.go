package client

import (
	"context"
	"time"

	"github.com/astro-dev-lab/tablekit/internal/debug"
	"github.com/astro-dev-lab/tablekit/query/sqlgen"
)

// QueryEvent describes one statement execution as seen by middleware.
type QueryEvent struct {
	SQL      string
	Params   map[string]interface{}
	Start    time.Time
	End      time.Time
	Duration time.Duration
	Error    error
}

// Middleware intercepts statement execution. Calling next runs the rest of
// the chain and finally the statement itself; skipping next skips execution.
type Middleware func(ctx context.Context, event *QueryEvent, next func() error) error

// Use appends a middleware to the chain. Middlewares run in the order added.
func (c *Client) Use(mw Middleware) {
	c.middlewares = append(c.middlewares, mw)
}

// LoggingMiddleware logs every executed statement through the debug logger.
// It is a no-op unless debug logging was initialized as enabled.
func LoggingMiddleware() Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if debug.Enabled() {
			if event.Error != nil {
				debug.Error("query failed", "sql", event.SQL, "error", event.Error)
			} else {
				debug.Debug("query", "sql", event.SQL, "duration", event.Duration)
			}
		}
		return err
	}
}

// runMiddleware threads execution through the middleware chain, stamping
// timing and error data on the event as it completes.
func (c *Client) runMiddleware(ctx context.Context, stmt *sqlgen.CompiledStatement, exec func() error) error {
	if len(c.middlewares) == 0 {
		return exec()
	}

	event := &QueryEvent{
		SQL:    stmt.SQL,
		Params: stmt.Params,
		Start:  time.Now(),
	}

	index := 0
	var next func() error
	next = func() error {
		if index >= len(c.middlewares) {
			err := exec()
			event.End = time.Now()
			event.Duration = event.End.Sub(event.Start)
			event.Error = err
			return err
		}
		mw := c.middlewares[index]
		index++
		return mw(ctx, event, next)
	}
	return next()
}
