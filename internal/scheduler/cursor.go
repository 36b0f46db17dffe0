package scheduler

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

// batchCursors keeps, per job and source, the last id of the previous full
// batch. Rows a job keeps skipping therefore cannot hold back the rows
// behind them: the next run continues after them and wraps to the start
// once a short batch shows the end was reached.
type batchCursors struct {
	mu    sync.Mutex
	after map[string]snowflake.ID
}

func (c *batchCursors) get(key string) snowflake.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.after[key]
}

func (c *batchCursors) advance(key string, lastID snowflake.ID, fetched, limit int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.after == nil {
		c.after = make(map[string]snowflake.ID)
	}
	if fetched < limit || lastID == 0 {
		delete(c.after, key)
		return
	}
	c.after[key] = lastID
}
