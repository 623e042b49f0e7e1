package dq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
)

var supportedDrivers = map[string]bool{
	"postgres": true,
}

// Connector opens and caches connections to monitored targets. Connections
// are keyed by target ID and reopened when the DSN changes.
type Connector struct {
	mu    sync.Mutex
	conns map[string]*targetConn
}

type targetConn struct {
	db  *sqlx.DB
	dsn string
}

func NewConnector() *Connector {
	return &Connector{conns: make(map[string]*targetConn)}
}

// Connect returns a live connection to the target.
func (c *Connector) Connect(ctx context.Context, target dq.Target) (*sqlx.DB, error) {
	if !supportedDrivers[target.Driver] {
		return nil, fmt.Errorf("unsupported driver %q", target.Driver)
	}

	c.mu.Lock()
	existing, ok := c.conns[target.ID]
	if ok && existing.dsn == target.DSN {
		db := existing.db
		c.mu.Unlock()
		return db, nil
	}
	if ok {
		existing.db.Close()
		delete(c.conns, target.ID)
	}
	c.mu.Unlock()

	db, err := sqlx.Open(target.Driver, target.DSN)
	if err != nil {
		return nil, fmt.Errorf("open target %s: %w", target.Name, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping target %s: %w", target.Name, err)
	}

	c.mu.Lock()
	c.conns[target.ID] = &targetConn{db: db, dsn: target.DSN}
	c.mu.Unlock()
	return db, nil
}

// Close shuts down all cached connections.
func (c *Connector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, conn := range c.conns {
		conn.db.Close()
		delete(c.conns, id)
	}
}

// Evict drops the cached connection for a target, if any.
func (c *Connector) Evict(targetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[targetID]; ok {
		conn.db.Close()
		delete(c.conns, targetID)
	}
}
