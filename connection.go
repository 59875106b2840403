package smbpoll

import (
	"context"
	"sync"
	"time"
)

// connectionPool manages a pool of SMB connections.
type connectionPool struct {
	config  *Config
	factory ConnectionFactory

	mu          sync.Mutex
	connections []*pooledConn
	waiters     []chan *pooledConn
	numOpen     int
	closed      bool
}

// pooledConn wraps an SMB connection with metadata.
type pooledConn struct {
	session   SMBSession
	share     SMBShare
	createdAt time.Time
	lastUsed  time.Time
	inUse     bool
	mu        sync.Mutex
}

// PoolStats reports the state of the connection pool.
type PoolStats struct {
	OpenConnections   int
	ActiveConnections int
	IdleConnections   int
	Waiters           int
}

// newConnectionPool creates a new connection pool.
func newConnectionPool(config *Config, factory ConnectionFactory) *connectionPool {
	return &connectionPool{
		config:      config,
		factory:     factory,
		connections: make([]*pooledConn, 0, config.MaxOpen),
		waiters:     make([]chan *pooledConn, 0),
	}
}

// get acquires a connection from the pool.
func (p *connectionPool) get(ctx context.Context) (*pooledConn, error) {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil, ErrConnectionClosed
	}

	// Check for idle connections
	for i := 0; i < len(p.connections); i++ {
		conn := p.connections[i]
		if conn.inUse {
			continue
		}
		if time.Since(conn.lastUsed) < p.config.IdleTimeout {
			conn.inUse = true
			conn.lastUsed = time.Now()
			p.mu.Unlock()
			return conn, nil
		}

		// Connection expired, close and remove it
		p.connections = append(p.connections[:i], p.connections[i+1:]...)
		p.numOpen--
		i--
		go conn.close()
	}

	// Can we create a new connection?
	if p.numOpen < p.config.MaxOpen {
		p.numOpen++
		p.mu.Unlock()

		conn, err := p.createConnection(ctx)
		if err != nil {
			p.mu.Lock()
			p.numOpen--
			p.mu.Unlock()
			return nil, err
		}

		return conn, nil
	}

	// Wait for a connection to become available
	waiter := make(chan *pooledConn, 1)
	p.waiters = append(p.waiters, waiter)
	p.mu.Unlock()

	timer := time.NewTimer(p.config.ConnTimeout)
	defer timer.Stop()

	select {
	case conn := <-waiter:
		if conn == nil {
			return nil, ErrPoolExhausted
		}
		return conn, nil
	case <-ctx.Done():
		p.removeWaiter(waiter)
		return nil, ctx.Err()
	case <-timer.C:
		p.removeWaiter(waiter)
		return nil, ErrPoolExhausted
	}
}

func (p *connectionPool) removeWaiter(waiter chan *pooledConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == waiter {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// put returns a connection to the pool.
func (p *connectionPool) put(conn *pooledConn) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		go conn.close()
		return
	}

	conn.inUse = false
	conn.lastUsed = time.Now()

	// Try to give the connection to a waiter
	if len(p.waiters) > 0 {
		waiter := p.waiters[0]
		p.waiters = p.waiters[1:]
		conn.inUse = true
		waiter <- conn
		return
	}

	// Keep connection in the pool if under MaxIdle
	idleCount := 0
	for _, c := range p.connections {
		if !c.inUse && c != conn {
			idleCount++
		}
	}

	if idleCount >= p.config.MaxIdle {
		p.removeLocked(conn)
		go conn.close()
	}
}

// discard drops a connection that failed at the transport level instead of
// returning it to the pool.
func (p *connectionPool) discard(conn *pooledConn) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	p.removeLocked(conn)
	p.mu.Unlock()

	go conn.close()
}

func (p *connectionPool) removeLocked(conn *pooledConn) {
	for i, c := range p.connections {
		if c == conn {
			p.connections = append(p.connections[:i], p.connections[i+1:]...)
			p.numOpen--
			return
		}
	}
}

// createConnection creates a new SMB connection.
func (p *connectionPool) createConnection(ctx context.Context) (*pooledConn, error) {
	session, share, err := p.factory.CreateConnection(ctx, p.config)
	if err != nil {
		return nil, err
	}

	conn := &pooledConn{
		session:   session,
		share:     share,
		createdAt: time.Now(),
		lastUsed:  time.Now(),
		inUse:     true,
	}

	p.mu.Lock()
	p.connections = append(p.connections, conn)
	p.mu.Unlock()

	return conn, nil
}

// close closes a pooled connection.
func (pc *pooledConn) close() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.share != nil {
		_ = pc.share.Umount()
		pc.share = nil
	}

	if pc.session != nil {
		_ = pc.session.Logoff()
		pc.session = nil
	}
}

// Close closes all connections in the pool.
func (p *connectionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	// Notify all waiters
	for _, waiter := range p.waiters {
		close(waiter)
	}
	p.waiters = nil

	for _, conn := range p.connections {
		go conn.close()
	}

	p.connections = nil
	p.numOpen = 0

	return nil
}

// Stats returns a snapshot of the pool state.
func (p *connectionPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{
		OpenConnections: p.numOpen,
		Waiters:         len(p.waiters),
	}
	for _, c := range p.connections {
		if c.inUse {
			stats.ActiveConnections++
		} else {
			stats.IdleConnections++
		}
	}
	return stats
}

// cleanup removes expired idle connections.
func (p *connectionPool) cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	now := time.Now()
	i := 0
	for _, conn := range p.connections {
		if !conn.inUse && now.Sub(conn.lastUsed) > p.config.IdleTimeout {
			p.numOpen--
			go conn.close()
			continue
		}
		p.connections[i] = conn
		i++
	}
	p.connections = p.connections[:i]
}

// startCleanup starts a background goroutine to clean up expired connections.
func (p *connectionPool) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(p.config.IdleTimeout / 2)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}
