package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/fenilmodi00/parcel-backend/shared"
	"github.com/sirupsen/logrus"
)

// ConnState tracks the lifecycle of a pooled connection.
type ConnState int

const (
	ConnStateIdle ConnState = iota
	ConnStateInUse
	ConnStateBroken
)

// Conn is the subset of database operations the engine needs from a
// connection. *sql.Conn satisfies it; tests substitute fakes.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PingContext(ctx context.Context) error
	Close() error
}

// ConnFactory dials one new database connection.
type ConnFactory func(ctx context.Context) (Conn, error)

// PooledConnection wraps a database connection handed out by the pool. A
// caller holds it only for a scoped acquisition and must Release it on every
// exit path, marking it unhealthy on failure.
type PooledConnection struct {
	conn  Conn
	state ConnState
}

// Conn returns the underlying connection.
func (pc *PooledConnection) Conn() Conn {
	return pc.conn
}

// ConnectionPool manages a bounded set of reusable database connections with
// thread-safe checkout and checkin. The pool size is fixed at construction;
// acquisition beyond capacity waits up to the configured timeout rather than
// growing the pool, which bounds both resource usage and worst-case latency
// under DB contention.
//
// Connections are dialed lazily: slots start empty and are filled on first
// acquire, and a slot whose connection broke is re-dialed the same way.
type ConnectionPool struct {
	factory        ConnFactory
	capacity       int
	acquireTimeout time.Duration
	metrics        *shared.PoolMetrics

	slots chan *PooledConnection

	mutex  sync.Mutex
	inUse  int
	closed bool
}

// NewConnectionPool creates a pool with the given fixed capacity. Capacity and
// timeout fall back to safe defaults when non-positive.
func NewConnectionPool(factory ConnFactory, capacity int, acquireTimeout time.Duration) *ConnectionPool {
	if capacity <= 0 {
		capacity = 1
	}
	if acquireTimeout <= 0 {
		acquireTimeout = 5 * time.Second
	}

	pool := &ConnectionPool{
		factory:        factory,
		capacity:       capacity,
		acquireTimeout: acquireTimeout,
		metrics:        shared.NewPoolMetrics(),
		slots:          make(chan *PooledConnection, capacity),
	}

	for i := 0; i < capacity; i++ {
		pool.slots <- &PooledConnection{state: ConnStateIdle}
	}

	logrus.WithFields(logrus.Fields{
		"component":       "ConnectionPool",
		"capacity":        capacity,
		"acquire_timeout": acquireTimeout,
	}).Info("Connection pool initialized")

	return pool
}

// Acquire checks out a connection, blocking the calling worker up to the
// pool's acquire timeout (or the context deadline, whichever fires first).
// Exhaustion surfaces as a pool_exhausted error instead of waiting forever.
func (p *ConnectionPool) Acquire(ctx context.Context) (*PooledConnection, error) {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return nil, shared.NewFetchError(shared.ErrorClassUnreachable, "db", "acquire", "connection pool is closed", nil)
	}
	p.mutex.Unlock()

	startTime := time.Now()
	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case slot := <-p.slots:
		if slot.conn == nil {
			conn, err := p.factory(ctx)
			if err != nil {
				// Return the empty slot so capacity is not lost.
				p.slots <- slot
				return nil, shared.WrapError(err, shared.ErrorClassUnreachable, "db", "acquire")
			}
			slot.conn = conn
		}
		slot.state = ConnStateInUse

		p.mutex.Lock()
		p.inUse++
		p.mutex.Unlock()

		p.metrics.RecordAcquire(time.Since(startTime))
		p.updateOccupancy()
		return slot, nil

	case <-timer.C:
		p.metrics.RecordTimeout()
		logrus.WithFields(logrus.Fields{
			"component":       "ConnectionPool",
			"acquire_timeout": p.acquireTimeout,
			"capacity":        p.capacity,
		}).Warn("Connection pool acquire timed out")
		return nil, shared.NewFetchError(shared.ErrorClassPoolExhausted, "db", "acquire",
			"timed out waiting for a database connection", nil)

	case <-ctx.Done():
		return nil, shared.WrapError(ctx.Err(), shared.ErrorClassCancelled, "db", "acquire")
	}
}

// Release checks a connection back in. A healthy connection returns to the
// idle set; a broken one is closed and its slot re-dialed on next acquire.
func (p *ConnectionPool) Release(pc *PooledConnection, healthy bool) {
	if pc == nil {
		return
	}

	p.mutex.Lock()
	if p.inUse > 0 {
		p.inUse--
	}
	closed := p.closed
	p.mutex.Unlock()

	if !healthy {
		pc.state = ConnStateBroken
		p.metrics.RecordBroken()
		if pc.conn != nil {
			if err := pc.conn.Close(); err != nil {
				logrus.WithError(err).WithField("component", "ConnectionPool").Debug("Error closing broken connection")
			}
			pc.conn = nil
		}
		logrus.WithField("component", "ConnectionPool").Warn("Discarded broken database connection")
	}

	if closed {
		if pc.conn != nil {
			pc.conn.Close()
			pc.conn = nil
		}
		return
	}

	pc.state = ConnStateIdle
	p.slots <- pc
	p.updateOccupancy()
}

// Stats returns the current idle/in-use/broken counters.
func (p *ConnectionPool) Stats() shared.PoolMetrics {
	p.updateOccupancy()
	return p.metrics.GetSnapshot()
}

// Metrics exposes the pool's metrics tracker.
func (p *ConnectionPool) Metrics() *shared.PoolMetrics {
	return p.metrics
}

// Close drains the idle set and closes every connection. In-flight
// connections are closed as they are released.
func (p *ConnectionPool) Close() {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return
	}
	p.closed = true
	p.mutex.Unlock()

	for {
		select {
		case slot := <-p.slots:
			if slot.conn != nil {
				slot.conn.Close()
				slot.conn = nil
			}
		default:
			logrus.WithField("component", "ConnectionPool").Info("Connection pool closed")
			return
		}
	}
}

func (p *ConnectionPool) updateOccupancy() {
	p.mutex.Lock()
	inUse := p.inUse
	p.mutex.Unlock()
	p.metrics.SetOccupancy(p.capacity-inUse, inUse)
}
