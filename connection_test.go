package smbpoll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// testConfig returns a valid config for testing.
func testConfig() *Config {
	return &Config{
		Server:      "test-server",
		Share:       "testshare",
		Username:    "testuser",
		Password:    "testpass",
		MaxIdle:     5,
		MaxOpen:     10,
		IdleTimeout: 5 * time.Minute,
		ConnTimeout: 30 * time.Second,
	}
}

// setupMockClient creates a Client backed by an in-memory share.
func setupMockClient(t testing.TB, config *Config) (*Client, *MockSMBBackend, *MockConnectionFactory) {
	t.Helper()

	if config == nil {
		config = testConfig()
	}

	backend := NewMockSMBBackend()
	factory := NewMockConnectionFactory(backend)

	client, err := NewClientWithFactory(config, factory)
	if err != nil {
		t.Fatalf("NewClientWithFactory() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client, backend, factory
}

func newTestPool(config *Config) (*connectionPool, *MockConnectionFactory) {
	factory := NewMockConnectionFactory(NewMockSMBBackend())
	return newConnectionPool(config, factory), factory
}

func TestConnectionPool_GetAndPut(t *testing.T) {
	pool, _ := newTestPool(testConfig())
	defer pool.Close()

	ctx := context.Background()

	conn, err := pool.get(ctx)
	if err != nil {
		t.Fatalf("pool.get() error = %v", err)
	}
	if conn == nil {
		t.Fatal("pool.get() returned nil connection")
	}

	stats := pool.Stats()
	if stats.ActiveConnections != 1 {
		t.Errorf("ActiveConnections = %d, want 1", stats.ActiveConnections)
	}

	pool.put(conn)

	stats = pool.Stats()
	if stats.IdleConnections != 1 {
		t.Errorf("IdleConnections = %d, want 1", stats.IdleConnections)
	}
}

func TestConnectionPool_ConnectionReuse(t *testing.T) {
	pool, factory := newTestPool(testConfig())
	defer pool.Close()

	ctx := context.Background()

	conn1, _ := pool.get(ctx)
	pool.put(conn1)

	conn2, _ := pool.get(ctx)
	pool.put(conn2)

	if conn1 != conn2 {
		t.Error("Connection not reused from pool")
	}
	if factory.ConnectionsMade() != 1 {
		t.Errorf("ConnectionsMade = %d, want 1", factory.ConnectionsMade())
	}
}

func TestConnectionPool_MaxOpenLimit(t *testing.T) {
	config := testConfig()
	config.MaxOpen = 2
	config.ConnTimeout = 50 * time.Millisecond
	pool, _ := newTestPool(config)
	defer pool.Close()

	ctx := context.Background()

	conn1, err := pool.get(ctx)
	if err != nil {
		t.Fatalf("First get() error = %v", err)
	}
	conn2, err := pool.get(ctx)
	if err != nil {
		t.Fatalf("Second get() error = %v", err)
	}

	_, err = pool.get(ctx)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("Expected ErrPoolExhausted, got %v", err)
	}

	pool.put(conn1)
	pool.put(conn2)
}

func TestConnectionPool_WaiterGetsConnection(t *testing.T) {
	config := testConfig()
	config.MaxOpen = 1
	config.ConnTimeout = 5 * time.Second
	pool, _ := newTestPool(config)
	defer pool.Close()

	ctx := context.Background()

	conn1, err := pool.get(ctx)
	if err != nil {
		t.Fatalf("First get() error = %v", err)
	}

	gotConn := make(chan *pooledConn, 1)
	go func() {
		conn, err := pool.get(ctx)
		if err == nil {
			gotConn <- conn
		}
	}()

	// Give goroutine time to start waiting
	time.Sleep(50 * time.Millisecond)

	pool.put(conn1)

	select {
	case conn := <-gotConn:
		if conn != conn1 {
			t.Error("Waiter did not receive the returned connection")
		}
		pool.put(conn)
	case <-time.After(time.Second):
		t.Error("Waiter did not receive connection in time")
	}
}

func TestConnectionPool_Close(t *testing.T) {
	pool, _ := newTestPool(testConfig())

	ctx := context.Background()

	conn1, _ := pool.get(ctx)
	conn2, _ := pool.get(ctx)
	pool.put(conn1)
	pool.put(conn2)

	if err := pool.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if stats := pool.Stats(); stats.OpenConnections != 0 {
		t.Errorf("OpenConnections = %d, want 0", stats.OpenConnections)
	}

	if _, err := pool.get(ctx); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("get() after Close error = %v, want ErrConnectionClosed", err)
	}

	// Closing twice is fine
	if err := pool.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestConnectionPool_ContextCancellation(t *testing.T) {
	config := testConfig()
	config.MaxOpen = 1
	pool, _ := newTestPool(config)
	defer pool.Close()

	conn, err := pool.get(context.Background())
	if err != nil {
		t.Fatalf("get() error = %v", err)
	}
	defer pool.put(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := pool.get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("get() error = %v, want context.DeadlineExceeded", err)
	}
	if stats := pool.Stats(); stats.Waiters != 0 {
		t.Errorf("Waiters = %d, want 0 after cancellation", stats.Waiters)
	}
}

func TestConnectionPool_Cleanup(t *testing.T) {
	config := testConfig()
	config.IdleTimeout = 10 * time.Millisecond
	pool, _ := newTestPool(config)
	defer pool.Close()

	conn, _ := pool.get(context.Background())
	pool.put(conn)

	time.Sleep(20 * time.Millisecond)
	pool.cleanup()

	stats := pool.Stats()
	if stats.OpenConnections != 0 || stats.IdleConnections != 0 {
		t.Errorf("Stats after cleanup = %+v, want no connections", stats)
	}
}

func TestConnectionPool_Discard(t *testing.T) {
	pool, factory := newTestPool(testConfig())
	defer pool.Close()

	ctx := context.Background()

	conn, _ := pool.get(ctx)
	pool.discard(conn)

	if stats := pool.Stats(); stats.OpenConnections != 0 {
		t.Errorf("OpenConnections = %d, want 0", stats.OpenConnections)
	}

	conn2, err := pool.get(ctx)
	if err != nil {
		t.Fatalf("get() error = %v", err)
	}
	pool.put(conn2)

	if factory.ConnectionsMade() != 2 {
		t.Errorf("ConnectionsMade = %d, want 2", factory.ConnectionsMade())
	}
}

func TestConnectionPool_ConnectError(t *testing.T) {
	pool, factory := newTestPool(testConfig())
	defer pool.Close()

	factory.ConnectError = ErrAuthenticationFailed

	if _, err := pool.get(context.Background()); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("get() error = %v, want ErrAuthenticationFailed", err)
	}
	if stats := pool.Stats(); stats.OpenConnections != 0 {
		t.Errorf("OpenConnections = %d, want 0 after failed connect", stats.OpenConnections)
	}
}

func TestConnectionPool_ConcurrentAccess(t *testing.T) {
	config := testConfig()
	config.MaxOpen = 3
	pool, factory := newTestPool(config)
	defer pool.Close()

	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := pool.get(ctx)
			if err != nil {
				t.Errorf("get() error = %v", err)
				return
			}
			time.Sleep(time.Millisecond)
			pool.put(conn)
		}()
	}
	wg.Wait()

	if made := factory.ConnectionsMade(); made > 3 {
		t.Errorf("ConnectionsMade = %d, want at most 3", made)
	}
}
