package smbpoll

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// RemoteShareClient is the set of share operations polling and writing
// need. Paths are share-relative and use either separator.
type RemoteShareClient interface {
	// List returns the entries of dir, without "." and "..", sorted by name.
	List(ctx context.Context, dir string) ([]RawEntry, error)
	// Store creates or truncates name and streams content into it.
	Store(ctx context.Context, name string, content io.Reader) error
	// Retrieve streams the content of name into w.
	Retrieve(ctx context.Context, name string, w io.Writer) (int64, error)
	// BuildDirectory creates dir and every missing ancestor. A directory
	// that already exists is not an error.
	BuildDirectory(ctx context.Context, dir string, absolute bool) error
	// Exists reports whether name exists on the share.
	Exists(ctx context.Context, name string) (bool, error)
	// Remove deletes a file or an empty directory.
	Remove(ctx context.Context, name string) error
	// Rename moves a file within the share.
	Rename(ctx context.Context, from, to string) error
}

// Client talks to one SMB share through a pool of sessions.
type Client struct {
	config *Config
	pool   *connectionPool
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

var _ RemoteShareClient = (*Client)(nil)

// NewClient creates a client for the share described by config.
func NewClient(config *Config) (*Client, error) {
	return NewClientWithFactory(config, &RealConnectionFactory{})
}

// NewClientWithFactory creates a client whose sessions come from factory.
func NewClientWithFactory(config *Config, factory ConnectionFactory) (*Client, error) {
	if config == nil || factory == nil {
		return nil, ErrInvalidConfig
	}

	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.resolveCredentials()

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		config: config,
		pool:   newConnectionPool(config, factory),
		logger: config.Logger.With(zap.String("share", config.Share)),
		ctx:    ctx,
		cancel: cancel,
	}

	c.pool.startCleanup(ctx)

	return c, nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() *Config {
	return c.config
}

// Root returns the share root of the client's endpoint.
func (c *Client) Root() ShareRoot {
	return c.config.Root()
}

// Stats returns a snapshot of the connection pool.
func (c *Client) Stats() PoolStats {
	return c.pool.Stats()
}

// Close releases every pooled session.
func (c *Client) Close() error {
	c.cancel()
	return c.pool.Close()
}

// smbPath validates a share-relative path and converts it to the form
// go-smb2 expects.
func (c *Client) smbPath(name string) (string, error) {
	name = strings.TrimPrefix(NormalizePath(name), Separator)
	if err := validatePath(name); err != nil {
		return "", err
	}
	return toSMBPath(name), nil
}

// release hands a connection back to the pool, or drops it when err
// suggests the session is no longer usable.
func (c *Client) release(conn *pooledConn, err error) {
	if err != nil && isRetryable(err) {
		c.pool.discard(conn)
		return
	}
	c.pool.put(conn)
}

// do runs fn against a pooled share, retrying transport failures.
func (c *Client) do(ctx context.Context, op string, fn func(share SMBShare) error) error {
	return c.withRetry(ctx, op, func() error {
		conn, err := c.pool.get(ctx)
		if err != nil {
			return err
		}

		err = fn(conn.share.WithContext(ctx))
		c.release(conn, err)
		return convertError(err)
	})
}

// List returns the entries of dir sorted by name.
func (c *Client) List(ctx context.Context, dir string) ([]RawEntry, error) {
	p, err := c.smbPath(dir)
	if err != nil {
		return nil, wrapPathError("list", dir, err)
	}

	var infos []fs.FileInfo
	err = c.do(ctx, "list", func(share SMBShare) error {
		var err error
		infos, err = share.ReadDir(p)
		return err
	})
	if err != nil {
		return nil, wrapPathError("list", dir, err)
	}

	entries := make([]RawEntry, 0, len(infos))
	for _, info := range infos {
		if info.Name() == "." || info.Name() == ".." {
			continue
		}
		entries = append(entries, rawEntryFromInfo(info))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})

	c.logger.Debug("listed directory",
		zap.String("dir", dir),
		zap.Int("entries", len(entries)))

	return entries, nil
}

// Store creates or truncates name and copies content into it. Only opening
// the file is retried; once bytes are streamed a failure is final.
func (c *Client) Store(ctx context.Context, name string, content io.Reader) error {
	_, err := c.store(ctx, name, content)
	return err
}

func (c *Client) store(ctx context.Context, name string, content io.Reader) (int64, error) {
	p, err := c.smbPath(name)
	if err != nil {
		return 0, wrapPathError("store", name, err)
	}

	var (
		conn *pooledConn
		file SMBFile
	)
	err = c.withRetry(ctx, "store", func() error {
		var err error
		conn, err = c.pool.get(ctx)
		if err != nil {
			return err
		}

		file, err = conn.share.WithContext(ctx).OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
		if err != nil {
			c.release(conn, err)
			return convertError(err)
		}
		return nil
	})
	if err != nil {
		return 0, wrapPathError("store", name, err)
	}

	buf := make([]byte, c.config.WriteBufferSize)
	n, err := io.CopyBuffer(file, content, buf)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	c.release(conn, err)
	if err != nil {
		return n, wrapPathError("store", name, convertError(err))
	}

	c.logger.Debug("stored file",
		zap.String("name", name),
		zap.Int64("bytes", n))

	return n, nil
}

// Retrieve copies the content of name into w.
func (c *Client) Retrieve(ctx context.Context, name string, w io.Writer) (int64, error) {
	p, err := c.smbPath(name)
	if err != nil {
		return 0, wrapPathError("retrieve", name, err)
	}

	var (
		conn *pooledConn
		file SMBFile
	)
	err = c.withRetry(ctx, "retrieve", func() error {
		var err error
		conn, err = c.pool.get(ctx)
		if err != nil {
			return err
		}

		file, err = conn.share.WithContext(ctx).OpenFile(p, os.O_RDONLY, 0)
		if err != nil {
			c.release(conn, err)
			return convertError(err)
		}
		return nil
	})
	if err != nil {
		return 0, wrapPathError("retrieve", name, err)
	}

	buf := make([]byte, c.config.ReadBufferSize)
	n, err := io.CopyBuffer(w, file, buf)
	_ = file.Close()
	c.release(conn, err)
	if err != nil {
		return n, wrapPathError("retrieve", name, convertError(err))
	}

	return n, nil
}

// BuildDirectory creates dir and its missing ancestors. Share paths are
// always relative to the share root, so absolute and relative names are
// resolved the same way.
func (c *Client) BuildDirectory(ctx context.Context, dir string, absolute bool) error {
	dir = strings.TrimPrefix(NormalizePath(dir), Separator)
	if dir == "" {
		return nil
	}
	if err := validatePath(dir); err != nil {
		return wrapPathError("mkdir", dir, err)
	}

	segments := strings.Split(dir, Separator)
	err := c.do(ctx, "mkdir", func(share SMBShare) error {
		for i := range segments {
			p := toSMBPath(strings.Join(segments[:i+1], Separator))
			if err := ensureDir(share, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapPathError("mkdir", dir, err)
	}

	c.logger.Debug("built directory",
		zap.String("dir", dir),
		zap.Bool("absolute", absolute))

	return nil
}

// ensureDir makes sure p is a directory. A create that loses a race with
// another writer still succeeds when the directory is there afterwards.
func ensureDir(share SMBShare, p string) error {
	info, err := share.Stat(p)
	if err == nil {
		if !info.IsDir() {
			return ErrNotDirectory
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	mkErr := share.Mkdir(p, 0755)
	if mkErr == nil {
		return nil
	}
	if info, err := share.Stat(p); err == nil && info.IsDir() {
		return nil
	}
	return mkErr
}

// Exists reports whether name exists.
func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	p, err := c.smbPath(name)
	if err != nil {
		return false, wrapPathError("stat", name, err)
	}

	err = c.do(ctx, "stat", func(share SMBShare) error {
		_, err := share.Stat(p)
		return err
	})
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, wrapPathError("stat", name, err)
	}
	return true, nil
}

// Remove deletes a file or an empty directory.
func (c *Client) Remove(ctx context.Context, name string) error {
	p, err := c.smbPath(name)
	if err != nil {
		return wrapPathError("remove", name, err)
	}

	err = c.do(ctx, "remove", func(share SMBShare) error {
		return share.Remove(p)
	})
	return wrapPathError("remove", name, err)
}

// Rename moves from to to within the share.
func (c *Client) Rename(ctx context.Context, from, to string) error {
	oldPath, err := c.smbPath(from)
	if err != nil {
		return wrapPathError("rename", from, err)
	}
	newPath, err := c.smbPath(to)
	if err != nil {
		return wrapPathError("rename", to, err)
	}

	err = c.do(ctx, "rename", func(share SMBShare) error {
		return share.Rename(oldPath, newPath)
	})
	return wrapPathError("rename", from, err)
}

// Consumer returns a poller over the client's endpoint using the polling
// options of its configuration.
func (c *Client) Consumer() *Consumer {
	return NewConsumer(c, c.Root(), ConsumerConfig{
		Recursive:          c.config.Recursive,
		MinDepth:           c.config.MinDepth,
		MaxDepth:           c.config.MaxDepth,
		MaxMessagesPerPoll: c.config.MaxMessagesPerPoll,
		Delete:             c.config.Delete,
		MoveTo:             c.config.MoveTo,
		Logger:             c.config.Logger,
		Metrics:            c.config.Metrics,
	})
}

// Producer returns a writer into the client's endpoint.
func (c *Client) Producer() *Producer {
	return NewProducer(c, c.Root(), ProducerConfig{
		AutoCreate: c.config.AutoCreate,
		DirCache:   c.config.DirCache,
		Logger:     c.config.Logger,
		Metrics:    c.config.Metrics,
	})
}
