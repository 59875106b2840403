package smbpoll

import (
	"context"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FileSink is anything a file's content can be written to.
type FileSink interface {
	// Put writes content under name and returns the name actually written.
	Put(ctx context.Context, name string, content io.Reader) (string, error)
}

// Exchange headers understood by Process.
const (
	HeaderFileName         = "FileName"
	HeaderFileNameProduced = "FileNameProduced"
)

// Exchange is a unit of content handed to a Producer with its headers.
type Exchange struct {
	Body    io.Reader
	Headers map[string]string
}

// ProducerConfig holds the writing options of an endpoint.
type ProducerConfig struct {
	AutoCreate bool
	DirCache   DirCacheConfig
	Logger     *zap.Logger
	Metrics    *Metrics
}

// Producer writes files into the root of a share.
type Producer struct {
	client  RemoteShareClient
	root    ShareRoot
	config  ProducerConfig
	dirs    *dirCache
	mkdirs  singleflight.Group
	logger  *zap.Logger
	metrics *Metrics
}

var _ FileSink = (*Producer)(nil)

// NewProducer creates a writer for root backed by client.
func NewProducer(client RemoteShareClient, root ShareRoot, config ProducerConfig) *Producer {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Producer{
		client:  client,
		root:    root,
		config:  config,
		dirs:    newDirCache(config.DirCache),
		logger:  logger.With(zap.String("endpoint", root.Endpoint())),
		metrics: config.Metrics,
	}
}

// Root returns the share root the producer writes into.
func (p *Producer) Root() ShareRoot {
	return p.root
}

// DirCacheStats reports the state of the known-directory cache.
func (p *Producer) DirCacheStats() DirCacheStats {
	return p.dirs.Stats()
}

// Put writes content as name below the endpoint root.
func (p *Producer) Put(ctx context.Context, name string, content io.Reader) (string, error) {
	return p.WriteFile(ctx, content, p.root.Target(name))
}

// Process writes the body of ex to the name in its FileName header and, on
// success only, records the name written in FileNameProduced.
func (p *Producer) Process(ctx context.Context, ex *Exchange) error {
	if ex.Headers == nil {
		ex.Headers = make(map[string]string)
	}

	produced, err := p.Put(ctx, ex.Headers[HeaderFileName], ex.Body)
	if err != nil {
		return err
	}

	ex.Headers[HeaderFileNameProduced] = produced
	return nil
}

// WriteFile stores content at target, building its parent directory first
// when AutoCreate is set. A failure to build the directory is only logged
// and the store is attempted anyway. A failed store returns a
// *TransferError and no name.
func (p *Producer) WriteFile(ctx context.Context, content io.Reader, target string) (string, error) {
	wp := Resolve(target, p.root)

	p.logger.Debug("writeFile",
		zap.String("target", target),
		zap.String("dir", wp.Directory),
		zap.String("leaf", wp.Leaf))

	if p.config.AutoCreate && wp.Directory != "" {
		if err := p.ensureDirectory(ctx, wp.Directory, wp.Absolute); err != nil {
			p.metrics.directoryWarning()
			p.logger.Warn("cannot build directory, trying the upload anyway",
				zap.String("target", target),
				zap.Error(&DirectoryCreateWarning{Dir: wp.Directory, Err: err}))
		}
	}

	cr := &countingReader{r: content}
	err := p.client.Store(ctx, wp.Name, cr)
	p.metrics.observeTransfer(cr.n, err)
	if err != nil {
		if wp.Directory != "" {
			p.dirs.forget(wp.Directory)
		}
		return "", &TransferError{Name: target, Err: err}
	}

	return NormalizePath(target), nil
}

// ensureDirectory makes dir exist on the share. Directories already built
// by this producer are not checked again until the cache entry expires.
func (p *Producer) ensureDirectory(ctx context.Context, dir string, absolute bool) error {
	if p.dirs.known(dir) {
		return nil
	}

	// Concurrent uploads into the same new directory build it once.
	_, err, _ := p.mkdirs.Do(dir, func() (any, error) {
		if err := p.client.BuildDirectory(ctx, dir, absolute); err != nil {
			return nil, err
		}
		p.dirs.remember(dir)
		return nil, nil
	})
	return err
}

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += int64(n)
	return n, err
}
