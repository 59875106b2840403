// Package route moves files from a polled SMB endpoint into a sink.
package route

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/absfs/smbpoll"
	"github.com/absfs/smbpoll/internal/idempotent"
)

// ErrPollInProgress is returned by RunOnce while another cycle is running.
var ErrPollInProgress = errors.New("poll already in progress")

// Source is a polled endpoint whose files can be read and post-processed.
type Source interface {
	smbpoll.FileSource
	Retrieve(ctx context.Context, fd *smbpoll.FileDescriptor, w io.Writer) (int64, error)
	Complete(ctx context.Context, fd *smbpoll.FileDescriptor) error
	RelativeName(fd *smbpoll.FileDescriptor) string
}

var _ Source = (*smbpoll.Consumer)(nil)

// Config holds router settings.
type Config struct {
	// Interval between the end of one cycle and the start of the next
	// (default: 10s).
	Interval time.Duration

	// Repository records delivered files. nil delivers every file found.
	Repository idempotent.Repository

	// RatePerSecond caps transfers per second (0 = unlimited). Burst is
	// the number of transfers allowed at once (default: 1).
	RatePerSecond float64
	Burst         int

	// Spool is where content is staged between the share and the sink
	// (default: the OS filesystem).
	Spool    afero.Fs
	SpoolDir string

	Logger *zap.Logger
}

// Result summarizes one poll cycle.
type Result struct {
	Found     int
	Delivered int
	Skipped   int
	Failed    int
}

// Router runs poll cycles from one source into one sink.
type Router struct {
	source  Source
	sink    smbpoll.FileSink
	config  Config
	logger  *zap.Logger
	limiter *rate.Limiter

	running sync.Mutex
}

// New creates a router from source to sink.
func New(source Source, sink smbpoll.FileSink, config Config) *Router {
	if config.Interval <= 0 {
		config.Interval = 10 * time.Second
	}
	if config.Spool == nil {
		config.Spool = afero.NewOsFs()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if config.RatePerSecond > 0 {
		if config.Burst <= 0 {
			config.Burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), config.Burst)
	}

	return &Router{
		source:  source,
		sink:    sink,
		config:  config,
		logger:  logger,
		limiter: limiter,
	}
}

// Run polls until ctx is cancelled. Failed cycles are logged and retried
// on the next tick.
func (r *Router) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		res, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error("poll cycle failed", zap.Error(err))
		} else if res.Found > 0 {
			r.logger.Info("poll cycle finished",
				zap.Int("found", res.Found),
				zap.Int("delivered", res.Delivered),
				zap.Int("skipped", res.Skipped),
				zap.Int("failed", res.Failed))
		}

		timer.Reset(r.config.Interval)
	}
}

// RunOnce polls the source once and delivers every new file. A file that
// fails is left in place and retried on a later cycle; the remaining files
// are still delivered.
func (r *Router) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	if !r.running.TryLock() {
		return res, ErrPollInProgress
	}
	defer r.running.Unlock()

	files, err := r.source.Poll(ctx)
	if err != nil {
		return res, err
	}
	res.Found = len(files)

	for _, fd := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		delivered, err := r.deliver(ctx, fd)
		switch {
		case err != nil:
			res.Failed++
			r.logger.Warn("delivery failed",
				zap.String("path", fd.AbsolutePath),
				zap.Error(err))
		case delivered:
			res.Delivered++
		default:
			res.Skipped++
		}
	}

	return res, nil
}

// deliver hands one file to the sink unless it was delivered before. The
// source post-processing runs only once the sink has accepted the file.
func (r *Router) deliver(ctx context.Context, fd *smbpoll.FileDescriptor) (bool, error) {
	key := idempotent.Key(fd)

	if r.config.Repository != nil {
		seen, err := r.config.Repository.Contains(ctx, key)
		if err != nil {
			return false, fmt.Errorf("idempotent lookup: %w", err)
		}
		if seen {
			return false, nil
		}
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}

	name := r.source.RelativeName(fd)
	written, err := r.transfer(ctx, fd, name)
	if err != nil {
		return false, err
	}

	if r.config.Repository != nil {
		if err := r.config.Repository.Add(ctx, key); err != nil {
			return false, fmt.Errorf("idempotent record: %w", err)
		}
	}

	if err := r.source.Complete(ctx, fd); err != nil {
		r.forget(ctx, key)
		return false, fmt.Errorf("post-process %s: %w", fd.AbsolutePath, err)
	}

	r.logger.Debug("delivered",
		zap.String("path", fd.AbsolutePath),
		zap.String("to", written))
	return true, nil
}

// forget drops key from the repository so the file is delivered and
// post-processed again on the next cycle. Sinks overwrite, so the second
// delivery replaces the first.
func (r *Router) forget(ctx context.Context, key string) {
	if r.config.Repository == nil {
		return
	}
	if err := r.config.Repository.Remove(ctx, key); err != nil {
		r.logger.Warn("idempotent forget failed",
			zap.String("key", key),
			zap.Error(err))
	}
}

// transfer stages the file in the spool and uploads it from there, so a
// sink never reads directly from an SMB handle.
func (r *Router) transfer(ctx context.Context, fd *smbpoll.FileDescriptor, name string) (string, error) {
	tmp, err := afero.TempFile(r.config.Spool, r.config.SpoolDir, "smbpoll-*")
	if err != nil {
		return "", fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		tmp.Close()
		r.config.Spool.Remove(tmp.Name())
	}()

	if _, err := r.source.Retrieve(ctx, fd, tmp); err != nil {
		return "", fmt.Errorf("retrieve %s: %w", fd.AbsolutePath, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind spool file: %w", err)
	}

	written, err := r.sink.Put(ctx, name, tmp)
	if err != nil {
		return "", fmt.Errorf("store %s: %w", name, err)
	}
	return written, nil
}
