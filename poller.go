package smbpoll

import (
	"context"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

// FileSource is anything that can be polled for new files.
type FileSource interface {
	Poll(ctx context.Context) ([]*FileDescriptor, error)
}

// CapacityFunc reports whether more files may be added to files.
type CapacityFunc func(files []*FileDescriptor) bool

// TraversalState is owned by a single poll. Depth is shared by the whole
// call tree: each directory visit raises it on entry and restores it on
// return, so sibling directories are entered at the same depth.
type TraversalState struct {
	Depth         int
	Files         []*FileDescriptor
	CanAcceptMore CapacityFunc
}

func (s *TraversalState) canAcceptMore() bool {
	if s.CanAcceptMore == nil {
		return true
	}
	return s.CanAcceptMore(s.Files)
}

// ConsumerConfig holds the polling options of an endpoint.
type ConsumerConfig struct {
	Recursive          bool
	MinDepth           int
	MaxDepth           int // descents allowed; UnboundedDepth for no limit
	MaxMessagesPerPoll int // 0 = unlimited

	// CanAcceptMore overrides the capacity predicate built from
	// MaxMessagesPerPoll.
	CanAcceptMore CapacityFunc

	// Post-processing applied by Complete.
	Delete bool
	MoveTo string

	Logger  *zap.Logger
	Metrics *Metrics
}

// Consumer discovers files under the root of a share.
type Consumer struct {
	client  RemoteShareClient
	root    ShareRoot
	config  ConsumerConfig
	logger  *zap.Logger
	metrics *Metrics
}

var _ FileSource = (*Consumer)(nil)

// NewConsumer creates a poller for root backed by client.
func NewConsumer(client RemoteShareClient, root ShareRoot, config ConsumerConfig) *Consumer {
	if config.CanAcceptMore == nil {
		config.CanAcceptMore = maxMessages(config.MaxMessagesPerPoll)
	}
	config.MoveTo = strings.Trim(NormalizePath(config.MoveTo), Separator)

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Consumer{
		client:  client,
		root:    root,
		config:  config,
		logger:  logger.With(zap.String("endpoint", root.Endpoint())),
		metrics: config.Metrics,
	}
}

// maxMessages returns a predicate that admits up to n files, or any number
// when n is not positive.
func maxMessages(n int) CapacityFunc {
	return func(files []*FileDescriptor) bool {
		return n <= 0 || len(files) < n
	}
}

// Root returns the share root the consumer polls.
func (c *Consumer) Root() ShareRoot {
	return c.root
}

// Poll walks the endpoint once and returns the files found. When a
// directory cannot be listed, Poll returns a *TraversalError and no files.
func (c *Consumer) Poll(ctx context.Context) ([]*FileDescriptor, error) {
	start := time.Now()

	state := &TraversalState{CanAcceptMore: c.config.CanAcceptMore}
	complete, err := c.pollDirectory(ctx, c.root.Path, state)

	c.metrics.observePoll(len(state.Files), time.Since(start), err)
	if err != nil {
		c.logger.Debug("poll failed", zap.Error(err))
		return nil, err
	}

	c.logger.Debug("poll finished",
		zap.Int("files", len(state.Files)),
		zap.Bool("complete", complete),
		zap.Duration("elapsed", time.Since(start)))

	return state.Files, nil
}

// pollDirectory lists dir and adds its files to state, descending into
// subdirectories while the depth allows. It returns false as soon as the
// capacity predicate rejects, and callers up the stack stop as well.
func (c *Consumer) pollDirectory(ctx context.Context, dir string, state *TraversalState) (bool, error) {
	state.Depth++
	defer func() { state.Depth-- }()

	c.logger.Debug("pollDirectory",
		zap.String("dir", dir),
		zap.Int("depth", state.Depth))

	entries, err := c.client.List(ctx, dir)
	if err != nil {
		return false, newTraversalError(dir, err)
	}

	for _, entry := range entries {
		if !state.canAcceptMore() {
			return false, nil
		}

		fd := Normalize(dir, entry, c.root.Endpoint())
		if fd.Directory {
			if c.isMoveTarget(fd) {
				c.logger.Debug("skipping move directory", zap.String("dir", fd.AbsolutePath))
				continue
			}
			if c.config.Recursive && state.Depth < c.config.MaxDepth {
				more, err := c.pollDirectory(ctx, fd.AbsolutePath, state)
				if err != nil {
					return false, err
				}
				if !more {
					return false, nil
				}
			}
			continue
		}

		if state.Depth < c.config.MinDepth {
			continue
		}
		state.Files = append(state.Files, fd)
	}

	return true, nil
}

// PollDirectory walks root once with the given limits and returns the files
// found under it.
func PollDirectory(ctx context.Context, client RemoteShareClient, root ShareRoot, canAcceptMore CapacityFunc, maxDepth, minDepth int, recursive bool) ([]*FileDescriptor, error) {
	c := NewConsumer(client, root, ConsumerConfig{
		Recursive:     recursive,
		MinDepth:      minDepth,
		MaxDepth:      maxDepth,
		CanAcceptMore: canAcceptMore,
	})
	return c.Poll(ctx)
}

// Retrieve copies the content of a polled file into w.
func (c *Consumer) Retrieve(ctx context.Context, fd *FileDescriptor, w io.Writer) (int64, error) {
	return c.client.Retrieve(ctx, fd.AbsolutePath, w)
}

// Complete applies the post-processing option of the endpoint to a file
// that was handled successfully: it is removed, moved under MoveTo, or left
// in place.
func (c *Consumer) Complete(ctx context.Context, fd *FileDescriptor) error {
	switch {
	case c.config.Delete:
		if err := c.client.Remove(ctx, fd.AbsolutePath); err != nil {
			return err
		}
		c.logger.Debug("removed processed file", zap.String("path", fd.AbsolutePath))

	case c.config.MoveTo != "":
		target := c.doneName(fd)
		if dir := parentOf(target); dir != "" {
			if err := c.client.BuildDirectory(ctx, dir, false); err != nil {
				return err
			}
		}
		if err := c.client.Rename(ctx, fd.AbsolutePath, target); err != nil {
			return err
		}
		c.logger.Debug("moved processed file",
			zap.String("path", fd.AbsolutePath),
			zap.String("to", target))
	}
	return nil
}

// isMoveTarget reports whether fd is the directory processed files are
// moved to. It is never walked, so moved files are not picked up again.
func (c *Consumer) isMoveTarget(fd *FileDescriptor) bool {
	return c.config.MoveTo != "" && strings.Trim(fd.AbsolutePath, Separator) == c.config.MoveTo
}

// RelativeName returns the path of fd below the endpoint root.
func (c *Consumer) RelativeName(fd *FileDescriptor) string {
	p := strings.TrimPrefix(fd.AbsolutePath, Separator)
	if root := strings.Trim(c.root.Path, Separator); root != "" {
		p = strings.TrimPrefix(p, root+Separator)
	}
	return p
}

// doneName is where MoveTo puts fd: its path below the endpoint root,
// re-rooted under the MoveTo directory.
func (c *Consumer) doneName(fd *FileDescriptor) string {
	return c.config.MoveTo + Separator + c.RelativeName(fd)
}
