// Package idempotent records which polled files have already been handed
// to a sink, so that a file left in place is not delivered twice.
package idempotent

import (
	"context"
	"strconv"
	"strings"

	"github.com/absfs/smbpoll"
)

// Repository is a set of processed file keys.
type Repository interface {
	// Contains reports whether key has been added.
	Contains(ctx context.Context, key string) (bool, error)

	// Add records key.
	Add(ctx context.Context, key string) error

	// Remove forgets key.
	Remove(ctx context.Context, key string) error

	// Close releases any resources held by the repository.
	Close() error
}

// Key identifies one version of a polled file. A file rewritten in place
// with a new size or modification time gets a new key.
func Key(fd *smbpoll.FileDescriptor) string {
	var b strings.Builder
	b.WriteString(fd.EndpointPath)
	b.WriteByte('|')
	b.WriteString(fd.AbsolutePath)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(fd.Length, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(fd.LastModified.UnixNano(), 10))
	return b.String()
}
