package smbpoll

import (
	"path"
	"strings"
)

// Separator is the canonical separator of paths inside this package.
// Paths are converted to backslashes only when handed to the share.
const Separator = "/"

// ShareRoot identifies an endpoint: a share and a root directory under it.
type ShareRoot struct {
	Share string
	Path  string
}

// Endpoint returns the share-qualified root, e.g. "ShareA/inbox".
func (r ShareRoot) Endpoint() string {
	if r.Path == "" {
		return r.Share
	}
	return r.Share + Separator + r.Path
}

// Target builds the share-qualified name a file called name is written to.
func (r ShareRoot) Target(name string) string {
	name = strings.TrimPrefix(NormalizePath(name), Separator)
	return r.Endpoint() + Separator + name
}

// WritePath is a logical write name resolved against a ShareRoot.
type WritePath struct {
	Name      string // normalized name with the share prefix removed
	Directory string // parent component, "" when the name has none
	Leaf      string // final component
	Absolute  bool   // the logical name started with a separator
}

// Resolve normalizes a logical name, strips the share name from its front
// when present and splits it into directory and leaf. It never touches the
// share.
func Resolve(logicalName string, root ShareRoot) WritePath {
	name := NormalizePath(logicalName)

	absolute := strings.HasPrefix(name, Separator)
	name = strings.TrimPrefix(name, Separator)

	if root.Share != "" {
		name = strings.TrimPrefix(name, root.Share+Separator)
	}

	wp := WritePath{Name: name, Leaf: name, Absolute: absolute}
	if i := strings.LastIndex(name, Separator); i >= 0 {
		wp.Directory = name[:i]
		wp.Leaf = name[i+1:]
	}
	return wp
}

// NormalizePath converts both separator styles to the canonical one and
// collapses repeated separators. A leading separator is preserved; a
// trailing one is dropped.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", Separator)

	var b strings.Builder
	b.Grow(len(p))
	prevSep := false
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			if prevSep {
				continue
			}
			prevSep = true
		} else {
			prevSep = false
		}
		b.WriteByte(p[i])
	}

	out := b.String()
	if len(out) > 1 {
		out = strings.TrimSuffix(out, Separator)
	}
	return out
}

// joinPath joins a parent and a single entry name with the canonical
// separator, without cleaning either side.
func joinPath(parent, name string) string {
	return parent + Separator + name
}

// validatePath validates that a path is safe and doesn't contain
// invalid characters or attempt path traversal outside the share.
func validatePath(p string) error {
	if strings.Contains(p, "\x00") {
		return ErrInvalidPath
	}

	for _, seg := range strings.Split(strings.ReplaceAll(p, "\\", "/"), "/") {
		if seg == ".." {
			return ErrInvalidPath
		}
	}

	return nil
}

// toSMBPath converts a share-relative canonical path to SMB path format.
// SMB paths use backslashes and don't have a leading slash.
func toSMBPath(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	p = strings.TrimPrefix(p, "/")
	return strings.ReplaceAll(p, "/", "\\")
}
