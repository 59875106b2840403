// Package local provides a FileSink that writes below a local directory.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/absfs/smbpoll"
)

// Config holds local sink settings.
type Config struct {
	RootPath   string `mapstructure:"root_path"`
	CreateDirs bool   `mapstructure:"create_dirs"`
}

// Sink writes each file under RootPath, keeping its relative path.
type Sink struct {
	fs         afero.Fs
	rootPath   string
	createDirs bool
}

var _ smbpoll.FileSink = (*Sink)(nil)

// New creates a sink on the operating system's filesystem.
func New(cfg Config) (*Sink, error) {
	return NewWithFs(afero.NewOsFs(), cfg)
}

// NewWithFs creates a sink on fs.
func NewWithFs(fs afero.Fs, cfg Config) (*Sink, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	info, err := fs.Stat(cfg.RootPath)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := fs.MkdirAll(cfg.RootPath, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", cfg.RootPath, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}

	return &Sink{
		fs:         fs,
		rootPath:   cfg.RootPath,
		createDirs: cfg.CreateDirs,
	}, nil
}

// fullPath maps name onto the sink root. Names cannot climb above it.
func (s *Sink) fullPath(name string) (string, string, error) {
	clean := path.Clean("/" + smbpoll.NormalizePath(name))
	rel := strings.TrimPrefix(clean, "/")
	if rel == "" {
		return "", "", fmt.Errorf("invalid name: %q", name)
	}
	return filepath.Join(s.rootPath, filepath.FromSlash(rel)), rel, nil
}

// Put writes content to a temporary file next to the target and renames
// it into place, so readers never see a partial file.
func (s *Sink) Put(ctx context.Context, name string, content io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	full, rel, err := s.fullPath(name)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(full)
	if s.createDirs {
		if err := s.fs.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(full)+".*")
	if err != nil {
		return "", fmt.Errorf("create %s: %w", full, err)
	}

	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		s.fs.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", full, err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmp.Name())
		return "", fmt.Errorf("close %s: %w", full, err)
	}
	if err := s.fs.Rename(tmp.Name(), full); err != nil {
		s.fs.Remove(tmp.Name())
		return "", fmt.Errorf("rename into %s: %w", full, err)
	}

	return rel, nil
}
