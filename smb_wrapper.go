package smbpoll

import (
	"context"
	"fmt"
	"io/fs"
	"net"

	"github.com/hirochachacha/go-smb2"
)

// realSMBSession wraps a go-smb2 Session to implement SMBSession.
type realSMBSession struct {
	session *smb2.Session
}

// Mount mounts a share and returns an SMBShare interface.
func (s *realSMBSession) Mount(shareName string) (SMBShare, error) {
	share, err := s.session.Mount(shareName)
	if err != nil {
		return nil, err
	}
	return &realSMBShare{share: share}, nil
}

// Logoff ends the session.
func (s *realSMBSession) Logoff() error {
	return s.session.Logoff()
}

// realSMBShare wraps a go-smb2 Share to implement SMBShare.
type realSMBShare struct {
	share *smb2.Share
}

func (sh *realSMBShare) WithContext(ctx context.Context) SMBShare {
	return &realSMBShare{share: sh.share.WithContext(ctx)}
}

// OpenFile opens a file with the specified flags and permissions.
func (sh *realSMBShare) OpenFile(name string, flag int, perm fs.FileMode) (SMBFile, error) {
	file, err := sh.share.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// Stat returns file info for the specified path.
func (sh *realSMBShare) Stat(name string) (fs.FileInfo, error) {
	return sh.share.Stat(name)
}

func (sh *realSMBShare) ReadDir(name string) ([]fs.FileInfo, error) {
	return sh.share.ReadDir(name)
}

// Mkdir creates a directory.
func (sh *realSMBShare) Mkdir(name string, perm fs.FileMode) error {
	return sh.share.Mkdir(name, perm)
}

// Remove removes a file or empty directory.
func (sh *realSMBShare) Remove(name string) error {
	return sh.share.Remove(name)
}

// Rename renames a file or directory.
func (sh *realSMBShare) Rename(oldname, newname string) error {
	return sh.share.Rename(oldname, newname)
}

// Umount unmounts the share.
func (sh *realSMBShare) Umount() error {
	return sh.share.Umount()
}

// RealConnectionFactory implements ConnectionFactory using real SMB connections.
type RealConnectionFactory struct{}

// CreateConnection dials the server, authenticates with NTLM and mounts the
// configured share.
func (f *RealConnectionFactory) CreateConnection(ctx context.Context, config *Config) (SMBSession, SMBShare, error) {
	addr := net.JoinHostPort(config.Server, fmt.Sprint(config.Port))

	dialer := &net.Dialer{
		Timeout: config.ConnTimeout,
	}

	ctx, cancel := context.WithTimeout(ctx, config.ConnTimeout)
	defer cancel()

	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	initiator := &smb2.NTLMInitiator{
		User:   config.Username,
		Hash:   config.ntHash,
		Domain: config.Domain,
	}
	if config.GuestAccess {
		initiator = &smb2.NTLMInitiator{User: "Guest"}
	}

	d := &smb2.Dialer{Initiator: initiator}

	session, err := d.DialContext(ctx, netConn)
	if err != nil {
		netConn.Close()
		return nil, nil, fmt.Errorf("SMB session setup failed: %w", err)
	}

	share, err := session.Mount(config.Share)
	if err != nil {
		_ = session.Logoff()
		netConn.Close()
		return nil, nil, fmt.Errorf("failed to mount share %s: %w", config.Share, err)
	}

	return &realSMBSession{session: session}, &realSMBShare{share: share}, nil
}
