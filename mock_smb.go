package smbpoll

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hirochachacha/go-smb2"
)

// MockSMBBackend is an in-memory share used in place of a server. Tests
// populate it, inject failures per path or per operation, and inspect the
// operation log afterwards. Every share mounted from it sees the same tree.
type MockSMBBackend struct {
	mu      sync.Mutex
	entries map[string]*mockEntry

	pathErrs map[string]error
	opErrs   map[string]error
	ops      []MockOperation
}

// mockEntry is one file or directory. Attributes carries the MS-FSCC
// bitmask a server would report for it.
type mockEntry struct {
	content    []byte
	modTime    time.Time
	attributes uint32
}

func (e *mockEntry) isDir() bool {
	return e.attributes&FILE_ATTRIBUTE_DIRECTORY != 0
}

// MockOperation is one recorded share request.
type MockOperation struct {
	Op   string
	Path string
}

// NewMockSMBBackend creates an empty share.
func NewMockSMBBackend() *MockSMBBackend {
	return &MockSMBBackend{
		entries: map[string]*mockEntry{
			"/": {modTime: time.Now(), attributes: FILE_ATTRIBUTE_DIRECTORY},
		},
		pathErrs: make(map[string]error),
		opErrs:   make(map[string]error),
	}
}

// AddFile creates a file, and any missing parent directories, with the
// attributes that match mode.
func (m *MockSMBBackend) AddFile(p string, content []byte, mode fs.FileMode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = mockPath(p)
	m.mkdirAllLocked(path.Dir(p))
	m.entries[p] = &mockEntry{
		content:    append([]byte(nil), content...),
		modTime:    time.Now(),
		attributes: modeToAttributes(mode &^ fs.ModeDir),
	}
}

// AddDir creates a directory and any missing parents.
func (m *MockSMBBackend) AddDir(p string, mode fs.FileMode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mkdirAllLocked(mockPath(p))
	m.entries[mockPath(p)].attributes = modeToAttributes(mode | fs.ModeDir)
}

func (m *MockSMBBackend) mkdirAllLocked(p string) {
	for ; p != "/"; p = path.Dir(p) {
		if _, ok := m.entries[p]; ok {
			return
		}
		m.entries[p] = &mockEntry{modTime: time.Now(), attributes: FILE_ATTRIBUTE_DIRECTORY}
	}
}

// SetModTime changes the last write time of an entry.
func (m *MockSMBBackend) SetModTime(p string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[mockPath(p)]; ok {
		e.modTime = t
	}
}

// SetAttributes replaces the attribute bitmask of an entry. The directory
// bit is kept as it was.
func (m *MockSMBBackend) SetAttributes(p string, attrs uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[mockPath(p)]; ok {
		e.attributes = attrs&^FILE_ATTRIBUTE_DIRECTORY | e.attributes&FILE_ATTRIBUTE_DIRECTORY
	}
}

// SetError makes every request on p fail with err.
func (m *MockSMBBackend) SetError(p string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pathErrs[mockPath(p)] = err
}

// SetOperationError makes every request of kind op fail with err. Kinds are
// readdir, stat, open, read, write, mkdir, remove and rename.
func (m *MockSMBBackend) SetOperationError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opErrs[op] = err
}

// ClearErrors removes all injected failures.
func (m *MockSMBBackend) ClearErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pathErrs = make(map[string]error)
	m.opErrs = make(map[string]error)
}

// GetOperations returns the requests served so far, oldest first.
func (m *MockSMBBackend) GetOperations() []MockOperation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockOperation(nil), m.ops...)
}

// CountOperations returns how many requests of kind op were served.
func (m *MockSMBBackend) CountOperations(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.ops {
		if o.Op == op {
			n++
		}
	}
	return n
}

// GetFile returns a copy of the content of a file.
func (m *MockSMBBackend) GetFile(p string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[mockPath(p)]
	if !ok || e.isDir() {
		return nil, false
	}
	return append([]byte(nil), e.content...), true
}

// FileExists reports whether a file or directory exists at p.
func (m *MockSMBBackend) FileExists(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[mockPath(p)]
	return ok
}

// begin records a request and returns the failure injected for it, if any.
// The caller holds m.mu.
func (m *MockSMBBackend) begin(op, p string) error {
	if err, ok := m.opErrs[op]; ok {
		return err
	}
	if err, ok := m.pathErrs[p]; ok {
		return err
	}
	m.ops = append(m.ops, MockOperation{Op: op, Path: p})
	return nil
}

// stat builds the record go-smb2 returns for an entry.
func (m *MockSMBBackend) stat(p string, e *mockEntry) *smb2.FileStat {
	return &smb2.FileStat{
		LastWriteTime:  e.modTime,
		ChangeTime:     e.modTime,
		EndOfFile:      int64(len(e.content)),
		AllocationSize: int64(len(e.content)),
		FileAttributes: e.attributes,
		FileName:       path.Base(p),
	}
}

// mockPath maps an SMB path onto a key of the tree: forward slashes,
// rooted, cleaned.
func mockPath(p string) string {
	return path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
}

// mockSession is an SMBSession whose shares are views of the backend.
type mockSession struct {
	backend *MockSMBBackend
}

func (s *mockSession) Mount(shareName string) (SMBShare, error) {
	return &mockShare{backend: s.backend}, nil
}

func (s *mockSession) Logoff() error { return nil }

// mockShare serves SMBShare requests from the backend tree.
type mockShare struct {
	backend   *MockSMBBackend
	unmounted bool
}

var errUnmounted = errors.New("share unmounted")

// lock takes the backend lock for one request on name.
func (sh *mockShare) lock(op, name string) (string, error) {
	sh.backend.mu.Lock()
	if sh.unmounted {
		return "", errUnmounted
	}
	p := mockPath(name)
	return p, sh.backend.begin(op, p)
}

func (sh *mockShare) WithContext(ctx context.Context) SMBShare { return sh }

func (sh *mockShare) ReadDir(name string) ([]fs.FileInfo, error) {
	p, err := sh.lock("readdir", name)
	defer sh.backend.mu.Unlock()
	if err != nil {
		return nil, err
	}

	dir, ok := sh.backend.entries[p]
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	if !dir.isDir() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: ErrNotDirectory}
	}

	var infos []fs.FileInfo
	for child, e := range sh.backend.entries {
		if child != p && path.Dir(child) == p {
			infos = append(infos, sh.backend.stat(child, e))
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}

func (sh *mockShare) Stat(name string) (fs.FileInfo, error) {
	p, err := sh.lock("stat", name)
	defer sh.backend.mu.Unlock()
	if err != nil {
		return nil, err
	}

	e, ok := sh.backend.entries[p]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return sh.backend.stat(p, e), nil
}

func (sh *mockShare) Mkdir(name string, perm fs.FileMode) error {
	p, err := sh.lock("mkdir", name)
	defer sh.backend.mu.Unlock()
	if err != nil {
		return err
	}

	if _, ok := sh.backend.entries[p]; ok {
		return fs.ErrExist
	}
	if parent, ok := sh.backend.entries[path.Dir(p)]; !ok || !parent.isDir() {
		return fs.ErrNotExist
	}
	sh.backend.entries[p] = &mockEntry{modTime: time.Now(), attributes: FILE_ATTRIBUTE_DIRECTORY}
	return nil
}

func (sh *mockShare) Remove(name string) error {
	p, err := sh.lock("remove", name)
	defer sh.backend.mu.Unlock()
	if err != nil {
		return err
	}

	e, ok := sh.backend.entries[p]
	if !ok {
		return fs.ErrNotExist
	}
	if e.isDir() {
		for child := range sh.backend.entries {
			if strings.HasPrefix(child, p+"/") {
				return errors.New("directory not empty")
			}
		}
	}
	delete(sh.backend.entries, p)
	return nil
}

func (sh *mockShare) Rename(oldname, newname string) error {
	from, err := sh.lock("rename", oldname)
	defer sh.backend.mu.Unlock()
	if err != nil {
		return err
	}
	to := mockPath(newname)

	entries := sh.backend.entries
	e, ok := entries[from]
	if !ok {
		return fs.ErrNotExist
	}
	if _, ok := entries[to]; ok {
		return fs.ErrExist
	}
	if parent, ok := entries[path.Dir(to)]; !ok || !parent.isDir() {
		return fs.ErrNotExist
	}

	delete(entries, from)
	entries[to] = e
	if e.isDir() {
		for child, ce := range entries {
			if strings.HasPrefix(child, from+"/") {
				delete(entries, child)
				entries[to+strings.TrimPrefix(child, from)] = ce
			}
		}
	}
	return nil
}

func (sh *mockShare) OpenFile(name string, flag int, perm fs.FileMode) (SMBFile, error) {
	p, err := sh.lock("open", name)
	defer sh.backend.mu.Unlock()
	if err != nil {
		return nil, err
	}

	e, ok := sh.backend.entries[p]
	writable := flag&(os.O_WRONLY|os.O_RDWR) != 0
	switch {
	case ok && flag&os.O_EXCL != 0:
		return nil, fs.ErrExist
	case ok && e.isDir() && writable:
		return nil, errors.New("is a directory")
	case !ok && flag&os.O_CREATE == 0:
		return nil, fs.ErrNotExist
	case !ok:
		if parent, ok := sh.backend.entries[path.Dir(p)]; !ok || !parent.isDir() {
			return nil, fs.ErrNotExist
		}
		e = &mockEntry{modTime: time.Now(), attributes: FILE_ATTRIBUTE_ARCHIVE}
		sh.backend.entries[p] = e
	}

	if flag&os.O_TRUNC != 0 && !e.isDir() {
		e.content = nil
		e.modTime = time.Now()
	}

	return &mockFile{
		share:    sh,
		path:     p,
		entry:    e,
		reader:   bytes.NewReader(append([]byte(nil), e.content...)),
		writable: writable,
	}, nil
}

func (sh *mockShare) Umount() error {
	sh.backend.mu.Lock()
	defer sh.backend.mu.Unlock()
	sh.unmounted = true
	return nil
}

// mockFile reads from a snapshot taken at open and appends writes to the
// entry directly.
type mockFile struct {
	share    *mockShare
	path     string
	entry    *mockEntry
	reader   *bytes.Reader
	writable bool
	closed   bool
}

func (f *mockFile) Read(b []byte) (int, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	if err := f.check("read"); err != nil {
		return 0, err
	}
	if f.entry.isDir() {
		return 0, errors.New("is a directory")
	}
	return f.reader.Read(b)
}

func (f *mockFile) Write(b []byte) (int, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	if !f.writable {
		return 0, errors.New("file not opened for writing")
	}
	if err := f.check("write"); err != nil {
		return 0, err
	}

	m := f.share.backend
	m.mu.Lock()
	defer m.mu.Unlock()
	f.entry.content = append(f.entry.content, b...)
	f.entry.modTime = time.Now()
	return len(b), nil
}

// check applies failures injected for op without logging every chunk.
func (f *mockFile) check(op string) error {
	m := f.share.backend
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.opErrs[op]; ok {
		return err
	}
	return nil
}

func (f *mockFile) Close() error {
	f.closed = true
	return nil
}

func (f *mockFile) Stat() (fs.FileInfo, error) {
	if f.closed {
		return nil, fs.ErrClosed
	}
	m := f.share.backend
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stat(f.path, f.entry), nil
}

// MockConnectionFactory hands out sessions on a MockSMBBackend.
type MockConnectionFactory struct {
	Backend *MockSMBBackend

	// ConnectError fails every CreateConnection when set.
	ConnectError error

	mu              sync.Mutex
	connectionsMade int
	connectAttempts int
}

// NewMockConnectionFactory creates a factory for backend.
func NewMockConnectionFactory(backend *MockSMBBackend) *MockConnectionFactory {
	return &MockConnectionFactory{Backend: backend}
}

// CreateConnection returns a session and a mounted share on the backend.
func (f *MockConnectionFactory) CreateConnection(ctx context.Context, config *Config) (SMBSession, SMBShare, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connectAttempts++
	if f.ConnectError != nil {
		return nil, nil, f.ConnectError
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	session := &mockSession{backend: f.Backend}
	share, err := session.Mount(config.Share)
	if err != nil {
		return nil, nil, err
	}
	f.connectionsMade++
	return session, share, nil
}

// ConnectionsMade returns the number of successful connections.
func (f *MockConnectionFactory) ConnectionsMade() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectionsMade
}

// ConnectAttempts returns the number of connection attempts.
func (f *MockConnectionFactory) ConnectAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectAttempts
}

var (
	_ ConnectionFactory = (*MockConnectionFactory)(nil)
	_ SMBSession        = (*mockSession)(nil)
	_ SMBShare          = (*mockShare)(nil)
	_ SMBFile           = (*mockFile)(nil)
)
