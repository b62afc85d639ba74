package mapreduce

import (
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/google/renameio/v2"
)

// DistributedPrefix is the reserved path prefix that selects the distributed
// backend; any other path form addresses the local backend.
const DistributedPrefix = "hdfs://"

// ErrIO wraps every storage-backend failure into a single error kind, per
// §4.1's "one error kind on failure" contract.
type ErrIO struct {
	Op   string
	Path string
	Err  error
}

func (e *ErrIO) Error() string {
	return fmt.Sprintf("mapreduce: storage %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *ErrIO) Unwrap() error { return e.Err }

func wrapIO(op, p string, err error) error {
	if err == nil {
		return nil
	}
	return &ErrIO{Op: op, Path: p, Err: err}
}

// backend is the uniform set of file operations a Storage dispatches to,
// implemented once for the local filesystem and once for the distributed
// stub.
type backend interface {
	Exists(p string) bool
	CreateDir(p string) error
	RemoveDirAll(p string) error
	CreateFile(p string) error
	RemoveFile(p string) error
	ReadAll(p string) ([]byte, error)
	WriteAll(p string, data []byte) error
	ReadDir(p string) ([]string, error)
	OpenRead(p string) (io.ReadCloser, error)
	OpenWriteTruncate(p string) (io.WriteCloser, error)
	OpenAppend(p string) (io.WriteCloser, error)
}

// Storage is the uniform file-operations facade described in §4.1: it picks
// a backend per call based on whether the path carries the hdfs:// prefix.
type Storage struct {
	local       backend
	distributed backend
}

// NewStorage builds a Storage whose distributed backend is rooted at
// distributedRoot on the local filesystem (§4.1: no real HDFS client is
// wired in this environment; the stub still exercises the staging/job_dir
// separation end to end).
func NewStorage(distributedRoot string) *Storage {
	return &Storage{
		local:       &localBackend{},
		distributed: &distributedBackend{root: distributedRoot, inner: &localBackend{}},
	}
}

func (s *Storage) backendFor(p string) backend {
	if strings.HasPrefix(p, DistributedPrefix) {
		return s.distributed
	}
	return s.local
}

func (s *Storage) Exists(p string) bool { return s.backendFor(p).Exists(p) }

func (s *Storage) CreateDir(p string) error { return s.backendFor(p).CreateDir(p) }

func (s *Storage) RemoveDirAll(p string) error { return s.backendFor(p).RemoveDirAll(p) }

func (s *Storage) CreateFile(p string) error { return s.backendFor(p).CreateFile(p) }

func (s *Storage) RemoveFile(p string) error { return s.backendFor(p).RemoveFile(p) }

func (s *Storage) ReadAll(p string) ([]byte, error) { return s.backendFor(p).ReadAll(p) }

func (s *Storage) WriteAll(p string, data []byte) error {
	return s.backendFor(p).WriteAll(p, data)
}

// ReadDir returns the absolute paths of p's children, preserving whichever
// backend prefix p carries, in directory order.
func (s *Storage) ReadDir(p string) ([]string, error) { return s.backendFor(p).ReadDir(p) }

func (s *Storage) OpenRead(p string) (io.ReadCloser, error) { return s.backendFor(p).OpenRead(p) }

func (s *Storage) OpenWriteTruncate(p string) (io.WriteCloser, error) {
	return s.backendFor(p).OpenWriteTruncate(p)
}

func (s *Storage) OpenAppend(p string) (io.WriteCloser, error) {
	return s.backendFor(p).OpenAppend(p)
}

// Copy moves bytes from one path to another, reading the source fully into
// memory and writing it to the destination: defined this way specifically
// so a copy can cross backends (§4.1).
func (s *Storage) Copy(from, to string) error {
	data, err := s.ReadAll(from)
	if err != nil {
		return err
	}
	return s.WriteAll(to, data)
}

// Join concatenates path segments with "/", preserving any hdfs:// prefix on
// the first segment.
func Join(segments ...string) string {
	if len(segments) == 0 {
		return ""
	}
	prefix := ""
	first := segments[0]
	if strings.HasPrefix(first, DistributedPrefix) {
		prefix = DistributedPrefix
		first = strings.TrimPrefix(first, DistributedPrefix)
	}
	segments = append([]string{first}, segments[1:]...)
	return prefix + path.Join(segments...)
}

// FilenameOf returns the final path element, stripped of any backend prefix.
func FilenameOf(p string) string {
	trimmed := strings.TrimPrefix(p, DistributedPrefix)
	return path.Base(trimmed)
}

// ExtensionOf returns a file's extension without the leading dot, or "" if
// it has none.
func ExtensionOf(p string) string {
	name := FilenameOf(p)
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return name[idx+1:]
}

// localBackend implements backend directly against the OS filesystem, using
// renameio for every full-file rewrite so a reader never observes a
// partially written file (§4.1).
type localBackend struct{}

func (b *localBackend) Exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func (b *localBackend) CreateDir(p string) error {
	return wrapIO("create_dir", p, os.Mkdir(p, 0o755))
}

func (b *localBackend) RemoveDirAll(p string) error {
	return wrapIO("remove_dir_all", p, os.RemoveAll(p))
}

func (b *localBackend) CreateFile(p string) error {
	f, err := os.Create(p)
	if err != nil {
		return wrapIO("create_file", p, err)
	}
	return wrapIO("create_file", p, f.Close())
}

func (b *localBackend) RemoveFile(p string) error {
	return wrapIO("remove_file", p, os.Remove(p))
}

func (b *localBackend) ReadAll(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	return data, wrapIO("read_all", p, err)
}

func (b *localBackend) WriteAll(p string, data []byte) error {
	return wrapIO("write_all", p, renameio.WriteFile(p, data, 0o644))
}

func (b *localBackend) ReadDir(p string) ([]string, error) {
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, wrapIO("read_dir", p, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, path.Join(p, name))
	}
	return out, nil
}

func (b *localBackend) OpenRead(p string) (io.ReadCloser, error) {
	f, err := os.Open(p)
	return f, wrapIO("open_read", p, err)
}

func (b *localBackend) OpenWriteTruncate(p string) (io.WriteCloser, error) {
	pf, err := renameio.NewPendingFile(p, renameio.WithPermissions(0o644))
	if err != nil {
		return nil, wrapIO("open_write_truncate", p, err)
	}
	return &atomicWriteCloser{pf: pf}, nil
}

func (b *localBackend) OpenAppend(p string) (io.WriteCloser, error) {
	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	return f, wrapIO("open_append", p, err)
}

// atomicWriteCloser adapts renameio's PendingFile (commit-on-Close-success)
// to the plain io.WriteCloser callers expect.
type atomicWriteCloser struct {
	pf *renameio.PendingFile
}

func (a *atomicWriteCloser) Write(p []byte) (int, error) { return a.pf.Write(p) }

func (a *atomicWriteCloser) Close() error { return a.pf.CloseAtomicallyReplace() }

// distributedBackend proxies every call onto the local backend's
// primitives, translating hdfs:// paths into a sub-tree rooted at `root`
// (§4.1: no real HDFS client is wired, but the prefix still round-trips
// through a real directory tree).
type distributedBackend struct {
	root  string
	inner backend
}

func (b *distributedBackend) translate(p string) string {
	rel := strings.TrimPrefix(p, DistributedPrefix)
	return path.Join(b.root, rel)
}

func (b *distributedBackend) Exists(p string) bool { return b.inner.Exists(b.translate(p)) }

// CreateDir emulates hdfsCreateDirectory, which is recursive (mkdir -p),
// unlike the local backend's fs::create_dir equivalent. The Server creates
// staging directories straight as hdfs:///DS2023/<task_id> without creating
// DS2023 first, so this must create missing parents.
func (b *distributedBackend) CreateDir(p string) error {
	return wrapIO("create_dir", p, os.MkdirAll(b.translate(p), 0o755))
}

func (b *distributedBackend) RemoveDirAll(p string) error {
	return b.inner.RemoveDirAll(b.translate(p))
}

func (b *distributedBackend) CreateFile(p string) error { return b.inner.CreateFile(b.translate(p)) }

func (b *distributedBackend) RemoveFile(p string) error { return b.inner.RemoveFile(b.translate(p)) }

func (b *distributedBackend) ReadAll(p string) ([]byte, error) { return b.inner.ReadAll(b.translate(p)) }

func (b *distributedBackend) WriteAll(p string, data []byte) error {
	return b.inner.WriteAll(b.translate(p), data)
}

func (b *distributedBackend) ReadDir(p string) ([]string, error) {
	children, err := b.inner.ReadDir(b.translate(p))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(children))
	for _, c := range children {
		rel := strings.TrimPrefix(c, path.Clean(b.root))
		out = append(out, DistributedPrefix+strings.TrimPrefix(rel, "/"))
	}
	return out, nil
}

func (b *distributedBackend) OpenRead(p string) (io.ReadCloser, error) {
	return b.inner.OpenRead(b.translate(p))
}

func (b *distributedBackend) OpenWriteTruncate(p string) (io.WriteCloser, error) {
	return b.inner.OpenWriteTruncate(b.translate(p))
}

func (b *distributedBackend) OpenAppend(p string) (io.WriteCloser, error) {
	return b.inner.OpenAppend(b.translate(p))
}
