// Package localstore implements the thin capability over the host OS
// filesystem that every other component in this repo reaches through
// rather than calling os.* directly. All operations resolve relative to a
// configured export root.
package localstore

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/dfscluster/dfs-host/wire"
)

// Store operates relative to a configured root directory.
type Store struct {
	root string
}

// New returns a Store rooted at root. root must already exist.
func New(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

// Root returns the configured export root.
func (s *Store) Root() string { return s.root }

// clean joins relpath onto root, trimming a leading '/' from every segment
// before concatenation and NFC-normalizing each segment before it hits
// the OS.
func (s *Store) clean(relpath string) string {
	relpath = strings.TrimPrefix(relpath, "/")
	segments := strings.Split(relpath, "/")
	for i, seg := range segments {
		segments[i] = norm.NFC.String(seg)
	}
	joined := path.Join(segments...)
	for joined == ".." || strings.HasPrefix(joined, "../") {
		joined = strings.TrimPrefix(strings.TrimPrefix(joined, ".."), "/")
	}
	return filepath.Join(s.root, filepath.FromSlash(joined))
}

// Open verifies relpath exists and is readable. The server holds no
// persistent handle; every subsequent op re-resolves relpath.
func (s *Store) Open(relpath string) error {
	f, err := os.Open(s.clean(relpath))
	if err != nil {
		return err
	}
	return f.Close()
}

// Release is always a no-op success: there is no server-side handle to
// release.
func (s *Store) Release(relpath string) error { return nil }

// GetAttr stats relpath.
func (s *Store) GetAttr(relpath string) (wire.NodeAttr, error) {
	fi, err := os.Stat(s.clean(relpath))
	if err != nil {
		return wire.NodeAttr{}, err
	}
	return attrFromFileInfo(fi), nil
}

// Read seeks to off and reads up to len bytes, returning the actual number
// read (which may be less than len at EOF).
func (s *Store) Read(relpath string, off, length uint64) ([]byte, error) {
	f, err := os.Open(s.clean(relpath))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Seek(int64(off), io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// Write opens relpath for writing, seeks to off, and writes content in
// full, returning len(content) on success.
func (s *Store) Write(relpath string, off uint64, content []byte) (int, error) {
	f, err := os.OpenFile(s.clean(relpath), os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if _, err := f.Seek(int64(off), io.SeekStart); err != nil {
		return 0, err
	}
	n, err := f.Write(content)
	if err != nil {
		return n, err
	}
	if n != len(content) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Fsync flushes relpath to stable storage.
func (s *Store) Fsync(relpath string) error {
	f, err := os.OpenFile(s.clean(relpath), os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// Trunc sets relpath's size.
func (s *Store) Trunc(relpath string, size uint64) error {
	f, err := os.OpenFile(s.clean(relpath), os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(int64(size))
}

// Lookup probes existence of relpath and returns its normalized form,
// which becomes the canonical handle the client uses for subsequent ops.
func (s *Store) Lookup(relpath string) (string, error) {
	if _, err := os.Stat(s.clean(relpath)); err != nil {
		return "", err
	}
	return normalizeKey(relpath), nil
}

// Create makes an empty file or directory at relpath.
func (s *Store) Create(relpath string, ty wire.FileType) error {
	full := s.clean(relpath)
	switch ty {
	case wire.TypeDir:
		return os.Mkdir(full, 0o755)
	default:
		f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return err
		}
		return f.Close()
	}
}

// Remove unlinks a file, or removes an empty directory, at relpath.
func (s *Store) Remove(relpath string) error {
	return os.Remove(s.clean(relpath))
}

// ReadDir lists relpath, skipping the first start entries and emitting one
// DirEntry per remaining regular file or directory child.
func (s *Store) ReadDir(relpath string, start uint64) ([]wire.DirEntry, error) {
	fis, err := os.ReadDir(s.clean(relpath))
	if err != nil {
		return nil, err
	}
	var out []wire.DirEntry
	for i, fi := range fis {
		if uint64(i) < start {
			continue
		}
		info, err := fi.Info()
		if err != nil {
			continue
		}
		ty := typeFromFileInfo(info)
		if ty != wire.TypeFile && ty != wire.TypeDir {
			continue
		}
		out = append(out, wire.DirEntry{Type: ty, Name: fi.Name()})
	}
	return out, nil
}

// Rename renames src to dst within root.
func (s *Store) Rename(src, dst string) error {
	return os.Rename(s.clean(src), s.clean(dst))
}

// GetParent returns the string-level parent of relpath. No I/O is
// performed; this can never fail.
func (s *Store) GetParent(relpath string) string {
	cleaned := normalizeKey(relpath)
	parent := path.Dir(cleaned)
	if parent == "." {
		return ""
	}
	return parent
}

// normalizeKey strips a leading slash and collapses "." / ".." the way
// FileIndex keys are expected to look.
func normalizeKey(relpath string) string {
	relpath = strings.TrimPrefix(relpath, "/")
	return path.Clean(relpath)
}

func attrFromFileInfo(fi os.FileInfo) wire.NodeAttr {
	ty := typeFromFileInfo(fi)
	attr := wire.NodeAttr{
		Mode: uint16(fi.Mode().Perm()),
		Type: ty,
		Size: uint64(fi.Size()),
	}
	attr.Blocks = blockCount(fi, attr.Size)
	return attr
}

func typeFromFileInfo(fi os.FileInfo) wire.FileType {
	mode := fi.Mode()
	switch {
	case mode.IsRegular():
		return wire.TypeFile
	case mode.IsDir():
		return wire.TypeDir
	case mode&os.ModeSymlink != 0:
		return wire.TypeSymlink
	case mode&os.ModeNamedPipe != 0:
		return wire.TypeFIFO
	case mode&os.ModeDevice != 0:
		if mode&os.ModeCharDevice != 0 {
			return wire.TypeChar
		}
		return wire.TypeBlock
	case mode&os.ModeSocket != 0:
		return wire.TypeSocket
	default:
		return wire.TypeUnknown
	}
}
