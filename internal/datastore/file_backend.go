package datastore

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/spf13/afero"
)

const (
	slotFilePermissions = 0o600
	slotDirPermissions  = 0o750
)

// FileBackend stores each slot as <dir>/<slot>.json on an afero filesystem.
// Writes go to a temporary file in the same directory which is synced and
// then renamed over the slot file, so a crash leaves either the old or the
// new content. On the OS filesystem the directory is synced after the rename
// so the new entry itself survives a power loss.
type FileBackend struct {
	fs      afero.Fs
	dir     string
	syncDir func(dir string) error // nil when fs has no durable directories
	mu      sync.Mutex
	closed  bool
}

// NewFileBackend creates dir if needed and returns a backend rooted there.
func NewFileBackend(fs afero.Fs, dir string) (*FileBackend, error) {
	if err := fs.MkdirAll(dir, slotDirPermissions); err != nil {
		return nil, fileError(err, "create_slot_dir", "dir", dir)
	}
	b := &FileBackend{fs: fs, dir: dir}
	if _, ok := fs.(*afero.OsFs); ok && runtime.GOOS != "windows" {
		b.syncDir = syncDirectory
	}
	return b, nil
}

func syncDirectory(dir string) error {
	d, err := os.Open(dir) //nolint:gosec // dir comes from operator config
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return err
	}
	return d.Close()
}

func (b *FileBackend) path(slot string) string {
	return filepath.Join(b.dir, slot+".json")
}

func (b *FileBackend) Read(ctx context.Context, slot string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false, closedError("read")
	}
	return b.readLocked(slot)
}

func (b *FileBackend) readLocked(slot string) ([]byte, bool, error) {
	data, err := afero.ReadFile(b.fs, b.path(slot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fileError(err, "read_slot", "slot", slot)
	}
	return data, true, nil
}

func (b *FileBackend) Update(ctx context.Context, slot string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return closedError("update")
	}

	current, found, err := b.readLocked(slot)
	if err != nil {
		return err
	}
	next, err := fn(current, found)
	if err != nil || next == nil {
		return err
	}
	return b.writeLocked(slot, next)
}

func (b *FileBackend) writeLocked(slot string, data []byte) error {
	tmp, err := afero.TempFile(b.fs, b.dir, slot+".*.tmp")
	if err != nil {
		return fileError(err, "create_temp_file", "slot", slot)
	}
	tmpName := tmp.Name()

	fail := func(op string, err error) error {
		_ = tmp.Close()
		_ = b.fs.Remove(tmpName)
		return fileError(err, op, "slot", slot)
	}

	if _, err := tmp.Write(data); err != nil {
		return fail("write_temp_file", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync_temp_file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = b.fs.Remove(tmpName)
		return fileError(err, "close_temp_file", "slot", slot)
	}
	if err := b.fs.Chmod(tmpName, slotFilePermissions); err != nil {
		_ = b.fs.Remove(tmpName)
		return fileError(err, "chmod_temp_file", "slot", slot)
	}
	if err := b.fs.Rename(tmpName, b.path(slot)); err != nil {
		_ = b.fs.Remove(tmpName)
		return fileError(err, "rename_slot_file", "slot", slot)
	}
	if b.syncDir != nil {
		if err := b.syncDir(b.dir); err != nil {
			return fileError(err, "sync_slot_dir", "slot", slot)
		}
	}
	return nil
}

func (b *FileBackend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}
