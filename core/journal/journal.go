package journal

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrDurability marks a failure that happened before the journal became
	// canonical. Nothing was renamed; callers must treat it as fatal.
	ErrDurability = errors.New("journal: durability failure")

	// ErrRenameFailed marks a rename step that failed while executing a
	// committed journal.
	ErrRenameFailed = errors.New("journal: rename failed")

	// ErrCorrupt is returned by Replay when the canonical journal cannot be parsed.
	ErrCorrupt = errors.New("journal: corrupt journal file")

	// ErrInvalidPath is returned when a path cannot be encoded in a journal.
	ErrInvalidPath = errors.New("journal: invalid path")
)

// maxEntries bounds the entry count read back from disk.
const maxEntries = 1 << 16

// Entry is a single rename instruction.
type Entry struct {
	// OldPath is renamed onto NewPath.
	OldPath string
	// NewPath is the destination, replaced atomically.
	NewPath string
	// OwnsOld means the source file was produced for this transaction and is
	// removed if the transaction aborts before becoming durable.
	OwnsOld bool
	// OwnsNew means the destination directory may be created by the transaction.
	OwnsNew bool
}

// Txn is an ordered, all-or-nothing list of rename steps.
type Txn struct {
	entries []Entry
	logger  *zap.Logger
}

// Begin starts a new transaction.
func Begin(capacityHint int) *Txn {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &Txn{entries: make([]Entry, 0, capacityHint), logger: zap.NewNop()}
}

// WithLogger attaches a logger to the transaction.
func (t *Txn) WithLogger(l *zap.Logger) *Txn {
	if l != nil {
		t.logger = l
	}
	return t
}

// Add appends a rename step. No I/O happens until Commit.
func (t *Txn) Add(oldPath, newPath string, ownsOld, ownsNew bool) {
	t.entries = append(t.entries, Entry{OldPath: oldPath, NewPath: newPath, OwnsOld: ownsOld, OwnsNew: ownsNew})
}

// Entries returns a copy of the pending steps.
func (t *Txn) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of steps.
func (t *Txn) Len() int {
	return len(t.entries)
}

// Commit makes txn durable and executes it.
//
// Failures while producing the canonical journal abort the transaction with
// nothing changed and wrap ErrDurability. Once the journal is canonical every
// rename is attempted; rename failures are reported wrapping ErrRenameFailed
// and the journal is removed regardless.
func Commit(journalPath, tempJournalPath string, txn *Txn) error {
	if err := Prepare(journalPath, tempJournalPath, txn); err != nil {
		txn.abort()
		return err
	}

	var errs []error
	for i, e := range txn.entries {
		if err := renameDurable(e); err != nil {
			txn.logger.Error("Journal rename failed",
				zap.Int("step", i),
				zap.String("from", e.OldPath),
				zap.String("to", e.NewPath),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%w: step %d: %w", ErrRenameFailed, i, err))
		}
	}

	if err := removeDurable(journalPath); err != nil {
		errs = append(errs, fmt.Errorf("remove journal: %w", err))
	}

	txn.logger.Debug("Journal committed", zap.Int("steps", len(txn.entries)), zap.Int("failures", len(errs)))
	return errors.Join(errs...)
}

// Prepare writes txn to tempJournalPath, flushes it and renames it to
// journalPath. After Prepare returns nil the transaction will complete,
// either now or through Replay after a crash.
func Prepare(journalPath, tempJournalPath string, txn *Txn) error {
	data, err := encode(txn.entries)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDurability, err)
	}

	f, err := os.OpenFile(tempJournalPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create temp journal: %w", ErrDurability, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("%w: write temp journal: %w", ErrDurability, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("%w: sync temp journal: %w", ErrDurability, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close temp journal: %w", ErrDurability, err)
	}

	if err := os.Rename(tempJournalPath, journalPath); err != nil {
		return fmt.Errorf("%w: install journal: %w", ErrDurability, err)
	}
	if err := syncDir(filepath.Dir(journalPath)); err != nil {
		return fmt.Errorf("%w: sync journal directory: %w", ErrDurability, err)
	}
	return nil
}

// Replay completes a journal left behind by a crash. It returns the number of
// renames actually performed; steps whose source no longer exists are skipped
// and missing destination directories are created.
// A missing journal is not an error.
func Replay(journalPath string, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(journalPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read journal: %w", err)
	}

	entries, err := decode(data)
	if err != nil {
		return 0, err
	}

	logger.Warn("Replaying interrupted journal", zap.String("path", journalPath), zap.Int("steps", len(entries)))

	performed := 0
	var errs []error
	for i, e := range entries {
		if _, err := os.Lstat(e.OldPath); errors.Is(err, os.ErrNotExist) {
			logger.Debug("Journal step already applied", zap.Int("step", i), zap.String("from", e.OldPath))
			continue
		}
		// OwnsNew is not stored on disk; a committed step may always create
		// its destination directory.
		e.OwnsNew = true
		if err := renameDurable(e); err != nil {
			errs = append(errs, fmt.Errorf("%w: step %d: %w", ErrRenameFailed, i, err))
			continue
		}
		performed++
	}

	if err := removeDurable(journalPath); err != nil {
		errs = append(errs, fmt.Errorf("remove journal: %w", err))
	}
	return performed, errors.Join(errs...)
}

// abort removes sources owned by a transaction that never became durable.
func (t *Txn) abort() {
	for _, e := range t.entries {
		if e.OwnsOld {
			_ = os.Remove(e.OldPath)
		}
	}
}

func encode(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(entries)))
	buf.Write(count[:])

	for _, e := range entries {
		for _, p := range []string{e.OldPath, e.NewPath} {
			if p == "" || strings.IndexByte(p, 0) >= 0 {
				return nil, fmt.Errorf("%w: %q", ErrInvalidPath, p)
			}
			buf.WriteString(p)
			buf.WriteByte(0)
		}
	}
	return buf.Bytes(), nil
}

func decode(data []byte) ([]Entry, error) {
	r := bufio.NewReader(bytes.NewReader(data))

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrCorrupt, err)
	}
	if count > maxEntries {
		return nil, fmt.Errorf("%w: entry count %d", ErrCorrupt, count)
	}

	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		oldPath, err := readPath(r)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrCorrupt, i, err)
		}
		newPath, err := readPath(r)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrCorrupt, i, err)
		}
		entries = append(entries, Entry{OldPath: oldPath, NewPath: newPath})
	}
	return entries, nil
}

func readPath(r *bufio.Reader) (string, error) {
	s, err := r.ReadString(0)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	s = s[:len(s)-1]
	if s == "" {
		return "", ErrInvalidPath
	}
	return s, nil
}

// renameDurable renames e.OldPath onto e.NewPath and flushes both directories.
func renameDurable(e Entry) error {
	dstDir := filepath.Dir(e.NewPath)
	if e.OwnsNew {
		if err := os.MkdirAll(dstDir, 0o755); err != nil {
			return err
		}
	}
	if err := os.Rename(e.OldPath, e.NewPath); err != nil {
		return err
	}
	srcDir := filepath.Dir(e.OldPath)
	if err := syncDir(srcDir); err != nil {
		return err
	}
	if dstDir != srcDir {
		return syncDir(dstDir)
	}
	return nil
}

func removeDurable(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return syncDir(filepath.Dir(path))
}

// syncDir flushes a directory entry. Windows cannot fsync directories.
func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
