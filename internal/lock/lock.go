package lock

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/ecctl/internal/errors"
	"golang.org/x/sys/unix"
)

const pollInterval = 50 * time.Millisecond

// Holder describes the process that owns a contended lock.
type Holder struct {
	PID int
}

// Lock serializes multi-register write sequences within the process and
// across processes sharing the same lock file.
type Lock struct {
	path string
	mu   sync.Mutex
}

type heldKey struct{}

// New returns a Lock backed by the file at path. An empty path limits the
// lock to the current process.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Do runs fn while holding the lock and fails with ApplyInProgress when
// another holder is active. Calls made with a context already carrying this
// lock run fn directly.
func (l *Lock) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if Held(ctx, l) {
		return fn(ctx)
	}

	if !l.mu.TryLock() {
		return errors.New().WithData(errors.ErrApplyInProgress, Holder{PID: os.Getpid()})
	}
	defer l.mu.Unlock()

	f, err := l.acquire()
	if err != nil {
		return err
	}
	defer l.release(f)

	return fn(context.WithValue(ctx, heldKey{}, l))
}

// Wait behaves like Do but polls until the lock is free or ctx is done.
func (l *Lock) Wait(ctx context.Context, fn func(ctx context.Context) error) error {
	for {
		err := l.Do(ctx, fn)
		if !errors.HasCode(err, errors.ErrApplyInProgress) || Held(ctx, l) {
			return err
		}

		select {
		case <-ctx.Done():
			return errors.New().Wrap(errors.ErrApplyInProgress, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// Held reports whether ctx was derived inside Do for l.
func Held(ctx context.Context, l *Lock) bool {
	held, ok := ctx.Value(heldKey{}).(*Lock)
	return ok && held == l
}

func (l *Lock) acquire() (*os.File, error) {
	errFactory := errors.New()

	if l.path == "" {
		return nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|unix.O_NOFOLLOW, 0o644)
	if err != nil {
		if os.IsPermission(err) {
			return nil, errFactory.Wrap(errors.ErrPermissionDenied, err)
		}
		if errors.Is(err, unix.ELOOP) {
			return nil, errFactory.WrapWithData(errors.ErrPermissionDenied, err, "lock file is a symlink: "+l.path)
		}
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	if fi, err := f.Stat(); err != nil || !fi.Mode().IsRegular() {
		f.Close()
		return nil, errFactory.WithData(errors.ErrPermissionDenied, "lock file is not a regular file: "+l.path)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := readHolder(f)
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, errFactory.WithData(errors.ErrApplyInProgress, holder)
		}
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	// Record the holder PID for diagnostics.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
	}

	return f, nil
}

func (l *Lock) release(f *os.File) {
	if f == nil {
		return
	}

	_ = f.Truncate(0)
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	f.Close()
}

func readHolder(f *os.File) Holder {
	buf := make([]byte, 32)
	n, _ := f.ReadAt(buf, 0)

	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil {
		return Holder{}
	}

	return Holder{PID: pid}
}
