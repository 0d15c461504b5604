package acquisition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oshokin/pg-embed/internal/domain/pg"
)

// defaultMapCapacity is the initial capacity of the entries map.
const defaultMapCapacity = 8

// AcquireFunc downloads and unpacks the binaries for one cache path.
type AcquireFunc func(ctx context.Context) error

// entry is the registry record for one cache path.
type entry struct {
	// status is the current acquisition status of the path.
	status pg.AcquisitionStatus
	// done is closed when the running acquisition ends, either way.
	done chan struct{}
}

// Registry serialises acquisitions per cache path.
// The zero value is not usable; create one with NewRegistry.
type Registry struct {
	// mu guards entries only. It is never held while an acquisition runs.
	mu sync.Mutex
	// entries maps canonical cache paths to their records.
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry, defaultMapCapacity),
	}
}

// Status returns the acquisition status of the given cache path.
func (r *Registry) Status(path string) pg.AcquisitionStatus {
	key := CanonicalPath(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return pg.AcquisitionUndefined
	}

	return e.status
}

// Acquire runs fn for path unless it already finished in this process.
//
// Exactly one caller per path runs fn at a time; concurrent callers for the
// same path block until it ends. When fn succeeds the path is marked finished
// and every waiter returns nil. When fn fails the entry is removed, the error
// goes to the caller that ran fn, and waiters loop so one of them retries.
func (r *Registry) Acquire(ctx context.Context, path string, fn AcquireFunc) error {
	key := CanonicalPath(path)

	for {
		r.mu.Lock()

		e, ok := r.entries[key]
		switch {
		case ok && e.status == pg.AcquisitionFinished:
			r.mu.Unlock()

			return nil
		case ok && e.status == pg.AcquisitionInProgress:
			done := e.done
			r.mu.Unlock()

			select {
			case <-done:
				continue
			case <-ctx.Done():
				return fmt.Errorf("%w: wait for acquisition of %s: %w", pg.ErrLock, key, ctx.Err())
			}
		}

		e = &entry{
			status: pg.AcquisitionInProgress,
			done:   make(chan struct{}),
		}
		r.entries[key] = e
		r.mu.Unlock()

		err := r.run(ctx, fn)

		r.mu.Lock()
		if err != nil {
			delete(r.entries, key)
		} else {
			e.status = pg.AcquisitionFinished
		}

		close(e.done)
		r.mu.Unlock()

		return err
	}
}

// Forget drops every finished entry. It is used after the cache has been purged so
// that later instances acquire the binaries again.
func (r *Registry) Forget() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.entries {
		if e.status == pg.AcquisitionFinished {
			delete(r.entries, key)
		}
	}
}

// Invalidate drops the entry for path when it is finished, so that the next
// Acquire runs again. Running acquisitions are left alone.
func (r *Registry) Invalidate(path string) {
	key := CanonicalPath(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok && e.status == pg.AcquisitionFinished {
		delete(r.entries, key)
	}
}

// InProgress reports whether any acquisition is running.
func (r *Registry) InProgress() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.status == pg.AcquisitionInProgress {
			return true
		}
	}

	return false
}

// run calls fn and turns a panic into an error so the entry never stays in progress.
func (r *Registry) run(ctx context.Context, fn AcquireFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: acquisition panicked: %v", pg.ErrTaskJoin, p)
		}
	}()

	return fn(ctx)
}

// CanonicalPath returns the absolute, symlink-resolved, cleaned form of path.
// Paths that do not exist yet are only made absolute and cleaned.
func CanonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}

	if _, err = os.Lstat(abs); err != nil {
		return abs
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs
	}

	return resolved
}
