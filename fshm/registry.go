package fshm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultDir is where segments live unless a registry is given
// another directory. /dev/shm is tmpfs on Linux, so segments cost
// memory, not disk.
const DefaultDir = "/dev/shm"

// segmentPrefix namespaces freshet segments among whatever else
// lives in the directory.
const segmentPrefix = "freshet."

// Registry resolves channel names to shared memory segments.
//
// There is deliberately no package-level registry: each process
// constructs one, threads it through its endpoints, and tears it
// down on exit, so segment lifetime is tied to an explicit object
// rather than to process-wide state.
//
// A Registry is safe for concurrent use.
type Registry struct {
	dir string

	mu      sync.Mutex
	created map[string]struct{}
}

// NewRegistry returns a registry rooted at dir.
// An empty dir selects [DefaultDir].
func NewRegistry(dir string) *Registry {
	if dir == "" {
		dir = DefaultDir
	}
	return &Registry{
		dir:     dir,
		created: make(map[string]struct{}),
	}
}

// Path returns the backing file path for a channel name.
func (r *Registry) Path(name string) string {
	return filepath.Join(r.dir, segmentPrefix+name)
}

// Create creates the segment for name, sized for payloadSize,
// and maps it. Creation is idempotent across processes: if the
// segment already exists, it is adopted after validating that its
// recorded payload size matches.
func (r *Registry) Create(name string, payloadSize uint64) (*Segment, error) {
	if name == "" {
		return nil, errors.New("channel name must not be empty")
	}

	s, created, err := createSegment(name, r.Path(name), payloadSize)
	if err != nil {
		return nil, err
	}

	if created {
		r.mu.Lock()
		r.created[name] = struct{}{}
		r.mu.Unlock()
	}

	return s, nil
}

// Attach maps an existing segment for name, validating its header.
// It returns [NotFoundError] while the segment does not exist,
// which during the connect phase simply means the producer has not
// bound yet.
func (r *Registry) Attach(name string, payloadSize uint64) (*Segment, error) {
	if name == "" {
		return nil, errors.New("channel name must not be empty")
	}
	return attachSegment(name, r.Path(name), payloadSize)
}

// Remove unlinks the backing file for name. Processes still attached
// keep their mappings; the name simply becomes available again.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	delete(r.created, name)
	r.mu.Unlock()

	if err := os.Remove(r.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing segment for channel %q: %w", name, err)
	}
	return nil
}

// Teardown removes every segment this registry created.
// Segments created by other processes (or other registries)
// are left alone.
func (r *Registry) Teardown() error {
	r.mu.Lock()
	names := make([]string, 0, len(r.created))
	for name := range r.created {
		names = append(names, name)
	}
	r.mu.Unlock()

	var errs error
	for _, name := range names {
		errs = errors.Join(errs, r.Remove(name))
	}
	return errs
}
