package sources

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/kerbaras/audiobooks/pkg/data"
)

// ErrNotInstalled is returned by stub sources for every fetch.
var ErrNotInstalled = errors.New("source not installed")

// Segment is one independently fetched piece of a chapter's audio.
type Segment struct {
	URL  string
	Size int64 // Expected size in bytes, 0 when unknown
}

// Media describes how to fetch a chapter once the source resolved it.
type Media struct {
	Format   string // File extension without dot, e.g. "mp3"
	Segments []Segment
}

type Source interface {
	ID() string
	Name() string

	Search(ctx context.Context, query string) ([]data.Entry, error)
	GetEntry(ctx context.Context, id string) (*data.Entry, error)
	GetChapters(ctx context.Context, entry *data.Entry) ([]*data.Chapter, error)

	GetMedia(ctx context.Context, entry *data.Entry, chapter *data.Chapter) (*Media, error)
	// OpenSegment returns the segment body and its length, -1 if unknown.
	OpenSegment(ctx context.Context, segment Segment) (io.ReadCloser, int64, error)
}

// Resolver looks up the fetch capability for a source id.
type Resolver interface {
	Get(id string) (Source, bool)
}

// Registry is an in-memory Resolver.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source)}
	for _, s := range sources {
		r.Register(s)
	}
	return r
}

func (r *Registry) Register(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.ID()] = source
}

func (r *Registry) Get(id string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[id]
	return s, ok
}

func (r *Registry) List() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s)
	}
	return out
}

// Stub stands in for a source whose entries are in the library but whose
// implementation is not available.
type Stub struct {
	SourceID string
}

func NewStub(id string) *Stub {
	return &Stub{SourceID: id}
}

func (s *Stub) ID() string   { return s.SourceID }
func (s *Stub) Name() string { return s.SourceID }

func (s *Stub) Search(context.Context, string) ([]data.Entry, error) {
	return nil, ErrNotInstalled
}

func (s *Stub) GetEntry(context.Context, string) (*data.Entry, error) {
	return nil, ErrNotInstalled
}

func (s *Stub) GetChapters(context.Context, *data.Entry) ([]*data.Chapter, error) {
	return nil, ErrNotInstalled
}

func (s *Stub) GetMedia(context.Context, *data.Entry, *data.Chapter) (*Media, error) {
	return nil, ErrNotInstalled
}

func (s *Stub) OpenSegment(context.Context, Segment) (io.ReadCloser, int64, error) {
	return nil, 0, ErrNotInstalled
}

// IsStub reports whether s cannot fetch anything.
func IsStub(s Source) bool {
	_, ok := s.(*Stub)
	return ok
}
