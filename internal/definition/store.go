package definition

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Source is a named definition file
type Source struct {
	Key  string `mapstructure:"key" yaml:"key"`
	Path string `mapstructure:"path" yaml:"path"`
}

// Store loads definition sources and caches them for its lifetime
type Store struct {
	sources []Source
	index   map[string]int
	loaded  map[string]Set
}

// NewStore creates a store holding the given sources in registration order
func NewStore(sources ...Source) (*Store, error) {
	s := &Store{
		index:  make(map[string]int),
		loaded: make(map[string]Set),
	}
	for _, src := range sources {
		if err := s.Register(src); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register appends a source
func (s *Store) Register(src Source) error {
	if src.Key == "" {
		return fmt.Errorf("definition source key is required")
	}
	if _, ok := s.index[src.Key]; ok {
		return fmt.Errorf("definition source %q is already registered", src.Key)
	}
	s.index[src.Key] = len(s.sources)
	s.sources = append(s.sources, src)
	return nil
}

// Keys returns the source keys in registration order
func (s *Store) Keys() []string {
	keys := make([]string, len(s.sources))
	for i, src := range s.sources {
		keys[i] = src.Key
	}
	return keys
}

// Load returns the validated set of one source. A missing file yields an
// empty set; an unreadable or malformed one is an error.
func (s *Store) Load(ctx context.Context, key string) (Set, error) {
	if set, ok := s.loaded[key]; ok {
		return set, nil
	}
	idx, ok := s.index[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, key)
	}
	src := s.sources[idx]

	data, err := os.ReadFile(src.Path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("cannot read definition file %s: %w", src.Path, err)
		}
		log.Ctx(ctx).Debug().
			Str("source", key).
			Str("path", src.Path).
			Msg("definition file not found, using empty set")
		data = nil
	}

	set, err := Parse(key, data)
	if err != nil {
		return nil, err
	}
	s.loaded[key] = set
	return set, nil
}

// MergeAll loads every source and deep-merges them in registration order
func (s *Store) MergeAll(ctx context.Context) (Set, error) {
	sets := make([]Set, 0, len(s.sources))
	for _, src := range s.sources {
		set, err := s.Load(ctx, src.Key)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return Merge(sets...), nil
}

// Tables returns every table with declared constraints across all sources
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	set, err := s.MergeAll(ctx)
	if err != nil {
		return nil, err
	}
	return set.Tables(), nil
}

// Parse decodes and validates a YAML or JSON definition document
func Parse(source string, data []byte) (Set, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Source: source, Reason: fmt.Sprintf("cannot parse document: %v", err)}
	}
	if raw == nil {
		return Set{}, nil
	}
	return decodeSet(source, raw)
}
