package codec

import (
	"sort"
	"sync"
)

// DefaultMaxFrameSize bounds length-prefixed records registered by NewRegistry.
const DefaultMaxFrameSize = 10 * 1024 * 1024 // 10MB

// registry implements Registry interface
type registry struct {
	mu       sync.RWMutex
	codecs   map[string]Codec
	default_ string
}

// NewRegistry creates a codec registry holding the raw and length-prefixed
// codecs, with raw as the default.
func NewRegistry() Registry {
	return NewRegistryWithMaxFrameSize(DefaultMaxFrameSize)
}

// NewRegistryWithMaxFrameSize is NewRegistry with a custom length-prefix bound.
func NewRegistryWithMaxFrameSize(maxFrameSize int) Registry {
	r := &registry{
		codecs: make(map[string]Codec),
	}

	r.Register(NewRawCodec())
	r.Register(NewLengthPrefixedCodec(maxFrameSize))
	r.default_ = NameRaw

	return r
}

// Register registers a codec under its name
func (r *registry) Register(codec Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[codec.Name()] = codec
}

// Get retrieves a codec by name
func (r *registry) Get(name string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codec, exists := r.codecs[name]
	return codec, exists
}

// Default returns the default codec
func (r *registry) Default() Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.codecs[r.default_]
}

// Names returns the registered codec names in sorted order
func (r *registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
