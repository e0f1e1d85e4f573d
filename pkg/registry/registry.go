// Package registry maps message type tags to factories so that payloads can
// be rebuilt without the receiver knowing concrete types ahead of time.
package registry

import (
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/mgray/tempest/pkg/codec"
	"github.com/mgray/tempest/pkg/errors"
	"github.com/mgray/tempest/pkg/logs"
	"github.com/mgray/tempest/pkg/message"
)

const registryCaller = "Registry"

// Factory builds a fresh, empty message.
type Factory func() message.Message

type Entry struct {
	ID      message.ID
	Factory Factory
}

// New returns a Factory for *T resolved at compile time.
func New[T any, PT interface {
	*T
	message.Message
}]() Factory {
	return func() message.Message {
		return PT(new(T))
	}
}

// Registry is append-only: tags are never unregistered.
type Registry struct {
	mu        sync.RWMutex
	factories map[message.ID]Factory
	cache     *codec.DescriptorCache
	logger    *log.Logger
}

// NewRegistry creates an empty registry validating generic payloads against
// cache. A nil cache selects codec.Shared().
func NewRegistry(cache *codec.DescriptorCache) *Registry {
	if cache == nil {
		cache = codec.Shared()
	}
	return &Registry{
		factories: map[message.ID]Factory{},
		cache:     cache,
		logger:    logs.NewLogger(registryCaller),
	}
}

// Cache is the descriptor cache used for messages relying on the generic codec.
func (r *Registry) Cache() *codec.DescriptorCache {
	return r.cache
}

func (r *Registry) Register(id message.ID, factory Factory) error {
	return r.RegisterBatch(Entry{ID: id, Factory: factory})
}

// RegisterBatch registers every entry or none of them. The batch fails with
// DuplicateMessageType if a tag repeats inside it or is already registered.
func (r *Registry) RegisterBatch(entries ...Entry) error {
	seen := make(map[message.ID]bool, len(entries))
	for _, e := range entries {
		if e.Factory == nil {
			return errors.Newf(errors.KindInvalidArgument, registryCaller, "nil factory for message type %d", e.ID)
		}
		if seen[e.ID] {
			return errors.Newf(errors.KindDuplicateMessageType, registryCaller, "message type %d appears twice in batch", e.ID)
		}
		seen[e.ID] = true

		// factories run outside the lock
		m := e.Factory()
		if m == nil {
			return errors.Newf(errors.KindInvalidArgument, registryCaller, "factory for message type %d returned nil", e.ID)
		}
		if m.Type() != e.ID {
			return errors.Newf(errors.KindInvalidArgument, registryCaller, "factory for message type %d builds %T of type %d", e.ID, m, m.Type())
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		if _, ok := r.factories[e.ID]; ok {
			return errors.Newf(errors.KindDuplicateMessageType, registryCaller, "a message of type %d has already been registered", e.ID)
		}
	}
	for _, e := range entries {
		r.factories[e.ID] = e.Factory
	}
	r.logger.Debugf("Registered %d message types (%d total)", len(entries), len(r.factories))
	return nil
}

// Discover derives each factory's tag from a freshly built instance and
// registers the batch. Factories that are nil, build nil or build a message
// with no usable payload encoding fail with UnregisterableType before
// anything is registered.
func (r *Registry) Discover(factories ...Factory) error {
	entries := make([]Entry, 0, len(factories))
	for i, f := range factories {
		if f == nil {
			return errors.Newf(errors.KindUnregisterableType, registryCaller, "factory %d is nil", i)
		}
		m := f()
		if m == nil {
			return errors.Newf(errors.KindUnregisterableType, registryCaller, "factory %d built a nil message", i)
		}
		if err := message.CheckSerializable(r.cache, m); err != nil {
			return errors.Wrap(errors.KindUnregisterableType, err, fmt.Sprintf("message %T", m), registryCaller)
		}
		entries = append(entries, Entry{ID: m.Type(), Factory: f})
	}
	return r.RegisterBatch(entries...)
}

// Create builds a new message for id. The lookup holds the lock; the factory
// runs after it is released.
func (r *Registry) Create(id message.ID) (message.Message, bool) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	m := factory()
	return m, m != nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

// IDs lists registered tags in ascending order.
func (r *Registry) IDs() []message.ID {
	r.mu.RLock()
	ids := make([]message.ID, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
