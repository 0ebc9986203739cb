package cache

import (
	"encoding/base64"
	"reflect"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns cached values into storable text and back. The type tag is an
// opaque discriminator that durable backends persist and hand back unchanged.
type Codec[T Cacheable] interface {
	Serialize(instance T) (typeTag string, payload string, err error)
	Deserialize(typeTag string, payload string) (T, error)
}

type decodeFunc[T Cacheable] func(raw []byte) (T, error)

// Registry is a Codec backed by an explicit tag to type mapping. Payloads are
// msgpack encoded and then base64 encoded so they fit a TEXT column.
//
// Types are bound with Register:
//
//	reg := cache.NewRegistry[Shape]()
//	cache.MustRegister[Shape, *Circle](reg, "circle")
//	cache.MustRegister[Shape, *Square](reg, "square")
type Registry[T Cacheable] struct {
	mutex  sync.RWMutex
	byTag  map[string]decodeFunc[T]
	byType map[reflect.Type]string
}

var _ Codec[Cacheable] = (*Registry[Cacheable])(nil)

// NewRegistry returns an empty Registry.
func NewRegistry[T Cacheable]() *Registry[T] {
	return &Registry[T]{
		byTag:  make(map[string]decodeFunc[T]),
		byType: make(map[reflect.Type]string),
	}
}

// Register binds the concrete type V to tag. V must be assignable to T.
func Register[T Cacheable, V any](r *Registry[T], tag string) error {
	if tag == "" {
		return configError("type tag must not be empty")
	}
	var probe V
	if _, ok := any(probe).(T); !ok {
		var zero T
		return configError("type %T cannot be stored as %T", probe, zero)
	}
	typ := reflect.TypeFor[V]()

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.byTag[tag]; exists {
		return configError("type tag %q already registered", tag)
	}
	if existing, exists := r.byType[typ]; exists {
		return configError("type %s already registered as %q", typ, existing)
	}
	r.byType[typ] = tag
	r.byTag[tag] = func(raw []byte) (T, error) {
		var v V
		if err := msgpack.Unmarshal(raw, &v); err != nil {
			var zero T
			return zero, err
		}
		return any(v).(T), nil
	}
	return nil
}

// MustRegister is Register but panics on error. Intended for package init.
func MustRegister[T Cacheable, V any](r *Registry[T], tag string) {
	if err := Register[T, V](r, tag); err != nil {
		panic(err)
	}
}

func (r *Registry[T]) Serialize(instance T) (string, string, error) {
	typ := reflect.TypeOf(any(instance))
	r.mutex.RLock()
	tag, ok := r.byType[typ]
	r.mutex.RUnlock()
	if !ok {
		return "", "", errors.Wrapf(ErrUnknownType, "no tag registered for %v", typ)
	}
	raw, err := msgpack.Marshal(instance)
	if err != nil {
		return "", "", errors.Wrapf(err, "encode %s", tag)
	}
	return tag, base64.StdEncoding.EncodeToString(raw), nil
}

func (r *Registry[T]) Deserialize(typeTag string, payload string) (T, error) {
	var zero T
	r.mutex.RLock()
	decode, ok := r.byTag[typeTag]
	r.mutex.RUnlock()
	if !ok {
		return zero, errors.Wrapf(ErrUnknownType, "no type registered for tag %q", typeTag)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return zero, errors.Wrapf(err, "decode %s payload", typeTag)
	}
	val, err := decode(raw)
	if err != nil {
		return zero, errors.Wrapf(err, "unmarshal %s", typeTag)
	}
	return val, nil
}
