package connector

import (
	"errors"
	"sync"

	"github.com/sarameisburger/go-pcp-client/protocol"
	"github.com/sarameisburger/go-pcp-client/validator"
)

// A MessageCallback handles one validated inbound message. Callbacks run
// synchronously on the goroutine that drives transport reads.
type MessageCallback func(parsed *protocol.ParsedChunks)

// The CallbackRegistry binds message schemas to their handlers. Registering
// a schema stores it in the validator; binding the same name twice keeps the
// original schema and rebinds the handler, last write wins.
type CallbackRegistry struct {
	validator *validator.Validator

	lock      sync.RWMutex
	callbacks map[string]MessageCallback
}

func NewCallbackRegistry(v *validator.Validator) *CallbackRegistry {
	return &CallbackRegistry{
		validator: v,
		callbacks: make(map[string]MessageCallback),
	}
}

func (r *CallbackRegistry) Register(schema validator.Schema, callback MessageCallback) error {
	if err := r.validator.RegisterSchema(schema); err != nil {
		var redefined *validator.SchemaRedefinedError
		if !errors.As(err, &redefined) {
			return err
		}
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	r.callbacks[schema.Name] = callback
	return nil
}

// Lookup resolves a handler by exact schema name.
func (r *CallbackRegistry) Lookup(name string) (MessageCallback, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	callback, ok := r.callbacks[name]
	return callback, ok
}
