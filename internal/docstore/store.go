// Package docstore persists a single JSON-serializable document made of named
// fields. Every write is a read-modify-write of one field under an exclusive
// lock, so several processes can share a document.
package docstore

// Store is one named document addressable by string keys.
type Store interface {
	// Get decodes the stored value of key into v. ok is false when the key
	// is absent. Every call reads the current stored state.
	Get(key string, v any) (ok bool, err error)
	// Update locks the document, decodes the stored value of key into v,
	// calls fn and writes v back when fn reports a change. No other writer
	// can commit between the read and the write.
	Update(key string, v any, fn func(found bool) (changed bool, err error)) error
	Close() error
}
