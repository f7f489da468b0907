package cache

import "go.uber.org/zap"

// Metrics exposes cache-level observability hooks.
// Hooks are called with the cache lock held; keep them cheap.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Insert()
	Remove()
	Size(entries int)
}

// Options configures a ContentLessCache. Hash and Equal are required;
// other zero values are safe and defaults are applied in New():
//   - nil Metrics => NoopMetrics
//   - nil Logger  => zap.NewNop()
type Options[T any] struct {
	// Name identifies the cache in logs and panics (e.g. "samplers").
	Name string

	// Hash returns the content hash of an object. It is evaluated once per
	// inserted object and stored with the entry; it must agree with Equal.
	Hash func(T) uint64

	// Equal reports whether two objects have the same content.
	// Hash and Equal must be cheap and must not block.
	Equal func(a, b T) bool

	// Observability
	Metrics Metrics
	Logger  *zap.Logger
}
