package device

import "sync/atomic"

// Handle identifies a backend resource.
type Handle uint64

// Backend allocates and frees the native resource behind a device object.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Create allocates a resource for an object of the given kind and content
	// hash. It is only called on a cache miss.
	Create(kind ObjectKind, hash uint64) (Handle, error)
	// Destroy frees h. It is called exactly once per successful Create, from
	// the goroutine that dropped the object's last reference.
	Destroy(kind ObjectKind, h Handle)
}

// NullBackend hands out sequential handles and tracks how many are live.
// It is the default Backend.
type NullBackend struct {
	next atomic.Uint64
	live [numKinds]atomic.Int64 // indexed by ObjectKind
}

func (b *NullBackend) Create(kind ObjectKind, _ uint64) (Handle, error) {
	b.live[kind].Add(1)
	return Handle(b.next.Add(1)), nil
}

func (b *NullBackend) Destroy(kind ObjectKind, _ Handle) {
	b.live[kind].Add(-1)
}

// Live returns the number of resources of kind that were created and not yet
// destroyed.
func (b *NullBackend) Live(kind ObjectKind) int64 { return b.live[kind].Load() }

var _ Backend = (*NullBackend)(nil)
