package weakref

import "fmt"

// Ref is a weak handle to a T. The zero value is a null handle.
// Refs are small values; copy them freely.
type Ref[T Weakable] struct {
	c *cell
}

// Make returns a weak handle to obj. obj must have called InitWeakRef.
func Make[T Weakable](obj T) Ref[T] {
	c := obj.weakCell()
	if c == nil {
		panic("weakref: Make on an object without InitWeakRef")
	}
	return Ref[T]{c: c}
}

// Upcast converts a handle to a handle of a type From is assignable to.
// conv is a witness, typically func(s *Sampler) Object { return s }, and is
// never called. Go cannot constrain From to be assignable to To, so this is a
// convention rather than a proof: a sibling conversion such as
// func(*A) *B { return nil } compiles, and Promote on the result panics.
func Upcast[To, From Weakable](r Ref[From], conv func(From) To) Ref[To] {
	if conv == nil {
		panic("weakref: Upcast needs a conversion witness")
	}
	return Ref[To]{c: r.c}
}

// IsNull reports whether the handle points at no cell.
func (r Ref[T]) IsNull() bool { return r.c == nil }

// Promote returns a strong reference to the target, which the caller must
// Release. It fails when the handle is null, when the target has been
// invalidated, or when the target's count already reached zero (the object is
// dying on another goroutine).
func (r Ref[T]) Promote() (T, bool) {
	var zero T
	if r.c == nil {
		return zero, false
	}
	v := r.c.tryGet()
	if v == nil {
		return zero, false
	}
	obj, ok := v.(T)
	if !ok {
		panic(fmt.Sprintf("weakref: Promote of a %T through a Ref[%T]", v, zero))
	}
	return obj, true
}

// UnsafeGet returns the target without taking a reference.
// The result may start dying the moment UnsafeGet returns; only use it where
// the caller can otherwise prove the target is still readable.
func (r Ref[T]) UnsafeGet() (T, bool) {
	var zero T
	if r.c == nil {
		return zero, false
	}
	v := r.c.get()
	if v == nil {
		return zero, false
	}
	return v.(T), true
}
