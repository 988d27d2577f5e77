package tracker

import "fmt"

// Optional is a value that may be absent. The zero Optional is absent, which
// keeps "not sent" distinct from "sent as zero".
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// None returns an absent Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) { return o.value, o.set }

// IsSet reports whether a value is present.
func (o Optional[T]) IsSet() bool { return o.set }

// Or returns the value if present, otherwise def.
func (o Optional[T]) Or(def T) T {
	if o.set {
		return o.value
	}
	return def
}

// Ptr returns a pointer to a copy of the value, or nil when absent. Handy for
// JSON encoding where absent fields render as null.
func (o Optional[T]) Ptr() *T {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

// merge returns o when present, else prev.
func (o Optional[T]) merge(prev Optional[T]) Optional[T] {
	if o.set {
		return o
	}
	return prev
}

func (o Optional[T]) String() string {
	if !o.set {
		return "<unset>"
	}
	return fmt.Sprint(o.value)
}
