package shared

// Optional marks a patch field as explicitly provided. The zero value means
// "leave unchanged", which lets a patch distinguish absent from zero.
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Apply overwrites *dst when the value was provided.
func (o Optional[T]) Apply(dst *T) {
	if o.Set && dst != nil {
		*dst = o.Value
	}
}

// Or returns the provided value or fallback.
func (o Optional[T]) Or(fallback T) T {
	if o.Set {
		return o.Value
	}
	return fallback
}
