package asyncsteps

// BinaryStep is a function-pointer façade for a single step, shaped the
// way an embedder would need it if it were marshaling step dispatch across
// a cgo boundary: the execute, cancel and error entry points of a step,
// each reduced to a plain function value an FFI layer could store in a
// struct of pointers. This is documentation-grade scaffolding for spec.md's "stable
// binary ABI surface" requirement, not a real cgo bridge — nothing in this
// package constructs or calls through a BinaryStep; it exists to pin down
// what such a bridge's surface would look like.
type BinaryStep struct {
	ExecuteFn func(as *AsyncSteps)
	CancelFn  func(as *AsyncSteps)
	ErrorFn   func(as *AsyncSteps, code ErrorCode)
}

// TaggedKind enumerates the value shapes a TaggedValue can hold, mirroring
// the tagged binary value format original_source's ABI headers describe:
// a small fixed set of scalar kinds, three string widths, an array of
// nested values, and an opaque externally-owned handle.
type TaggedKind int

const (
	TaggedNil TaggedKind = iota
	TaggedBool
	TaggedInt
	TaggedFloat
	TaggedStringShort
	TaggedStringLong
	TaggedStringBuffer
	TaggedArray
	TaggedOpaque
)

// TaggedValue is a self-describing value crossing the façade boundary.
// Opaque and Array values may own external resources; Release must be
// called exactly once per TaggedValue once it is no longer needed, and is
// nil for kinds that own nothing.
type TaggedValue struct {
	Kind    TaggedKind
	Bool    bool
	Int     int64
	Float   float64
	Str     string
	Array   []TaggedValue
	Opaque  any
	Release func()

	released bool
}

// Free calls Release exactly once; calling it again is a no-op. Calling
// Release directly bypasses this guard.
func (v *TaggedValue) Free() {
	if v.released {
		return
	}
	v.released = true
	if v.Release != nil {
		v.Release()
	}
}
