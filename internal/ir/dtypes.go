// Package ir implements the mutable graph intermediate representation: a
// graph of named data descriptors and symbols whose program body is a tree
// of control-flow regions over dataflow states, plus the traversal and
// substitution primitives every rewrite pass builds on.
package ir

// Typeclass identifies the scalar element type of a descriptor or symbol.
type Typeclass string

const (
	TypeBool    Typeclass = "bool"
	TypeInt32   Typeclass = "int32"
	TypeUint32  Typeclass = "uint32"
	TypeInt64   Typeclass = "int64"
	TypeFloat32 Typeclass = "float32"
	TypeFloat64 Typeclass = "float64"
)

// StorageType says where a descriptor's data physically resides.
type StorageType string

const (
	StorageDefault      StorageType = "Default"
	StorageHostHeap     StorageType = "CPU_Heap"
	StorageHostPinned   StorageType = "CPU_Pinned"
	StorageRegister     StorageType = "Register"
	StorageDeviceGlobal StorageType = "Device_Global"
	StorageDeviceShared StorageType = "Device_Shared"
)

// OnDevice reports whether the storage class is accelerator-accessible.
// Pinned host memory counts: device kernels address it directly.
func (s StorageType) OnDevice() bool {
	switch s {
	case StorageDeviceGlobal, StorageDeviceShared, StorageHostPinned:
		return true
	}
	return false
}

// ScheduleType says where and how a scope executes.
type ScheduleType string

const (
	ScheduleDefault       ScheduleType = "Default"
	ScheduleSequential    ScheduleType = "Sequential"
	ScheduleDeviceDefault ScheduleType = "Device_Default"
	ScheduleDevice        ScheduleType = "Device_Parallel"
)

// OnDevice reports whether the schedule executes on the accelerator.
func (s ScheduleType) OnDevice() bool {
	return s == ScheduleDevice || s == ScheduleDeviceDefault
}

// AllocationLifetime controls when a transient is allocated and freed.
type AllocationLifetime string

const (
	// LifetimeScope allocates on entry to the innermost enclosing scope.
	LifetimeScope AllocationLifetime = "Scope"
	// LifetimeGraph hoists allocation to the whole graph, so loops do not
	// reallocate per iteration.
	LifetimeGraph AllocationLifetime = "Graph"
)

// Language identifies the embedded dialect of a code block.
type Language string

const (
	LangPython     Language = "python" // the IR's native expression dialect
	LangCPP        Language = "cpp"
	LangGo         Language = "go"
	LangRust       Language = "rust"
	LangTypeScript Language = "typescript"
)

// ReductionOp is a memlet's write-conflict resolution operator.
type ReductionOp string

const (
	WCRNone ReductionOp = ""
	WCRSum  ReductionOp = "sum"
	WCRProd ReductionOp = "prod"
	WCRMin  ReductionOp = "min"
	WCRMax  ReductionOp = "max"
)
