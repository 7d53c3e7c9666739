package kernel

// ErrorKind classifies a kernel Error so that callers can decide how to
// degrade (e.g. terminate the offending task) without comparing against
// every sentinel error that a package exports.
type ErrorKind uint8

const (
	// KindUnknown is the zero value and is used by errors that do not fall
	// into any of the categories below.
	KindUnknown ErrorKind = iota

	// CapacityExhausted is reported when an allocation request cannot be
	// satisfied, either because there are not enough free frames or not
	// enough virtual address space left.
	CapacityExhausted

	// RangeError is reported when an operation targets addresses or frames
	// outside the range managed by the callee.
	RangeError

	// NotFound is reported when a frame or address does not belong to any
	// known pool or region.
	NotFound

	// ProtocolViolation is reported when the caller breaks the usage
	// contract of an operation (e.g. releasing a frame that does not start
	// an allocated run).
	ProtocolViolation

	// IllegalAccess is reported when a fault address is not covered by any
	// reservation.
	IllegalAccess
)

var kindNames = [...]string{
	KindUnknown:       "unknown",
	CapacityExhausted: "capacity exhausted",
	RangeError:        "range error",
	NotFound:          "not found",
	ProtocolViolation: "protocol violation",
	IllegalAccess:     "illegal access",
}

// String returns a human readable name for the error kind.
func (k ErrorKind) String() string {
	if int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// Error describes a kernel error. All kernel errors must be defined as global
// variables that are pointers to the Error structure. This requirement stems
// from the fact that the Go allocator is not available to us so we cannot use
// errors.New.
type Error struct {
	// The module where the error occurred.
	Module string

	// The category of the error.
	Kind ErrorKind

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
