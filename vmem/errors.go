package vmem

import "fmt"

// ErrorCode categorizes vmem failures per spec.md §7's Core B taxonomy.
type ErrorCode string

// ErrCodeAddressOutOfRange is the only recoverable error class spec.md §7
// names for Core B: "the allocator is designed to always succeed given
// NUM_FRAMES >= TablesDepth + 1".
const ErrCodeAddressOutOfRange ErrorCode = "address out of range"

// Error is the structured diagnostic Read/Write write to the vmem logger
// when they reject an address; callers themselves only get a bool result.
type Error struct {
	Op      string
	Address uint64
	Code    ErrorCode
	Msg     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (address=%d)", e.Op, e.Msg, e.Address)
}

func newAddressError(op string, address uint64) *Error {
	return &Error{Op: op, Address: address, Code: ErrCodeAddressOutOfRange, Msg: "virtual address out of range"}
}
