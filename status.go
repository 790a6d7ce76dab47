package hwenc

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Status is a vendor completion code. Zero is success, negative values are
// errors and positive values are warnings.
type Status int32

const (
	StatusNone                 Status = 0
	StatusUnknown              Status = -1
	StatusNullPtr              Status = -2
	StatusUnsupported          Status = -3
	StatusMemoryAlloc          Status = -4
	StatusNotEnoughBuffer      Status = -5
	StatusInvalidHandle        Status = -6
	StatusLockMemory           Status = -7
	StatusNotInitialized       Status = -8
	StatusNotFound             Status = -9
	StatusMoreData             Status = -10
	StatusMoreSurface          Status = -11
	StatusAborted              Status = -12
	StatusDeviceLost           Status = -13
	StatusIncompatibleParam    Status = -14
	StatusInvalidVideoParam    Status = -15
	StatusUndefinedBehavior    Status = -16
	StatusDeviceFailed         Status = -17
	StatusMoreBitstream        Status = -18
	StatusGPUHang              Status = -21
	StatusReallocSurface       Status = -22
	StatusWrnInExecution       Status = 1
	StatusWrnDeviceBusy        Status = 2
	StatusWrnVideoParamChanged Status = 3
	StatusWrnPartialAccel      Status = 4
	StatusWrnIncompatibleParam Status = 5
	StatusWrnValueNotChanged   Status = 6
	StatusWrnOutOfRange        Status = 7
	StatusWrnFilterSkipped     Status = 10
	StatusNonePartialOutput    Status = 12
	StatusInvalidData          Status = -100 // short write to a sink; not a vendor code
)

var statusNames = map[Status]string{
	StatusNone:                 "none",
	StatusUnknown:              "unknown",
	StatusNullPtr:              "null pointer",
	StatusUnsupported:          "unsupported",
	StatusMemoryAlloc:          "memory allocation failed",
	StatusNotEnoughBuffer:      "not enough buffer",
	StatusInvalidHandle:        "invalid handle",
	StatusLockMemory:           "lock memory failed",
	StatusNotInitialized:       "not initialized",
	StatusNotFound:             "not found",
	StatusMoreData:             "more data",
	StatusMoreSurface:          "more surface",
	StatusAborted:              "aborted",
	StatusDeviceLost:           "device lost",
	StatusIncompatibleParam:    "incompatible video param",
	StatusInvalidVideoParam:    "invalid video param",
	StatusUndefinedBehavior:    "undefined behavior",
	StatusDeviceFailed:         "device failed",
	StatusMoreBitstream:        "more bitstream",
	StatusGPUHang:              "gpu hang",
	StatusReallocSurface:       "realloc surface",
	StatusWrnInExecution:       "in execution",
	StatusWrnDeviceBusy:        "device busy",
	StatusWrnVideoParamChanged: "video param changed",
	StatusWrnPartialAccel:      "partial acceleration",
	StatusWrnIncompatibleParam: "incompatible video param resolved",
	StatusWrnValueNotChanged:   "value not changed",
	StatusWrnOutOfRange:        "out of range",
	StatusWrnFilterSkipped:     "filter skipped",
	StatusNonePartialOutput:    "partial output",
	StatusInvalidData:          "invalid data",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "status " + strconv.Itoa(int(s))
}

// Error implements error so a Status can be used as a sentinel with errors.Is.
func (s Status) Error() string {
	return fmt.Sprintf("%s (%d)", s.String(), int32(s))
}

// IsWarning reports whether the status is a non-fatal warning.
func (s Status) IsWarning() bool { return s > 0 }

// IsError reports whether the status is an error.
func (s Status) IsError() bool { return s < 0 }

// Common errors
var (
	ErrMoreData          error = StatusMoreData
	ErrSurfaceNotFound         = fmt.Errorf("no free surface: %w", StatusNotFound)
	ErrGeometryMismatch        = fmt.Errorf("surface geometry mismatch between stages: %w", StatusUnknown)
	ErrShortWrite              = fmt.Errorf("%w: %w", io.ErrShortWrite, StatusInvalidData)
	ErrSyncTimeout             = errors.New("sync operation timed out")
	ErrSyncPointConsumed       = errors.New("sync point already consumed")
	ErrPipelineClosed          = errors.New("pipeline closed")
)

// StatusError is a non-success Status attributed to a stage operation.
type StatusError struct {
	Op     string    // Operation, e.g. "Init" or "ProcessAsync"
	Stage  StageRole // Stage the operation ran on
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Stage, e.Op, e.Status.Error())
}

func (e *StatusError) Unwrap() error { return e.Status }

// newStatusError returns nil for StatusNone and a *StatusError otherwise.
func newStatusError(stage StageRole, op string, s Status) error {
	if s == StatusNone {
		return nil
	}
	return &StatusError{Op: op, Stage: stage, Status: s}
}

// StatusOf extracts the Status carried by err.
// It returns StatusNone for nil and StatusUnknown for foreign errors.
func StatusOf(err error) Status {
	if err == nil {
		return StatusNone
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusUnknown
}

// IsWarning reports whether err carries only a warning status.
func IsWarning(err error) bool {
	return err != nil && StatusOf(err).IsWarning()
}
