package metadata

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

/** @brief Status code reported by a backend. Values match VkResult. */
type Result int32

const (
	RESULT_SUCCESS                     Result = 0
	RESULT_NOT_READY                   Result = 1
	RESULT_TIMEOUT                     Result = 2
	RESULT_EVENT_SET                   Result = 3
	RESULT_EVENT_RESET                 Result = 4
	RESULT_INCOMPLETE                  Result = 5
	RESULT_ERROR_OUT_OF_HOST_MEMORY    Result = -1
	RESULT_ERROR_OUT_OF_DEVICE_MEMORY  Result = -2
	RESULT_ERROR_INITIALIZATION_FAILED Result = -3
	RESULT_ERROR_DEVICE_LOST           Result = -4
	RESULT_ERROR_UNKNOWN               Result = -13
	RESULT_ERROR_SURFACE_LOST          Result = -1000000000
	RESULT_SUBOPTIMAL                  Result = 1000001003
	RESULT_ERROR_OUT_OF_DATE           Result = -1000001004
	RESULT_ERROR_VALIDATION_FAILED     Result = -1000011001
)

var resultNames = map[Result]string{
	RESULT_SUCCESS:                     "SUCCESS",
	RESULT_NOT_READY:                   "NOT_READY",
	RESULT_TIMEOUT:                     "TIMEOUT",
	RESULT_EVENT_SET:                   "EVENT_SET",
	RESULT_EVENT_RESET:                 "EVENT_RESET",
	RESULT_INCOMPLETE:                  "INCOMPLETE",
	RESULT_ERROR_OUT_OF_HOST_MEMORY:    "ERROR_OUT_OF_HOST_MEMORY",
	RESULT_ERROR_OUT_OF_DEVICE_MEMORY:  "ERROR_OUT_OF_DEVICE_MEMORY",
	RESULT_ERROR_INITIALIZATION_FAILED: "ERROR_INITIALIZATION_FAILED",
	RESULT_ERROR_DEVICE_LOST:           "ERROR_DEVICE_LOST",
	RESULT_ERROR_UNKNOWN:               "ERROR_UNKNOWN",
	RESULT_ERROR_SURFACE_LOST:          "ERROR_SURFACE_LOST",
	RESULT_SUBOPTIMAL:                  "SUBOPTIMAL",
	RESULT_ERROR_OUT_OF_DATE:           "ERROR_OUT_OF_DATE",
	RESULT_ERROR_VALIDATION_FAILED:     "ERROR_VALIDATION_FAILED",
}

func (r Result) String() string {
	if n, ok := resultNames[r]; ok {
		return n
	}
	return fmt.Sprintf("RESULT(%d)", int32(r))
}

// IsSuccess is true for every non-negative code.
func (r Result) IsSuccess() bool {
	return r >= 0
}

// Err maps a failing code onto the core error taxonomy. Success codes return nil.
func (r Result) Err() error {
	if r.IsSuccess() {
		return nil
	}
	var base error
	switch r {
	case RESULT_ERROR_DEVICE_LOST:
		base = core.ErrDeviceLost
	case RESULT_ERROR_OUT_OF_HOST_MEMORY:
		base = core.ErrOutOfHostMemory
	case RESULT_ERROR_OUT_OF_DEVICE_MEMORY:
		base = core.ErrOutOfDeviceMemory
	case RESULT_ERROR_OUT_OF_DATE:
		base = core.ErrOutOfDate
	case RESULT_ERROR_SURFACE_LOST:
		base = core.ErrSurfaceLost
	case RESULT_ERROR_INITIALIZATION_FAILED:
		base = core.ErrInitialization
	default:
		base = core.ErrUnknown
	}
	return fmt.Errorf("%w (%s)", base, r)
}
