package metadata

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

const (
	PUSH_CONSTANT_ALIGNMENT = 4
	UPDATE_BUFFER_ALIGNMENT = 4
	UPDATE_BUFFER_MAX_SIZE  = 65536
)

// IsAligned reports whether operand is a multiple of granularity, which must be a power of two.
func IsAligned(operand, granularity uint64) bool {
	return granularity == 0 || operand&(granularity-1) == 0
}

// CheckUpdateBuffer validates an inline update of size bytes at offset into
// a buffer of bufferSize bytes.
func CheckUpdateBuffer(bufferSize, offset, size uint64) error {
	switch {
	case size == 0:
		return fmt.Errorf("empty buffer update: %w", core.ErrInvalidArgument)
	case !IsAligned(offset, UPDATE_BUFFER_ALIGNMENT) || !IsAligned(size, UPDATE_BUFFER_ALIGNMENT):
		return fmt.Errorf("buffer update %d@%d is not %d byte aligned: %w", size, offset, UPDATE_BUFFER_ALIGNMENT, core.ErrInvalidArgument)
	case size > UPDATE_BUFFER_MAX_SIZE:
		return fmt.Errorf("buffer update of %d bytes exceeds %d: %w", size, UPDATE_BUFFER_MAX_SIZE, core.ErrInvalidArgument)
	case offset+size > bufferSize:
		return fmt.Errorf("buffer update %d@%d overruns a %d byte buffer: %w", size, offset, bufferSize, core.ErrInvalidArgument)
	}
	return nil
}

// CheckPushConstants validates a push of size bytes at offset for stages
// against the push constant ranges of a pipeline layout. Every stage pushed
// must have a range covering the bytes, and every range touched must be
// pushed with all of its stages.
func CheckPushConstants(ranges []PushConstantRange, stages ShaderStageFlags, offset, size uint32) error {
	if size == 0 || stages == 0 {
		return fmt.Errorf("empty push constant update: %w", core.ErrInvalidArgument)
	}
	if !IsAligned(uint64(offset), PUSH_CONSTANT_ALIGNMENT) || !IsAligned(uint64(size), PUSH_CONSTANT_ALIGNMENT) {
		return fmt.Errorf("push constants %d@%d are not %d byte aligned: %w", size, offset, PUSH_CONSTANT_ALIGNMENT, core.ErrInvalidArgument)
	}
	end := uint64(offset) + uint64(size)

	var covered ShaderStageFlags
	for _, r := range ranges {
		rangeEnd := uint64(r.Offset) + uint64(r.Size)
		if uint64(r.Offset) <= uint64(offset) && end <= rangeEnd {
			covered |= r.StageFlags & stages
		}
		overlaps := uint64(offset) < rangeEnd && uint64(r.Offset) < end
		if overlaps && !HasFlags(stages, r.StageFlags) {
			return fmt.Errorf("push constants %d@%d overlap a range for stages %#x not pushed: %w",
				size, offset, uint32(r.StageFlags), core.ErrInvalidArgument)
		}
	}
	if covered != stages {
		return fmt.Errorf("push constants %d@%d for stages %#x fall outside the layout's ranges: %w",
			size, offset, uint32(stages&^covered), core.ErrInvalidArgument)
	}
	return nil
}
