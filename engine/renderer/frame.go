package renderer

import (
	"fmt"

	"github.com/spaghettifunk/armada/engine/core"
)

// FrameContext is the write permit for one frame in flight. The scheduler opens
// it after the frame's fence has signaled and revokes it at submit; every write
// into a per-frame UBO or instance region has to present an open context for
// that frame.
type FrameContext struct {
	index  int
	number uint64
	open   bool
}

func (f *FrameContext) Index() int {
	return f.index
}

// Number is the monotonically increasing frame counter.
func (f *FrameContext) Number() uint64 {
	return f.number
}

func (f *FrameContext) IsOpen() bool {
	return f != nil && f.open
}

func (f *FrameContext) revoke() {
	f.open = false
}

func (f *FrameContext) writable(frame int) error {
	if f == nil || !f.open {
		return fmt.Errorf("%w: frame %d is not open for writing", core.ErrFrameNotWritable, frame)
	}
	if f.index != frame {
		return fmt.Errorf("%w: token for frame %d used on frame %d", core.ErrFrameNotWritable, f.index, frame)
	}
	return nil
}
