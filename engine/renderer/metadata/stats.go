package metadata

import "fmt"

/** @brief Counters of the last processed render queue. */
type FrameStats struct {
	EntriesProcessed uint32
	DrawCalls        uint32
	PoolsTouched     uint32
	BytesUploaded    uint64
	PipelineBinds    uint32
	StaleSkipped     uint32
	OverflowDropped  uint32
	MismatchSkipped  uint32
}

func (s FrameStats) String() string {
	return fmt.Sprintf("entries=%d draws=%d pools=%d bytes=%d binds=%d stale=%d overflow=%d mismatch=%d",
		s.EntriesProcessed, s.DrawCalls, s.PoolsTouched, s.BytesUploaded,
		s.PipelineBinds, s.StaleSkipped, s.OverflowDropped, s.MismatchSkipped)
}
