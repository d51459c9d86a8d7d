package metadata

import "fmt"

// InstanceHandle names one slot of one mesh pool. It is valid while its
// generation matches the slot's.
type InstanceHandle struct {
	MeshType   MeshType
	Slot       uint32
	Generation uint32
}

func (h InstanceHandle) String() string {
	return fmt.Sprintf("%s[%d]#%d", h.MeshType, h.Slot, h.Generation)
}
