package engine

import (
	"github.com/spaghettifunk/armada/engine/assets"
	"github.com/spaghettifunk/armada/engine/renderer"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
	"github.com/spaghettifunk/armada/engine/systems"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Initialize creates the game's pools, textures and materials. library is nil
// when no asset directory is configured. Callbacks of jobs submitted to jobs
// run on the render thread between frames.
type Initialize func(r *renderer.Renderer, library *assets.Library, jobs *systems.JobSystem) error

// Update advances the simulation and fills queue with this frame's entries.
type Update func(deltaTime float64, queue *metadata.RenderQueue) error

// Render writes the frame's camera, lighting and material blocks. It runs
// inside DrawFrame once the frame slot is writable.
type Render func(frame *renderer.FrameContext, ubo *renderer.UBOManager) error

type OnResize func(width uint32, height uint32) error
type Shutdown func() error
