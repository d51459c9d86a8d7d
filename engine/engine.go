package engine

import (
	"errors"
	"fmt"
	"os"

	"github.com/spaghettifunk/armada/engine/assets"
	"github.com/spaghettifunk/armada/engine/config"
	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/platform"
	"github.com/spaghettifunk/armada/engine/renderer"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
	"github.com/spaghettifunk/armada/engine/renderer/vulkan"
	"github.com/spaghettifunk/armada/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const (
	// seconds to block in the event loop while the window is minimized
	suspendedWait = 0.1

	jobWorkers   = 2
	jobQueueSize = 16
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    bool
	isSuspended  bool

	config   *config.Config
	events   *core.EventBus
	platform *platform.Platform
	backend  *vulkan.Backend
	renderer *renderer.Renderer
	watcher  *config.Watcher
	library  *assets.Library
	jobs     *systems.JobSystem

	width    uint32
	height   uint32
	clock    *core.Clock
	metrics  *core.FrameMetrics
	queue    metadata.RenderQueue
	lastTime float64
}

// New loads the configuration and prepares the engine. Nothing touches the
// window system or the GPU until Initialize.
func New(g *Game) (*Engine, error) {
	e := &Engine{
		currentStage: EngineStageBooting,
		gameInstance: g,
		events:       core.NewEventBus(),
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
	}

	cfg := config.Default()
	if path := g.ApplicationConfig.ConfigPath; path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			core.LogError(err.Error())
			return nil, err
		}
	}
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	e.config = cfg
	e.width = cfg.App.Width
	e.height = cfg.App.Height
	e.platform = platform.New(e.events)

	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.events.Register(core.EVENT_CODE_CONFIG_RELOADED, e, e.onConfigReloaded)

	app := e.gameInstance.ApplicationConfig
	if err := e.platform.Startup(e.config.App.Name, app.StartPosX, app.StartPosY, e.width, e.height); err != nil {
		return err
	}
	// the framebuffer can differ from the requested window size on HiDPI screens
	e.width, e.height = e.platform.FramebufferSize()

	shaders, err := assets.LoadPipelineShaders(e.config.Render.ShaderDir)
	if err != nil {
		return err
	}
	if e.backend, err = vulkan.New(e.platform, e.config, shaders); err != nil {
		return err
	}
	if e.renderer, err = renderer.New(e.backend, e.config); err != nil {
		return err
	}
	core.LogInfo("Renderer session %s started", e.renderer.Session())

	if app.ConfigPath != "" {
		if e.watcher, err = config.NewWatcher(app.ConfigPath, e.events); err != nil {
			// the engine runs fine without hot reload
			core.LogWarn("config %s is not watched: %s", app.ConfigPath, err)
		}
	}
	if app.AssetDir != "" {
		if _, statErr := os.Stat(app.AssetDir); statErr != nil {
			core.LogWarn("asset directory %s unavailable: %s", app.AssetDir, statErr)
		} else if e.library, err = assets.NewLibrary(app.AssetDir); err != nil {
			return err
		}
	}

	if e.jobs, err = systems.NewJobSystem(jobWorkers, jobQueueSize); err != nil {
		return err
	}

	if err := e.gameInstance.FnInitialize(e.renderer, e.library, e.jobs); err != nil {
		return err
	}
	if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
		return err
	}

	e.isRunning = true
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine cannot run in stage %d", e.currentStage)
	}
	e.currentStage = EngineStageRunning

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		if !e.platform.PumpMessages() {
			e.isRunning = false
			break
		}
		e.events.Drain()
		e.drainAssetChanges()
		e.jobs.Update()
		if !e.isRunning {
			break
		}

		if e.isSuspended {
			e.platform.WaitMessages(suspendedWait)
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := e.platform.GetAbsoluteTime()

		e.queue.Reset()
		if err := e.gameInstance.FnUpdate(delta, &e.queue); err != nil {
			core.LogError("Game update failed, shutting down: %s", err)
			return err
		}

		if err := e.renderer.DrawFrame(&e.queue, renderer.UpdateFunc(e.gameInstance.FnRender)); err != nil {
			if core.IsFatal(err) {
				core.LogError("Frame failed, shutting down: %s", err)
				return err
			}
			if !core.IsRecoverable(err) {
				core.LogWarn("frame dropped: %s", err)
			}
		}

		frameElapsedTime := e.platform.GetAbsoluteTime() - frameStartTime
		if e.metrics.Update(frameElapsedTime) {
			core.LogDebug("%.1f fps, %.3f ms/frame, %s", e.metrics.FPS(), e.metrics.FrameTime(), e.renderer.Stats())
		}

		e.lastTime = currentTime
	}
	return nil
}

// Quit asks the loop to stop after the current frame. It is safe to call
// from any goroutine.
func (e *Engine) Quit() {
	e.events.Post(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
}

// Shutdown releases everything in reverse order of creation. It tolerates a
// partially initialized engine.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.clock.Stop()

	var errs []error
	if e.gameInstance.FnShutdown != nil && e.renderer != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.jobs != nil {
		errs = append(errs, e.jobs.Shutdown())
	}
	if e.library != nil {
		errs = append(errs, e.library.Close())
	}
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	if e.renderer != nil {
		errs = append(errs, e.renderer.Shutdown())
	} else if e.backend != nil {
		errs = append(errs, e.backend.Shutdown())
	}
	e.events.Shutdown()
	errs = append(errs, e.platform.Shutdown())
	return errors.Join(errs...)
}

// GetFramebufferSize returns the width and height (in this order) of the
// application framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) drainAssetChanges() {
	if e.library == nil {
		return
	}
	for {
		select {
		case c := <-e.library.Changes():
			if c.Removed {
				core.LogInfo("asset removed: %s", c.Info.Path)
			} else {
				core.LogInfo("asset changed: %s (%s)", c.Info.Path, c.Info.Kind)
			}
		default:
			return
		}
	}
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	width, height := context.Data.U32[0], context.Data.U32[1]
	if width == e.width && height == e.height && !e.isSuspended {
		return false
	}
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if err := e.gameInstance.FnOnResize(width, height); err != nil {
		core.LogError(err.Error())
	}
	e.renderer.OnResize(width, height)
	return false
}

func (e *Engine) onConfigReloaded(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	r := config.ReloadableFromContext(context)
	if err := core.SetLogLevel(r.LogLevel); err != nil {
		core.LogWarn("reloaded log level ignored: %s", err)
	}
	e.renderer.SetClearColor(r.ClearColor)
	e.config.Log.Level = r.LogLevel
	e.config.Render.ClearColor = r.ClearColor
	core.LogInfo("config reloaded: log level %s, clear color %v", r.LogLevel, r.ClearColor)
	return true
}
