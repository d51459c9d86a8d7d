package testbed

import (
	"fmt"
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/armada/engine"
	"github.com/spaghettifunk/armada/engine/assets"
	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/math"
	"github.com/spaghettifunk/armada/engine/renderer"
	"github.com/spaghettifunk/armada/engine/renderer/components"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
	"github.com/spaghettifunk/armada/engine/systems"
)

const (
	fleetSize     = 12
	maxBullets    = 256
	fontAsset     = "fonts/ubuntu_mono_21.fnt"
	skyboxAsset   = "textures/skybox.png"
	titleText     = "ARMADA"
	panelMargin   = 16
	panelPadding  = 12
	checkerSize   = 64
	checkerSquare = 8
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	WorldCamera *components.Camera
	renderer    *renderer.Renderer
	library     *assets.Library
	fleet       *fleet
	lighting    metadata.LightingEnvironment

	width  uint32
	height uint32

	planet     metadata.InstanceHandle
	shield     metadata.InstanceHandle
	skybox     metadata.InstanceHandle
	hasSkybox  bool
	panel      metadata.InstanceHandle
	title      metadata.InstanceHandle
	hasTitle   bool
	titleSize  math.Vec2
	flagship   metadata.MaterialSetID
	cameraTime float64
}

func NewTestGame(configPath, assetDir string) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				StartPosX:  100,
				StartPosY:  100,
				ConfigPath: configPath,
				AssetDir:   assetDir,
			},
			State: &gameState{
				WorldCamera: components.NewCamera(),
				lighting:    metadata.DefaultLighting(),
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(r *renderer.Renderer, library *assets.Library, jobs *systems.JobSystem) error {
	core.LogInfo("initializing testbed...")
	state := g.state()
	state.renderer = r
	state.library = library

	if err := g.createPools(r); err != nil {
		return err
	}
	if err := g.createScene(r); err != nil {
		return err
	}
	if err := g.loadSkybox(r, jobs); err != nil {
		return err
	}
	if err := g.loadOverlay(r, jobs); err != nil {
		// the scene still renders without the title
		core.LogWarn("overlay disabled: %s", err)
	}

	state.WorldCamera.SetPosition(math.Vec3{0, 18, 42})
	state.WorldCamera.LookAt(math.Vec3{})
	state.lighting.Point = append(state.lighting.Point, metadata.PointLight{
		Position:  math.Vec3{0, 0, 0},
		Color:     math.Vec3{1, 0.6, 0.3},
		Intensity: 2,
		Range:     30,
	})
	return nil
}

func (g *TestGame) createPools(r *renderer.Renderer) error {
	hull := metadata.NewPBRMaterial("hull", math.Vec3{0.55, 0.58, 0.62}, 0.8, 0.35)
	turret := metadata.NewPBRMaterial("turret", math.Vec3{0.2, 0.22, 0.25}, 0.9, 0.5)
	planet := metadata.NewPBRMaterial("planet", math.Vec3{0.25, 0.45, 0.8}, 0, 0.9)
	shield := &metadata.PBRMaterial{
		Name:        "shield",
		BaseColor:   math.Vec4{0.3, 0.7, 1, 0.25},
		Emission:    math.Vec4{0.2, 0.5, 1, 0.4},
		Roughness:   0.2,
		Alpha:       0.35,
		Transparent: true,
	}
	bullet := &metadata.BillboardMaterial{
		Name:     "bullet",
		Color:    math.Vec4{1, 0.8, 0.4, 1},
		Emission: math.Vec4{1, 0.6, 0.2, 2},
	}

	pools := []struct {
		meshType  metadata.MeshType
		mesh      *metadata.Mesh
		materials []metadata.Material
		capacity  uint32
	}{
		{metadata.MeshTypeFrigate, assets.Cube(1), []metadata.Material{hull}, fleetSize},
		{metadata.MeshTypeTurretBase, assets.UVSphere(0.5, 16, 8), []metadata.Material{turret}, fleetSize},
		{metadata.MeshTypeSphere, assets.UVSphere(1, 48, 24), []metadata.Material{planet, shield}, 2},
		{metadata.MeshTypeBillboardBullet, assets.Quad(1, 1), []metadata.Material{bullet}, maxBullets},
	}
	for _, p := range pools {
		if _, err := r.CreateMeshPool(p.meshType, p.mesh, p.materials, p.capacity); err != nil {
			return err
		}
	}
	return nil
}

func (g *TestGame) createScene(r *renderer.Renderer) error {
	state := g.state()

	state.fleet = newFleet(r, maxBullets)
	for i := 0; i < fleetSize; i++ {
		radius := float32(14 + 4*(i%3))
		phase := float32(i) * 2 * stdmath.Pi / fleetSize
		if err := state.fleet.addShip(radius, phase); err != nil {
			return err
		}
	}

	var err error
	if state.planet, err = r.AllocateFromPool(metadata.MeshTypeSphere); err != nil {
		return err
	}
	if state.shield, err = r.AllocateFromPool(metadata.MeshTypeSphere); err != nil {
		return err
	}

	// the flagship hull is drawn with a checker texture instead of the pool material
	checker, err := r.UploadTexture(checkerPixels(checkerSize, checkerSquare), checkerSize, checkerSize, 4, metadata.TextureRoleBaseColor)
	if err != nil {
		return err
	}
	if state.flagship, err = r.CreateMaterialDescriptorSetWithTexture(checker); err != nil {
		return err
	}
	red := math.Vec4{1, 0.3, 0.25, 1}
	if err := r.UpdatePoolInstance(state.fleet.ships[0].turret, renderer.InstanceParams{Color: &red}); err != nil {
		return err
	}

	return nil
}

// loadSkybox decodes the panorama on a worker. Without one the skybox shows a
// gradient.
func (g *TestGame) loadSkybox(r *renderer.Renderer, jobs *systems.JobSystem) error {
	state := g.state()
	if state.library == nil {
		return g.createSkybox(r, nil)
	}
	path, err := state.library.Path(skyboxAsset)
	if err != nil {
		return g.createSkybox(r, nil)
	}
	return jobs.Submit(systems.Job{
		Name: skyboxAsset,
		Run: func() (interface{}, error) {
			return assets.LoadImage(path)
		},
		OnComplete: func(result interface{}) error {
			return g.createSkybox(r, result.(*assets.Image))
		},
		OnFailure: func(error) {
			if !state.hasSkybox {
				if err := g.createSkybox(r, nil); err != nil {
					core.LogError("skybox: %s", err)
				}
			}
		},
	})
}

func (g *TestGame) createSkybox(r *renderer.Renderer, panorama *assets.Image) error {
	state := g.state()
	material := &metadata.SkyboxMaterial{Name: "skybox", Tint: math.Vec4{1, 1, 1, 1}}
	if panorama != nil {
		tex, err := r.UploadTexture(panorama.Pixels, panorama.Width, panorama.Height, panorama.Channels, metadata.TextureRoleBaseColor)
		if err != nil {
			return err
		}
		material.Texture = tex
	}
	if _, err := r.CreateMeshPool(metadata.MeshTypeSkybox, assets.SkyboxCube(), []metadata.Material{material}, 1); err != nil {
		return err
	}
	var err error
	if state.skybox, err = r.AllocateFromPool(metadata.MeshTypeSkybox); err != nil {
		return err
	}
	state.hasSkybox = true
	return nil
}

type overlayAssets struct {
	font  *assets.Font
	atlas *assets.Image
}

// loadOverlay parses the title font and decodes its atlas on a worker; the
// title shows up once the upload ran on the render thread.
func (g *TestGame) loadOverlay(r *renderer.Renderer, jobs *systems.JobSystem) error {
	state := g.state()
	if state.library == nil {
		return fmt.Errorf("no asset library")
	}
	path, err := state.library.Path(fontAsset)
	if err != nil {
		return err
	}
	return jobs.Submit(systems.Job{
		Name: fontAsset,
		Run: func() (interface{}, error) {
			font, err := assets.LoadFont(path)
			if err != nil {
				return nil, err
			}
			atlas, err := assets.LoadImage(font.AtlasPath)
			if err != nil {
				return nil, err
			}
			return &overlayAssets{font: font, atlas: atlas}, nil
		},
		OnComplete: func(result interface{}) error {
			return g.createOverlay(r, result.(*overlayAssets))
		},
	})
}

func (g *TestGame) createOverlay(r *renderer.Renderer, loaded *overlayAssets) error {
	state := g.state()
	font, atlas := loaded.font, loaded.atlas
	tex, err := r.UploadTexture(atlas.Pixels, atlas.Width, atlas.Height, atlas.Channels, metadata.TextureRoleFontAtlas)
	if err != nil {
		return err
	}

	text := &metadata.UIMaterial{Name: "title", Color: math.Vec4{0.9, 0.95, 1, 1}, Text: true, Texture: tex}
	if _, err := r.CreateMeshPool(metadata.MeshTypeTextQuad, assets.BuildTextMesh(font, titleText, 1), []metadata.Material{text}, 1); err != nil {
		return err
	}
	panel := &metadata.UIMaterial{Name: "panel", Color: math.Vec4{0.05, 0.08, 0.12, 0.7}}
	if _, err := r.CreateMeshPool(metadata.MeshTypeUIPanel, assets.Quad(1, 1), []metadata.Material{panel}, 1); err != nil {
		return err
	}

	if state.title, err = r.AllocateFromPool(metadata.MeshTypeTextQuad); err != nil {
		return err
	}
	if state.panel, err = r.AllocateFromPool(metadata.MeshTypeUIPanel); err != nil {
		return err
	}
	w, h := font.MeasureText(titleText)
	state.titleSize = math.Vec2{float32(w), float32(h)}
	state.hasTitle = true
	return nil
}

func (g *TestGame) Update(deltaTime float64, queue *metadata.RenderQueue) error {
	state := g.state()

	// slow orbit of the camera around the fleet
	state.cameraTime += deltaTime
	a := state.cameraTime * 0.05
	state.WorldCamera.SetPosition(math.Vec3{42 * float32(stdmath.Sin(a)), 18, 42 * float32(stdmath.Cos(a))})
	state.WorldCamera.LookAt(math.Vec3{})
	state.WorldCamera.FillQueue(queue)

	state.fleet.update(deltaTime)
	state.fleet.fill(queue, &state.flagship)

	spin := mgl32.QuatRotate(float32(state.cameraTime*0.1), math.WorldUp)
	planetPos := math.Vec3{0, 0, 0}
	queue.Push(entryFor(state.planet, math.TRS(planetPos, spin, math.Vec3{6, 6, 6}), metadata.PipelineClassOpaquePBR, planetPos))
	queue.Push(entryFor(state.shield, math.TRS(planetPos, spin, math.Vec3{7.5, 7.5, 7.5}), metadata.PipelineClassTransparentPBR, planetPos))

	if state.hasSkybox {
		queue.Push(entryFor(state.skybox, math.Mat4Identity(), metadata.PipelineClassSkybox, state.WorldCamera.Position))
	}

	if state.hasTitle {
		panelSize := state.titleSize.Add(math.Vec2{2 * panelPadding, 2 * panelPadding})
		// the quad is centered on its origin, the text mesh starts at its top left
		panelCenter := math.Vec3{panelMargin + panelSize.X()/2, panelMargin + panelSize.Y()/2, 0}
		panel := entryFor(state.panel, math.TRS(panelCenter, mgl32.QuatIdent(), math.Vec3{panelSize.X(), panelSize.Y(), 1}), metadata.PipelineClassUIPanel, math.Vec3{})
		title := entryFor(state.title, math.Translation(math.Vec3{panelMargin + panelPadding, panelMargin + panelPadding, 0}), metadata.PipelineClassUIText, math.Vec3{})
		title.Layer = 1
		queue.Push(panel)
		queue.Push(title)
	}
	return nil
}

func entryFor(h metadata.InstanceHandle, model math.Mat4, class metadata.PipelineClass, position math.Vec3) metadata.RenderEntry {
	return metadata.RenderEntry{
		MeshType:      h.MeshType,
		InstanceSlot:  h.Slot,
		Generation:    h.Generation,
		Model:         model,
		PipelineClass: class,
		WorldPosition: position,
	}
}

func (g *TestGame) Render(frame *renderer.FrameContext, ubo *renderer.UBOManager) error {
	state := g.state()
	extent := state.renderer.SwapchainExtent()
	if err := ubo.UpdateCamera(state.WorldCamera.UBO(extent)); err != nil {
		return err
	}
	return ubo.UpdateLighting(&state.lighting)
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.state()
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed...")
	return nil
}

// checkerPixels is an RGBA checkerboard of size x size texels.
func checkerPixels(size, square int) []byte {
	pixels := make([]byte, size*size*4)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := byte(70)
			if (x/square+y/square)%2 == 0 {
				v = 220
			}
			i := (y*size + x) * 4
			pixels[i], pixels[i+1], pixels[i+2], pixels[i+3] = v, v, v, 255
		}
	}
	return pixels
}
