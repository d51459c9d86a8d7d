package assets

import (
	"fmt"
	"path/filepath"

	"github.com/fzipp/bmfont"

	"github.com/spaghettifunk/armada/engine/math"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

type Glyph struct {
	X, Y, Width, Height int
	XOffset, YOffset    int
	XAdvance            int
}

type kerningPair struct {
	first, second rune
}

// Font is a single-page AngelCode bitmap font.
type Font struct {
	Face        string
	LineHeight  int
	Base        int
	AtlasWidth  int
	AtlasHeight int
	// AtlasPath is the page image, resolved relative to the .fnt file.
	AtlasPath string

	glyphs  map[rune]Glyph
	kerning map[kerningPair]int
}

func LoadFont(path string) (*Font, error) {
	bf, err := bmfont.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading font %s: %w", path, err)
	}
	d := bf.Descriptor
	if len(d.Pages) != 1 {
		return nil, fmt.Errorf("font %s has %d pages, only single page atlases are supported", path, len(d.Pages))
	}
	f := &Font{
		Face:        d.Info.Face,
		LineHeight:  d.Common.LineHeight,
		Base:        d.Common.Base,
		AtlasWidth:  d.Common.ScaleW,
		AtlasHeight: d.Common.ScaleH,
		glyphs:      make(map[rune]Glyph, len(d.Chars)),
		kerning:     make(map[kerningPair]int, len(d.Kerning)),
	}
	for _, p := range d.Pages {
		f.AtlasPath = filepath.Join(filepath.Dir(path), p.File)
	}
	for _, c := range d.Chars {
		f.glyphs[c.ID] = Glyph{
			X: c.X, Y: c.Y, Width: c.Width, Height: c.Height,
			XOffset: c.XOffset, YOffset: c.YOffset, XAdvance: c.XAdvance,
		}
	}
	for p, k := range d.Kerning {
		f.kerning[kerningPair{p.First, p.Second}] = k.Amount
	}
	return f, nil
}

func (f *Font) Glyph(r rune) (Glyph, bool) {
	g, ok := f.glyphs[r]
	return g, ok
}

func (f *Font) Kerning(first, second rune) int {
	return f.kerning[kerningPair{first, second}]
}

// BuildTextMesh lays text out in pixels from the top-left corner, y down, one
// quad per visible glyph with atlas UVs. Runes missing from the font fall
// back to '?' and are skipped if that is missing too.
func BuildTextMesh(f *Font, text string, scale float32) *metadata.Mesh {
	mesh := &metadata.Mesh{Name: "text:" + text}
	aw, ah := float32(f.AtlasWidth), float32(f.AtlasHeight)
	normal := math.Vec3{0, 0, 1}
	tangent := math.Vec3{1, 0, 0}

	cursorX, cursorY := 0, 0
	var prev rune = -1
	for _, r := range text {
		if r == '\n' {
			cursorX = 0
			cursorY += f.LineHeight
			prev = -1
			continue
		}
		g, ok := f.glyphs[r]
		if !ok {
			if g, ok = f.glyphs['?']; !ok {
				continue
			}
		}
		if prev >= 0 {
			cursorX += f.Kerning(prev, r)
		}
		prev = r

		if g.Width > 0 && g.Height > 0 {
			x0 := float32(cursorX+g.XOffset) * scale
			y0 := float32(cursorY+g.YOffset) * scale
			x1 := x0 + float32(g.Width)*scale
			y1 := y0 + float32(g.Height)*scale
			u0, v0 := float32(g.X)/aw, float32(g.Y)/ah
			u1, v1 := float32(g.X+g.Width)/aw, float32(g.Y+g.Height)/ah

			base := uint32(len(mesh.Vertices))
			mesh.Vertices = append(mesh.Vertices,
				metadata.Vertex{Position: math.Vec3{x0, y0, 0}, Normal: normal, Texcoord: math.Vec2{u0, v0}, Tangent: tangent},
				metadata.Vertex{Position: math.Vec3{x1, y0, 0}, Normal: normal, Texcoord: math.Vec2{u1, v0}, Tangent: tangent},
				metadata.Vertex{Position: math.Vec3{x1, y1, 0}, Normal: normal, Texcoord: math.Vec2{u1, v1}, Tangent: tangent},
				metadata.Vertex{Position: math.Vec3{x0, y1, 0}, Normal: normal, Texcoord: math.Vec2{u0, v1}, Tangent: tangent},
			)
			mesh.Indices = append(mesh.Indices, base, base+1, base+2, base, base+2, base+3)
		}
		cursorX += g.XAdvance
	}
	return mesh
}

// MeasureText returns the pixel width of the widest line and the total height.
func (f *Font) MeasureText(text string) (width, height int) {
	line, lines := 0, 1
	var prev rune = -1
	for _, r := range text {
		if r == '\n' {
			width = max(width, line)
			line, prev = 0, -1
			lines++
			continue
		}
		g, ok := f.glyphs[r]
		if !ok {
			if g, ok = f.glyphs['?']; !ok {
				continue
			}
		}
		if prev >= 0 {
			line += f.Kerning(prev, r)
		}
		prev = r
		line += g.XAdvance
	}
	return max(width, line), lines * f.LineHeight
}
