package assets

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/armada/engine/core"
	"github.com/spaghettifunk/armada/engine/renderer/metadata"
)

// ShaderPair is the SPIR-V of one pipeline's vertex and fragment stages.
type ShaderPair struct {
	Name     string
	Vertex   []uint32
	Fragment []uint32
}

// ShaderSet maps a shader base name such as "standard_pbr" to its stages.
type ShaderSet map[string]ShaderPair

func shaderPath(dir, name, stage string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.spv", name, stage))
}

// LoadShaderSet reads <dir>/<name>_vert.spv and <dir>/<name>_frag.spv for
// every name. Any missing or malformed file fails the whole set.
func LoadShaderSet(dir string, names []string) (ShaderSet, error) {
	set := make(ShaderSet, len(names))
	for _, name := range names {
		vert, err := readSPIRV(shaderPath(dir, name, "vert"))
		if err != nil {
			return nil, err
		}
		frag, err := readSPIRV(shaderPath(dir, name, "frag"))
		if err != nil {
			return nil, err
		}
		set[name] = ShaderPair{Name: name, Vertex: vert, Fragment: frag}
		core.LogDebug("Shader %s loaded (%d + %d words)", name, len(vert), len(frag))
	}
	return set, nil
}

// LoadPipelineShaders loads the pair of every pipeline class.
func LoadPipelineShaders(dir string) (ShaderSet, error) {
	classes := metadata.AllPipelineClasses()
	names := make([]string, 0, len(classes))
	for _, c := range classes {
		names = append(names, c.ShaderName())
	}
	return LoadShaderSet(dir, names)
}

func readSPIRV(path string) ([]uint32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrShaderIO, err)
	}
	code, err := bytesToBytecode(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrShaderIO, path, err)
	}
	return code, nil
}

const spirvMagic = 0x07230203

// bytesToBytecode reinterprets little-endian SPIR-V bytes as words.
func bytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("size %d is not a positive multiple of 4", len(b))
	}
	code := make([]uint32, len(b)/4)
	for i := range code {
		j := i * 4
		code[i] = uint32(b[j]) | uint32(b[j+1])<<8 | uint32(b[j+2])<<16 | uint32(b[j+3])<<24
	}
	if code[0] != spirvMagic {
		return nil, fmt.Errorf("bad magic %#08x", code[0])
	}
	return code, nil
}
