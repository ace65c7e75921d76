package renderer

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"frame-engine/frame"
)

const spirvMagic = 0x07230203

var ErrInvalidSPIRV = errors.New("not a SPIR-V module")

// ShaderFiles names the precompiled SPIR-V compute shader of each pipeline.
type ShaderFiles [frame.PipelineCount]string

// DefaultShaderFiles expects one .spv file per pipeline in dir.
func DefaultShaderFiles(dir string) ShaderFiles {
	var s ShaderFiles
	s[frame.PipelineClear] = filepath.Join(dir, "clear.spv")
	s[frame.PipelineRasterizeBigDepth] = filepath.Join(dir, "rasterize_big_depth.spv")
	s[frame.PipelineRasterizeSmallDepth] = filepath.Join(dir, "rasterize_small_depth.spv")
	s[frame.PipelineRasterizeBigColor] = filepath.Join(dir, "rasterize_big_color.spv")
	s[frame.PipelineRasterizeSmallColor] = filepath.Join(dir, "rasterize_small_color.spv")
	return s
}

// Load reads every shader.
func (s ShaderFiles) Load() ([frame.PipelineCount][]uint32, error) {
	var code [frame.PipelineCount][]uint32
	for k, path := range s {
		words, err := LoadSPIRV(path)
		if err != nil {
			return code, errors.Wrapf(err, "failed to load %v shader", frame.PipelineKind(k))
		}
		code[k] = words
	}
	return code, nil
}

func LoadSPIRV(path string) ([]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeSPIRV(data)
}

// DecodeSPIRV converts a little-endian SPIR-V binary to words.
func DecodeSPIRV(data []byte) ([]uint32, error) {
	if len(data) < 4 || len(data)%4 != 0 {
		return nil, errors.Wrapf(ErrInvalidSPIRV, "size %d", len(data))
	}

	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, errors.Wrapf(ErrInvalidSPIRV, "magic %#08x", words[0])
	}
	return words, nil
}
