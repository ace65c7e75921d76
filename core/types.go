package core

import (
	"encoding/binary"
	"math"
	"math/rand/v2"
)

// Vertex is one clip-space corner as the rasterizer shaders read it: four
// little-endian float32 values, vec4 aligned.
type Vertex struct {
	X, Y, Z, W float32
}

const VertexSize = 16

type Triangle [3]Vertex

const TriangleSize = 3 * VertexSize

// RandomTriangles scatters n triangles over clip space. Edge lengths stay
// below maxEdge, so a mix of big and small triangles needs maxEdge well
// above the size of a raster tile.
func RandomTriangles(rng *rand.Rand, n int, maxEdge float32) []Triangle {
	tris := make([]Triangle, n)
	for i := range tris {
		cx := rng.Float32()*2 - 1
		cy := rng.Float32()*2 - 1
		z := rng.Float32()
		for j := range tris[i] {
			tris[i][j] = Vertex{
				X: clamp(cx+(rng.Float32()-0.5)*maxEdge, -1, 1),
				Y: clamp(cy+(rng.Float32()-0.5)*maxEdge, -1, 1),
				Z: z,
				W: 1,
			}
		}
	}
	return tris
}

// EncodeTriangles lays triangles out back to back in shader order.
func EncodeTriangles(tris []Triangle) []byte {
	buf := make([]byte, 0, len(tris)*TriangleSize)
	for _, t := range tris {
		for _, v := range t {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.X))
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.Y))
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.Z))
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.W))
		}
	}
	return buf
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
