package frame

import (
	"fmt"

	"frame-engine/gpu"
)

// Scope selects a descriptor set.
type Scope int

const (
	ScopeFrame Scope = iota
	ScopeDrawCall
	ScopeCount
)

func (s Scope) String() string {
	switch s {
	case ScopeFrame:
		return "Frame"
	case ScopeDrawCall:
		return "DrawCall"
	}
	return fmt.Sprintf("Scope(%d)", int(s))
}

type PipelineKind int

const (
	PipelineClear PipelineKind = iota
	PipelineRasterizeBigDepth
	PipelineRasterizeSmallDepth
	PipelineRasterizeBigColor
	PipelineRasterizeSmallColor
	PipelineCount
)

func (k PipelineKind) String() string {
	switch k {
	case PipelineClear:
		return "Clear"
	case PipelineRasterizeBigDepth:
		return "RasterizeBigDepth"
	case PipelineRasterizeSmallDepth:
		return "RasterizeSmallDepth"
	case PipelineRasterizeBigColor:
		return "RasterizeBigColor"
	case PipelineRasterizeSmallColor:
		return "RasterizeSmallColor"
	}
	return fmt.Sprintf("PipelineKind(%d)", int(k))
}

// Bindings are the descriptor sets and compute pipelines a frame records
// against. They are built elsewhere; a frame only writes into the sets.
type Bindings struct {
	Sets      [ScopeCount]gpu.DescriptorSet
	Layouts   [PipelineCount]gpu.PipelineLayout
	Pipelines [PipelineCount]gpu.Pipeline
}

// bind binds pipeline k and the given scopes at consecutive set indices.
func (b *Bindings) bind(cmd gpu.CommandBuffer, k PipelineKind, scopes ...Scope) {
	cmd.BindPipeline(b.Pipelines[k])
	for i, s := range scopes {
		cmd.BindDescriptorSet(b.Layouts[k], uint32(i), b.Sets[s])
	}
}
