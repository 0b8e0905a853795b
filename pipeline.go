package portability

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/italicsjenga/portability/driver"
)

// ShaderStageInfo carries one stage's pre-compiled code. The layer takes
// shader binaries directly at pipeline creation; module objects of the
// target API collapse into this.
type ShaderStageInfo struct {
	Stage      ShaderStageFlags
	Code       []byte
	EntryPoint string
}

// ComputePipelineCreateInfo mirrors the target API.
type ComputePipelineCreateInfo struct {
	Stage  ShaderStageInfo
	Layout PipelineLayout
	Cache  PipelineCache
}

// PrimitiveTopology for graphics pipelines.
type PrimitiveTopology uint32

const (
	TopologyPointList PrimitiveTopology = iota
	TopologyLineList
	TopologyLineStrip
	TopologyTriangleList
	TopologyTriangleStrip
	TopologyTriangleFan
)

// VertexBindingDescription and VertexAttributeDescription describe the
// vertex fetch layout.
type VertexBindingDescription struct {
	Binding uint32
	Stride  uint32
}

type VertexAttributeDescription struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

// GraphicsPipelineCreateInfo carries the graphics state the layer
// translates.
type GraphicsPipelineCreateInfo struct {
	Stages           []ShaderStageInfo
	VertexBindings   []VertexBindingDescription
	VertexAttributes []VertexAttributeDescription
	Topology         PrimitiveTopology
	Layout           PipelineLayout
	RenderPass       RenderPass
	Subpass          uint32
	Cache            PipelineCache
}

type pipelineObject struct {
	device  Device
	p       driver.Pipeline
	shaders []driver.Shader
	compute bool
	layout  *pipelineLayoutState
}

// CreateComputePipeline builds a compute pipeline from one compute stage.
func (d Device) CreateComputePipeline(info *ComputePipelineCreateInfo) (Pipeline, error) {
	obj, err := deviceFor(d)
	if err != nil {
		return 0, err
	}
	if !obj.caps.Compute {
		return 0, Error(ErrorFeatureNotPresent)
	}
	if info == nil || len(info.Stage.Code) == 0 || info.Stage.Stage != ShaderStageCompute {
		return 0, Error(ErrorValidationFailed)
	}
	lo, err := resolve[*pipelineLayoutObject](Handle(info.Layout), KindPipelineLayout)
	if err != nil {
		return 0, err
	}

	digest := pipelineDigest("comp", lo.state.key, info.Stage.Code)
	noteCacheEntry(info.Cache, digest)

	shader, err := obj.dev.CreateShader(info.Stage.Code)
	if err != nil {
		Logger().Warn("shader creation failed", "err", err)
		return 0, Error(ErrorInitializationFailed)
	}
	p, err := obj.dev.CreatePipeline(driver.PipelineDesc{
		Compute:  true,
		Shaders:  []driver.Shader{shader},
		PushSize: lo.state.pushSize,
		Layout:   layoutSlots(lo.state),
	})
	if err != nil {
		shader.Destroy()
		Logger().Warn("pipeline creation failed", "err", err)
		return 0, Error(ErrorInitializationFailed)
	}

	po := &pipelineObject{device: d, p: p, shaders: []driver.Shader{shader}, compute: true, layout: lo.state}
	return Pipeline(obj.reg.allocate(KindPipeline, po)), nil
}

// CreateGraphicsPipeline builds a graphics pipeline. Backends without
// graphics support refuse with ErrorFeatureNotPresent before anything is
// translated.
func (d Device) CreateGraphicsPipeline(info *GraphicsPipelineCreateInfo) (Pipeline, error) {
	obj, err := deviceFor(d)
	if err != nil {
		return 0, err
	}
	if !obj.caps.Graphics {
		return 0, Error(ErrorFeatureNotPresent)
	}
	if info == nil || len(info.Stages) == 0 {
		return 0, Error(ErrorValidationFailed)
	}
	lo, err := resolve[*pipelineLayoutObject](Handle(info.Layout), KindPipelineLayout)
	if err != nil {
		return 0, err
	}
	rpo, err := resolve[*renderPassObject](Handle(info.RenderPass), KindRenderPass)
	if err != nil {
		return 0, err
	}
	if int(info.Subpass) >= len(rpo.state.subpasses) {
		return 0, Error(ErrorValidationFailed)
	}

	var sb strings.Builder
	for _, s := range info.Stages {
		fmt.Fprintf(&sb, "%d:", s.Stage)
		sb.Write(s.Code)
	}
	digest := pipelineDigest("gfx", lo.state.key+rpo.state.key, []byte(sb.String()))
	noteCacheEntry(info.Cache, digest)

	var shaders []driver.Shader
	for _, s := range info.Stages {
		if len(s.Code) == 0 {
			destroyShaders(shaders)
			return 0, Error(ErrorValidationFailed)
		}
		sh, err := obj.dev.CreateShader(s.Code)
		if err != nil {
			destroyShaders(shaders)
			Logger().Warn("shader creation failed", "err", err)
			return 0, Error(ErrorInitializationFailed)
		}
		shaders = append(shaders, sh)
	}

	p, err := obj.dev.CreatePipeline(driver.PipelineDesc{
		Compute:  false,
		Shaders:  shaders,
		PushSize: lo.state.pushSize,
		Layout:   layoutSlots(lo.state),
	})
	if err != nil {
		destroyShaders(shaders)
		Logger().Warn("pipeline creation failed", "err", err)
		return 0, Error(ErrorInitializationFailed)
	}

	po := &pipelineObject{device: d, p: p, shaders: shaders, compute: false, layout: lo.state}
	return Pipeline(obj.reg.allocate(KindPipeline, po)), nil
}

// layoutSlots flattens the set layouts into the coarse slot list backends
// consume.
func layoutSlots(st *pipelineLayoutState) []driver.BindingSlot {
	var out []driver.BindingSlot
	for set, dsl := range st.setLayouts {
		for _, b := range dsl.bindings {
			out = append(out, driver.BindingSlot{
				Set:     uint32(set),
				Binding: b.Binding,
				Kind:    descriptorKind(b.Type),
				Count:   b.Count,
			})
		}
	}
	return out
}

func descriptorKind(t DescriptorType) driver.BindingKind {
	switch t {
	case DescriptorTypeStorageBuffer, DescriptorTypeStorageBufferDynamic, DescriptorTypeStorageTexelBuffer:
		return driver.BindStorageBuffer
	case DescriptorTypeStorageImage:
		return driver.BindStorageImage
	case DescriptorTypeSampledImage, DescriptorTypeCombinedImageSampler, DescriptorTypeInputAttachment:
		return driver.BindSampledImage
	}
	return driver.BindUniformBuffer
}

func destroyShaders(shaders []driver.Shader) {
	for _, s := range shaders {
		s.Destroy()
	}
}

func pipelineDigest(kind, stateKey string, code []byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte(stateKey))
	h.Write(code)
	return hex.EncodeToString(h.Sum(nil))
}

// Destroy releases the pipeline and its shaders. In-flight submissions
// keep the backend objects alive.
func (p Pipeline) Destroy() error {
	po, err := resolve[*pipelineObject](Handle(p), KindPipeline)
	if err != nil {
		return err
	}
	reg := currentRegistry()
	if reg == nil {
		return Error(ErrorInitializationFailed)
	}
	reg.destroy(Handle(p), KindPipeline, func() {
		po.p.Destroy()
		destroyShaders(po.shaders)
	})
	return nil
}
