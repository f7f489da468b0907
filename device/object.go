package device

import (
	"slices"

	"github.com/IvanBrykalov/objcache/cache"
	"github.com/IvanBrykalov/objcache/refcount"
	"github.com/IvanBrykalov/objcache/weakref"
	"go.uber.org/zap"
)

// object is the state shared by every device object. A blueprint is an
// object with only dev and hash set; it is never reference counted.
type object struct {
	refcount.Counted
	weakref.Base

	dev    *Device
	kind   ObjectKind
	id     uint64
	hash   uint64
	handle Handle
	label  string
}

// Handle returns the backend resource handle.
func (o *object) Handle() Handle { return o.handle }

// Label returns the debug label given when the object was created. Objects
// shared through the cache keep the label of the first creator.
func (o *object) Label() string { return o.label }

// ContentHash returns the hash the object is cached under.
func (o *object) ContentHash() uint64 { return o.hash }

// Device returns the owning device.
func (o *object) Device() *Device { return o.dev }

// destroyNative frees the backend resource. Must run after the object was
// uncached and before its weak reference is invalidated.
func (o *object) destroyNative() {
	o.dev.backend.Destroy(o.kind, o.handle)
	o.dev.log.Debug("destroyed object",
		zap.Stringer("kind", o.kind),
		zap.Uint64("hash", o.hash),
		zap.Uint64("handle", uint64(o.handle)),
	)
}

// Sampler is a deduplicated sampler.
type Sampler struct {
	object
	cache.Cacheable[*Sampler]

	desc SamplerDescriptor
}

// Descriptor returns the normalized descriptor, with the object's label.
func (s *Sampler) Descriptor() SamplerDescriptor {
	d := s.desc
	d.Label = s.label
	return d
}

func (s *Sampler) destroy() {
	s.Uncache(s)
	s.destroyNative()
	s.InvalidateWeakRef()
	s.AssertUncached()
}

// BindGroupLayout is a deduplicated bind group layout.
type BindGroupLayout struct {
	object
	cache.Cacheable[*BindGroupLayout]

	entries []BindGroupLayoutEntry // sorted by binding
}

// Entries returns a copy of the layout entries, sorted by binding number.
func (l *BindGroupLayout) Entries() []BindGroupLayoutEntry { return slices.Clone(l.entries) }

func (l *BindGroupLayout) destroy() {
	l.Uncache(l)
	l.destroyNative()
	l.InvalidateWeakRef()
	l.AssertUncached()
}

// PipelineLayout is a deduplicated pipeline layout. It holds a reference to
// each of its bind group layouts for as long as it lives.
type PipelineLayout struct {
	object
	cache.Cacheable[*PipelineLayout]

	layouts []*BindGroupLayout
}

// BindGroupLayout returns the layout of group i without taking a reference.
func (p *PipelineLayout) BindGroupLayout(i int) *BindGroupLayout { return p.layouts[i] }

// NumBindGroups returns the number of bind groups.
func (p *PipelineLayout) NumBindGroups() int { return len(p.layouts) }

func (p *PipelineLayout) destroy() {
	p.Uncache(p)
	p.destroyNative()
	for _, l := range p.layouts {
		l.Release()
	}
	p.InvalidateWeakRef()
	p.AssertUncached()
}

// ShaderModule is a deduplicated shader module.
type ShaderModule struct {
	object
	cache.Cacheable[*ShaderModule]

	code string
}

// Code returns the shader source.
func (m *ShaderModule) Code() string { return m.code }

func (m *ShaderModule) destroy() {
	m.Uncache(m)
	m.destroyNative()
	m.InvalidateWeakRef()
	m.AssertUncached()
}

// AttachmentState is a deduplicated set of render attachment formats.
type AttachmentState struct {
	object
	cache.Cacheable[*AttachmentState]

	desc AttachmentStateDescriptor // normalized
}

// ColorFormats returns a copy of the color attachment formats.
func (a *AttachmentState) ColorFormats() []TextureFormat { return slices.Clone(a.desc.ColorFormats) }

// DepthStencilFormat returns the depth stencil format, or FormatUndefined.
func (a *AttachmentState) DepthStencilFormat() TextureFormat { return a.desc.DepthStencilFormat }

// SampleCount returns the sample count.
func (a *AttachmentState) SampleCount() uint32 { return a.desc.SampleCount }

func (a *AttachmentState) destroy() {
	a.Uncache(a)
	a.destroyNative()
	a.InvalidateWeakRef()
	a.AssertUncached()
}

// ComputePipeline is a deduplicated compute pipeline. It holds a reference to
// its layout and module for as long as it lives.
type ComputePipeline struct {
	object
	cache.Cacheable[*ComputePipeline]

	layout  *PipelineLayout
	compute ProgrammableStage
}

// Layout returns the pipeline layout without taking a reference.
func (p *ComputePipeline) Layout() *PipelineLayout { return p.layout }

// Compute returns the compute stage. The module reference stays with p.
func (p *ComputePipeline) Compute() ProgrammableStage { return p.compute }

func (p *ComputePipeline) destroy() {
	p.Uncache(p)
	p.destroyNative()
	p.compute.Module.Release()
	p.layout.Release()
	p.InvalidateWeakRef()
	p.AssertUncached()
}

// RenderPipeline is a deduplicated render pipeline. It holds a reference to
// its layout, its modules and its attachment state for as long as it lives.
type RenderPipeline struct {
	object
	cache.Cacheable[*RenderPipeline]

	layout      *PipelineLayout
	vertex      ProgrammableStage
	fragment    ProgrammableStage
	topology    PrimitiveTopology
	attachments *AttachmentState
}

// Layout returns the pipeline layout without taking a reference.
func (p *RenderPipeline) Layout() *PipelineLayout { return p.layout }

// Vertex returns the vertex stage.
func (p *RenderPipeline) Vertex() ProgrammableStage { return p.vertex }

// Fragment returns the fragment stage; its Module is nil when there is none.
func (p *RenderPipeline) Fragment() ProgrammableStage { return p.fragment }

// Topology returns the primitive topology.
func (p *RenderPipeline) Topology() PrimitiveTopology { return p.topology }

// AttachmentState returns the shared attachment state without taking a reference.
func (p *RenderPipeline) AttachmentState() *AttachmentState { return p.attachments }

func (p *RenderPipeline) destroy() {
	p.Uncache(p)
	p.destroyNative()
	p.attachments.Release()
	if p.fragment.Module != nil {
		p.fragment.Module.Release()
	}
	p.vertex.Module.Release()
	p.layout.Release()
	p.InvalidateWeakRef()
	p.AssertUncached()
}

// ---- cache functions ----

func samplerOptions() cache.Options[*Sampler] {
	return cache.Options[*Sampler]{
		Name:  KindSampler.String(),
		Hash:  func(s *Sampler) uint64 { return s.hash },
		Equal: func(a, b *Sampler) bool { return a.desc == b.desc },
	}
}

func bindGroupLayoutOptions() cache.Options[*BindGroupLayout] {
	return cache.Options[*BindGroupLayout]{
		Name:  KindBindGroupLayout.String(),
		Hash:  func(l *BindGroupLayout) uint64 { return l.hash },
		Equal: func(a, b *BindGroupLayout) bool { return slices.Equal(a.entries, b.entries) },
	}
}

func pipelineLayoutOptions() cache.Options[*PipelineLayout] {
	return cache.Options[*PipelineLayout]{
		Name:  KindPipelineLayout.String(),
		Hash:  func(p *PipelineLayout) uint64 { return p.hash },
		Equal: func(a, b *PipelineLayout) bool { return slices.Equal(a.layouts, b.layouts) },
	}
}

func shaderModuleOptions() cache.Options[*ShaderModule] {
	return cache.Options[*ShaderModule]{
		Name:  KindShaderModule.String(),
		Hash:  func(m *ShaderModule) uint64 { return m.hash },
		Equal: func(a, b *ShaderModule) bool { return a.code == b.code },
	}
}

func attachmentStateOptions() cache.Options[*AttachmentState] {
	return cache.Options[*AttachmentState]{
		Name: KindAttachmentState.String(),
		Hash: func(a *AttachmentState) uint64 { return a.hash },
		Equal: func(a, b *AttachmentState) bool {
			return slices.Equal(a.desc.ColorFormats, b.desc.ColorFormats) &&
				a.desc.DepthStencilFormat == b.desc.DepthStencilFormat &&
				a.desc.SampleCount == b.desc.SampleCount
		},
	}
}

func computePipelineOptions() cache.Options[*ComputePipeline] {
	return cache.Options[*ComputePipeline]{
		Name: KindComputePipeline.String(),
		Hash: func(p *ComputePipeline) uint64 { return p.hash },
		Equal: func(a, b *ComputePipeline) bool {
			return a.layout == b.layout && a.compute == b.compute
		},
	}
}

func renderPipelineOptions() cache.Options[*RenderPipeline] {
	return cache.Options[*RenderPipeline]{
		Name: KindRenderPipeline.String(),
		Hash: func(p *RenderPipeline) uint64 { return p.hash },
		Equal: func(a, b *RenderPipeline) bool {
			return a.layout == b.layout && a.vertex == b.vertex && a.fragment == b.fragment &&
				a.topology == b.topology && a.attachments == b.attachments
		},
	}
}
