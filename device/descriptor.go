package device

import (
	"cmp"
	"math"
	"slices"

	"github.com/IvanBrykalov/objcache/internal/util"
	"github.com/jmgilman/go/errors"
)

// Limits enforced by descriptor validation.
const (
	MaxBindGroups        = 4
	MaxBindingsPerGroup  = 1000
	DefaultLodMaxClamp   = 32
	maxSamplerAnisotropy = 16
)

// ---- sampler ----

type AddressMode uint8

const (
	AddressClampToEdge AddressMode = iota
	AddressRepeat
	AddressMirrorRepeat
)

type FilterMode uint8

const (
	FilterNearest FilterMode = iota
	FilterLinear
)

type CompareFunction uint8

const (
	CompareUndefined CompareFunction = iota
	CompareNever
	CompareLess
	CompareLessEqual
	CompareGreater
	CompareGreaterEqual
	CompareEqual
	CompareNotEqual
	CompareAlways
)

// SamplerDescriptor describes a sampler. The zero value is a valid
// nearest-filtering, clamp-to-edge sampler with no LOD range; use
// DefaultSamplerDescriptor for the usual LOD range.
type SamplerDescriptor struct {
	Label string

	AddressModeU AddressMode
	AddressModeV AddressMode
	AddressModeW AddressMode
	MagFilter    FilterMode
	MinFilter    FilterMode
	MipmapFilter FilterMode
	LodMinClamp  float32
	LodMaxClamp  float32
	Compare      CompareFunction

	// MaxAnisotropy of 0 is treated as 1.
	MaxAnisotropy uint16
}

// DefaultSamplerDescriptor returns a descriptor with the full LOD range.
func DefaultSamplerDescriptor() SamplerDescriptor {
	return SamplerDescriptor{LodMaxClamp: DefaultLodMaxClamp, MaxAnisotropy: 1}
}

// normalized strips the label and applies defaults, so that the result can be
// compared with ==.
func (d SamplerDescriptor) normalized() SamplerDescriptor {
	d.Label = ""
	if d.MaxAnisotropy == 0 {
		d.MaxAnisotropy = 1
	}
	return d
}

func (d SamplerDescriptor) validate() error {
	if d.AddressModeU > AddressMirrorRepeat || d.AddressModeV > AddressMirrorRepeat || d.AddressModeW > AddressMirrorRepeat {
		return errors.New(errors.CodeInvalidInput, "sampler: invalid address mode")
	}
	if d.MagFilter > FilterLinear || d.MinFilter > FilterLinear || d.MipmapFilter > FilterLinear {
		return errors.New(errors.CodeInvalidInput, "sampler: invalid filter mode")
	}
	if d.Compare > CompareAlways {
		return errors.Newf(errors.CodeInvalidInput, "sampler: invalid compare function %d", d.Compare)
	}
	if isNaN(d.LodMinClamp) || isNaN(d.LodMaxClamp) {
		return errors.New(errors.CodeInvalidInput, "sampler: LOD clamp is NaN")
	}
	if d.LodMinClamp < 0 {
		return errors.Newf(errors.CodeInvalidInput, "sampler: lodMinClamp (%v) is less than 0", d.LodMinClamp)
	}
	if d.LodMinClamp > d.LodMaxClamp {
		return errors.Newf(errors.CodeInvalidInput,
			"sampler: lodMinClamp (%v) is greater than lodMaxClamp (%v)", d.LodMinClamp, d.LodMaxClamp)
	}
	if d.MaxAnisotropy > maxSamplerAnisotropy {
		return errors.Newf(errors.CodeInvalidInput,
			"sampler: maxAnisotropy (%d) exceeds %d", d.MaxAnisotropy, maxSamplerAnisotropy)
	}
	if d.MaxAnisotropy > 1 && (d.MagFilter != FilterLinear || d.MinFilter != FilterLinear || d.MipmapFilter != FilterLinear) {
		return errors.Newf(errors.CodeInvalidInput,
			"sampler: maxAnisotropy (%d) > 1 requires linear mag, min and mipmap filters", d.MaxAnisotropy)
	}
	return nil
}

func (d SamplerDescriptor) contentHash() uint64 {
	h := util.NewHasher(KindSampler.String())
	h.Uint32(uint32(d.AddressModeU)).Uint32(uint32(d.AddressModeV)).Uint32(uint32(d.AddressModeW))
	h.Uint32(uint32(d.MagFilter)).Uint32(uint32(d.MinFilter)).Uint32(uint32(d.MipmapFilter))
	h.Float32(d.LodMinClamp).Float32(d.LodMaxClamp)
	h.Uint32(uint32(d.Compare)).Uint32(uint32(d.MaxAnisotropy))
	return h.Sum64()
}

func isNaN(f float32) bool { return math.IsNaN(float64(f)) }

// ---- bind group layout ----

// ShaderStage is a bit set of pipeline stages.
type ShaderStage uint8

const (
	StageVertex ShaderStage = 1 << iota
	StageFragment
	StageCompute

	StageNone ShaderStage = 0
	StageAll              = StageVertex | StageFragment | StageCompute
)

type BindingType uint8

const (
	BindingUniformBuffer BindingType = iota
	BindingStorageBuffer
	BindingReadOnlyStorageBuffer
	BindingSampler
	BindingSampledTexture
	BindingStorageTexture
)

func (t BindingType) isBuffer() bool { return t <= BindingReadOnlyStorageBuffer }

// BindGroupLayoutEntry describes one binding slot.
type BindGroupLayoutEntry struct {
	Binding          uint32
	Visibility       ShaderStage
	Type             BindingType
	HasDynamicOffset bool
	MinBindingSize   uint64
}

// BindGroupLayoutDescriptor describes a bind group layout. Entry order does
// not matter: layouts with the same set of entries are the same object.
type BindGroupLayoutDescriptor struct {
	Label   string
	Entries []BindGroupLayoutEntry
}

// normalized returns the entries sorted by binding number, in a fresh slice.
func (d BindGroupLayoutDescriptor) normalized() []BindGroupLayoutEntry {
	entries := slices.Clone(d.Entries)
	slices.SortFunc(entries, func(a, b BindGroupLayoutEntry) int { return cmp.Compare(a.Binding, b.Binding) })
	return entries
}

// validateEntries expects entries sorted by binding number.
func validateEntries(entries []BindGroupLayoutEntry) error {
	for i, e := range entries {
		if e.Binding >= MaxBindingsPerGroup {
			return errors.Newf(errors.CodeInvalidInput,
				"bind group layout: binding number (%d) exceeds the maximum (%d)", e.Binding, MaxBindingsPerGroup-1)
		}
		if i > 0 && entries[i-1].Binding == e.Binding {
			return errors.Newf(errors.CodeInvalidInput, "bind group layout: binding %d declared more than once", e.Binding)
		}
		if e.Visibility&^StageAll != 0 {
			return errors.Newf(errors.CodeInvalidInput, "bind group layout: binding %d has invalid visibility %#x", e.Binding, e.Visibility)
		}
		if e.Type > BindingStorageTexture {
			return errors.Newf(errors.CodeInvalidInput, "bind group layout: binding %d has invalid type %d", e.Binding, e.Type)
		}
		if !e.Type.isBuffer() && (e.HasDynamicOffset || e.MinBindingSize != 0) {
			return errors.Newf(errors.CodeInvalidInput,
				"bind group layout: binding %d is not a buffer and cannot have a dynamic offset or min binding size", e.Binding)
		}
		if e.Type == BindingStorageBuffer && e.Visibility&StageVertex != 0 {
			return errors.Newf(errors.CodeInvalidInput,
				"bind group layout: writable storage buffer binding %d cannot be visible to the vertex stage", e.Binding)
		}
	}
	return nil
}

func entriesHash(entries []BindGroupLayoutEntry) uint64 {
	h := util.NewHasher(KindBindGroupLayout.String())
	h.Uint64(uint64(len(entries)))
	for _, e := range entries {
		h.Uint32(e.Binding).Uint32(uint32(e.Visibility)).Uint32(uint32(e.Type))
		h.Bool(e.HasDynamicOffset).Uint64(e.MinBindingSize)
	}
	return h.Sum64()
}

// ---- pipeline layout ----

// PipelineLayoutDescriptor describes a pipeline layout. The layouts must come
// from the same Device as the pipeline layout.
type PipelineLayoutDescriptor struct {
	Label            string
	BindGroupLayouts []*BindGroupLayout
}

func (d PipelineLayoutDescriptor) validate(dev *Device) error {
	if len(d.BindGroupLayouts) > MaxBindGroups {
		return errors.Newf(errors.CodeInvalidInput,
			"pipeline layout: bind group layout count (%d) is larger than the maximum allowed (%d)",
			len(d.BindGroupLayouts), MaxBindGroups)
	}
	for i, l := range d.BindGroupLayouts {
		if l == nil {
			return errors.Newf(errors.CodeInvalidInput, "pipeline layout: bind group layout %d is nil", i)
		}
		if l.dev != dev {
			return errors.Newf(errors.CodeInvalidInput, "pipeline layout: bind group layout %d belongs to another device", i)
		}
	}
	return nil
}

// layoutsHash hashes bind group layouts by identity: they are deduplicated,
// so identity and content equality coincide.
func layoutsHash(layouts []*BindGroupLayout) uint64 {
	h := util.NewHasher(KindPipelineLayout.String())
	h.Uint64(uint64(len(layouts)))
	for _, l := range layouts {
		h.Uint64(l.id)
	}
	return h.Sum64()
}

// ---- shader module ----

// ShaderModuleDescriptor carries shader source. Code is not compiled here;
// modules with identical code are the same object.
type ShaderModuleDescriptor struct {
	Label string
	Code  string
}

func (d ShaderModuleDescriptor) validate() error {
	if d.Code == "" {
		return errors.New(errors.CodeInvalidInput, "shader module: code is empty")
	}
	return nil
}

func (d ShaderModuleDescriptor) contentHash() uint64 {
	return util.NewHasher(KindShaderModule.String()).String(d.Code).Sum64()
}

// ---- attachment state ----

// MaxColorAttachments bounds AttachmentStateDescriptor.ColorFormats.
const MaxColorAttachments = 8

type TextureFormat uint8

const (
	FormatUndefined TextureFormat = iota
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatRGBA16Float
	FormatRGBA32Float
	FormatDepth16Unorm
	FormatDepth24Plus
	FormatDepth24PlusStencil8
	FormatDepth32Float
)

func (f TextureFormat) isDepthStencil() bool { return f >= FormatDepth16Unorm }

// AttachmentStateDescriptor describes the attachment formats a render
// pipeline writes to. Render pipelines with the same attachments share one
// AttachmentState.
type AttachmentStateDescriptor struct {
	ColorFormats       []TextureFormat
	DepthStencilFormat TextureFormat // FormatUndefined means none

	// SampleCount of 0 is treated as 1.
	SampleCount uint32
}

func (d AttachmentStateDescriptor) normalized() AttachmentStateDescriptor {
	d.ColorFormats = slices.Clone(d.ColorFormats)
	if d.SampleCount == 0 {
		d.SampleCount = 1
	}
	return d
}

func (d AttachmentStateDescriptor) validate() error {
	if len(d.ColorFormats) > MaxColorAttachments {
		return errors.Newf(errors.CodeInvalidInput,
			"attachment state: color attachment count (%d) exceeds the maximum (%d)", len(d.ColorFormats), MaxColorAttachments)
	}
	if len(d.ColorFormats) == 0 && d.DepthStencilFormat == FormatUndefined {
		return errors.New(errors.CodeInvalidInput, "attachment state: no attachments")
	}
	for i, f := range d.ColorFormats {
		if f == FormatUndefined || f.isDepthStencil() || f > FormatDepth32Float {
			return errors.Newf(errors.CodeInvalidInput, "attachment state: color attachment %d has invalid format %d", i, f)
		}
	}
	if d.DepthStencilFormat != FormatUndefined && (!d.DepthStencilFormat.isDepthStencil() || d.DepthStencilFormat > FormatDepth32Float) {
		return errors.Newf(errors.CodeInvalidInput, "attachment state: invalid depth stencil format %d", d.DepthStencilFormat)
	}
	if d.SampleCount != 1 && d.SampleCount != 4 {
		return errors.Newf(errors.CodeInvalidInput, "attachment state: sample count (%d) must be 1 or 4", d.SampleCount)
	}
	return nil
}

func (d AttachmentStateDescriptor) contentHash() uint64 {
	h := util.NewHasher(KindAttachmentState.String())
	h.Uint64(uint64(len(d.ColorFormats)))
	for _, f := range d.ColorFormats {
		h.Uint32(uint32(f))
	}
	h.Uint32(uint32(d.DepthStencilFormat)).Uint32(d.SampleCount)
	return h.Sum64()
}

// ---- pipelines ----

// ProgrammableStage names the entry point of a shader module.
type ProgrammableStage struct {
	Module     *ShaderModule
	EntryPoint string
}

func (s ProgrammableStage) validate(dev *Device, what string) error {
	if s.Module == nil {
		return errors.Newf(errors.CodeInvalidInput, "%s: shader module is nil", what)
	}
	if s.Module.dev != dev {
		return errors.Newf(errors.CodeInvalidInput, "%s: shader module belongs to another device", what)
	}
	if s.EntryPoint == "" {
		return errors.Newf(errors.CodeInvalidInput, "%s: entry point is empty", what)
	}
	return nil
}

func (s ProgrammableStage) hash(h *util.Hasher) {
	var id uint64
	if s.Module != nil {
		id = s.Module.id
	}
	h.Uint64(id).String(s.EntryPoint)
}

func validatePipelineLayout(dev *Device, l *PipelineLayout, what string) error {
	if l == nil {
		return errors.Newf(errors.CodeInvalidInput, "%s: pipeline layout is nil", what)
	}
	if l.dev != dev {
		return errors.Newf(errors.CodeInvalidInput, "%s: pipeline layout belongs to another device", what)
	}
	return nil
}

// ComputePipelineDescriptor describes a compute pipeline. Layout and the
// compute module must come from the same Device as the pipeline.
type ComputePipelineDescriptor struct {
	Label   string
	Layout  *PipelineLayout
	Compute ProgrammableStage
}

func (d ComputePipelineDescriptor) validate(dev *Device) error {
	if err := validatePipelineLayout(dev, d.Layout, "compute pipeline"); err != nil {
		return err
	}
	return d.Compute.validate(dev, "compute pipeline")
}

// contentHash hashes the layout and module by identity, like layoutsHash.
func (d ComputePipelineDescriptor) contentHash() uint64 {
	h := util.NewHasher(KindComputePipeline.String())
	h.Uint64(d.Layout.id)
	d.Compute.hash(h)
	return h.Sum64()
}

type PrimitiveTopology uint8

const (
	TopologyTriangleList PrimitiveTopology = iota
	TopologyTriangleStrip
	TopologyLineList
	TopologyLineStrip
	TopologyPointList
)

// RenderPipelineDescriptor describes a render pipeline. A Fragment stage with
// a nil Module means the pipeline has no fragment stage, which is only valid
// when the attachments have no color targets.
type RenderPipelineDescriptor struct {
	Label       string
	Layout      *PipelineLayout
	Vertex      ProgrammableStage
	Fragment    ProgrammableStage
	Topology    PrimitiveTopology
	Attachments AttachmentStateDescriptor
}

func (d RenderPipelineDescriptor) validate(dev *Device) error {
	if err := validatePipelineLayout(dev, d.Layout, "render pipeline"); err != nil {
		return err
	}
	if err := d.Vertex.validate(dev, "render pipeline vertex stage"); err != nil {
		return err
	}
	if d.Fragment.Module != nil || d.Fragment.EntryPoint != "" {
		if err := d.Fragment.validate(dev, "render pipeline fragment stage"); err != nil {
			return err
		}
	} else if len(d.Attachments.ColorFormats) > 0 {
		return errors.New(errors.CodeInvalidInput, "render pipeline: color attachments require a fragment stage")
	}
	if d.Topology > TopologyPointList {
		return errors.Newf(errors.CodeInvalidInput, "render pipeline: invalid primitive topology %d", d.Topology)
	}
	return d.Attachments.normalized().validate()
}

// renderPipelineHash hashes the pipeline's children by identity. The
// attachment state is resolved first so that it can take part.
func renderPipelineHash(d RenderPipelineDescriptor, att *AttachmentState) uint64 {
	h := util.NewHasher(KindRenderPipeline.String())
	h.Uint64(d.Layout.id)
	d.Vertex.hash(h)
	d.Fragment.hash(h)
	h.Uint32(uint32(d.Topology)).Uint64(att.id)
	return h.Sum64()
}
