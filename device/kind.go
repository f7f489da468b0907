package device

// ObjectKind names a family of deduplicated device objects. Each kind has its
// own cache.
type ObjectKind int

const (
	KindSampler ObjectKind = iota
	KindBindGroupLayout
	KindPipelineLayout
	KindShaderModule
	KindAttachmentState
	KindComputePipeline
	KindRenderPipeline

	numKinds = iota
)

// Kinds lists every ObjectKind in declaration order.
var Kinds = []ObjectKind{
	KindSampler,
	KindBindGroupLayout,
	KindPipelineLayout,
	KindShaderModule,
	KindAttachmentState,
	KindComputePipeline,
	KindRenderPipeline,
}

// String returns a stable snake_case name, usable as a metric label.
func (k ObjectKind) String() string {
	switch k {
	case KindSampler:
		return "sampler"
	case KindBindGroupLayout:
		return "bind_group_layout"
	case KindPipelineLayout:
		return "pipeline_layout"
	case KindShaderModule:
		return "shader_module"
	case KindAttachmentState:
		return "attachment_state"
	case KindComputePipeline:
		return "compute_pipeline"
	case KindRenderPipeline:
		return "render_pipeline"
	default:
		return "unknown"
	}
}
