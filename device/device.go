// Package device shows the content-less cache in its intended setting: a GPU
// device that deduplicates immutable objects (samplers, layouts, shader
// modules, attachment states, pipelines) for as long as anyone holds them.
//
// Every GetOrCreate*, Create* and AddOrGetCached* call returns an object
// carrying one reference owned by the caller. Equal descriptors yield the same object while it is alive; once
// the last reference is released the object uncaches itself, frees its backend
// resource, and a later equal request creates a fresh one.
//
//	d := device.New(device.Options{Logger: logger})
//	defer d.Close()
//
//	s, err := d.GetOrCreateSampler(device.DefaultSamplerDescriptor())
//	if err != nil { ... }
//	defer s.Release()
package device

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/objcache/cache"
	"github.com/IvanBrykalov/objcache/internal/singleflight"
	"github.com/IvanBrykalov/objcache/refcount"
	"github.com/jmgilman/go/errors"
	"go.uber.org/zap"
)

// Options configures a Device. Zero values are safe:
//   - nil Logger  => zap.NewNop()
//   - nil Backend => &NullBackend{}
//   - nil Metrics => cache.NoopMetrics for every kind
type Options struct {
	Logger  *zap.Logger
	Backend Backend
	// Metrics returns the metrics sink for the cache of one object kind.
	Metrics func(kind ObjectKind) cache.Metrics
}

// Device owns one content-less cache per object kind.
type Device struct {
	log     *zap.Logger
	backend Backend
	ids     atomic.Uint64

	// Read-held by every call that may insert into a cache, write-held by
	// Close, so no insert ever reaches a closed cache.
	mu     sync.RWMutex
	closed bool

	// in-flight shader module creations, keyed by code
	compiles singleflight.Group[string, *ShaderModule]

	samplers         *cache.ContentLessCache[*Sampler]
	bindGroupLayouts *cache.ContentLessCache[*BindGroupLayout]
	pipelineLayouts  *cache.ContentLessCache[*PipelineLayout]
	shaderModules    *cache.ContentLessCache[*ShaderModule]
	attachmentStates *cache.ContentLessCache[*AttachmentState]
	computePipelines *cache.ContentLessCache[*ComputePipeline]
	renderPipelines  *cache.ContentLessCache[*RenderPipeline]
}

// New returns a Device with empty caches.
func New(opt Options) *Device {
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.Backend == nil {
		opt.Backend = &NullBackend{}
	}
	metrics := func(k ObjectKind) cache.Metrics {
		if opt.Metrics == nil {
			return nil
		}
		return opt.Metrics(k)
	}

	d := &Device{
		log:     opt.Logger.Named("device"),
		backend: opt.Backend,
	}
	d.samplers = cache.New(withAmbient(samplerOptions(), d.log, metrics(KindSampler)))
	d.bindGroupLayouts = cache.New(withAmbient(bindGroupLayoutOptions(), d.log, metrics(KindBindGroupLayout)))
	d.pipelineLayouts = cache.New(withAmbient(pipelineLayoutOptions(), d.log, metrics(KindPipelineLayout)))
	d.shaderModules = cache.New(withAmbient(shaderModuleOptions(), d.log, metrics(KindShaderModule)))
	d.attachmentStates = cache.New(withAmbient(attachmentStateOptions(), d.log, metrics(KindAttachmentState)))
	d.computePipelines = cache.New(withAmbient(computePipelineOptions(), d.log, metrics(KindComputePipeline)))
	d.renderPipelines = cache.New(withAmbient(renderPipelineOptions(), d.log, metrics(KindRenderPipeline)))
	return d
}

func withAmbient[T any](opt cache.Options[T], log *zap.Logger, m cache.Metrics) cache.Options[T] {
	opt.Logger = log
	opt.Metrics = m
	return opt
}

// GetOrCreateSampler returns the sampler matching desc, creating it on a miss.
// The label of desc does not take part in matching.
func (d *Device) GetOrCreateSampler(desc SamplerDescriptor) (*Sampler, error) {
	norm := desc.normalized()
	if err := norm.validate(); err != nil {
		return nil, err
	}
	blueprint := &Sampler{object: object{dev: d, hash: norm.contentHash()}, desc: norm}

	return getOrCreate(d, d.samplers, blueprint, func() (*Sampler, error) {
		s := &Sampler{desc: norm}
		if err := d.initObject(&s.object, s, KindSampler, blueprint.hash, desc.Label, s.destroy); err != nil {
			return nil, err
		}
		return s, nil
	})
}

// GetOrCreateBindGroupLayout returns the layout matching desc, creating it on
// a miss. Entry order and the label do not take part in matching.
func (d *Device) GetOrCreateBindGroupLayout(desc BindGroupLayoutDescriptor) (*BindGroupLayout, error) {
	entries := desc.normalized()
	if err := validateEntries(entries); err != nil {
		return nil, err
	}
	blueprint := &BindGroupLayout{object: object{dev: d, hash: entriesHash(entries)}, entries: entries}

	return getOrCreate(d, d.bindGroupLayouts, blueprint, func() (*BindGroupLayout, error) {
		l := &BindGroupLayout{entries: entries}
		if err := d.initObject(&l.object, l, KindBindGroupLayout, blueprint.hash, desc.Label, l.destroy); err != nil {
			return nil, err
		}
		return l, nil
	})
}

// GetOrCreatePipelineLayout returns the layout matching desc, creating it on a
// miss. A created layout takes its own reference to each bind group layout;
// the caller keeps the references it passed in.
func (d *Device) GetOrCreatePipelineLayout(desc PipelineLayoutDescriptor) (*PipelineLayout, error) {
	if err := desc.validate(d); err != nil {
		return nil, err
	}
	layouts := append([]*BindGroupLayout(nil), desc.BindGroupLayouts...)
	blueprint := &PipelineLayout{object: object{dev: d, hash: layoutsHash(layouts)}, layouts: layouts}

	return getOrCreate(d, d.pipelineLayouts, blueprint, func() (*PipelineLayout, error) {
		p := &PipelineLayout{layouts: layouts}
		if err := d.initObject(&p.object, p, KindPipelineLayout, blueprint.hash, desc.Label, p.destroy); err != nil {
			return nil, err
		}
		for _, l := range layouts {
			l.Reference()
		}
		return p, nil
	})
}

// GetOrCreateShaderModule returns the module whose code matches desc, creating
// it on a miss. Concurrent misses on the same code share one backend creation.
func (d *Device) GetOrCreateShaderModule(desc ShaderModuleDescriptor) (*ShaderModule, error) {
	if err := desc.validate(); err != nil {
		return nil, err
	}
	blueprint := &ShaderModule{object: object{dev: d, hash: desc.contentHash()}, code: desc.Code}
	create := func() (*ShaderModule, error) {
		m := &ShaderModule{code: desc.Code}
		if err := d.initObject(&m.object, m, KindShaderModule, blueprint.hash, desc.Label, m.destroy); err != nil {
			return nil, err
		}
		return m, nil
	}

	for {
		if m, ok := d.shaderModules.Find(blueprint); ok {
			return m, nil
		}
		m, leader, err := d.compiles.Do(context.Background(), desc.Code, func() (*ShaderModule, error) {
			return getOrCreate(d, d.shaderModules, blueprint, create)
		})
		if err != nil || leader {
			return m, err
		}
		// The leader owns m; take our own reference through the cache. If the
		// leader already dropped it, go around again.
	}
}

// GetOrCreateAttachmentState returns the attachment state matching desc,
// creating it on a miss.
func (d *Device) GetOrCreateAttachmentState(desc AttachmentStateDescriptor) (*AttachmentState, error) {
	norm := desc.normalized()
	if err := norm.validate(); err != nil {
		return nil, err
	}
	blueprint := &AttachmentState{object: object{dev: d, hash: norm.contentHash()}, desc: norm}

	return getOrCreate(d, d.attachmentStates, blueprint, func() (*AttachmentState, error) {
		a := &AttachmentState{desc: norm}
		if err := d.initObject(&a.object, a, KindAttachmentState, blueprint.hash, "", a.destroy); err != nil {
			return nil, err
		}
		return a, nil
	})
}

// CreateComputePipeline returns the pipeline matching desc, building it on a
// miss. Two goroutines missing on equal content may both build; the cache
// keeps the first and the other one is released.
func (d *Device) CreateComputePipeline(desc ComputePipelineDescriptor) (*ComputePipeline, error) {
	if err := desc.validate(d); err != nil {
		return nil, err
	}
	if err := d.alive(); err != nil {
		return nil, err
	}
	blueprint := &ComputePipeline{
		object:  object{dev: d, hash: desc.contentHash()},
		layout:  desc.Layout,
		compute: desc.Compute,
	}
	if p, ok := d.computePipelines.Find(blueprint); ok {
		return p, nil
	}
	p, err := d.newComputePipeline(desc, blueprint.hash)
	if err != nil {
		return nil, err
	}
	return d.AddOrGetCachedComputePipeline(p)
}

// BuildComputePipeline creates a compute pipeline without consulting the
// cache, for callers that compile pipelines off the request path. The result
// is private until it is passed to AddOrGetCachedComputePipeline.
func (d *Device) BuildComputePipeline(desc ComputePipelineDescriptor) (*ComputePipeline, error) {
	if err := desc.validate(d); err != nil {
		return nil, err
	}
	if err := d.alive(); err != nil {
		return nil, err
	}
	return d.newComputePipeline(desc, desc.contentHash())
}

// AddOrGetCachedComputePipeline makes p the canonical pipeline for its
// content, or returns the one already cached. The caller's reference to p
// moves into the call: when an equal pipeline exists p is released. On error
// p has been released too.
func (d *Device) AddOrGetCachedComputePipeline(p *ComputePipeline) (*ComputePipeline, error) {
	if p == nil {
		return nil, errors.New(errors.CodeInvalidInput, "compute pipeline is nil")
	}
	if p.dev != d {
		p.Release()
		return nil, errors.New(errors.CodeInvalidInput, "compute pipeline belongs to another device")
	}
	return addOrGetCached(d, d.computePipelines, p)
}

func (d *Device) newComputePipeline(desc ComputePipelineDescriptor, hash uint64) (*ComputePipeline, error) {
	p := &ComputePipeline{layout: desc.Layout, compute: desc.Compute}
	if err := d.initObject(&p.object, p, KindComputePipeline, hash, desc.Label, p.destroy); err != nil {
		return nil, err
	}
	desc.Layout.Reference()
	desc.Compute.Module.Reference()
	return p, nil
}

// CreateRenderPipeline returns the pipeline matching desc, building it on a
// miss. The attachment formats are deduplicated through
// GetOrCreateAttachmentState and shared by every pipeline using them.
func (d *Device) CreateRenderPipeline(desc RenderPipelineDescriptor) (*RenderPipeline, error) {
	if err := desc.validate(d); err != nil {
		return nil, err
	}
	att, err := d.GetOrCreateAttachmentState(desc.Attachments)
	if err != nil {
		return nil, err
	}
	blueprint := &RenderPipeline{
		object:      object{dev: d, hash: renderPipelineHash(desc, att)},
		layout:      desc.Layout,
		vertex:      desc.Vertex,
		fragment:    desc.Fragment,
		topology:    desc.Topology,
		attachments: att,
	}
	if p, ok := d.renderPipelines.Find(blueprint); ok {
		att.Release()
		return p, nil
	}
	p, err := d.newRenderPipeline(desc, att, blueprint.hash)
	if err != nil {
		return nil, err
	}
	return d.AddOrGetCachedRenderPipeline(p)
}

// BuildRenderPipeline creates a render pipeline without consulting the
// pipeline cache. Its attachment state is still shared.
func (d *Device) BuildRenderPipeline(desc RenderPipelineDescriptor) (*RenderPipeline, error) {
	if err := desc.validate(d); err != nil {
		return nil, err
	}
	att, err := d.GetOrCreateAttachmentState(desc.Attachments)
	if err != nil {
		return nil, err
	}
	return d.newRenderPipeline(desc, att, renderPipelineHash(desc, att))
}

// AddOrGetCachedRenderPipeline is AddOrGetCachedComputePipeline for render
// pipelines.
func (d *Device) AddOrGetCachedRenderPipeline(p *RenderPipeline) (*RenderPipeline, error) {
	if p == nil {
		return nil, errors.New(errors.CodeInvalidInput, "render pipeline is nil")
	}
	if p.dev != d {
		p.Release()
		return nil, errors.New(errors.CodeInvalidInput, "render pipeline belongs to another device")
	}
	return addOrGetCached(d, d.renderPipelines, p)
}

// newRenderPipeline takes over the caller's reference to att, also on error.
func (d *Device) newRenderPipeline(desc RenderPipelineDescriptor, att *AttachmentState, hash uint64) (*RenderPipeline, error) {
	p := &RenderPipeline{
		layout:      desc.Layout,
		vertex:      desc.Vertex,
		fragment:    desc.Fragment,
		topology:    desc.Topology,
		attachments: att,
	}
	if err := d.initObject(&p.object, p, KindRenderPipeline, hash, desc.Label, p.destroy); err != nil {
		att.Release()
		return nil, err
	}
	desc.Layout.Reference()
	desc.Vertex.Module.Reference()
	if desc.Fragment.Module != nil {
		desc.Fragment.Module.Reference()
	}
	return p, nil
}

// getOrCreate runs the lookup, create, insert sequence shared by the
// GetOrCreate* calls. Two goroutines missing on equal content may both
// create; Insert keeps the first and the loser's object is released right away.
func getOrCreate[T cache.Object[T]](d *Device, c *cache.ContentLessCache[T], blueprint T, create func() (T, error)) (T, error) {
	var zero T
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return zero, errClosed()
	}
	if obj, ok := c.Find(blueprint); ok {
		return obj, nil
	}
	obj, err := create()
	if err != nil {
		return zero, err
	}
	res, inserted := c.Insert(obj)
	if !inserted {
		obj.Release()
	}
	return res, nil
}

// addOrGetCached inserts obj, which the caller built, with no lookup first.
// obj's reference moves into the call.
func addOrGetCached[T cache.Object[T]](d *Device, c *cache.ContentLessCache[T], obj T) (T, error) {
	var zero T
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		obj.Release()
		return zero, errClosed()
	}
	res, inserted := c.Insert(obj)
	if !inserted {
		obj.Release()
	}
	return res, nil
}

func (d *Device) alive() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errClosed()
	}
	return nil
}

func errClosed() error {
	return errors.New(errors.CodeUnavailable, "device is closed")
}

// initObject allocates the backend resource and makes o live with one
// reference. self is the most-derived object embedding o.
func (d *Device) initObject(o *object, self refcount.TryIncrementer, kind ObjectKind, hash uint64, label string, destroy func()) error {
	h, err := d.backend.Create(kind, hash)
	if err != nil {
		return errors.WithContext(
			errors.Wrapf(err, errors.CodeInternal, "backend failed to create %s", kind),
			"kind", kind.String())
	}
	o.dev = d
	o.kind = kind
	o.id = d.ids.Add(1)
	o.hash = hash
	o.handle = h
	o.label = label
	o.Init(destroy)
	o.InitWeakRef(self)
	d.log.Debug("created object",
		zap.Stringer("kind", kind),
		zap.Uint64("hash", hash),
		zap.Uint64("handle", uint64(h)),
		zap.String("label", label),
	)
	return nil
}

type kindCache struct {
	kind ObjectKind
	c    interface {
		Len() int
		Stats() cache.Stats
		Close() error
	}
}

// caches lists every cache in Close order: holders before what they hold.
func (d *Device) caches() []kindCache {
	return []kindCache{
		{KindRenderPipeline, d.renderPipelines},
		{KindComputePipeline, d.computePipelines},
		{KindAttachmentState, d.attachmentStates},
		{KindPipelineLayout, d.pipelineLayouts},
		{KindSampler, d.samplers},
		{KindShaderModule, d.shaderModules},
		{KindBindGroupLayout, d.bindGroupLayouts},
	}
}

// CacheSizes returns the number of cached entries per kind.
func (d *Device) CacheSizes() map[ObjectKind]int {
	sizes := make(map[ObjectKind]int, numKinds)
	for _, kc := range d.caches() {
		sizes[kc.kind] = kc.c.Len()
	}
	return sizes
}

// CacheStats returns a snapshot of every cache's counters.
func (d *Device) CacheStats() map[ObjectKind]cache.Stats {
	stats := make(map[ObjectKind]cache.Stats, numKinds)
	for _, kc := range d.caches() {
		stats[kc.kind] = kc.c.Stats()
	}
	return stats
}

// Close closes every cache. All objects must have been released: a cached
// object still alive at this point is a leak and Close panics. Pipelines are
// checked before the objects they hold.
//
// Close waits for in-flight calls that may insert. After it starts, every
// GetOrCreate*, Create*, Build* and AddOrGetCached* call fails with
// CodeUnavailable.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	for _, kc := range d.caches() {
		if err := kc.c.Close(); err != nil {
			return err
		}
	}
	d.log.Debug("device closed")
	return nil
}
