package deferred

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

var errFenceDeadlock = errors.New("fake: waiting on a fence nothing will signal")

// fakeDevice records every call and counts live objects per kind.
type fakeDevice struct {
	log            []string
	live           map[string]int
	created        map[string]int
	doubleDestroys int
	unsupported    map[vk.Format]bool
	fail           map[string]error

	submits     []gpu.SubmitInfo
	writes      map[*fakeObj][][]gpu.DescriptorWrite
	pipelines   []*fakePipeline
	passDescs   []*gpu.RenderPassDescriptor
	commandBufs []*fakeCommandBuffer
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		live:        make(map[string]int),
		created:     make(map[string]int),
		unsupported: make(map[vk.Format]bool),
		fail:        make(map[string]error),
		writes:      make(map[*fakeObj][][]gpu.DescriptorWrite),
	}
}

func (d *fakeDevice) record(format string, args ...interface{}) {
	d.log = append(d.log, fmt.Sprintf(format, args...))
}

// indexOf returns the position of the first log entry with prefix at or after from.
func (d *fakeDevice) indexOf(prefix string, from int) int {
	for i := from; i < len(d.log); i++ {
		if strings.HasPrefix(d.log[i], prefix) {
			return i
		}
	}
	return -1
}

func (d *fakeDevice) count(prefix string) int {
	n := 0
	for _, l := range d.log {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

// leaks lists kinds with objects still alive.
func (d *fakeDevice) leaks() map[string]int {
	out := make(map[string]int)
	for k, v := range d.live {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}

type fakeObj struct {
	dev       *fakeDevice
	kind      string
	serial    int
	destroyed bool
}

func (d *fakeDevice) newObj(kind string) (*fakeObj, error) {
	if err := d.fail[kind]; err != nil {
		return nil, err
	}
	d.created[kind]++
	d.live[kind]++
	o := &fakeObj{dev: d, kind: kind, serial: d.created[kind]}
	d.record("create:%s", kind)
	return o, nil
}

func (o *fakeObj) Destroy() {
	if o.destroyed {
		o.dev.doubleDestroys++
		return
	}
	o.destroyed = true
	o.dev.live[o.kind]--
	o.dev.record("destroy:%s", o.kind)
}

func (o *fakeObj) String() string {
	return fmt.Sprintf("%s#%d", o.kind, o.serial)
}

type fakeBuffer struct {
	*fakeObj
	size  uint64
	usage vk.BufferUsageFlags
	data  []byte
}

func (b *fakeBuffer) Size() uint64 { return b.size }

func (b *fakeBuffer) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.size {
		return errors.Newf("write of %d bytes at %d overflows %d", len(data), offset, b.size)
	}
	copy(b.data[offset:], data)
	tag := "buffer"
	if b.usage&vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit) != 0 {
		tag = "uniform"
	}
	b.dev.record("write:%s", tag)
	return nil
}

type fakeFence struct {
	*fakeObj
	signaled bool
}

type fakePipeline struct {
	*fakeObj
	cfg    gpu.PipelineConfig
	layout gpu.PipelineLayout
	pass   gpu.RenderPass
}

func (d *fakeDevice) FormatSupported(format vk.Format, features vk.FormatFeatureFlags) bool {
	return !d.unsupported[format]
}

func (d *fakeDevice) CreateImage(spec gpu.AttachmentSpec, extent vk.Extent2D) (gpu.Image, error) {
	return d.newObj("image")
}

func (d *fakeDevice) AllocateImageMemory(img gpu.Image) (gpu.Memory, error) {
	return d.newObj("memory")
}

func (d *fakeDevice) CreateImageView(img gpu.Image, spec gpu.AttachmentSpec) (gpu.ImageView, error) {
	return d.newObj("view")
}

func (d *fakeDevice) CreateRenderPass(desc *gpu.RenderPassDescriptor) (gpu.RenderPass, error) {
	d.passDescs = append(d.passDescs, desc)
	return d.newObj("renderpass")
}

func (d *fakeDevice) CreateFramebuffer(pass gpu.RenderPass, views []gpu.ImageView, extent vk.Extent2D) (gpu.Framebuffer, error) {
	if pass.(*fakeObj).destroyed {
		return nil, errors.New("framebuffer on destroyed pass")
	}
	for _, v := range views {
		if v.(*fakeObj).destroyed {
			return nil, errors.New("framebuffer on destroyed view")
		}
	}
	return d.newObj("framebuffer")
}

func (d *fakeDevice) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	return d.newObj("shader")
}

func (d *fakeDevice) CreatePipelineLayout(sets []gpu.DescriptorSetLayout, push []gpu.PushConstantRange) (gpu.PipelineLayout, error) {
	return d.newObj("pipelinelayout")
}

func (d *fakeDevice) CreateGraphicsPipeline(cfg *gpu.PipelineConfig, stages []gpu.ShaderStage, layout gpu.PipelineLayout, pass gpu.RenderPass) (gpu.Pipeline, error) {
	o, err := d.newObj("pipeline")
	if err != nil {
		return nil, err
	}
	p := &fakePipeline{fakeObj: o, cfg: *cfg, layout: layout, pass: pass}
	d.pipelines = append(d.pipelines, p)
	return p, nil
}

func (d *fakeDevice) CreateDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	return d.newObj("setlayout")
}

func (d *fakeDevice) CreateDescriptorPool(sizes []gpu.DescriptorPoolSize, maxSets uint32) (gpu.DescriptorPool, error) {
	return d.newObj("descriptorpool")
}

func (d *fakeDevice) AllocateDescriptorSet(pool gpu.DescriptorPool, layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	if err := d.fail["set"]; err != nil {
		return nil, err
	}
	d.created["set"]++
	d.record("allocate:set")
	// sets are owned by the pool and never destroyed individually
	return &fakeObj{dev: d, kind: "set", serial: d.created["set"]}, nil
}

func (d *fakeDevice) UpdateDescriptorSet(set gpu.DescriptorSet, writes []gpu.DescriptorWrite) {
	o := set.(*fakeObj)
	d.writes[o] = append(d.writes[o], writes)
	d.record("update:set")
}

func (d *fakeDevice) CreateSampler(spec gpu.SamplerSpec) (gpu.Sampler, error) {
	return d.newObj("sampler")
}

func (d *fakeDevice) CreateHostBuffer(size uint64, usage vk.BufferUsageFlags) (gpu.HostBuffer, error) {
	o, err := d.newObj("buffer")
	if err != nil {
		return nil, err
	}
	return &fakeBuffer{fakeObj: o, size: size, usage: usage, data: make([]byte, size)}, nil
}

func (d *fakeDevice) CreateFence(signaled bool) (gpu.Fence, error) {
	o, err := d.newObj("fence")
	if err != nil {
		return nil, err
	}
	return &fakeFence{fakeObj: o, signaled: signaled}, nil
}

func (d *fakeDevice) CreateSemaphore() (gpu.Semaphore, error) {
	return d.newObj("semaphore")
}

func (d *fakeDevice) AllocateCommandBuffer() (gpu.CommandBuffer, error) {
	o, err := d.newObj("commandbuffer")
	if err != nil {
		return nil, err
	}
	cb := &fakeCommandBuffer{fakeObj: o}
	d.commandBufs = append(d.commandBufs, cb)
	return cb, nil
}

// WaitForFence fails instead of hanging when the fence can never be signaled.
func (d *fakeDevice) WaitForFence(f gpu.Fence, timeout uint64) error {
	d.record("fence:wait")
	if !f.(*fakeFence).signaled {
		return errFenceDeadlock
	}
	return nil
}

func (d *fakeDevice) ResetFence(f gpu.Fence) error {
	d.record("fence:reset")
	f.(*fakeFence).signaled = false
	return nil
}

// Submit completes the work immediately and signals the fence.
func (d *fakeDevice) Submit(info gpu.SubmitInfo) error {
	if err := d.fail["submit"]; err != nil {
		return err
	}
	d.record("submit")
	d.submits = append(d.submits, info)
	if info.Fence != nil {
		info.Fence.(*fakeFence).signaled = true
	}
	return nil
}

func (d *fakeDevice) WaitIdle() error {
	d.record("device:idle")
	return nil
}

// fakeCommand is one recorded command with the objects it references.
type fakeCommand struct {
	name string
	refs []interface{}
	args []interface{}
}

type fakeCommandBuffer struct {
	*fakeObj
	cmds   []fakeCommand
	frames int
}

func (c *fakeCommandBuffer) add(name string, refs []interface{}, args ...interface{}) {
	c.cmds = append(c.cmds, fakeCommand{name: name, refs: refs, args: args})
}

func (c *fakeCommandBuffer) names() []string {
	out := make([]string, len(c.cmds))
	for i, cmd := range c.cmds {
		out[i] = cmd.name
	}
	return out
}

func (c *fakeCommandBuffer) Reset() error {
	c.cmds = nil
	return nil
}

func (c *fakeCommandBuffer) Begin(flags vk.CommandBufferUsageFlags) error {
	c.add("begin", nil, flags)
	return nil
}

func (c *fakeCommandBuffer) End() error {
	c.add("end", nil)
	c.frames++
	return nil
}

func (c *fakeCommandBuffer) SetViewport(viewport vk.Viewport) {
	c.add("viewport", nil, viewport)
}

func (c *fakeCommandBuffer) SetScissor(scissor vk.Rect2D) {
	c.add("scissor", nil, scissor)
}

func (c *fakeCommandBuffer) BeginRenderPass(pass gpu.RenderPass, fb gpu.Framebuffer, area vk.Rect2D, clears []gpu.ClearValue) {
	c.add("beginpass", []interface{}{pass, fb}, area, clears)
}

func (c *fakeCommandBuffer) NextSubpass() {
	c.add("nextsubpass", nil)
}

func (c *fakeCommandBuffer) EndRenderPass() {
	c.add("endpass", nil)
}

func (c *fakeCommandBuffer) BindPipeline(p gpu.Pipeline) {
	c.add("pipeline", []interface{}{p})
}

func (c *fakeCommandBuffer) BindDescriptorSets(layout gpu.PipelineLayout, first uint32, sets ...gpu.DescriptorSet) {
	refs := []interface{}{layout}
	for _, s := range sets {
		refs = append(refs, s)
	}
	c.add("sets", refs, first, len(sets))
}

func (c *fakeCommandBuffer) PushConstants(layout gpu.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	c.add("push", []interface{}{layout}, stages, offset, len(data), append([]byte(nil), data...))
}

func (c *fakeCommandBuffer) BindVertexBuffer(b gpu.Buffer, offset uint64) {
	c.add("vertices", []interface{}{b}, offset)
}

func (c *fakeCommandBuffer) BindIndexBuffer(b gpu.Buffer, offset uint64) {
	c.add("indices", []interface{}{b}, offset)
}

func (c *fakeCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.add("draw", nil, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (c *fakeCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.add("drawindexed", nil, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (c *fakeCommandBuffer) Free() {
	c.Destroy()
}

// destroyedRefs lists recorded references to objects already destroyed.
func (c *fakeCommandBuffer) destroyedRefs() []string {
	var out []string
	for _, cmd := range c.cmds {
		for _, r := range cmd.refs {
			if d, ok := r.(interface{ isDestroyed() bool }); ok && d.isDestroyed() {
				out = append(out, fmt.Sprintf("%s -> %v", cmd.name, r))
			}
		}
	}
	return out
}

func (o *fakeObj) isDestroyed() bool { return o.destroyed }

// fakeSurface hands out images round-robin and replays scripted statuses.
type fakeSurface struct {
	dev         *fakeDevice
	format      vk.Format
	extent      vk.Extent2D
	imageCount  int
	views       []gpu.ImageView
	next        uint32
	acquireSeq  []gpu.SurfaceStatus
	presentSeq  []gpu.SurfaceStatus
	acquireErr  error
	presentErr  error
	recreateErr error
	recreations int
	destroyed   bool
	presented   []uint32
}

func newFakeSurface(dev *fakeDevice, width, height uint32) *fakeSurface {
	s := &fakeSurface{
		dev:        dev,
		format:     vk.FormatB8g8r8a8Unorm,
		extent:     vk.Extent2D{Width: width, Height: height},
		imageCount: 3,
	}
	s.createViews()
	return s
}

func (s *fakeSurface) createViews() {
	for i := 0; i < s.imageCount; i++ {
		v, _ := s.dev.newObj("swapview")
		s.views = append(s.views, v)
	}
}

func (s *fakeSurface) destroyViews() {
	for _, v := range s.views {
		v.Destroy()
	}
	s.views = nil
}

func (s *fakeSurface) Format() vk.Format {
	return s.format
}

func (s *fakeSurface) Extent() vk.Extent2D {
	return s.extent
}

func (s *fakeSurface) ImageViews() []gpu.ImageView {
	return s.views
}

func (s *fakeSurface) Acquire(signal gpu.Semaphore, timeout uint64) (uint32, gpu.SurfaceStatus, error) {
	s.dev.record("acquire")
	if s.acquireErr != nil {
		return 0, gpu.SurfaceOptimal, s.acquireErr
	}
	status := gpu.SurfaceOptimal
	if len(s.acquireSeq) > 0 {
		status, s.acquireSeq = s.acquireSeq[0], s.acquireSeq[1:]
	}
	if status == gpu.SurfaceOutOfDate {
		return 0, status, nil
	}
	idx := s.next
	s.next = (s.next + 1) % uint32(s.imageCount)
	return idx, status, nil
}

func (s *fakeSurface) Present(imageIndex uint32, wait gpu.Semaphore) (gpu.SurfaceStatus, error) {
	s.dev.record("present")
	if s.presentErr != nil {
		return gpu.SurfaceOptimal, s.presentErr
	}
	s.presented = append(s.presented, imageIndex)
	status := gpu.SurfaceOptimal
	if len(s.presentSeq) > 0 {
		status, s.presentSeq = s.presentSeq[0], s.presentSeq[1:]
	}
	return status, nil
}

func (s *fakeSurface) WaitIdle() error {
	s.dev.record("queue:idle")
	return nil
}

func (s *fakeSurface) Recreate(desired vk.Extent2D) error {
	s.dev.record("surface:recreate")
	if s.recreateErr != nil {
		return s.recreateErr
	}
	s.destroyViews()
	s.extent = desired
	s.next = 0
	s.recreations++
	s.createViews()
	return nil
}

func (s *fakeSurface) Destroy() {
	s.destroyViews()
	s.destroyed = true
}

// fakeShaders serves dummy SPIR-V for every known shader.
type fakeShaders struct {
	loads   map[string]int
	missing map[string]bool
}

func newFakeShaders() *fakeShaders {
	return &fakeShaders{loads: make(map[string]int), missing: make(map[string]bool)}
}

func (s *fakeShaders) Load(name string) ([]uint32, error) {
	if s.missing[name] {
		return nil, errors.Newf("shader %s not found", name)
	}
	s.loads[name]++
	return []uint32{0x07230203, 0, 0, 0, 0}, nil
}

// cubeScene is a two-instance scene over two meshes sharing 8 vertices.
type cubeScene struct {
	instances []renderer.Instance
	cameras   []renderer.CameraParams
}

func newCubeScene() *cubeScene {
	return &cubeScene{
		instances: []renderer.Instance{
			{MeshID: 0, IndexOffset: 0, IndexCount: 36, VertexOffset: 0},
			{MeshID: 1, IndexOffset: 0, IndexCount: 36, VertexOffset: 0},
		},
		cameras: []renderer.CameraParams{{
			FovDegrees: 45,
			LookAt:     [3]float32{0, 0, 0},
			Position:   [3]float32{0, 0, 10},
			Up:         [3]float32{0, 1, 0},
		}},
	}
}

func (s *cubeScene) Vertices() ([]byte, uint32) {
	return make([]byte, 8*32), 32
}

func (s *cubeScene) Indices() []uint32 {
	return make([]uint32, 36)
}

func (s *cubeScene) MeshInfo() []byte {
	return make([]byte, 2*16)
}

func (s *cubeScene) Instances() []renderer.Instance {
	return s.instances
}

func (s *cubeScene) Cameras() []renderer.CameraParams {
	return s.cameras
}

// fakeOverlay hands back its own command buffer.
type fakeOverlay struct {
	cb        *fakeCommandBuffer
	changes   int
	destroyed bool
}

func (o *fakeOverlay) BuildOverlayCommands(imageIndex uint32) (gpu.CommandBuffer, error) {
	return o.cb, nil
}

func (o *fakeOverlay) OnSurfaceChanged(surface gpu.Surface) { o.changes++ }
func (o *fakeOverlay) Destroy() { o.destroyed = true }
