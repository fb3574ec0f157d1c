package deferred

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/gpu"
)

// FrameState is the scheduler's position in the frame cycle.
type FrameState uint8

const (
	FrameIdle FrameState = iota
	FrameAcquiring
	FrameRecording
	FrameSubmitted
	FramePresenting
)

func (s FrameState) String() string {
	switch s {
	case FrameIdle:
		return "idle"
	case FrameAcquiring:
		return "acquiring"
	case FrameRecording:
		return "recording"
	case FrameSubmitted:
		return "submitted"
	case FramePresenting:
		return "presenting"
	}
	return "unknown"
}

// waitForever is the fence and acquire timeout.
const waitForever = ^uint64(0)

// FrameSlot is one set of per-frame synchronization and command resources.
type FrameSlot struct {
	Index          int
	Fence          gpu.Fence
	ImageAvailable gpu.Semaphore
	RenderFinished gpu.Semaphore
	Commands       gpu.CommandBuffer
}

func (s *FrameSlot) destroy() {
	if s.Commands != nil {
		s.Commands.Free()
		s.Commands = nil
	}
	if s.Fence != nil {
		s.Fence.Destroy()
		s.Fence = nil
	}
	if s.ImageAvailable != nil {
		s.ImageAvailable.Destroy()
		s.ImageAvailable = nil
	}
	if s.RenderFinished != nil {
		s.RenderFinished.Destroy()
		s.RenderFinished = nil
	}
}

// Scheduler drives acquire, submit and present over a fixed pool of frame slots.
type Scheduler struct {
	dev     gpu.Device
	surface gpu.Surface
	count   int
	slots   []*FrameSlot
	current int
	state   FrameState
	image   uint32
}

func NewScheduler(dev gpu.Device, framesInFlight int) *Scheduler {
	if framesInFlight < 1 {
		framesInFlight = 1
	}
	return &Scheduler{dev: dev, count: framesInFlight}
}

// SetSurface attaches the presentation surface.
func (s *Scheduler) SetSurface(surface gpu.Surface) {
	s.surface = surface
}

// CreateSlots creates every slot with its fence signaled, so the first wait
// on each slot returns immediately.
func (s *Scheduler) CreateSlots() error {
	if len(s.slots) != 0 {
		return errors.New("frame slots already exist")
	}
	for i := 0; i < s.count; i++ {
		slot, err := s.createSlot(i)
		if err != nil {
			s.DestroySlots()
			return core.Fatal(errors.Wrapf(err, "failed to create frame slot %d", i))
		}
		s.slots = append(s.slots, slot)
	}
	s.current = 0
	s.state = FrameIdle
	return nil
}

func (s *Scheduler) createSlot(i int) (*FrameSlot, error) {
	slot := &FrameSlot{Index: i}
	var err error
	if slot.Fence, err = s.dev.CreateFence(true); err != nil {
		return nil, err
	}
	if slot.ImageAvailable, err = s.dev.CreateSemaphore(); err != nil {
		slot.destroy()
		return nil, err
	}
	if slot.RenderFinished, err = s.dev.CreateSemaphore(); err != nil {
		slot.destroy()
		return nil, err
	}
	if slot.Commands, err = s.dev.AllocateCommandBuffer(); err != nil {
		slot.destroy()
		return nil, err
	}
	return slot, nil
}

// DestroySlots releases every slot. The device must be idle.
func (s *Scheduler) DestroySlots() {
	for _, slot := range s.slots {
		slot.destroy()
	}
	s.slots = nil
	s.state = FrameIdle
}

func (s *Scheduler) State() FrameState {
	return s.state
}

// Current is the index of the slot the next frame uses.
func (s *Scheduler) Current() int {
	return s.current
}

func (s *Scheduler) Slot(i int) *FrameSlot {
	if i < 0 || i >= len(s.slots) {
		return nil
	}
	return s.slots[i]
}

// ImageIndex is the presentable image acquired for the frame being recorded.
func (s *Scheduler) ImageIndex() uint32 {
	return s.image
}

// BeginFrame waits until the current slot's previous submission completed,
// then acquires a presentable image. An out-of-date surface returns
// ErrRebuildRequired and leaves the scheduler idle; a suboptimal one
// continues and is rebuilt after present.
func (s *Scheduler) BeginFrame() (*FrameSlot, uint32, error) {
	if s.state != FrameIdle {
		return nil, 0, errors.Newf("begin frame in state %s", s.state)
	}
	if len(s.slots) == 0 || s.surface == nil {
		return nil, 0, core.ErrNotInitialized
	}
	slot := s.slots[s.current]
	s.state = FrameAcquiring

	if err := s.dev.WaitForFence(slot.Fence, waitForever); err != nil {
		s.state = FrameIdle
		return nil, 0, core.Fatal(errors.Wrapf(err, "wait for frame slot %d", slot.Index))
	}
	if err := s.dev.ResetFence(slot.Fence); err != nil {
		s.state = FrameIdle
		return nil, 0, core.Fatal(errors.Wrapf(err, "reset fence of frame slot %d", slot.Index))
	}

	image, status, err := s.surface.Acquire(slot.ImageAvailable, waitForever)
	if err != nil {
		s.state = FrameIdle
		return nil, 0, core.Fatal(errors.Wrap(err, "failed to acquire swapchain image"))
	}
	if status == gpu.SurfaceOutOfDate {
		s.state = FrameIdle
		if err := s.resignal(slot); err != nil {
			return nil, 0, err
		}
		return nil, 0, core.ErrRebuildRequired
	}
	s.image = image
	s.state = FrameRecording
	return slot, image, nil
}

// Submit queues the recorded work. It waits on the slot's image-available
// signal at color output and signals render-finished and the slot fence.
func (s *Scheduler) Submit(slot *FrameSlot, commands []gpu.CommandBuffer) error {
	if s.state != FrameRecording {
		return errors.Newf("submit in state %s", s.state)
	}
	err := s.dev.Submit(gpu.SubmitInfo{
		Commands:  commands,
		Wait:      slot.ImageAvailable,
		WaitStage: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		Signal:    slot.RenderFinished,
		Fence:     slot.Fence,
	})
	if err != nil {
		s.state = FrameIdle
		return core.Fatal(errors.Wrap(err, "failed to submit draw command buffer"))
	}
	s.state = FrameSubmitted
	return nil
}

// Present hands the image to the surface, advances to the next slot and
// waits for the presentation queue to drain. The drain caps the GPU at one
// frame of outstanding work even with several slots; pipelining frames
// across the slot pool means removing it. A stale or suboptimal surface
// returns ErrRebuildRequired after the slot has advanced.
func (s *Scheduler) Present(slot *FrameSlot) error {
	if s.state != FrameSubmitted {
		return errors.Newf("present in state %s", s.state)
	}
	s.state = FramePresenting
	status, err := s.surface.Present(s.image, slot.RenderFinished)
	if err != nil {
		s.state = FrameIdle
		return core.Fatal(errors.Wrap(err, "failed to present swapchain image"))
	}

	s.current = (s.current + 1) % len(s.slots)
	if err := s.surface.WaitIdle(); err != nil {
		s.state = FrameIdle
		return core.Fatal(errors.Wrap(err, "failed to drain presentation queue"))
	}
	s.state = FrameIdle

	if status != gpu.SurfaceOptimal {
		core.LogDebug("present reported %s surface", status)
		return core.ErrRebuildRequired
	}
	return nil
}

// resignal swaps the slot's reset fence for a signaled one. Nothing was
// submitted with it, so the next wait on the slot would never return.
func (s *Scheduler) resignal(slot *FrameSlot) error {
	fence, err := s.dev.CreateFence(true)
	if err != nil {
		return core.Fatal(errors.Wrapf(err, "failed to recreate fence of frame slot %d", slot.Index))
	}
	slot.Fence.Destroy()
	slot.Fence = fence
	return nil
}
