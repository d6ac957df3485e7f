package gpu

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

// pollInterval is how long Await sleeps between non-blocking polls.
const pollInterval = time.Millisecond

// MapState is the lifecycle of a staging buffer mapping.
type MapState int32

const (
	MapIdle MapState = iota
	MapRequested
	MapReady
	MapFailed
	Mapped
	Unmapped
)

func (s MapState) String() string {
	switch s {
	case MapIdle:
		return "idle"
	case MapRequested:
		return "map requested"
	case MapReady:
		return "map ready"
	case MapFailed:
		return "map failed"
	case Mapped:
		return "mapped"
	case Unmapped:
		return "unmapped"
	}
	return fmt.Sprintf("MapState(%d)", int32(s))
}

// Mapper is a host-mappable buffer.
type Mapper interface {
	// MapRead requests an asynchronous read mapping of the first size
	// bytes. done is invoked exactly once, from inside a device poll.
	MapRead(size uint64, done func(wgpu.BufferMapAsyncStatus)) error
	MappedRange(size uint64) []byte
	Unmap()
}

// Poller drives device event processing.
type Poller interface {
	Poll(wait bool) bool
}

type wgpuMapper struct {
	buf *wgpu.Buffer
}

func (m wgpuMapper) MapRead(size uint64, done func(wgpu.BufferMapAsyncStatus)) error {
	return m.buf.MapAsync(wgpu.MapModeRead, 0, size, done)
}

func (m wgpuMapper) MappedRange(size uint64) []byte {
	return m.buf.GetMappedRange(0, uint(size))
}

func (m wgpuMapper) Unmap() {
	m.buf.Unmap()
}

// StagingBuffer is a MapRead|CopyDst buffer that receives a copy of a
// device result. At most one map request is outstanding at a time.
type StagingBuffer struct {
	dev    DeviceBuffer
	mapper Mapper

	mu    sync.Mutex
	state MapState
}

// NewStagingBuffer allocates a host-mappable buffer of size bytes.
func NewStagingBuffer(dev bufferAllocator, label string, size uint64) (*StagingBuffer, error) {
	db, err := newBuffer(dev, label, size, wgpu.BufferUsageMapRead|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	return &StagingBuffer{dev: db, mapper: wgpuMapper{buf: db.Buffer}}, nil
}

// Buffer is the device buffer to copy results into.
func (s *StagingBuffer) Buffer() *wgpu.Buffer { return s.dev.Buffer }

// Size is the byte size of the buffer.
func (s *StagingBuffer) Size() uint64 { return s.dev.Size }

// State reports the current mapping state.
func (s *StagingBuffer) State() MapState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RequestMap issues a read mapping of the full buffer. It does not block;
// the returned future resolves once the device reports the outcome, which
// only happens while the device is being polled. A request made while a
// previous mapping is outstanding or not yet released is rejected.
func (s *StagingBuffer) RequestMap() (*MapFuture, error) {
	s.mu.Lock()
	switch s.state {
	case MapIdle, Unmapped, MapFailed:
	default:
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q is %s", ErrMapRequestFailed, s.dev.Label, state)
	}
	s.state = MapRequested
	s.mu.Unlock()

	// the device may report the outcome synchronously, so the lock is
	// not held across MapRead.
	f := &MapFuture{staging: s, done: make(chan struct{})}
	if err := s.mapper.MapRead(s.dev.Size, f.resolve); err != nil {
		s.mu.Lock()
		s.state = MapFailed
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrMapRequestFailed, err)
	}
	if Debug {
		Log("Map requested on %s (%d bytes)", s.dev.Label, s.dev.Size)
	}
	return f, nil
}

// Read copies the first n floats out of a ready mapping and releases the
// mapping before returning.
func (s *StagingBuffer) Read(n int) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != MapReady {
		return nil, fmt.Errorf("%w: %q is %s, not %s", ErrMapRequestFailed, s.dev.Label, s.state, MapReady)
	}
	want := uint64(n) * 4
	if n <= 0 || want > s.dev.Size {
		return nil, fmt.Errorf("%w: read of %d floats from %d bytes", ErrMapRequestFailed, n, s.dev.Size)
	}

	data := s.mapper.MappedRange(s.dev.Size)
	if data == nil {
		s.mapper.Unmap()
		s.state = Unmapped
		return nil, fmt.Errorf("%w: mapped range nil", ErrMapRequestFailed)
	}
	s.state = Mapped

	out := make([]float32, n)
	copy(out, wgpu.FromBytes[float32](data)[:n])

	s.mapper.Unmap()
	s.state = Unmapped
	return out, nil
}

// Destroy releases an outstanding mapping and frees the buffer.
func (s *StagingBuffer) Destroy() {
	s.mu.Lock()
	if s.state == MapReady || s.state == Mapped {
		s.mapper.Unmap()
		s.state = Unmapped
	}
	s.mu.Unlock()

	// destroying a buffer with a pending map fires its callback.
	s.dev.Destroy()
}

// MapFuture is the pending outcome of a map request.
type MapFuture struct {
	staging *StagingBuffer
	done    chan struct{}
	once    sync.Once
	status  wgpu.BufferMapAsyncStatus
}

func (f *MapFuture) resolve(status wgpu.BufferMapAsyncStatus) {
	f.once.Do(func() {
		s := f.staging
		s.mu.Lock()
		if status == wgpu.BufferMapAsyncStatusSuccess {
			s.state = MapReady
		} else {
			s.state = MapFailed
		}
		s.mu.Unlock()
		f.status = status
		close(f.done)
	})
}

// Done is closed once the device has reported the map outcome.
func (f *MapFuture) Done() <-chan struct{} { return f.done }

// Await drives p until the map resolves, ctx ends, or the device reports
// failure. Without a deadline or cancellation on ctx the device is first
// polled to completion with a blocking poll. A ctx that ends first is
// treated as a lost device.
func (f *MapFuture) Await(ctx context.Context, p Poller) error {
	if p == nil {
		return fmt.Errorf("%w: no poller to drive map completion", ErrMapRequestFailed)
	}
	if ctx.Done() == nil {
		p.Poll(true)
	}
	for {
		select {
		case <-f.done:
			return f.err()
		default:
		}
		p.Poll(false)
		select {
		case <-f.done:
			return f.err()
		case <-ctx.Done():
			select {
			case <-f.done:
				return f.err()
			default:
			}
			return fmt.Errorf("%w: map of %q not completed: %v", ErrDeviceLost, f.staging.dev.Label, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

func (f *MapFuture) err() error {
	switch f.status {
	case wgpu.BufferMapAsyncStatusSuccess:
		return nil
	case wgpu.BufferMapAsyncStatusDeviceLost:
		return fmt.Errorf("%w: map status %v", ErrDeviceLost, f.status)
	}
	return fmt.Errorf("%w: map status %v", ErrMapRequestFailed, f.status)
}

// ReadBack maps s, waits for the device while polling p, and returns the
// first n floats as a host-owned slice. The mapping is released before it
// returns.
func ReadBack(ctx context.Context, p Poller, s *StagingBuffer, n int) ([]float32, error) {
	f, err := s.RequestMap()
	if err != nil {
		return nil, err
	}
	if err := f.Await(ctx, p); err != nil {
		return nil, err
	}
	return s.Read(n)
}
