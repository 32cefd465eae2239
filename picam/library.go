package picam

import (
	"sort"
	"sync"
)

// Opener opens the camera with the given ID.  Drivers register an Opener per
// camera they can reach with Library.Connect.
type Opener func(CameraID) (Camera, error)

// Library is the process-wide library state.  Create one with Initialize and
// release it with Uninitialize; every camera still open at that point is
// closed.  A camera can be open through at most one handle at a time.
type Library struct {
	mu          sync.Mutex
	initialized bool
	order       []string // serial numbers in connection order
	openers     map[string]connected
	open        map[string]*handle
}

type connected struct {
	id     CameraID
	opener Opener
	demo   bool
}

// Initialize creates the library state
func Initialize() *Library {
	return &Library{
		initialized: true,
		openers:     map[string]connected{},
		open:        map[string]*handle{},
	}
}

// Uninitialize closes every open camera and invalidates the library.
// It is safe to call more than once.
func (l *Library) Uninitialize() error {
	l.mu.Lock()
	handles := make([]*handle, 0, len(l.open))
	for _, h := range l.open {
		handles = append(handles, h)
	}
	l.initialized = false
	l.mu.Unlock()

	var first error
	for _, h := range handles {
		if err := h.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Connect makes a camera reachable through the library
func (l *Library) Connect(id CameraID, opener Opener) error {
	return l.connect(id, opener, false)
}

func (l *Library) connect(id CameraID, opener Opener, demo bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return ErrLibraryNotInitialized
	}
	if _, exists := l.openers[id.SerialNumber]; exists {
		if demo {
			return ErrDemoAlreadyConnected
		}
		return ErrInvalidCameraID
	}
	l.openers[id.SerialNumber] = connected{id: id, opener: opener, demo: demo}
	l.order = append(l.order, id.SerialNumber)
	return nil
}

// ConnectDemoCamera connects a software camera of the given model
func (l *Library) ConnectDemoCamera(model Model, serial string, opts ...DemoOption) (CameraID, error) {
	info, ok := Models[model]
	if !ok {
		return CameraID{}, ErrInvalidDemoModel
	}
	if serial == "" {
		return CameraID{}, ErrInvalidDemoSerialNumber
	}
	id := CameraID{Model: model, SerialNumber: serial, SensorName: info.SensorName}
	opener := func(id CameraID) (Camera, error) {
		return NewDemoCamera(id, opts...), nil
	}
	return id, l.connect(id, opener, true)
}

// DisconnectDemoCamera removes a demo camera.  It must not be open.
func (l *Library) DisconnectDemoCamera(id CameraID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.openers[id.SerialNumber]
	if !ok || !c.demo {
		return ErrInvalidCameraID
	}
	if _, isOpen := l.open[id.SerialNumber]; isOpen {
		return ErrCameraAlreadyOpened
	}
	delete(l.openers, id.SerialNumber)
	for i, s := range l.order {
		if s == id.SerialNumber {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return nil
}

// AvailableCameraIDs lists the connected cameras, open or not
func (l *Library) AvailableCameraIDs() ([]CameraID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return nil, ErrLibraryNotInitialized
	}
	ids := make([]CameraID, 0, len(l.order))
	for _, s := range l.order {
		ids = append(ids, l.openers[s].id)
	}
	return ids, nil
}

// OpenCamera opens the camera with the given serial number
func (l *Library) OpenCamera(id CameraID) (Camera, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return nil, ErrLibraryNotInitialized
	}
	c, ok := l.openers[id.SerialNumber]
	if !ok {
		return nil, ErrInvalidCameraID
	}
	return l.openLocked(c)
}

// OpenFirstCamera opens the first connected camera that is not already open.
// Hardware cameras are preferred over demo cameras.
func (l *Library) OpenFirstCamera() (Camera, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return nil, ErrLibraryNotInitialized
	}
	if len(l.order) == 0 {
		return nil, ErrDeviceNotFound
	}
	candidates := make([]connected, 0, len(l.order))
	for _, s := range l.order {
		candidates = append(candidates, l.openers[s])
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return !candidates[i].demo && candidates[j].demo
	})
	for _, c := range candidates {
		if _, isOpen := l.open[c.id.SerialNumber]; isOpen {
			continue
		}
		return l.openLocked(c)
	}
	return nil, ErrCameraAlreadyOpened
}

func (l *Library) openLocked(c connected) (Camera, error) {
	if _, isOpen := l.open[c.id.SerialNumber]; isOpen {
		return nil, ErrCameraAlreadyOpened
	}
	cam, err := c.opener(c.id)
	if err != nil {
		return nil, err
	}
	h := &handle{Camera: cam, lib: l, serial: c.id.SerialNumber}
	l.open[c.id.SerialNumber] = h
	return h, nil
}

func (l *Library) release(serial string) {
	l.mu.Lock()
	delete(l.open, serial)
	l.mu.Unlock()
}

// IsOpen reports if the camera with the given serial number is open
func (l *Library) IsOpen(serial string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.open[serial]
	return ok
}

// handle wraps an opened camera so that closing it frees the library slot
// exactly once
type handle struct {
	Camera
	lib    *Library
	serial string
	once   sync.Once
	err    error
}

func (h *handle) Close() error {
	h.once.Do(func() {
		h.err = h.Camera.Close()
		h.lib.release(h.serial)
	})
	return h.err
}
