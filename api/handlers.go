package api

import (
	"net/http"
	"sync"

	"mobilecontrol/adb"
	"mobilecontrol/models"
	"mobilecontrol/service"

	"github.com/gin-gonic/gin"
)

// DeviceRegistry owns one Device facade per serial. Facades are created
// on first start and removed on stop, so there is exactly one handle per
// target device at any time.
type DeviceRegistry struct {
	adbClient *adb.ADBClient
	actionLog *service.ActionLog
	hub       *WebSocketHub

	mu      sync.RWMutex
	devices map[string]*service.Device
	// Tracks which mirror client already has the broadcast listener, so a
	// reconnected session gets wired exactly once.
	wired map[string]*service.ScrcpyClient
}

func NewDeviceRegistry(adbClient *adb.ADBClient, actionLog *service.ActionLog, hub *WebSocketHub) *DeviceRegistry {
	return &DeviceRegistry{
		adbClient: adbClient,
		actionLog: actionLog,
		hub:       hub,
		devices:   make(map[string]*service.Device),
		wired:     make(map[string]*service.ScrcpyClient),
	}
}

func (r *DeviceRegistry) Get(serial string) *service.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices[serial]
}

func (r *DeviceRegistry) getOrCreate(serial string, opts service.DeviceOptions) *service.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dev, ok := r.devices[serial]; ok {
		return dev
	}
	opts.Serial = serial
	dev := service.NewDevice(r.adbClient, r.actionLog, opts)
	r.devices[serial] = dev
	return dev
}

func (r *DeviceRegistry) remove(serial string) {
	r.mu.Lock()
	delete(r.devices, serial)
	delete(r.wired, serial)
	r.mu.Unlock()
}

// StreamHeaders implements HeaderProvider for WebSocket subscribers.
func (r *DeviceRegistry) StreamHeaders(serial string) (sps, pps []byte) {
	dev := r.Get(serial)
	if dev == nil {
		return nil, nil
	}
	mirror := dev.Mirror()
	if mirror == nil {
		return nil, nil
	}
	return mirror.StreamHeaders()
}

// StopAll tears down every device facade; used on shutdown.
func (r *DeviceRegistry) StopAll() {
	r.mu.Lock()
	devices := make([]*service.Device, 0, len(r.devices))
	for _, dev := range r.devices {
		devices = append(devices, dev)
	}
	r.devices = make(map[string]*service.Device)
	r.wired = make(map[string]*service.ScrcpyClient)
	r.mu.Unlock()

	for _, dev := range devices {
		dev.Stop()
	}
}

// ListDevices scans for connected devices over ADB.
func ListDevices(c *gin.Context, adbClient *adb.ADBClient) {
	devices, err := adbClient.ListDevices()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(devices))
}

type appRequest struct {
	Package string `json:"package" binding:"required"`
}

type startRequest struct {
	Record        bool `json:"record"`
	FPS           int  `json:"fps"`
	ChunkDuration int  `json:"chunk_duration"` // seconds
}

// StartDevice creates (or reuses) the facade for a serial and starts it.
func StartDevice(c *gin.Context, registry *DeviceRegistry) {
	serial := c.Param("serial")

	var req startRequest
	c.ShouldBindJSON(&req) // body is optional

	opts := service.DeviceOptions{
		Record: req.Record,
		FPS:    req.FPS,
	}
	if req.ChunkDuration > 0 {
		opts.ChunkDuration = secondsToDuration(req.ChunkDuration)
	}

	dev := registry.getOrCreate(serial, opts)
	if err := dev.Start(); err != nil {
		registry.remove(serial)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(dev.GetState()))
}

// StopDevice tears the facade down and releases the handle.
func StopDevice(c *gin.Context, registry *DeviceRegistry) {
	serial := c.Param("serial")
	dev := registry.Get(serial)
	if dev != nil {
		dev.Stop()
		registry.remove(serial)
	}
	c.JSON(http.StatusOK, models.MessageResponse("device stopped"))
}

// DeviceState returns the aggregated device state.
func DeviceState(c *gin.Context, registry *DeviceRegistry) {
	dev := registry.Get(c.Param("serial"))
	if dev == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse("device not started"))
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(dev.GetState()))
}

// DispatchAction routes one logical action to the facade. Every branch
// returns an ActionResult envelope; nothing propagates as a fault.
func DispatchAction(c *gin.Context, registry *DeviceRegistry) {
	dev := registry.Get(c.Param("serial"))
	if dev == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse("device not started"))
		return
	}

	var res *models.ActionResult
	switch c.Param("type") {
	case "tap":
		var req models.TapRequest
		if !bind(c, &req) {
			return
		}
		res = dev.Tap(req)
	case "swipe":
		var req models.SwipeRequest
		if !bind(c, &req) {
			return
		}
		res = dev.Swipe(req)
	case "press":
		var req models.PressRequest
		if !bind(c, &req) {
			return
		}
		res = dev.Press(req)
	case "type":
		var req models.TypeTextRequest
		if !bind(c, &req) {
			return
		}
		res = dev.TypeText(req)
	case "key":
		var req models.KeyEventRequest
		if !bind(c, &req) {
			return
		}
		res = dev.KeyEvent(req)
	case "scroll":
		var req models.ScrollRequest
		if !bind(c, &req) {
			return
		}
		res = dev.Scroll(req)
	case "swipe_path":
		var req models.SwipePathRequest
		if !bind(c, &req) {
			return
		}
		res = dev.SwipePath(req)
	case "screenshot":
		var req models.ScreenshotRequest
		c.ShouldBindJSON(&req) // body is optional
		res = dev.Screenshot(req)
	case "clear_text":
		res = dev.ClearText()
	case "wake":
		res = dev.WakeUp()
	case "unlock":
		res = dev.UnlockScreen()
	case "open_app":
		var req appRequest
		if !bind(c, &req) {
			return
		}
		res = dev.OpenApp(req.Package)
	case "close_app":
		var req appRequest
		if !bind(c, &req) {
			return
		}
		res = dev.CloseApp(req.Package)
	default:
		c.JSON(http.StatusBadRequest, models.ErrorResponse("unknown action type"))
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse(res))
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
		return false
	}
	return true
}

// CurrentActivity returns the foreground activity component name.
func CurrentActivity(c *gin.Context, registry *DeviceRegistry) {
	dev := registry.Get(c.Param("serial"))
	if dev == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse("device not started"))
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(dev.CurrentActivity()))
}

// CheckActivity reports whether the named activity is in the stack.
func CheckActivity(c *gin.Context, registry *DeviceRegistry) {
	dev := registry.Get(c.Param("serial"))
	if dev == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse("device not started"))
		return
	}
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse("missing name query parameter"))
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(dev.CheckActivity(name)))
}

// PauseRecording pauses the device's recording session.
func PauseRecording(c *gin.Context, registry *DeviceRegistry) {
	dev := registry.Get(c.Param("serial"))
	if dev == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse("device not started"))
		return
	}
	dev.PauseRecording()
	c.JSON(http.StatusOK, models.MessageResponse("recording paused"))
}

// ResumeRecording resumes the device's recording session.
func ResumeRecording(c *gin.Context, registry *DeviceRegistry) {
	dev := registry.Get(c.Param("serial"))
	if dev == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse("device not started"))
		return
	}
	dev.ResumeRecording()
	c.JSON(http.StatusOK, models.MessageResponse("recording resumed"))
}

// StartMirror brings up the mirroring session and wires its frames into
// the WebSocket hub.
func StartMirror(c *gin.Context, registry *DeviceRegistry) {
	serial := c.Param("serial")
	dev := registry.Get(serial)
	if dev == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse("device not started"))
		return
	}

	mirror, err := dev.EnsureMirror()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
		return
	}

	registry.mu.Lock()
	if registry.wired[serial] != mirror {
		hub := registry.hub
		mirror.AddFrameListener(func(frame *service.ScrcpyFrame) {
			hub.BroadcastFrame(serial, FramePacket(serial, frame.Data))
		})
		registry.wired[serial] = mirror
	}
	registry.mu.Unlock()

	width, height := mirror.Resolution()
	c.JSON(http.StatusOK, models.SuccessResponse(gin.H{
		"device_name": mirror.DeviceName(),
		"width":       width,
		"height":      height,
	}))
}

// StopMirror tears down the mirroring session.
func StopMirror(c *gin.Context, registry *DeviceRegistry) {
	serial := c.Param("serial")
	if dev := registry.Get(serial); dev != nil {
		dev.CloseMirror()
	}
	registry.mu.Lock()
	delete(registry.wired, serial)
	registry.mu.Unlock()
	c.JSON(http.StatusOK, models.MessageResponse("mirror stopped"))
}

// MirrorInput injects an input event through the mirror control socket
// instead of the shell. Faster than shell input, but requires an active
// mirroring session.
func MirrorInput(c *gin.Context, registry *DeviceRegistry) {
	dev := registry.Get(c.Param("serial"))
	if dev == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse("device not started"))
		return
	}
	mirror := dev.Mirror()
	if mirror == nil || !mirror.IsAlive() {
		c.JSON(http.StatusConflict, models.ErrorResponse("mirror session not active"))
		return
	}

	var err error
	switch c.Param("type") {
	case "tap":
		var req models.TapRequest
		if !bind(c, &req) {
			return
		}
		err = mirror.Tap(req.X, req.Y)
	case "swipe":
		var req models.SwipeRequest
		if !bind(c, &req) {
			return
		}
		duration := req.Duration
		if duration <= 0 {
			duration = 300
		}
		err = mirror.Swipe(req.StartX, req.StartY, req.EndX, req.EndY, millisToDuration(duration))
	case "text":
		var req models.TypeTextRequest
		if !bind(c, &req) {
			return
		}
		err = mirror.SendText(req.Text)
	case "key":
		var req models.KeyEventRequest
		if !bind(c, &req) {
			return
		}
		if err = mirror.SendKeyEvent(service.ActionDown, req.Keycode, 0); err == nil {
			err = mirror.SendKeyEvent(service.ActionUp, req.Keycode, 0)
		}
	default:
		c.JSON(http.StatusBadRequest, models.ErrorResponse("unknown mirror input type"))
		return
	}

	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse("injected"))
}
