package service

import (
	"fmt"
	"log"
	"mobilecontrol/adb"
	"mobilecontrol/models"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// settleDelay is how long the facade waits after a mutating action before
// capturing the post-action frame. A fixed delay stands in for a true
// "render complete" signal from the device; slow devices may still be
// mid-animation when the frame is taken.
const settleDelay = 500 * time.Millisecond

// commander is the slice of the command driver the facade dispatches to.
type commander interface {
	Tap(x, y int)
	LongPress(x, y, durationMs int)
	Swipe(x1, y1, x2, y2, durationMs int)
	TypeText(text string)
	ClearTextField()
	KeyEvent(keycode int)
	Scroll(direction string, distance int) error
	WakeUp()
	UnlockScreen()
	OpenApp(pkg string)
	CloseApp(pkg string)
	ScreenInfo() adb.ScreenInfo
	ScreenDensity() int
	CurrentActivity() string
	CheckActivity(name string) bool
	Property(prop string) string
}

// frameCapturer yields one compressed frame per call.
type frameCapturer interface {
	CaptureBytes() ([]byte, error)
}

// frameRecorder is the slice of the recorder the facade drives.
type frameRecorder interface {
	Start() error
	Stop()
	Pause()
	Unpause()
	IsRecording() bool
	CurrentPath() string
	SetOverlayText(text string)
}

// DeviceOptions configure one device facade.
type DeviceOptions struct {
	Serial        string
	BaseDir       string
	FPS           int
	ChunkDuration time.Duration
	Record        bool          // start a recording session on Start()
	SettleDelay   time.Duration // 0 means the default
	Mirror        ScrcpyOptions
}

// Device is the public surface over one physical or virtual device. It
// owns the device handle for its lifetime: constructed by the caller,
// torn down by Stop(). Actions are expected to be issued sequentially;
// concurrent calls against one Device race on the latest-frame state.
type Device struct {
	serial    string
	adbClient *adb.ADBClient
	opts      DeviceOptions
	actionLog *ActionLog

	cmd      commander
	capturer frameCapturer
	recorder frameRecorder
	settle   time.Duration

	mu        sync.Mutex
	mirror    *ScrcpyClient
	info      models.DeviceInfo
	connected bool

	lastFrame atomic.Pointer[models.Frame]
}

func NewDevice(adbClient *adb.ADBClient, actionLog *ActionLog, opts DeviceOptions) *Device {
	if opts.BaseDir == "" {
		opts.BaseDir = "./workdir/mobile_agent"
	}
	settle := opts.SettleDelay
	if settle == 0 {
		settle = settleDelay
	}
	if opts.Mirror.JarPath == "" {
		opts.Mirror = DefaultScrcpyOptions()
	}
	return &Device{
		serial:    opts.Serial,
		adbClient: adbClient,
		opts:      opts,
		actionLog: actionLog,
		cmd:       NewCommandDriver(adbClient, opts.Serial),
		settle:    settle,
	}
}

func (d *Device) Serial() string { return d.serial }

// Start installs and verifies the capture companion, queries the screen
// snapshot, optionally begins a recording session, and only then marks
// the device connected. Missing companions or a failed recording start
// are hard failures: nothing after them could succeed.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return nil
	}
	if err := os.MkdirAll(d.opts.BaseDir, 0755); err != nil {
		return fmt.Errorf("create base dir: %w", err)
	}

	if d.capturer == nil {
		minicap, err := NewMinicapDriver(d.adbClient, d.serial)
		if err != nil {
			return fmt.Errorf("capture driver: %w", err)
		}
		d.capturer = minicap

		if d.opts.Record && d.recorder == nil {
			d.recorder = NewRecorder(minicap, RecorderOptions{
				SavePath:      filepath.Join(d.opts.BaseDir, "videos"),
				BaseName:      "mobile_record",
				FPS:           d.opts.FPS,
				ChunkDuration: d.opts.ChunkDuration,
				Overlay:       true,
			})
		}
	}

	screen := d.cmd.ScreenInfo()
	d.info = models.DeviceInfo{
		Serial:       d.serial,
		Model:        d.cmd.Property("ro.product.model"),
		OSVersion:    d.cmd.Property("ro.build.version.release"),
		ScreenWidth:  screen.Width,
		ScreenHeight: screen.Height,
		Rotation:     screen.Rotation,
		Density:      d.cmd.ScreenDensity(),
		IsConnected:  true,
	}

	if d.recorder != nil {
		if err := d.recorder.Start(); err != nil {
			return fmt.Errorf("recording session: %w", err)
		}
	}

	d.connected = true
	log.Printf("✅ [%s] Device started (%dx%d @%ddpi, rotation %d)",
		d.serial, screen.Width, screen.Height, d.info.Density, screen.Rotation)
	return nil
}

// Stop tears down in reverse start order: recording first, then the
// mirror connection. It is safe to call after a partial Start() and safe
// to call twice.
func (d *Device) Stop() {
	d.mu.Lock()
	mirror := d.mirror
	d.mirror = nil
	recorder := d.recorder
	wasConnected := d.connected
	d.connected = false
	d.info.IsConnected = false
	d.mu.Unlock()

	if recorder != nil {
		recorder.Stop()
	}
	if mirror != nil {
		mirror.Close()
	}
	if wasConnected {
		log.Printf("🛑 [%s] Device stopped", d.serial)
	}
}

func (d *Device) isConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// settleAndCapture waits for the device to visually update, then captures
// the post-action frame. Capture failures degrade to a nil frame.
func (d *Device) settleAndCapture() *models.Frame {
	time.Sleep(d.settle)
	return d.captureFrame()
}

// captureFrame grabs one frame through the capture driver, falling back
// to a plain screencap when the companion capture fails.
func (d *Device) captureFrame() *models.Frame {
	data, err := d.capturer.CaptureBytes()
	if err != nil {
		log.Printf("⚠️ [%s] Companion capture failed, falling back to screencap: %v", d.serial, err)
		data, err = d.adbClient.ScreenCapture(d.serial)
		if err != nil {
			log.Printf("⚠️ [%s] Screencap fallback failed: %v", d.serial, err)
			return nil
		}
	}

	frame := &models.Frame{Data: data, CaptureTime: time.Now()}
	d.lastFrame.Store(frame)
	return frame
}

// finish records the outcome and pushes the action description into the
// recording overlay.
func (d *Device) finish(actionType string, params any, res *models.ActionResult) *models.ActionResult {
	if res.Success && d.recorder != nil {
		d.recorder.SetOverlayText(res.Message)
	}
	d.actionLog.Record(d.serial, actionType, params, res)
	return res
}

func (d *Device) Tap(req models.TapRequest) *models.ActionResult {
	if !d.isConnected() {
		return models.ActionFailed("device not connected")
	}
	d.cmd.Tap(req.X, req.Y)
	frame := d.settleAndCapture()
	msg := fmt.Sprintf("Tapped at (%d, %d)", req.X, req.Y)
	return d.finish("tap", req, models.ActionOK(msg, frame))
}

func (d *Device) Swipe(req models.SwipeRequest) *models.ActionResult {
	if !d.isConnected() {
		return models.ActionFailed("device not connected")
	}
	duration := req.Duration
	if duration <= 0 {
		duration = 300
	}
	d.cmd.Swipe(req.StartX, req.StartY, req.EndX, req.EndY, duration)
	frame := d.settleAndCapture()
	msg := fmt.Sprintf("Swiped from (%d, %d) to (%d, %d)", req.StartX, req.StartY, req.EndX, req.EndY)
	return d.finish("swipe", req, models.ActionOK(msg, frame))
}

func (d *Device) Press(req models.PressRequest) *models.ActionResult {
	if !d.isConnected() {
		return models.ActionFailed("device not connected")
	}
	duration := req.Duration
	if duration <= 0 {
		duration = 1000
	}
	d.cmd.LongPress(req.X, req.Y, duration)
	frame := d.settleAndCapture()
	msg := fmt.Sprintf("Long pressed at (%d, %d) for %dms", req.X, req.Y, duration)
	return d.finish("press", req, models.ActionOK(msg, frame))
}

func (d *Device) TypeText(req models.TypeTextRequest) *models.ActionResult {
	if !d.isConnected() {
		return models.ActionFailed("device not connected")
	}
	d.cmd.TypeText(req.Text)
	frame := d.settleAndCapture()
	msg := fmt.Sprintf("Input text: %s", req.Text)
	return d.finish("type_text", req, models.ActionOK(msg, frame))
}

// ClearText selects and deletes the contents of the focused text field.
func (d *Device) ClearText() *models.ActionResult {
	if !d.isConnected() {
		return models.ActionFailed("device not connected")
	}
	d.cmd.ClearTextField()
	frame := d.settleAndCapture()
	return d.finish("clear_text", nil, models.ActionOK("Cleared text field", frame))
}

func (d *Device) KeyEvent(req models.KeyEventRequest) *models.ActionResult {
	if !d.isConnected() {
		return models.ActionFailed("device not connected")
	}
	d.cmd.KeyEvent(req.Keycode)
	frame := d.settleAndCapture()
	msg := fmt.Sprintf("Pressed key: %d", req.Keycode)
	return d.finish("key_event", req, models.ActionOK(msg, frame))
}

func (d *Device) Scroll(req models.ScrollRequest) *models.ActionResult {
	if !d.isConnected() {
		return models.ActionFailed("device not connected")
	}
	distance := req.Distance
	if distance <= 0 {
		distance = 500
	}
	if err := d.cmd.Scroll(req.Direction, distance); err != nil {
		return d.finish("scroll", req, models.ActionFailed(err.Error()))
	}
	frame := d.settleAndCapture()
	msg := fmt.Sprintf("Scrolled %s by %d pixels", req.Direction, distance)
	return d.finish("scroll", req, models.ActionOK(msg, frame))
}

// SwipePath swipes through a sequence of points, splitting the total
// duration evenly across the segments. A path with fewer than two points
// is rejected before any input reaches the device.
func (d *Device) SwipePath(req models.SwipePathRequest) *models.ActionResult {
	if !d.isConnected() {
		return models.ActionFailed("device not connected")
	}
	if len(req.Path) < 2 {
		return d.finish("swipe_path", req, models.ActionFailed("path must have at least 2 points"))
	}

	duration := req.Duration
	if duration <= 0 {
		duration = 300
	}
	segmentDuration := duration / (len(req.Path) - 1)

	for i := 0; i < len(req.Path)-1; i++ {
		from, to := req.Path[i], req.Path[i+1]
		d.cmd.Swipe(from[0], from[1], to[0], to[1], segmentDuration)
		time.Sleep(100 * time.Millisecond)
	}

	frame := d.settleAndCapture()
	msg := fmt.Sprintf("Swiped along path with %d points", len(req.Path))
	return d.finish("swipe_path", req, models.ActionOK(msg, frame))
}

// Screenshot captures a frame immediately, without a settle delay, and
// optionally writes it to req.SavePath.
func (d *Device) Screenshot(req models.ScreenshotRequest) *models.ActionResult {
	if !d.isConnected() {
		return models.ActionFailed("device not connected")
	}

	frame := d.captureFrame()
	if frame == nil {
		return d.finish("screenshot", req, models.ActionFailed("frame capture failed"))
	}
	if req.SavePath != "" {
		if err := os.WriteFile(req.SavePath, frame.Data, 0644); err != nil {
			return d.finish("screenshot", req, models.ActionFailed(fmt.Sprintf("save failed: %v", err)))
		}
	}
	return d.finish("screenshot", req, models.ActionOK("Screenshot captured", frame))
}

func (d *Device) WakeUp() *models.ActionResult {
	if !d.isConnected() {
		return models.ActionFailed("device not connected")
	}
	d.cmd.WakeUp()
	return d.finish("wake_up", nil, models.ActionOK("Device woken up", nil))
}

func (d *Device) UnlockScreen() *models.ActionResult {
	if !d.isConnected() {
		return models.ActionFailed("device not connected")
	}
	d.cmd.UnlockScreen()
	frame := d.settleAndCapture()
	return d.finish("unlock", nil, models.ActionOK("Screen unlocked", frame))
}

func (d *Device) OpenApp(pkg string) *models.ActionResult {
	if !d.isConnected() {
		return models.ActionFailed("device not connected")
	}
	d.cmd.OpenApp(pkg)
	frame := d.settleAndCapture()
	return d.finish("open_app", pkg, models.ActionOK(fmt.Sprintf("Opened app: %s", pkg), frame))
}

func (d *Device) CloseApp(pkg string) *models.ActionResult {
	if !d.isConnected() {
		return models.ActionFailed("device not connected")
	}
	d.cmd.CloseApp(pkg)
	frame := d.settleAndCapture()
	return d.finish("close_app", pkg, models.ActionOK(fmt.Sprintf("Closed app: %s", pkg), frame))
}

// CurrentActivity returns the component name of the foreground activity.
func (d *Device) CurrentActivity() *models.ActionResult {
	if !d.isConnected() {
		return models.ActionFailed("device not connected")
	}
	activity := d.cmd.CurrentActivity()
	if activity == "" {
		return models.ActionFailed("could not determine foreground activity")
	}
	return models.ActionOK(activity, nil)
}

// CheckActivity reports whether the activity stack contains name.
func (d *Device) CheckActivity(name string) *models.ActionResult {
	if !d.isConnected() {
		return models.ActionFailed("device not connected")
	}
	if d.cmd.CheckActivity(name) {
		return models.ActionOK(fmt.Sprintf("Activity %s is in the stack", name), nil)
	}
	return models.ActionFailed(fmt.Sprintf("Activity %s not found in the stack", name))
}

// GetState aggregates the device snapshot, the latest frame and the
// recording status.
func (d *Device) GetState() models.DeviceState {
	d.mu.Lock()
	info := d.info
	info.IsConnected = d.connected
	recorder := d.recorder
	d.mu.Unlock()

	state := models.DeviceState{
		Info:  info,
		Frame: d.lastFrame.Load(),
	}
	if recorder != nil {
		state.IsRecording = recorder.IsRecording()
		state.RecordingPath = recorder.CurrentPath()
	}
	return state
}

// PauseRecording pauses the recording session. No-op without one.
func (d *Device) PauseRecording() {
	if d.recorder != nil {
		d.recorder.Pause()
	}
}

// ResumeRecording resumes a paused recording session. No-op without one.
func (d *Device) ResumeRecording() {
	if d.recorder != nil {
		d.recorder.Unpause()
	}
}

// EnsureMirror returns a live mirroring client, creating the session
// lazily on first use and replacing it after a transport error
// invalidated the previous one.
func (d *Device) EnsureMirror() (*ScrcpyClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil, fmt.Errorf("device not connected")
	}
	if d.mirror != nil && d.mirror.IsAlive() {
		return d.mirror, nil
	}
	if d.mirror != nil {
		d.mirror.Close()
		d.mirror = nil
	}

	client := NewScrcpyClient(d.adbClient, d.serial, d.opts.Mirror)
	if err := client.Start(); err != nil {
		return nil, err
	}
	d.mirror = client
	return client, nil
}

// CloseMirror tears down the mirroring session if one is active.
func (d *Device) CloseMirror() {
	d.mu.Lock()
	mirror := d.mirror
	d.mirror = nil
	d.mu.Unlock()

	if mirror != nil {
		mirror.Close()
	}
}

// Mirror returns the active mirroring client, nil if none.
func (d *Device) Mirror() *ScrcpyClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mirror
}
