package service

import (
	"strings"
	"testing"
	"time"

	"mobilecontrol/adb"
	"mobilecontrol/models"
)

// stubCommander records the calls the facade dispatches to it.
type stubCommander struct {
	calls []string
}

func (s *stubCommander) Tap(x, y int)                   { s.calls = append(s.calls, "tap") }
func (s *stubCommander) LongPress(x, y, durationMs int) { s.calls = append(s.calls, "press") }
func (s *stubCommander) Swipe(x1, y1, x2, y2, durationMs int) {
	s.calls = append(s.calls, "swipe")
}
func (s *stubCommander) TypeText(text string) { s.calls = append(s.calls, "type") }
func (s *stubCommander) ClearTextField()      { s.calls = append(s.calls, "clear") }
func (s *stubCommander) KeyEvent(keycode int) { s.calls = append(s.calls, "key") }
func (s *stubCommander) Scroll(direction string, distance int) error {
	s.calls = append(s.calls, "scroll")
	if direction != "up" && direction != "down" && direction != "left" && direction != "right" {
		return errInvalidDirection
	}
	return nil
}
func (s *stubCommander) WakeUp()                 { s.calls = append(s.calls, "wake") }
func (s *stubCommander) UnlockScreen()           { s.calls = append(s.calls, "unlock") }
func (s *stubCommander) OpenApp(pkg string)      { s.calls = append(s.calls, "open") }
func (s *stubCommander) CloseApp(pkg string)     { s.calls = append(s.calls, "close") }
func (s *stubCommander) ScreenDensity() int      { return 420 }
func (s *stubCommander) CurrentActivity() string { return "com.example/.Main" }
func (s *stubCommander) CheckActivity(name string) bool {
	return name == "com.example/.Main"
}
func (s *stubCommander) Property(p string) string {
	return "stub"
}
func (s *stubCommander) ScreenInfo() adb.ScreenInfo {
	return adb.ScreenInfo{Width: 1080, Height: 1920}
}

type stubCapturer struct {
	fail bool
}

func (c *stubCapturer) CaptureBytes() ([]byte, error) {
	if c.fail {
		return nil, errCaptureFailed
	}
	return []byte{0xFF, 0xD8, 0xFF, 0xD9}, nil
}

var (
	errInvalidDirection = &stubError{"invalid scroll direction"}
	errCaptureFailed    = &stubError{"capture failed"}
)

type stubError struct{ msg string }

func (e *stubError) Error() string { return e.msg }

// newTestDevice builds a connected facade wired to stubs, bypassing the
// on-device setup that Start() performs.
func newTestDevice(t *testing.T) (*Device, *stubCommander) {
	t.Helper()
	cmd := &stubCommander{}
	d := NewDevice(adb.NewADBClient(), nil, DeviceOptions{
		Serial:      "test-serial",
		BaseDir:     t.TempDir(),
		SettleDelay: time.Millisecond,
	})
	d.cmd = cmd
	d.capturer = &stubCapturer{}
	d.connected = true
	d.info = models.DeviceInfo{Serial: "test-serial", ScreenWidth: 1080, ScreenHeight: 1920, IsConnected: true}
	return d, cmd
}

func TestTapReturnsPostActionFrame(t *testing.T) {
	d, cmd := newTestDevice(t)

	res := d.Tap(models.TapRequest{X: 500, Y: 500})

	if !res.Success {
		t.Fatalf("Tap failed: %s", res.Message)
	}
	if !strings.Contains(res.Message, "(500, 500)") {
		t.Errorf("message %q does not name the coordinates", res.Message)
	}
	if res.Frame == nil {
		t.Error("successful action carried no post-action frame")
	}
	if res.FrameDescription == "" {
		t.Error("frame description missing")
	}
	if len(cmd.calls) != 1 || cmd.calls[0] != "tap" {
		t.Errorf("commander calls = %v", cmd.calls)
	}
}

func TestActionsRequireConnection(t *testing.T) {
	d, cmd := newTestDevice(t)
	d.connected = false

	results := []*models.ActionResult{
		d.Tap(models.TapRequest{X: 1, Y: 1}),
		d.Swipe(models.SwipeRequest{}),
		d.TypeText(models.TypeTextRequest{Text: "x"}),
		d.Scroll(models.ScrollRequest{Direction: "down"}),
		d.Screenshot(models.ScreenshotRequest{}),
		d.WakeUp(),
		d.OpenApp("com.example"),
	}
	for i, res := range results {
		if res.Success {
			t.Errorf("action %d succeeded on disconnected device", i)
		}
	}
	if len(cmd.calls) != 0 {
		t.Errorf("disconnected device still reached the commander: %v", cmd.calls)
	}
}

func TestScrollInvalidDirection(t *testing.T) {
	d, _ := newTestDevice(t)

	res := d.Scroll(models.ScrollRequest{Direction: "sideways"})

	if res.Success {
		t.Error("invalid scroll direction reported success")
	}
	if res.Frame != nil {
		t.Error("failed action carried a frame")
	}
}

func TestSwipePathRejectsShortPath(t *testing.T) {
	d, cmd := newTestDevice(t)

	res := d.SwipePath(models.SwipePathRequest{Path: [][2]int{{10, 10}}})

	if res.Success {
		t.Error("single-point path reported success")
	}
	if len(cmd.calls) != 0 {
		t.Errorf("rejected path still reached the device: %v", cmd.calls)
	}
}

func TestSwipePathSegments(t *testing.T) {
	d, cmd := newTestDevice(t)

	res := d.SwipePath(models.SwipePathRequest{
		Path:     [][2]int{{0, 0}, {50, 50}, {100, 0}},
		Duration: 200,
	})

	if !res.Success {
		t.Fatalf("SwipePath failed: %s", res.Message)
	}
	swipes := 0
	for _, call := range cmd.calls {
		if call == "swipe" {
			swipes++
		}
	}
	if swipes != 2 {
		t.Errorf("3-point path issued %d swipes, want 2", swipes)
	}
}

func TestScreenshotSkipsSettle(t *testing.T) {
	d, _ := newTestDevice(t)
	d.settle = time.Hour // would hang if the settle delay applied

	done := make(chan *models.ActionResult, 1)
	go func() { done <- d.Screenshot(models.ScreenshotRequest{}) }()

	select {
	case res := <-done:
		if !res.Success || res.Frame == nil {
			t.Errorf("screenshot failed: %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("screenshot waited for the settle delay")
	}
}

func TestGetState(t *testing.T) {
	d, _ := newTestDevice(t)

	d.Tap(models.TapRequest{X: 1, Y: 2})
	state := d.GetState()

	if !state.Info.IsConnected {
		t.Error("state reports disconnected")
	}
	if state.Frame == nil {
		t.Error("state missing latest frame")
	}
	if state.IsRecording {
		t.Error("state reports recording without a session")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	d, _ := newTestDevice(t)

	d.Stop()
	if d.isConnected() {
		t.Error("still connected after Stop")
	}
	d.Stop() // must not panic

	if res := d.Tap(models.TapRequest{X: 1, Y: 1}); res.Success {
		t.Error("action succeeded after Stop")
	}
}

func TestEffectiveSize(t *testing.T) {
	info := models.DeviceInfo{ScreenWidth: 1080, ScreenHeight: 1920}

	tests := []struct {
		rotation int
		wantW    int
		wantH    int
	}{
		{0, 1080, 1920},
		{90, 1920, 1080},
		{180, 1080, 1920},
		{270, 1920, 1080},
	}
	for _, tt := range tests {
		info.Rotation = tt.rotation
		w, h := info.EffectiveSize()
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("rotation %d: got %dx%d, want %dx%d", tt.rotation, w, h, tt.wantW, tt.wantH)
		}
	}
}
