package service

import (
	"fmt"
	"log"
	"mobilecontrol/adb"
	"net/url"
	"strings"
)

// CommandDriver issues primitive input and query operations to one device
// over the ADB shell. Transport failures are logged and degrade to a
// zero/empty result instead of propagating: a disconnect mid-session is
// common and must not kill the session for the layers above.
type CommandDriver struct {
	adbClient *adb.ADBClient
	serial    string
}

func NewCommandDriver(adbClient *adb.ADBClient, serial string) *CommandDriver {
	return &CommandDriver{adbClient: adbClient, serial: serial}
}

// shell runs a device shell command, logging and swallowing any transport
// error. Call sites that need the error use the adb client directly.
func (d *CommandDriver) shell(command string) string {
	out, err := d.adbClient.Shell(d.serial, command)
	if err != nil {
		log.Printf("⚠️ [%s] Command %q failed: %v", d.serial, command, err)
		return ""
	}
	return out
}

func (d *CommandDriver) Tap(x, y int) {
	d.shell(fmt.Sprintf("input tap %d %d", x, y))
}

// LongPress holds at (x, y) for durationMs milliseconds, implemented as a
// zero-distance swipe.
func (d *CommandDriver) LongPress(x, y, durationMs int) {
	d.shell(fmt.Sprintf("input swipe %d %d %d %d %d", x, y, x, y, durationMs))
}

func (d *CommandDriver) Swipe(x1, y1, x2, y2, durationMs int) {
	d.shell(fmt.Sprintf("input swipe %d %d %d %d %d", x1, y1, x2, y2, durationMs))
}

// TypeText percent-encodes the text so non-ASCII and shell-hostile
// characters survive the trip through "input text".
func (d *CommandDriver) TypeText(text string) {
	d.shell("input text " + url.PathEscape(text))
}

// ClearTextField selects all text in the focused field and deletes it.
func (d *CommandDriver) ClearTextField() {
	d.shell("input keyevent KEYCODE_CTRL_A")
	d.shell("input keyevent KEYCODE_DEL")
}

func (d *CommandDriver) KeyEvent(keycode int) {
	d.shell(fmt.Sprintf("input keyevent %d", keycode))
}

// Scroll swipes from the live screen center in the given direction. The
// center is derived from a fresh ScreenInfo query, not a cached one,
// because rotation may have changed since the last call. An unknown
// direction is a contract error and is reported, not swallowed.
func (d *CommandDriver) Scroll(direction string, distance int) error {
	info := d.ScreenInfo()
	x, y := info.Width/2, info.Height/2

	switch strings.ToLower(direction) {
	case "up":
		d.shell(fmt.Sprintf("input swipe %d %d %d %d 300", x, y, x, y-distance))
	case "down":
		d.shell(fmt.Sprintf("input swipe %d %d %d %d 300", x, y, x, y+distance))
	case "left":
		d.shell(fmt.Sprintf("input swipe %d %d %d %d 300", x, y, x-distance, y))
	case "right":
		d.shell(fmt.Sprintf("input swipe %d %d %d %d 300", x, y, x+distance, y))
	default:
		return fmt.Errorf("invalid scroll direction: %q (use up, down, left or right)", direction)
	}
	return nil
}

func (d *CommandDriver) WakeUp() {
	d.shell("input keyevent KEYCODE_WAKEUP")
}

// UnlockScreen wakes the device and swipes up past the lock screen.
func (d *CommandDriver) UnlockScreen() {
	d.shell("input keyevent KEYCODE_WAKEUP")
	d.shell("input swipe 500 1000 500 500")
}

func (d *CommandDriver) OpenApp(packageName string) {
	d.shell(fmt.Sprintf("monkey -p %s -c android.intent.category.LAUNCHER 1", packageName))
}

func (d *CommandDriver) CloseApp(packageName string) {
	d.shell("am force-stop " + packageName)
}

// ScreenInfo returns the live screen size and rotation, zero-valued on
// transport failure.
func (d *CommandDriver) ScreenInfo() adb.ScreenInfo {
	info, err := d.adbClient.ScreenInfo(d.serial)
	if err != nil {
		log.Printf("⚠️ [%s] Screen info query failed: %v", d.serial, err)
		return adb.ScreenInfo{}
	}
	return info
}

// ScreenDensity returns the screen density in DPI, 0 on transport failure.
func (d *CommandDriver) ScreenDensity() int {
	density, err := d.adbClient.ScreenDensity(d.serial)
	if err != nil {
		log.Printf("⚠️ [%s] Density query failed: %v", d.serial, err)
		return 0
	}
	return density
}

// CurrentActivity returns the foreground activity component, "" on failure.
func (d *CommandDriver) CurrentActivity() string {
	activity, err := d.adbClient.CurrentActivity(d.serial)
	if err != nil {
		log.Printf("⚠️ [%s] Activity query failed: %v", d.serial, err)
		return ""
	}
	return activity
}

// CheckActivity reports whether the activity stack contains name.
func (d *CommandDriver) CheckActivity(name string) bool {
	out := d.shell("dumpsys activity activities")
	return strings.Contains(out, name)
}

// Property returns a system property value, "" on transport failure.
func (d *CommandDriver) Property(prop string) string {
	val, err := d.adbClient.GetProperty(d.serial, prop)
	if err != nil {
		log.Printf("⚠️ [%s] getprop %s failed: %v", d.serial, prop, err)
		return ""
	}
	return val
}
