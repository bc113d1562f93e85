package models

import "time"

// Device is one entry from an ADB device scan.
type Device struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ADBDeviceID    string `json:"adb_device_id"`
	HardwareSerial string `json:"hardware_serial,omitempty"`
	Status         string `json:"status"` // online, offline
	Resolution     string `json:"resolution"`
	Battery        int    `json:"battery"`
	AndroidVersion string `json:"android_version"`
	LastSeen       int64  `json:"last_seen"`
}

// DeviceInfo is a snapshot of one connected device, taken at Start()
// and immutable until the next reconnect.
type DeviceInfo struct {
	Serial       string `json:"serial"`
	Model        string `json:"model"`
	OSVersion    string `json:"os_version"`
	ScreenWidth  int    `json:"screen_width"`
	ScreenHeight int    `json:"screen_height"`
	Rotation     int    `json:"rotation"` // 0, 90, 180, 270
	Density      int    `json:"density"`
	IsConnected  bool   `json:"is_connected"`
}

// EffectiveSize returns the screen dimensions as currently displayed:
// width and height swap when the device is rotated 90 or 270 degrees.
func (i DeviceInfo) EffectiveSize() (width, height int) {
	if i.Rotation == 90 || i.Rotation == 270 {
		return i.ScreenHeight, i.ScreenWidth
	}
	return i.ScreenWidth, i.ScreenHeight
}

// Frame is a single captured screen image (JPEG bytes) plus capture time.
type Frame struct {
	Data        []byte    `json:"data,omitempty"`
	CaptureTime time.Time `json:"capture_time"`
}

// DeviceState aggregates everything a caller needs to know about a device.
type DeviceState struct {
	Info          DeviceInfo `json:"info"`
	Frame         *Frame     `json:"frame,omitempty"`
	IsRecording   bool       `json:"is_recording"`
	RecordingPath string     `json:"recording_path,omitempty"`
}
