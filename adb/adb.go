package adb

import (
	"bytes"
	"fmt"
	"mobilecontrol/models"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ADBClient wraps execution of the adb binary. It provides the three
// primitives everything else is built on: run a shell command and get text
// back, push a local file to a device path, and forward a local TCP port to
// a localabstract socket on the device.
type ADBClient struct {
	ADBPath string
}

// NewADBClient creates a new ADB client
func NewADBClient() *ADBClient {
	return &ADBClient{
		ADBPath: getEnv("ADB_PATH", "adb"), // Assumes ADB is in PATH
	}
}

// Shell executes a shell command on the device and returns its output.
func (c *ADBClient) Shell(serial, command string) (string, error) {
	cmd := exec.Command(c.ADBPath, "-s", serial, "shell", command)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("shell %q failed: %w", command, err)
	}
	return string(output), nil
}

// ExecOut runs a command through adb exec-out and returns the raw bytes.
// Unlike Shell, the output is not subject to tty mangling, so it is safe
// for binary payloads (screencap, minicap frames).
func (c *ADBClient) ExecOut(serial, command string) ([]byte, error) {
	cmd := exec.Command(c.ADBPath, "-s", serial, "exec-out", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("exec-out %q failed: %w, stderr: %s", command, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// GetProperty reads a system property from the device.
func (c *ADBClient) GetProperty(serial, property string) (string, error) {
	out, err := c.Shell(serial, "getprop "+property)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// PushFile pushes a file to the device
func (c *ADBClient) PushFile(serial, localPath, remotePath string) error {
	cmd := exec.Command(c.ADBPath, "-s", serial, "push", localPath, remotePath)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("file push failed: %w", err)
	}
	return nil
}

// ScreenCapture captures the device screen and returns PNG bytes.
// Used as the fallback path when the minicap capture fails.
func (c *ADBClient) ScreenCapture(serial string) ([]byte, error) {
	return c.ExecOut(serial, "screencap -p")
}

// Forward creates ADB port forwarding from local TCP port to remote abstract socket
// Example: adb -s <serial> forward tcp:27183 localabstract:scrcpy
func (c *ADBClient) Forward(serial string, localPort int, remoteSocket string) error {
	cmd := exec.Command(c.ADBPath, "-s", serial, "forward",
		fmt.Sprintf("tcp:%d", localPort),
		fmt.Sprintf("localabstract:%s", remoteSocket))

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("adb forward failed: %w", err)
	}
	return nil
}

// RemoveForward removes ADB port forwarding for the specified local port
func (c *ADBClient) RemoveForward(serial string, localPort int) error {
	cmd := exec.Command(c.ADBPath, "-s", serial, "forward", "--remove",
		fmt.Sprintf("tcp:%d", localPort))

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("adb forward remove failed: %w", err)
	}
	return nil
}

// ShellBackground starts a non-blocking shell command on the device.
// Returns the exec.Cmd for process management (caller must handle cleanup).
func (c *ADBClient) ShellBackground(serial string, args []string) (*exec.Cmd, error) {
	fullArgs := []string{"-s", serial, "shell"}
	fullArgs = append(fullArgs, args...)

	cmd := exec.Command(c.ADBPath, fullArgs...)

	// Capture stderr for debugging
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start background command: %w", err)
	}

	return cmd, nil
}

// ListDevices returns a list of connected Android devices
// If the same physical device is connected via both USB and WiFi, WiFi is preferred
func (c *ADBClient) ListDevices() ([]models.Device, error) {
	cmd := exec.Command(c.ADBPath, "devices", "-l")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	devices := c.parseDeviceList(string(output))
	return c.deduplicateDevices(devices), nil
}

// parseDeviceList parses the output of 'adb devices -l'
func (c *ADBClient) parseDeviceList(output string) []models.Device {
	var devices []models.Device
	lines := strings.Split(output, "\n")

	for i, line := range lines {
		// Skip header line and empty lines
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}

		// Expected format: <serial> <state> [device info]
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		serial := parts[0]
		state := parts[1]

		// Only include devices that are online
		if state != "device" {
			continue
		}

		device := models.Device{
			ID:          fmt.Sprintf("device_%s", serial),
			ADBDeviceID: serial,
			Name:        serial, // Will be updated with model name
			Status:      "online",
			LastSeen:    time.Now().Unix(),
		}

		for _, part := range parts[2:] {
			if strings.HasPrefix(part, "model:") {
				device.Name = strings.ReplaceAll(strings.TrimPrefix(part, "model:"), "_", " ")
			}
		}

		c.enrichDeviceInfo(&device)
		devices = append(devices, device)
	}

	return devices
}

// enrichDeviceInfo fills in device properties via shell commands.
// Failures here are non-fatal; the device stays listed with partial info.
func (c *ADBClient) enrichDeviceInfo(device *models.Device) {
	if version, err := c.GetProperty(device.ADBDeviceID, "ro.build.version.release"); err == nil {
		device.AndroidVersion = version
	}
	if info, err := c.ScreenInfo(device.ADBDeviceID); err == nil {
		device.Resolution = fmt.Sprintf("%dx%d", info.Width, info.Height)
	}
	if battery, err := c.batteryLevel(device.ADBDeviceID); err == nil {
		device.Battery = battery
	}
}

// batteryLevel gets the device battery level (0-100)
func (c *ADBClient) batteryLevel(serial string) (int, error) {
	out, err := c.Shell(serial, "dumpsys battery")
	if err != nil {
		return 0, err
	}

	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "level:") {
			parts := strings.Split(line, ":")
			if len(parts) >= 2 {
				var level int
				fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &level)
				return level, nil
			}
		}
	}

	return 0, fmt.Errorf("battery level not found")
}

// isWiFiConnection checks if the serial is a WiFi connection (IP:port format)
func isWiFiConnection(serial string) bool {
	return strings.Contains(serial, ":")
}

// deduplicateDevices removes duplicate entries when same device is connected via USB and WiFi
// WiFi connections are preferred over USB
func (c *ADBClient) deduplicateDevices(devices []models.Device) []models.Device {
	serialToDevice := make(map[string]models.Device)

	for i := range devices {
		hwSerial, err := c.GetProperty(devices[i].ADBDeviceID, "ro.serialno")
		if err != nil || hwSerial == "" {
			// Can't get serial, keep device as-is using ADB ID as key
			hwSerial = devices[i].ADBDeviceID
		}
		devices[i].HardwareSerial = hwSerial

		existing, exists := serialToDevice[hwSerial]
		if !exists {
			serialToDevice[hwSerial] = devices[i]
			continue
		}
		if isWiFiConnection(devices[i].ADBDeviceID) && !isWiFiConnection(existing.ADBDeviceID) {
			serialToDevice[hwSerial] = devices[i]
		}
	}

	result := make([]models.Device, 0, len(serialToDevice))
	for _, device := range serialToDevice {
		result = append(result, device)
	}
	return result
}

// getEnv gets environment variable with fallback default
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
