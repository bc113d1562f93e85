package adb

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ScreenInfo describes the screen as currently displayed. Width and height
// are already swapped when the device is rotated 90 or 270 degrees.
type ScreenInfo struct {
	Width    int `json:"width"`
	Height   int `json:"height"`
	Rotation int `json:"rotate"` // 0, 90, 180, 270
}

var (
	sizeRe        = regexp.MustCompile(`(\d+)x(\d+)`)
	orientationRe = regexp.MustCompile(`SurfaceOrientation:\s*(\d+)`)
	rotationRe    = regexp.MustCompile(`rotation=(\d+)`)
	densityRe     = regexp.MustCompile(`density:\s*(\d+)`)
)

// ScreenInfo queries the live screen size and rotation. It must be queried
// fresh for anything that positions relative to the screen (e.g. scroll),
// because rotation changes at any time.
func (c *ADBClient) ScreenInfo(serial string) (ScreenInfo, error) {
	rotOut, err := c.Shell(serial, "dumpsys input | grep 'SurfaceOrientation'")
	if err != nil {
		// Some builds dropped SurfaceOrientation from dumpsys input.
		rotOut, _ = c.Shell(serial, "dumpsys display | grep 'rotation='")
	}

	sizeOut, err := c.Shell(serial, "wm size")
	if err != nil {
		return ScreenInfo{}, err
	}
	return ParseScreenInfo(sizeOut, rotOut)
}

// ParseScreenInfo combines the output of "wm size" and a rotation query
// into a ScreenInfo. "Override size" wins over "Physical size" because it
// is the resolution actually being displayed.
func ParseScreenInfo(sizeOut, rotationOut string) (ScreenInfo, error) {
	rotation := ParseRotation(rotationOut)

	var physical, override string
	for _, line := range strings.Split(sizeOut, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Physical size:") {
			physical = line
		}
		if strings.HasPrefix(line, "Override size:") {
			override = line
		}
	}
	sizeLine := override
	if sizeLine == "" {
		sizeLine = physical
	}
	if sizeLine == "" {
		sizeLine = sizeOut
	}

	m := sizeRe.FindStringSubmatch(sizeLine)
	if m == nil {
		return ScreenInfo{}, fmt.Errorf("cannot parse screen size from %q", sizeOut)
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])

	if rotation == 90 || rotation == 270 {
		w, h = h, w
	}
	return ScreenInfo{Width: w, Height: h, Rotation: rotation}, nil
}

// ParseRotation extracts the surface rotation in degrees from either
// "dumpsys input" (SurfaceOrientation: n) or "dumpsys display"
// (rotation=n) output. Unknown output reads as 0.
func ParseRotation(out string) int {
	m := orientationRe.FindStringSubmatch(out)
	if m == nil {
		m = rotationRe.FindStringSubmatch(out)
	}
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return (n % 4) * 90
}

// ScreenDensity returns the device screen density in DPI.
func (c *ADBClient) ScreenDensity(serial string) (int, error) {
	out, err := c.Shell(serial, "wm density")
	if err != nil {
		return 0, err
	}
	return ParseDensity(out)
}

// ParseDensity parses "wm density" output. When an override density is
// set the last reported value is the effective one.
func ParseDensity(out string) (int, error) {
	matches := densityRe.FindAllStringSubmatch(out, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("cannot parse density from %q", out)
	}
	return strconv.Atoi(matches[len(matches)-1][1])
}

// CurrentActivity returns the component name of the foreground activity.
func (c *ADBClient) CurrentActivity(serial string) (string, error) {
	out, err := c.Shell(serial, "dumpsys activity activities | grep -E 'mResumedActivity|mFocusedActivity'")
	if err != nil {
		return "", err
	}
	return ParseCurrentActivity(out), nil
}

// ParseCurrentActivity pulls the package/activity component out of
// mResumedActivity / mFocusedActivity dumpsys lines.
func ParseCurrentActivity(out string) string {
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if !strings.Contains(line, "mResumedActivity") && !strings.Contains(line, "mFocusedActivity") {
			continue
		}
		for _, part := range strings.Fields(line) {
			if strings.Contains(part, "/") && strings.Contains(part, ".") {
				return part
			}
		}
	}
	return ""
}
