package service

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"mobilecontrol/adb"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

const (
	minicapBinRemote = "/data/local/tmp/minicap"
	minicapSoRemote  = "/data/local/tmp/minicap.so"

	minicapBaseURL = "https://github.com/openatx/stf-binaries/raw/master/node_modules/minicap-prebuilt/prebuilt"
	// Mirror tried when the direct download fails.
	githubProxyURL = "https://goppx.com/"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// MinicapDriver captures single compressed frames directly from the
// device's minicap companion binary. Construction verifies or repairs the
// on-device installation; a failed install is a hard error because no
// capture can succeed without the binaries.
type MinicapDriver struct {
	adbClient  *adb.ADBClient
	serial     string
	httpClient *http.Client

	width    int
	height   int
	rotation int
}

func NewMinicapDriver(adbClient *adb.ADBClient, serial string) (*MinicapDriver, error) {
	d := &MinicapDriver{
		adbClient:  adbClient,
		serial:     serial,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	if err := d.ensureInstalled(); err != nil {
		return nil, fmt.Errorf("minicap install: %w", err)
	}
	if err := d.RefreshGeometry(); err != nil {
		return nil, err
	}
	return d, nil
}

// Geometry returns the screen size and rotation the driver captures with.
func (d *MinicapDriver) Geometry() (width, height, rotation int) {
	return d.width, d.height, d.rotation
}

// RefreshGeometry re-queries the screen size and rotation. Minicap wants
// the physical (unrotated) size plus the rotation, so the swap applied by
// ScreenInfo is undone here.
func (d *MinicapDriver) RefreshGeometry() error {
	info, err := d.adbClient.ScreenInfo(d.serial)
	if err != nil {
		return fmt.Errorf("screen geometry query: %w", err)
	}
	w, h := info.Width, info.Height
	if info.Rotation == 90 || info.Rotation == 270 {
		w, h = h, w
	}
	d.width, d.height, d.rotation = w, h, info.Rotation
	return nil
}

// ensureInstalled verifies the minicap binary and shared library exist and
// are non-empty on the device, downloading and pushing them if not.
func (d *MinicapDriver) ensureInstalled() error {
	if d.isInstalled() {
		return nil
	}

	abi, err := d.adbClient.GetProperty(d.serial, "ro.product.cpu.abi")
	if err != nil {
		return fmt.Errorf("query cpu abi: %w", err)
	}
	sdk, err := d.adbClient.GetProperty(d.serial, "ro.build.version.sdk")
	if err != nil {
		return fmt.Errorf("query sdk level: %w", err)
	}

	downloads := []struct {
		url    string
		remote string
	}{
		{fmt.Sprintf("%s/%s/lib/android-%s/minicap.so", minicapBaseURL, abi, sdk), minicapSoRemote},
		{fmt.Sprintf("%s/%s/bin/minicap", minicapBaseURL, abi), minicapBinRemote},
	}

	for _, dl := range downloads {
		local, err := d.download(dl.url)
		if err != nil {
			log.Printf("⚠️ [%s] Download failed, trying mirror: %v", d.serial, err)
			local, err = d.download(githubProxyURL + dl.url)
			if err != nil {
				return fmt.Errorf("download %s: %w", path.Base(dl.remote), err)
			}
		}
		err = d.adbClient.PushFile(d.serial, local, dl.remote)
		os.Remove(local)
		if err != nil {
			return fmt.Errorf("push %s: %w", dl.remote, err)
		}
		if _, err := d.adbClient.Shell(d.serial, "chmod 777 "+dl.remote); err != nil {
			return fmt.Errorf("chmod %s: %w", dl.remote, err)
		}
	}

	if !d.isInstalled() {
		return fmt.Errorf("minicap still missing after install")
	}
	log.Printf("✅ [%s] Minicap installed", d.serial)
	return nil
}

// isInstalled reports whether both minicap files exist and are non-empty.
func (d *MinicapDriver) isInstalled() bool {
	for _, remote := range []string{minicapBinRemote, minicapSoRemote} {
		out, err := d.adbClient.Shell(d.serial, "wc -c < "+remote)
		if err != nil {
			return false
		}
		size, err := strconv.Atoi(strings.TrimSpace(out))
		if err != nil || size <= 0 {
			return false
		}
	}
	return true
}

// download fetches a URL into a temporary file and returns its path.
func (d *MinicapDriver) download(url string) (string, error) {
	log.Printf("⬇️ Downloading %s", url)
	resp, err := d.httpClient.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned %s", url, resp.Status)
	}

	f, err := os.CreateTemp("", "minicap-*")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// CaptureBytes invokes minicap once and returns the raw JPEG frame. The
// spec argument is "{W}x{H}@{W}x{H}/{rotation}" with the physical size on
// both sides.
func (d *MinicapDriver) CaptureBytes() ([]byte, error) {
	spec := fmt.Sprintf("%dx%d@%dx%d/%d", d.width, d.height, d.width, d.height, d.rotation)
	cmd := fmt.Sprintf("LD_LIBRARY_PATH=/data/local/tmp %s -s -P %s", minicapBinRemote, spec)

	raw, err := d.adbClient.ExecOut(d.serial, cmd)
	if err != nil {
		return nil, err
	}
	return extractJPEG(raw)
}

// extractJPEG slices the JPEG image out of minicap's raw output: the
// inclusive bytes between the Start-Of-Image marker 0xFFD8 and the last
// End-Of-Image marker 0xFFD9. A missing SOI is fatal for the call; a
// missing EOI degrades to taking everything after the SOI.
func extractJPEG(raw []byte) ([]byte, error) {
	start := bytes.Index(raw, jpegSOI)
	if start < 0 {
		return nil, fmt.Errorf("JPEG SOI not found in %d bytes of output", len(raw))
	}
	end := bytes.LastIndex(raw, jpegEOI)
	if end > start {
		return raw[start : end+2], nil
	}
	return raw[start:], nil
}
