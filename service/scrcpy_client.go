package service

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"mobilecontrol/adb"
	"net"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	scrcpyServerVersion = "2.4"
	scrcpyJarRemote     = "/data/local/tmp/scrcpy-server.jar"
	scrcpySocketName    = "scrcpy"

	// Interpolation steps for a swipe gesture.
	swipeSteps = 30
)

// ClientState is the lifecycle state of a mirroring client.
type ClientState int32

const (
	StateIdle ClientState = iota
	StateDeploying
	StateHandshaking
	StateStreaming
	StateError
	StateClosed
)

func (s ClientState) String() string {
	return [...]string{"IDLE", "DEPLOYING", "HANDSHAKING", "STREAMING", "ERROR", "CLOSED"}[s]
}

// ScrcpyFrame is one encoded video access unit from the mirror stream.
type ScrcpyFrame struct {
	Data        []byte
	CaptureTime time.Time
}

// FrameListener receives every frame pulled off the video socket.
type FrameListener func(frame *ScrcpyFrame)

// ScrcpyOptions configure the on-device server process.
type ScrcpyOptions struct {
	MaxSize     int    // max frame dimension, 0 = native
	MaxFPS      int    // 0 = unlimited
	Bitrate     int    // bits per second
	EncoderName string // e.g. OMX.google.h264.encoder
	CodecName   string // h264, h265, av1
	JarPath     string // local path of the server archive
}

func DefaultScrcpyOptions() ScrcpyOptions {
	return ScrcpyOptions{
		MaxSize:     720,
		MaxFPS:      60,
		Bitrate:     8_000_000,
		EncoderName: "OMX.google.h264.encoder",
		CodecName:   "h264",
		JarPath:     "./assets/scrcpy-server",
	}
}

// ScrcpyClient manages one mirroring session against a single device: it
// deploys the server archive, performs the handshake over two forwarded
// localabstract sockets (video, control), splits the elementary stream
// into frames for listeners, and injects touch/scroll packets through the
// control socket.
type ScrcpyClient struct {
	adbClient *adb.ADBClient
	serial    string
	opts      ScrcpyOptions

	state atomic.Int32
	alive atomic.Bool

	// Negotiated during handshake.
	deviceName string
	width      uint16
	height     uint16

	lastFrame atomic.Pointer[ScrcpyFrame]

	listenerMu sync.Mutex
	listeners  []FrameListener

	// ctrlMu is the single writer lock: only one control write may be in
	// flight at a time, or packets interleave on the wire.
	ctrlMu   sync.Mutex
	ctrlConn net.Conn

	mu         sync.Mutex // lifecycle
	videoConn  net.Conn
	serverCmd  serverProcess
	localPort  int
	streamDone chan struct{}
	closed     bool

	// Cached parameter sets for late stream subscribers.
	hdrMu  sync.Mutex
	spsNAL []byte
	ppsNAL []byte
}

// serverProcess is the started on-device server process handle.
type serverProcess interface {
	Kill() error
	Wait() error
}

type cmdProcess struct{ cmd *exec.Cmd }

func (p cmdProcess) Kill() error {
	if p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}

func (p cmdProcess) Wait() error { return p.cmd.Wait() }

func NewScrcpyClient(adbClient *adb.ADBClient, serial string, opts ScrcpyOptions) *ScrcpyClient {
	c := &ScrcpyClient{
		adbClient: adbClient,
		serial:    serial,
		opts:      opts,
	}
	c.state.Store(int32(StateIdle))
	return c
}

func (c *ScrcpyClient) State() ClientState { return ClientState(c.state.Load()) }
func (c *ScrcpyClient) IsAlive() bool      { return c.alive.Load() }

// DeviceName returns the name negotiated during the handshake.
func (c *ScrcpyClient) DeviceName() string { return c.deviceName }

// Resolution returns the stream resolution negotiated during the handshake.
func (c *ScrcpyClient) Resolution() (width, height int) {
	return int(c.width), int(c.height)
}

// LastFrame returns the most recent access unit, nil before the first one.
// Older frames are dropped, not queued: a slow consumer only ever costs
// one frame of memory.
func (c *ScrcpyClient) LastFrame() *ScrcpyFrame { return c.lastFrame.Load() }

// AddFrameListener registers a listener for every streamed frame.
func (c *ScrcpyClient) AddFrameListener(l FrameListener) {
	c.listenerMu.Lock()
	c.listeners = append(c.listeners, l)
	c.listenerMu.Unlock()
}

// StreamHeaders returns the cached SPS and PPS NAL units, nil until seen.
func (c *ScrcpyClient) StreamHeaders() (sps, pps []byte) {
	c.hdrMu.Lock()
	defer c.hdrMu.Unlock()
	if c.spsNAL != nil {
		sps = append([]byte(nil), c.spsNAL...)
	}
	if c.ppsNAL != nil {
		pps = append([]byte(nil), c.ppsNAL...)
	}
	return sps, pps
}

// Start deploys the server, performs the handshake and begins streaming.
// On any failure the client transitions to ERROR and all resources are
// released; a fresh client is required to retry.
func (c *ScrcpyClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}
	if c.alive.Load() {
		return nil
	}

	c.state.Store(int32(StateDeploying))
	if err := c.deployServer(); err != nil {
		c.failLocked()
		return fmt.Errorf("deploy failed: %w", err)
	}

	c.state.Store(int32(StateHandshaking))
	if err := c.connectAndHandshake(); err != nil {
		c.failLocked()
		return fmt.Errorf("handshake failed: %w", err)
	}

	c.alive.Store(true)
	c.state.Store(int32(StateStreaming))
	c.streamDone = make(chan struct{})
	go c.streamLoop(c.videoConn, c.streamDone)

	log.Printf("🎬 [%s] Mirror stream ready - %s @ %dx%d", c.serial, c.deviceName, c.width, c.height)
	return nil
}

// deployServer pushes the server archive and starts it as an app_process
// with audio disabled and tunnel-forward mode forced.
func (c *ScrcpyClient) deployServer() error {
	log.Printf("📦 [%s] Pushing scrcpy-server...", c.serial)
	if err := c.adbClient.PushFile(c.serial, c.opts.JarPath, scrcpyJarRemote); err != nil {
		return fmt.Errorf("failed to push scrcpy server: %w", err)
	}

	serverArgs := []string{
		"CLASSPATH=" + scrcpyJarRemote,
		"app_process",
		"/",
		"com.genymobile.scrcpy.Server",
		scrcpyServerVersion,
		"log_level=info",
		fmt.Sprintf("max_size=%d", c.opts.MaxSize),
		fmt.Sprintf("max_fps=%d", c.opts.MaxFPS),
		fmt.Sprintf("video_bit_rate=%d", c.opts.Bitrate),
		fmt.Sprintf("video_encoder=%s", c.opts.EncoderName),
		fmt.Sprintf("video_codec=%s", c.opts.CodecName),
		"tunnel_forward=true",
		"send_frame_meta=false",
		"control=true",
		"audio=false",
		"show_touches=false",
		"stay_awake=false",
		"power_off_on_close=false",
		"clipboard_autosync=false",
	}

	cmd, err := c.adbClient.ShellBackground(c.serial, serverArgs)
	if err != nil {
		return fmt.Errorf("failed to start scrcpy server: %w", err)
	}
	c.serverCmd = cmdProcess{cmd}

	// Set up the forward to the localabstract socket the server listens on.
	c.localPort = findFreePort()
	if c.localPort == 0 {
		return fmt.Errorf("failed to find free port")
	}
	if err := c.adbClient.Forward(c.serial, c.localPort, scrcpySocketName); err != nil {
		return fmt.Errorf("failed to set up adb forward: %w", err)
	}
	return nil
}

// connectAndHandshake opens the video and control sockets and performs the
// fixed handshake: one dummy byte 0x00, 64 bytes of NUL-padded device
// name, then width and height as two big-endian u16. Any short read or
// mismatch is fatal.
func (c *ScrcpyClient) connectAndHandshake() error {
	videoConn, err := c.connectWithRetry(10, 300*time.Millisecond)
	if err != nil {
		return fmt.Errorf("video socket: %w", err)
	}
	c.videoConn = videoConn

	dummy := make([]byte, 1)
	if _, err := io.ReadFull(videoConn, dummy); err != nil {
		return fmt.Errorf("reading dummy byte: %w", err)
	}
	if dummy[0] != 0x00 {
		return fmt.Errorf("bad dummy byte 0x%02x", dummy[0])
	}

	// Second connection to the same socket becomes the control channel.
	ctrlConn, err := c.connectWithRetry(5, 200*time.Millisecond)
	if err != nil {
		return fmt.Errorf("control socket: %w", err)
	}
	c.ctrlMu.Lock()
	c.ctrlConn = ctrlConn
	c.ctrlMu.Unlock()

	name, width, height, err := readHandshakeMeta(videoConn)
	if err != nil {
		return err
	}
	c.deviceName = name
	c.width = width
	c.height = height

	if tc, ok := videoConn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
		tc.SetReadBuffer(1 << 20)
	}
	return nil
}

// readHandshakeMeta reads the device name and resolution portion of the
// handshake: 64 bytes of NUL-padded UTF-8 name, then 4 bytes unpacked as
// two big-endian u16 (width, height).
func readHandshakeMeta(r io.Reader) (name string, width, height uint16, err error) {
	nameBuf := make([]byte, 64)
	if _, err = io.ReadFull(r, nameBuf); err != nil {
		return "", 0, 0, fmt.Errorf("reading device name: %w", err)
	}
	name = strings.TrimRight(string(nameBuf), "\x00")
	if name == "" {
		return "", 0, 0, fmt.Errorf("empty device name in handshake")
	}

	res := make([]byte, 4)
	if _, err = io.ReadFull(r, res); err != nil {
		return "", 0, 0, fmt.Errorf("reading resolution: %w", err)
	}
	width = binary.BigEndian.Uint16(res[0:2])
	height = binary.BigEndian.Uint16(res[2:4])
	return name, width, height, nil
}

// connectWithRetry dials the forwarded port until the server accepts.
func (c *ScrcpyClient) connectWithRetry(maxRetries int, delay time.Duration) (net.Conn, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", c.localPort)

	for i := 0; i < maxRetries; i++ {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err == nil {
			return conn, nil
		}
		time.Sleep(delay)
	}
	return nil, fmt.Errorf("failed to connect after %d retries", maxRetries)
}

// streamLoop reads the elementary stream, splits it into NAL-delimited
// frames and publishes them. It exits on socket error or when the client
// stops being alive.
func (c *ScrcpyClient) streamLoop(conn net.Conn, done chan struct{}) {
	defer close(done)

	accBuf := make([]byte, 0, 1<<20)
	readBuf := make([]byte, 0x10000)

	for c.alive.Load() {
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, err := conn.Read(readBuf)
		if n > 0 {
			accBuf = append(accBuf, readBuf[:n]...)
			for {
				nalData, remaining := extractNAL(accBuf)
				if nalData == nil {
					break
				}
				accBuf = remaining
				c.publishFrame(nalData)
			}
		}

		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// No data yet; keep polling.
				continue
			}
			if c.alive.Load() {
				if err == io.EOF {
					log.Printf("⚠️ [%s] Mirror stream closed by device (EOF)", c.serial)
				} else {
					log.Printf("❌ [%s] Mirror stream read error: %v", c.serial, err)
				}
				c.alive.Store(false)
				c.state.Store(int32(StateError))
			}
			return
		}
	}
}

// publishFrame stores the frame in the latest slot and notifies listeners.
// SPS/PPS units are cached for late subscribers.
func (c *ScrcpyClient) publishFrame(nalData []byte) {
	data := append([]byte(nil), nalData...)

	switch nalUnitType(data) {
	case 7:
		c.hdrMu.Lock()
		c.spsNAL = data
		c.hdrMu.Unlock()
	case 8:
		c.hdrMu.Lock()
		c.ppsNAL = data
		c.hdrMu.Unlock()
	}

	frame := &ScrcpyFrame{Data: data, CaptureTime: time.Now()}
	c.lastFrame.Store(frame)

	c.listenerMu.Lock()
	listeners := c.listeners
	c.listenerMu.Unlock()
	for _, l := range listeners {
		l(frame)
	}
}

// Close stops the stream loop, then releases the sockets, kills the server
// process and removes the port forward. Closing an already-closed client
// is a no-op. The loop is stopped before the sockets are released so it
// cannot write into a closed descriptor.
func (c *ScrcpyClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.alive.Store(false)

	// Wake the stream loop out of its read and wait for it to exit.
	if c.videoConn != nil {
		c.videoConn.SetReadDeadline(time.Now())
	}
	if c.streamDone != nil {
		<-c.streamDone
		c.streamDone = nil
	}

	if c.videoConn != nil {
		c.videoConn.Close()
		c.videoConn = nil
	}
	c.ctrlMu.Lock()
	if c.ctrlConn != nil {
		c.ctrlConn.Close()
		c.ctrlConn = nil
	}
	c.ctrlMu.Unlock()

	if c.serverCmd != nil {
		c.serverCmd.Kill()
		c.serverCmd.Wait()
		c.serverCmd = nil
	}
	if c.localPort > 0 {
		if err := c.adbClient.RemoveForward(c.serial, c.localPort); err != nil {
			log.Printf("⚠️ [%s] Failed to remove forward: %v", c.serial, err)
		}
		c.localPort = 0
	}
	c.state.Store(int32(StateClosed))
	log.Printf("🛑 [%s] Mirror client closed", c.serial)
}

// failLocked releases resources after a failed start. Caller holds mu.
func (c *ScrcpyClient) failLocked() {
	c.state.Store(int32(StateError))
	if c.videoConn != nil {
		c.videoConn.Close()
		c.videoConn = nil
	}
	c.ctrlMu.Lock()
	if c.ctrlConn != nil {
		c.ctrlConn.Close()
		c.ctrlConn = nil
	}
	c.ctrlMu.Unlock()
	if c.serverCmd != nil {
		c.serverCmd.Kill()
		c.serverCmd.Wait()
		c.serverCmd = nil
	}
	if c.localPort > 0 {
		c.adbClient.RemoveForward(c.serial, c.localPort)
		c.localPort = 0
	}
}

// sendControl writes one packet to the control socket under the writer
// lock. A partial write is logged as a warning and not retried.
func (c *ScrcpyClient) sendControl(packet []byte) error {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	if c.ctrlConn == nil {
		return fmt.Errorf("control socket not connected")
	}
	n, err := c.ctrlConn.Write(packet)
	if err != nil {
		return err
	}
	if n < len(packet) {
		log.Printf("⚠️ [%s] Incomplete control write: %d/%d bytes", c.serial, n, len(packet))
	}
	return nil
}

// Touch injects one touch event at (x, y) with the given action.
func (c *ScrcpyClient) Touch(x, y int, action byte, touchID int64) error {
	return c.sendControl(SerializeTouch(action, touchID, x, y, c.width, c.height))
}

// Scroll injects a scroll event at (x, y) with horizontal and vertical
// scroll amounts.
func (c *ScrcpyClient) Scroll(x, y, h, v int) error {
	return c.sendControl(SerializeScroll(x, y, c.width, c.height, int32(h), int32(v)))
}

// Tap is touch DOWN followed by touch UP at the same point.
func (c *ScrcpyClient) Tap(x, y int) error {
	if err := c.Touch(x, y, ActionDown, DefaultTouchID); err != nil {
		return err
	}
	return c.Touch(x, y, ActionUp, DefaultTouchID)
}

// LongPress holds DOWN for the given duration before releasing.
func (c *ScrcpyClient) LongPress(x, y int, duration time.Duration) error {
	if err := c.Touch(x, y, ActionDown, DefaultTouchID); err != nil {
		return err
	}
	time.Sleep(duration)
	return c.Touch(x, y, ActionUp, DefaultTouchID)
}

// Swipe interpolates 30 MOVE events between the endpoints, spacing them
// evenly across the total duration.
func (c *ScrcpyClient) Swipe(x1, y1, x2, y2 int, duration time.Duration) error {
	if err := c.Touch(x1, y1, ActionDown, DefaultTouchID); err != nil {
		return err
	}

	stepDelay := duration / swipeSteps
	dx := float64(x2-x1) / swipeSteps
	dy := float64(y2-y1) / swipeSteps
	for i := 1; i < swipeSteps; i++ {
		x := x1 + int(dx*float64(i))
		y := y1 + int(dy*float64(i))
		if err := c.Touch(x, y, ActionMove, DefaultTouchID); err != nil {
			return err
		}
		time.Sleep(stepDelay)
	}
	return c.Touch(x2, y2, ActionUp, DefaultTouchID)
}

// SendKeyEvent injects a key press or release.
func (c *ScrcpyClient) SendKeyEvent(action, keycode, metastate int) error {
	return c.sendControl(SerializeKeycode(action, keycode, 0, metastate))
}

// SendText injects text directly, bypassing the keyboard.
func (c *ScrcpyClient) SendText(text string) error {
	return c.sendControl(SerializeText(text))
}

// SendClipboard sets the device clipboard and optionally pastes it.
func (c *ScrcpyClient) SendClipboard(text string, paste bool) error {
	return c.sendControl(SerializeClipboard(text, paste, 0))
}

// findFreePort finds an available TCP port
func findFreePort() int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

// extractNAL extracts a single NAL unit from buffer
func extractNAL(buf []byte) (nalData []byte, remaining []byte) {
	if len(buf) < 4 {
		return nil, buf
	}

	startIdx := findStartCodeIndex(buf)
	if startIdx < 0 {
		return nil, buf
	}

	searchStart := startIdx + 3
	if len(buf) > startIdx+3 && buf[startIdx+2] == 0 {
		searchStart = startIdx + 4
	}

	nextIdx := -1
	for i := searchStart; i < len(buf)-2; i++ {
		if buf[i] == 0 && buf[i+1] == 0 && (buf[i+2] == 1 || (buf[i+2] == 0 && i+3 < len(buf) && buf[i+3] == 1)) {
			nextIdx = i
			break
		}
	}

	if nextIdx > 0 {
		return buf[startIdx:nextIdx], buf[nextIdx:]
	}

	// A lone oversized unit with no successor yet: flush it rather than
	// buffering without bound.
	if len(buf) > 1024*100 {
		return buf[startIdx:], nil
	}

	return nil, buf
}

// findStartCodeIndex finds the position of 00 00 01 or 00 00 00 01
func findStartCodeIndex(data []byte) int {
	n := len(data)
	for i := 0; i < n-2; i++ {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			if i > 0 && data[i-1] == 0 {
				return i - 1
			}
			return i
		}
	}
	return -1
}

// nalUnitType returns the H.264 NAL unit type of an Annex-B unit, -1 if
// the start code cannot be parsed.
func nalUnitType(nalData []byte) int {
	if len(nalData) >= 4 && nalData[0] == 0 && nalData[1] == 0 {
		if nalData[2] == 1 {
			return int(nalData[3] & 0x1F)
		}
		if nalData[2] == 0 && nalData[3] == 1 && len(nalData) > 4 {
			return int(nalData[4] & 0x1F)
		}
	}
	return -1
}
