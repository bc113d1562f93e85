package service

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/webm"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// frameSource yields single compressed frames. Satisfied by MinicapDriver.
type frameSource interface {
	CaptureBytes() ([]byte, error)
	Geometry() (width, height, rotation int)
}

// RecorderOptions configure a recording run.
type RecorderOptions struct {
	SavePath      string
	BaseName      string
	FPS           int
	ChunkDuration time.Duration
	Overlay       bool // draw the diagnostic text onto each frame
}

func DefaultRecorderOptions() RecorderOptions {
	return RecorderOptions{
		SavePath:      "./workdir/videos",
		BaseName:      "record",
		FPS:           2,
		ChunkDuration: 300 * time.Second,
		Overlay:       true,
	}
}

// recClock tracks one chunk's time origin, excluding paused intervals.
// Both pause transitions go through the same lock, so a pause interval
// cannot be lost to reordering between the capture worker and callers.
type recClock struct {
	mu         sync.Mutex
	chunkStart time.Time
	pausedAt   time.Time
	isPaused   bool
}

func (c *recClock) startChunk(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunkStart = now
	if c.isPaused {
		// Pause continues into the new chunk; its origin starts here.
		c.pausedAt = now
	}
}

func (c *recClock) pause(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isPaused {
		c.isPaused = true
		c.pausedAt = now
	}
}

// resume shifts the chunk origin forward by the pause length so that
// presentation timestamps never include paused wall-clock time.
func (c *recClock) resume(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isPaused {
		c.chunkStart = c.chunkStart.Add(now.Sub(c.pausedAt))
		c.isPaused = false
	}
}

func (c *recClock) paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isPaused
}

// pts is the presentation time of a frame captured at now, relative to
// the chunk origin.
func (c *recClock) pts(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.chunkStart)
}

// Recorder runs the continuous capture loop on its own worker: it pulls
// JPEG frames from the source and muxes them into chunked Matroska files
// (MJPEG track, millisecond timestamps). Chunks rotate when the configured
// duration elapses; a device error stops the recording permanently.
type Recorder struct {
	source frameSource
	opts   RecorderOptions
	clock  recClock

	mu          sync.Mutex
	running     bool
	stop        chan struct{}
	done        chan struct{}
	chunkIndex  int
	currentPath string
	overlayText string
	lastErr     error

	// Test seams; default to the real clock.
	now   func() time.Time
	sleep func(time.Duration)
}

func NewRecorder(source frameSource, opts RecorderOptions) *Recorder {
	if opts.FPS <= 0 {
		opts.FPS = DefaultRecorderOptions().FPS
	}
	if opts.ChunkDuration <= 0 {
		opts.ChunkDuration = DefaultRecorderOptions().ChunkDuration
	}
	return &Recorder{
		source: source,
		opts:   opts,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Start launches the recording worker. Chunk files are named
// {base}_{sessionTimestamp}_{chunkIndex}.mkv under the save path.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("recording already in progress")
	}
	if err := os.MkdirAll(r.opts.SavePath, 0755); err != nil {
		return fmt.Errorf("create video dir: %w", err)
	}

	r.running = true
	r.lastErr = nil
	r.chunkIndex = 0
	r.stop = make(chan struct{})
	r.done = make(chan struct{})

	sessionBase := fmt.Sprintf("%s_%s", r.opts.BaseName, r.now().Format("20060102150405"))
	go r.recordLoop(sessionBase, r.stop, r.done)
	return nil
}

// Stop signals the worker and waits for it to flush and exit. Calling
// Stop on a stopped recorder is a no-op.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	done := r.done
	r.mu.Unlock()

	<-done
}

// Pause suspends capture. Only a flag and a timestamp are touched; the
// call never blocks on device I/O.
func (r *Recorder) Pause() { r.clock.pause(r.now()) }

// Unpause resumes capture, excluding the elapsed pause from timestamps.
func (r *Recorder) Unpause() { r.clock.resume(r.now()) }

func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// CurrentPath returns the chunk file currently being written.
func (r *Recorder) CurrentPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentPath
}

// Err returns the device error that permanently stopped the recording,
// nil while healthy.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// SetOverlayText updates the diagnostic text drawn onto subsequent frames.
func (r *Recorder) SetOverlayText(text string) {
	r.mu.Lock()
	r.overlayText = text
	r.mu.Unlock()
}

func (r *Recorder) recordLoop(sessionBase string, stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		r.mu.Lock()
		r.chunkIndex++
		chunkPath := filepath.Join(r.opts.SavePath, fmt.Sprintf("%s_%d.mkv", sessionBase, r.chunkIndex))
		r.currentPath = chunkPath
		r.mu.Unlock()

		frames, err := r.recordChunk(chunkPath, stop)
		if err != nil {
			// Unrecoverable without a fresh Start().
			log.Printf("❌ Device error, recording stopped: %v", err)
			r.mu.Lock()
			r.lastErr = err
			r.running = false
			r.mu.Unlock()
			return
		}
		log.Printf("🎞️ Chunk %d closed with %d frames", r.chunkIndex, frames)
	}
}

// recordChunk writes one chunk file and returns the number of frames it
// received. It returns on stop, on chunk-duration expiry, or with an
// error on device failure. A chunk that received zero frames is deleted
// instead of being left as a corrupt artifact.
func (r *Recorder) recordChunk(chunkPath string, stop chan struct{}) (frames int, err error) {
	w, h, rotation := r.source.Geometry()
	if rotation == 90 || rotation == 270 {
		w, h = h, w
	}

	f, err := os.Create(chunkPath)
	if err != nil {
		return 0, fmt.Errorf("create chunk: %w", err)
	}

	track := webm.TrackEntry{
		Name:        "screen",
		TrackNumber: 1,
		TrackUID:    1,
		CodecID:     "V_MJPEG",
		TrackType:   1,
		Video: &webm.Video{
			PixelWidth:  uint64(w),
			PixelHeight: uint64(h),
		},
	}
	if rotation != 0 {
		track.Name = fmt.Sprintf("screen rotate=%d", rotation)
	}

	writers, err := webm.NewSimpleBlockWriter(f, []webm.TrackEntry{track})
	if err != nil {
		f.Close()
		os.Remove(chunkPath)
		return 0, fmt.Errorf("open muxer: %w", err)
	}
	writer := writers[0]

	defer func() {
		writer.Close()
		if frames == 0 {
			if rmErr := os.Remove(chunkPath); rmErr == nil {
				log.Printf("🧹 Deleted empty chunk %s", chunkPath)
			}
		}
	}()

	interval := time.Second / time.Duration(r.opts.FPS)
	r.clock.startChunk(r.now())

	for {
		select {
		case <-stop:
			return frames, nil
		default:
		}

		if r.clock.paused() {
			r.sleep(100 * time.Millisecond)
			continue
		}

		t0 := r.now()
		data, captureErr := r.source.CaptureBytes()
		if captureErr != nil {
			return frames, fmt.Errorf("frame capture: %w", captureErr)
		}

		if r.opts.Overlay {
			r.mu.Lock()
			text := r.overlayText
			r.mu.Unlock()
			if text != "" {
				data = overlayText(data, text)
			}
		}

		pts := r.clock.pts(t0)
		if _, err := writer.Write(true, pts.Milliseconds(), data); err != nil {
			return frames, fmt.Errorf("mux frame: %w", err)
		}
		frames++

		// Sleep the remainder of the frame interval net of capture and
		// encode cost.
		if rest := interval - r.now().Sub(t0); rest > 0 {
			r.sleep(rest)
		}

		if r.clock.pts(t0) >= r.opts.ChunkDuration {
			return frames, nil
		}
	}
}

// overlayText draws a small caption onto the bottom-left of a JPEG frame.
// Any decode problem leaves the frame untouched.
func overlayText(jpegData []byte, text string) []byte {
	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return jpegData
	}

	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)

	face := basicfont.Face7x13
	margin := 8
	baseline := rgba.Bounds().Max.Y - margin

	// Dark backing strip so the caption stays readable on light frames.
	strip := image.Rect(rgba.Bounds().Min.X, baseline-face.Height-2, rgba.Bounds().Max.X, baseline+4)
	draw.Draw(rgba, strip, image.Black, image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  rgba,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(rgba.Bounds().Min.X+margin, baseline),
	}
	d.DrawString(text)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: 95}); err != nil {
		return jpegData
	}
	return buf.Bytes()
}
