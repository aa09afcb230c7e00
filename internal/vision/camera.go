package vision

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
)

// Camera is an acquired video track.
type Camera interface {
	// Frame returns the most recent frame. It fails until the first frame
	// has arrived.
	Frame() (image.Image, error)
	Close() error
}

// CameraOpener acquires a camera at the given resolution.
type CameraOpener func(ctx context.Context, device string, width, height int) (Camera, error)

var errNoFrame = errors.New("no frame yet")

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// FFmpegCamera reads an MJPEG stream from an ffmpeg subprocess and keeps
// the latest complete frame.
type FFmpegCamera struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	latest  []byte
	readErr error
	once    sync.Once
}

// OpenFFmpegCamera is the default CameraOpener. device is a v4l2 path on
// Linux, an avfoundation index on macOS or a dshow name on Windows. The
// process outlives ctx and runs until Close.
func OpenFFmpegCamera(ctx context.Context, device string, width, height int) (Camera, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("find ffmpeg: %w", err)
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(runtime.GOOS, device, width, height)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("camera stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	c := &FFmpegCamera{cmd: cmd, cancel: cancel, done: make(chan struct{})}
	go c.read(stdout)
	slog.Info("camera started", "device", device, "width", width, "height", height)
	return c, nil
}

func ffmpegArgs(goos, device string, width, height int) []string {
	size := strconv.Itoa(width) + "x" + strconv.Itoa(height)
	var input []string
	switch goos {
	case "darwin":
		if device == "" {
			device = "0"
		}
		input = []string{"-f", "avfoundation", "-framerate", "30", "-video_size", size, "-i", device}
	case "windows":
		input = []string{"-f", "dshow", "-video_size", size, "-i", "video=" + device}
	default:
		if device == "" {
			device = "/dev/video0"
		}
		input = []string{"-f", "v4l2", "-video_size", size, "-i", device}
	}
	args := append([]string{"-hide_banner", "-loglevel", "error"}, input...)
	return append(args, "-r", "5", "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-")
}

func (c *FFmpegCamera) read(r io.Reader) {
	defer close(c.done)
	err := scanJPEG(bufio.NewReaderSize(r, 1<<16), func(frame []byte) {
		c.mu.Lock()
		c.latest = frame
		c.mu.Unlock()
	})
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
}

// scanJPEG splits a concatenated JPEG stream into frames.
func scanJPEG(r io.Reader, emit func([]byte)) error {
	var pending []byte
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		pending = append(pending, chunk[:n]...)
		for {
			start := bytes.Index(pending, jpegSOI)
			if start < 0 {
				if len(pending) > 0 && pending[len(pending)-1] == 0xFF {
					pending = pending[len(pending)-1:]
				} else {
					pending = pending[:0]
				}
				break
			}
			end := bytes.Index(pending[start+2:], jpegEOI)
			if end < 0 {
				pending = pending[start:]
				break
			}
			stop := start + 2 + end + 2
			frame := make([]byte, stop-start)
			copy(frame, pending[start:stop])
			emit(frame)
			pending = pending[stop:]
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (c *FFmpegCamera) Frame() (image.Image, error) {
	c.mu.Lock()
	raw, readErr := c.latest, c.readErr
	c.mu.Unlock()
	if raw == nil {
		if readErr != nil {
			return nil, readErr
		}
		return nil, errNoFrame
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode camera frame: %w", err)
	}
	return img, nil
}

// Close stops ffmpeg and waits for the reader. Closing twice is a no-op.
func (c *FFmpegCamera) Close() error {
	c.once.Do(func() {
		c.cancel()
		<-c.done
		_ = c.cmd.Wait()
	})
	return nil
}
