package vision

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/live-assistant/internal/session"
)

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	return img
}

type fakeCamera struct {
	w, h   int
	mu     sync.Mutex
	closes int
}

func (c *fakeCamera) Frame() (image.Image, error) { return solid(c.w, c.h), nil }

func (c *fakeCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

type fakeOpener struct {
	mu     sync.Mutex
	err    error
	opened []*fakeCamera
}

func (o *fakeOpener) open(_ context.Context, _ string, w, h int) (Camera, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	c := &fakeCamera{w: w, h: h}
	o.opened = append(o.opened, c)
	return c, nil
}

func (o *fakeOpener) cameras() []*fakeCamera {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeCamera(nil), o.opened...)
}

type sink struct {
	mu   sync.Mutex
	sent []session.Media
}

func (s *sink) SendMedia(m session.Media) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
	return true
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestEncode_Downsamples(t *testing.T) {
	data, err := Encode(solid(1280, 720), 640, 60)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 360, cfg.Height)
}

func TestEncode_KeepsSmallImages(t *testing.T) {
	data, err := Encode(solid(320, 240), 640, 0)
	require.NoError(t, err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Width)
}

func TestEncode_EmptyImage(t *testing.T) {
	_, err := Encode(image.NewRGBA(image.Rect(0, 0, 0, 0)), 640, 60)
	assert.Error(t, err)
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("high")
	require.NoError(t, err)
	w, h := tier.Size()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)

	_, err = ParseTier("ultra")
	assert.Error(t, err)
}

func TestScanJPEG(t *testing.T) {
	frame := func(b byte) []byte { return []byte{0xFF, 0xD8, b, b, 0xFF, 0xD9} }
	stream := append([]byte{0x00, 0x01}, frame(1)...)
	stream = append(stream, frame(2)...)
	stream = append(stream, 0xFF, 0xD8, 3)

	var got [][]byte
	err := scanJPEG(bytes.NewReader(stream), func(f []byte) { got = append(got, f) })
	require.NoError(t, err)
	assert.Equal(t, [][]byte{frame(1), frame(2)}, got)
}

func TestFFmpegArgs(t *testing.T) {
	args := ffmpegArgs("linux", "", 640, 480)
	assert.Contains(t, args, "/dev/video0")
	assert.Contains(t, args, "640x480")
	assert.Equal(t, "-", args[len(args)-1])
}

func TestPipeline_SamplesAtCadence(t *testing.T) {
	op := &fakeOpener{}
	out := &sink{}
	p := NewPipeline(Config{Interval: 10 * time.Millisecond, MaxWidth: 320}, op.open, out, nil)

	require.NoError(t, p.Start(context.Background(), TierLow))
	require.Eventually(t, func() bool { return out.count() >= 2 }, time.Second, 5*time.Millisecond)
	p.Stop()

	out.mu.Lock()
	first := out.sent[0]
	out.mu.Unlock()
	assert.Equal(t, session.MediaImage, first.Kind)
	assert.Equal(t, "image/jpeg", first.MIMEType)

	n := out.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, out.count(), "no frames after Stop")
	assert.Equal(t, 1, op.cameras()[0].closes)
}

func TestPipeline_StopIsIdempotent(t *testing.T) {
	op := &fakeOpener{}
	p := NewPipeline(Config{Interval: time.Hour}, op.open, &sink{}, nil)
	require.NoError(t, p.Start(context.Background(), TierMedium))
	p.Stop()
	p.Stop()
	assert.Equal(t, 1, op.cameras()[0].closes)
	assert.False(t, p.Running())
}

func TestPipeline_CameraUnavailable(t *testing.T) {
	op := &fakeOpener{err: errors.New("no device")}
	p := NewPipeline(Config{}, op.open, &sink{}, nil)
	err := p.Start(context.Background(), TierMedium)
	assert.ErrorIs(t, err, ErrCameraUnavailable)
	assert.False(t, p.Running())
}

func TestPipeline_SetTierRestartsAfterSettle(t *testing.T) {
	op := &fakeOpener{}
	p := NewPipeline(Config{Interval: time.Hour, Settle: 20 * time.Millisecond}, op.open, &sink{}, nil)
	require.NoError(t, p.Start(context.Background(), TierLow))

	p.SetTier(TierHigh)
	cams := op.cameras()
	require.Len(t, cams, 1)
	assert.Equal(t, 1, cams[0].closes, "old acquisition released before the settle delay")
	assert.True(t, p.Running())

	require.Eventually(t, func() bool { return len(op.cameras()) == 2 }, time.Second, 5*time.Millisecond)
	second := op.cameras()[1]
	assert.Equal(t, 1280, second.w)
	assert.Equal(t, TierHigh, p.Tier())
	p.Stop()
	assert.Equal(t, 1, second.closes)
}

func TestPipeline_StopCancelsPendingRestart(t *testing.T) {
	op := &fakeOpener{}
	p := NewPipeline(Config{Interval: time.Hour, Settle: 20 * time.Millisecond}, op.open, &sink{}, nil)
	require.NoError(t, p.Start(context.Background(), TierLow))
	p.SetTier(TierHigh)
	p.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, op.cameras(), 1)
	assert.False(t, p.Running())
}

func TestPipeline_SetTierWhileStopped(t *testing.T) {
	op := &fakeOpener{}
	p := NewPipeline(Config{}, op.open, &sink{}, nil)
	p.SetTier(TierHigh)
	assert.Empty(t, op.cameras())
	assert.Equal(t, TierHigh, p.Tier())
}
