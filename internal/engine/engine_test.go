package engine

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/live-assistant/internal/audio"
	"github.com/hubenschmidt/live-assistant/internal/capture"
	"github.com/hubenschmidt/live-assistant/internal/memory"
	"github.com/hubenschmidt/live-assistant/internal/mode"
	"github.com/hubenschmidt/live-assistant/internal/playback"
	"github.com/hubenschmidt/live-assistant/internal/session"
	"github.com/hubenschmidt/live-assistant/internal/session/sessiontest"
	"github.com/hubenschmidt/live-assistant/internal/vision"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type fakeMic struct {
	mu      sync.Mutex
	onFrame func(audio.Frame)
	stops   int
	closes  int
}

func (m *fakeMic) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return nil
}

func (m *fakeMic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *fakeMic) counts() (stops, closes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops, m.closes
}

func (m *fakeMic) emit(level float32) {
	samples := make([]float32, capture.DefaultFrameSize)
	for i := range samples {
		samples[i] = level
	}
	m.onFrame(audio.Frame{Samples: samples, SampleRate: 16000})
}

type fakeSpeaker struct {
	*playback.Timeline
	mu     sync.Mutex
	stops  int
	closes int
}

func (s *fakeSpeaker) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	s.Timeline.Stop()
}

func (s *fakeSpeaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSpeaker) counts() (stops, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops, s.closes
}

type fakeCamera struct {
	mu     sync.Mutex
	closes int
}

func (c *fakeCamera) Frame() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 64, 48)), nil
}

func (c *fakeCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

type harness struct {
	t       *testing.T
	engine  *Engine
	ch      *sessiontest.Channel
	dialer  *sessiontest.Dialer
	mic     *fakeMic
	speaker *fakeSpeaker
	camera  *fakeCamera

	mu       sync.Mutex
	asked    []PermissionKind
	deny     map[PermissionKind]bool
	camErr   error
	micOpens int
	spkOpens int
}

func newHarness(t *testing.T, edit func(*Config)) *harness {
	h := &harness{
		t:       t,
		ch:      sessiontest.NewChannel(),
		mic:     &fakeMic{},
		speaker: &fakeSpeaker{Timeline: playback.NewTimeline(24000)},
		camera:  &fakeCamera{},
		deny:    map[PermissionKind]bool{},
	}
	h.dialer = &sessiontest.Dialer{Channel: h.ch}

	cfg := Config{
		Session:   session.Config{APIKey: "test-key"},
		ActionTTL: 30 * time.Millisecond,
		Vision:    vision.Config{Interval: 10 * time.Millisecond},
	}
	if edit != nil {
		edit(&cfg)
	}

	h.engine = New(cfg, Deps{
		Dialer: h.dialer,
		Permissions: PermissionFunc(func(_ context.Context, kind PermissionKind) (bool, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.asked = append(h.asked, kind)
			return !h.deny[kind], nil
		}),
		OpenMicrophone: func(rate, frameSize int, onFrame func(audio.Frame)) (capture.Source, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.micOpens++
			h.mic.onFrame = onFrame
			return h.mic, nil
		},
		OpenSpeaker: func(rate int, _ time.Duration) (playback.Output, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.spkOpens++
			return h.speaker, nil
		},
		OpenCamera: func(context.Context, string, int, int) (vision.Camera, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.camErr != nil {
				return nil, h.camErr
			}
			return h.camera, nil
		},
	})
	t.Cleanup(func() { h.engine.Close() })
	return h
}

func (h *harness) connect() {
	h.t.Helper()
	require.NoError(h.t, h.engine.Connect(context.Background()))
}

func (h *harness) opens() (mic, speaker int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.micOpens, h.spkOpens
}

// waitEvent reads events until one of type typ arrives.
func waitEvent(t *testing.T, events <-chan Event, typ EventType) Event {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event stream closed")
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", typ)
		}
	}
}

func TestConnect_OpensIdleAndStartsCapture(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	assert.Equal(t, mode.Idle, h.engine.Mode())
	assert.NoError(t, h.engine.Err())

	configs := h.dialer.Configs()
	require.Len(t, configs, 1)
	assert.Equal(t, "test-key", configs[0].APIKey)
	assert.True(t, configs[0].InputTranscription)
	assert.True(t, configs[0].OutputTranscription)
	assert.Len(t, configs[0].Tools, 4)
	assert.Equal(t, session.DefaultVoice, configs[0].Voice)

	h.mic.emit(0.5)
	require.Eventually(t, func() bool {
		return len(h.ch.Media(session.MediaAudio)) == 1
	}, waitFor, tick)
	sent := h.ch.Media(session.MediaAudio)[0]
	assert.Equal(t, "audio/pcm;rate=16000", sent.MIMEType)
	assert.Len(t, sent.Data, capture.DefaultFrameSize*2)
	assert.Equal(t, mode.Listening, h.engine.Mode())
}

func TestConnect_MissingCredential(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Session.APIKey = "" })

	err := h.engine.Connect(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.ErrorIs(t, h.engine.Err(), ErrMissingCredential)
	assert.Empty(t, h.dialer.Configs())
	assert.Equal(t, mode.Disconnected, h.engine.Mode())
}

func TestConnect_PermissionDeniedHasNoSideEffects(t *testing.T) {
	h := newHarness(t, nil)
	h.deny[PermissionAudio] = true

	err := h.engine.Connect(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.ErrorIs(t, h.engine.Err(), ErrPermissionDenied)
	mic, spk := h.opens()
	assert.Zero(t, mic)
	assert.Zero(t, spk)
	assert.Empty(t, h.dialer.Configs())
	assert.Equal(t, mode.Disconnected, h.engine.Mode())
}

func TestConnect_FailsFastWhileOpen(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()
	assert.ErrorIs(t, h.engine.Connect(context.Background()), ErrAlreadyConnected)
	assert.Len(t, h.dialer.Configs(), 1)
}

func TestConnect_FailsFastMidSetup(t *testing.T) {
	h := newHarness(t, nil)
	gate := make(chan struct{})
	h.dialer.Gate = gate

	first := make(chan error, 1)
	go func() { first <- h.engine.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return len(h.dialer.Configs()) == 1 }, waitFor, tick)

	assert.ErrorIs(t, h.engine.Connect(context.Background()), ErrAlreadyConnected)

	close(gate)
	require.NoError(t, <-first)
	assert.Equal(t, mode.Idle, h.engine.Mode())
}

func TestConnect_AuthFailureOnDial(t *testing.T) {
	h := newHarness(t, nil)
	h.dialer.Err = errors.New("websocket: close 1008 (policy violation): API key not valid")

	err := h.engine.Connect(context.Background())
	assert.ErrorIs(t, err, ErrAuthentication)
	_, spkCloses := h.speaker.counts()
	assert.Equal(t, 1, spkCloses, "output context released on failed dial")
	mic, _ := h.opens()
	assert.Zero(t, mic)
}

func TestDisconnect_WhileConnecting(t *testing.T) {
	h := newHarness(t, nil)
	h.dialer.Gate = make(chan struct{})

	result := make(chan error, 1)
	go func() { result <- h.engine.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return len(h.dialer.Configs()) == 1 }, waitFor, tick)

	h.engine.Disconnect()
	err := <-result
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, mode.Disconnected, h.engine.Mode())
	_, spkCloses := h.speaker.counts()
	assert.Equal(t, 1, spkCloses)

	h.dialer.Gate = nil
	h.connect()
}

func TestMuted_NoOutboundAudio(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()
	events, cancel := h.engine.Subscribe()
	defer cancel()

	h.engine.SetMuted(true)
	assert.True(t, h.engine.Muted())

	h.mic.emit(0.5)
	ev := waitEvent(t, events, EventLevelChanged)
	assert.Greater(t, ev.Level, mode.DefaultThreshold)
	assert.Equal(t, mode.Idle, ev.Mode)
	assert.Equal(t, mode.Idle, h.engine.Mode())
	assert.Empty(t, h.ch.Media(session.MediaAudio))

	h.engine.SetMuted(false)
	h.mic.emit(0.5)
	require.Eventually(t, func() bool {
		return len(h.ch.Media(session.MediaAudio)) == 1
	}, waitFor, tick)
}

func TestToolCall_PlayMedia(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()
	events, cancel := h.engine.Subscribe()
	defer cancel()

	h.ch.Push(session.Event{ToolCalls: []session.ToolCall{
		{ID: "call-1", Name: "playMedia", Args: map[string]any{"query": "Song X"}},
	}})

	require.Eventually(t, func() bool { return len(h.ch.Results()) == 1 }, waitFor, tick)
	batch := h.ch.Results()[0]
	require.Len(t, batch, 1)
	assert.Equal(t, "call-1", batch[0].ID)
	assert.Equal(t, "SUCCESS", batch[0].Response["result"])

	entries := h.engine.Memory()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Text, "Song X")
	assert.Equal(t, memory.RoleAssistant, entries[0].Role)

	started := waitEvent(t, events, EventActionStarted)
	assert.Contains(t, started.Action, "Song X")
	expired := waitEvent(t, events, EventActionExpired)
	assert.Equal(t, started.Action, expired.Action)
	assert.Equal(t, mode.Idle, h.engine.Mode())
}

func TestToolCall_BatchAnsweredTogether(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	h.ch.Push(session.Event{ToolCalls: []session.ToolCall{
		{ID: "a", Name: "controlDevice", Args: map[string]any{"action": "TOGGLE_WIFI"}},
		{ID: "b", Name: "teleport"},
		{ID: "c", Name: "listInstalledApps"},
	}})

	require.Eventually(t, func() bool { return len(h.ch.Results()) == 1 }, waitFor, tick)
	batch := h.ch.Results()[0]
	require.Len(t, batch, 3)
	for i, id := range []string{"a", "b", "c"} {
		assert.Equal(t, id, batch[i].ID)
		assert.Equal(t, "SUCCESS", batch[i].Response["result"])
	}

	var texts []string
	for _, e := range h.engine.Memory() {
		texts = append(texts, e.Text)
	}
	assert.Len(t, texts, 2)
	assert.True(t, strings.Contains(strings.Join(texts, "|"), "teleport"))
}

func TestTurnComplete_FlushesTranscript(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	h.ch.Push(session.Event{OutputTranscript: "Hello "})
	h.ch.Push(session.Event{OutputTranscript: "there. "})
	h.ch.Push(session.Event{TurnComplete: true})

	require.Eventually(t, func() bool { return len(h.engine.Memory()) == 1 }, waitFor, tick)
	entry := h.engine.Memory()[0]
	assert.Equal(t, memory.RoleAssistant, entry.Role)
	assert.Equal(t, "Hello there.", entry.Text)

	h.ch.Push(session.Event{InputTranscript: "  ", TurnComplete: true})
	h.ch.Push(session.Event{InputTranscript: "what time is it", OutputTranscript: "noon", TurnComplete: true})
	require.Eventually(t, func() bool { return len(h.engine.Memory()) == 3 }, waitFor, tick)
	entries := h.engine.Memory()
	assert.Equal(t, memory.RoleUser, entries[1].Role)
	assert.Equal(t, "what time is it", entries[1].Text)
	assert.Equal(t, "noon", entries[2].Text)
}

func pcmChunk(samples int) []byte {
	s := make([]float32, samples)
	for i := range s {
		s[i] = 0.25
	}
	return audio.EncodePCM(s)
}

func TestInboundAudio_SpeaksAndInterrupts(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	h.ch.Push(session.Event{Audio: []session.Media{
		{Kind: session.MediaAudio, MIMEType: "audio/pcm;rate=24000", Data: pcmChunk(2400)},
		{Kind: session.MediaAudio, MIMEType: "audio/pcm;rate=24000", Data: pcmChunk(2400)},
	}})
	require.Eventually(t, func() bool { return h.engine.Mode() == mode.Speaking }, waitFor, tick)
	assert.Equal(t, 200*time.Millisecond, h.speaker.Buffered())

	// Loud capture while speaking does not demote.
	h.mic.emit(0)
	h.mic.emit(0.5)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, mode.Speaking, h.engine.Mode())

	h.ch.Push(session.Event{Interrupted: true})
	require.Eventually(t, func() bool { return h.engine.Mode() == mode.Idle }, waitFor, tick)
	stops, _ := h.speaker.counts()
	assert.Equal(t, 1, stops)
	assert.Zero(t, h.speaker.Buffered())
}

func TestDisconnect_IsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	h.engine.Disconnect()
	h.engine.Disconnect()

	assert.Equal(t, mode.Disconnected, h.engine.Mode())
	stops, closes := h.mic.counts()
	assert.Equal(t, 1, stops)
	assert.Equal(t, 1, closes)
	_, spkCloses := h.speaker.counts()
	assert.Equal(t, 1, spkCloses)
	assert.Equal(t, 1, h.ch.CloseCount())

	h.mic.emit(0.5)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.ch.Media(session.MediaAudio), "no capture after disconnect")
}

func TestRemoteFailure_Classified(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "auth", err: errors.New("API key not valid. Please pass a valid API key."), want: ErrAuthentication},
		{name: "transport", err: errors.New("connection reset by peer"), want: ErrConnectionUnstable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.connect()

			h.ch.Fail(tt.err)
			require.Eventually(t, func() bool { return h.engine.Mode() == mode.Disconnected }, waitFor, tick)
			assert.ErrorIs(t, h.engine.Err(), tt.want)
			stops, closes := h.mic.counts()
			assert.Equal(t, 1, stops)
			assert.Equal(t, 1, closes)

			h.engine.Disconnect()
			_, closes = h.mic.counts()
			assert.Equal(t, 1, closes)
		})
	}
}

func TestSendFailure_Disconnects(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()
	h.ch.FailSends(errors.New("broken pipe"))

	h.mic.emit(0.5)
	require.Eventually(t, func() bool { return h.engine.Mode() == mode.Disconnected }, waitFor, tick)
	assert.ErrorIs(t, h.engine.Err(), ErrConnectionUnstable)
}

func TestReconnectClearsError(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()
	h.ch.Fail(errors.New("connection reset by peer"))
	require.Eventually(t, func() bool { return h.engine.Err() != nil }, waitFor, tick)

	h.ch = sessiontest.NewChannel()
	h.dialer.Channel = h.ch
	h.connect()
	assert.NoError(t, h.engine.Err())
	assert.Equal(t, mode.Idle, h.engine.Mode())
}

func TestSendText(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.engine.SendText("hi"), ErrNotConnected)

	h.connect()
	require.NoError(t, h.engine.SendText("open maps"))
	require.Eventually(t, func() bool { return len(h.ch.Texts()) == 1 }, waitFor, tick)
	assert.Equal(t, "open maps", h.ch.Texts()[0])

	entries := h.engine.Memory()
	require.Len(t, entries, 1)
	assert.Equal(t, memory.RoleUser, entries[0].Role)
}

func TestVision_StreamsFramesAndStopsOnDisconnect(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.engine.EnableVision(context.Background()), ErrNotConnected)

	h.connect()
	require.NoError(t, h.engine.EnableVision(context.Background()))
	assert.True(t, h.engine.Snapshot().Vision)
	require.Eventually(t, func() bool {
		return len(h.ch.Media(session.MediaImage)) >= 2
	}, waitFor, tick)
	assert.Equal(t, "image/jpeg", h.ch.Media(session.MediaImage)[0].MIMEType)

	h.engine.Disconnect()
	h.camera.mu.Lock()
	closes := h.camera.closes
	h.camera.mu.Unlock()
	assert.Equal(t, 1, closes)
	assert.False(t, h.engine.Snapshot().Vision)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []PermissionKind{PermissionAudio, PermissionVideo}, h.asked, "only device permissions are requested")
}

func TestVision_CameraFailureLeavesAudioAlone(t *testing.T) {
	h := newHarness(t, nil)
	h.camErr = errors.New("no such device")
	h.connect()

	err := h.engine.EnableVision(context.Background())
	assert.ErrorIs(t, err, ErrCameraUnavailable)
	assert.ErrorIs(t, h.engine.Err(), ErrCameraUnavailable)
	assert.Equal(t, mode.Idle, h.engine.Mode())

	h.mic.emit(0.5)
	require.Eventually(t, func() bool {
		return len(h.ch.Media(session.MediaAudio)) == 1
	}, waitFor, tick)
}

func TestVision_PermissionDenied(t *testing.T) {
	h := newHarness(t, nil)
	h.deny[PermissionVideo] = true
	h.connect()

	assert.ErrorIs(t, h.engine.EnableVision(context.Background()), ErrPermissionDenied)
	assert.Equal(t, mode.Idle, h.engine.Mode())
}

func TestSetVisionTier(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.engine.SetVisionTier(vision.TierHigh))
	assert.Equal(t, vision.TierHigh, h.engine.Snapshot().Tier)
	assert.Error(t, h.engine.SetVisionTier("ultra"))
}

func TestClose_ReleasesAndEndsSubscriptions(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()
	events, _ := h.engine.Subscribe()

	require.NoError(t, h.engine.Close())
	require.NoError(t, h.engine.Close())

	stops, _ := h.mic.counts()
	assert.Equal(t, 1, stops)
	for range events {
	}
	assert.ErrorIs(t, h.engine.Connect(context.Background()), ErrClosed)
	assert.Equal(t, mode.Disconnected, h.engine.Mode())
}
