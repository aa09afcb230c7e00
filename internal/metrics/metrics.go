package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_sessions_active",
		Help: "Currently open live sessions (0 or 1)",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_sessions_total",
		Help: "Live sessions opened",
	})

	SessionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_session_errors_total",
		Help: "Session failures by class",
	}, []string{"class"})

	ConnectDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assistant_connect_duration_seconds",
		Help:    "Time from connect request to session open, permission prompts included",
		Buckets: []float64{0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	CaptureFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_capture_frames_total",
		Help: "Microphone frames processed, by whether they were sent",
	}, []string{"outcome"})

	OutboundBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_outbound_bytes_total",
		Help: "Realtime input bytes handed to the transport",
	}, []string{"kind"})

	OutboundDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_outbound_dropped_total",
		Help: "Realtime input dropped because the send queue was full",
	}, []string{"kind"})

	InboundAudioChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_inbound_audio_chunks_total",
		Help: "Response audio chunks scheduled for playback",
	})

	PlaybackLead = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_playback_lead_seconds",
		Help: "How far the playback cursor runs ahead of the output clock",
	})

	Interruptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_interruptions_total",
		Help: "Model turns interrupted by the user",
	})

	ModeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_mode_transitions_total",
		Help: "State machine transitions by target mode",
	}, []string{"to"})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_tool_calls_total",
		Help: "Tool calls dispatched by action",
	}, []string{"action"})

	VisionFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_vision_frames_total",
		Help: "Camera frames sampled, by outcome",
	}, []string{"outcome"})

	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_event_subscribers",
		Help: "Connected presentation-bridge websocket clients",
	})
)
