package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/hubenschmidt/live-assistant/internal/audio"
)

// DefaultModel is the native-audio live model used when none is configured.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// DefaultVoice is the prebuilt synthetic voice used when none is configured.
const DefaultVoice = "Puck"

// GeminiDialer opens sessions on the Gemini Live API.
type GeminiDialer struct{}

func (GeminiDialer) Dial(ctx context.Context, cfg Config) (Channel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini dial: no api key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	sess, err := client.Live.Connect(ctx, model, liveConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("gemini live connect: %w", err)
	}
	slog.Info("gemini session opened", "model", model, "tools", len(cfg.Tools))
	return &geminiChannel{sess: sess}, nil
}

// liveConfig mirrors the declared capability set: audio-only responses,
// transcription both ways, a prebuilt voice and the tool catalog.
func liveConfig(cfg Config) *genai.LiveConnectConfig {
	voice := cfg.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	if cfg.SystemInstruction != "" {
		lc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}}
	}
	if cfg.InputTranscription {
		lc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if len(cfg.Tools) > 0 {
		lc.Tools = []*genai.Tool{{FunctionDeclarations: functionDeclarations(cfg.Tools)}}
	}
	return lc
}

func functionDeclarations(decls []FunctionDecl) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		fd := &genai.FunctionDeclaration{Name: d.Name, Description: d.Description}
		if len(d.Parameters) > 0 {
			schema := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
			for _, p := range d.Parameters {
				schema.Properties[p.Name] = &genai.Schema{
					Type:        genai.TypeString,
					Description: p.Description,
					Enum:        p.Enum,
				}
				if p.Required {
					schema.Required = append(schema.Required, p.Name)
				}
			}
			fd.Parameters = schema
		}
		out = append(out, fd)
	}
	return out
}

type geminiChannel struct {
	sess *genai.Session
}

func (c *geminiChannel) SendMedia(m Media) error {
	blob := &genai.Blob{MIMEType: m.MIMEType, Data: m.Data}
	input := genai.LiveRealtimeInput{}
	switch m.Kind {
	case MediaAudio:
		input.Audio = blob
	case MediaImage:
		input.Video = blob
	default:
		return fmt.Errorf("unsupported media kind %q", m.Kind)
	}
	return c.sess.SendRealtimeInput(input)
}

func (c *geminiChannel) SendText(text string) error {
	return c.sess.SendRealtimeInput(genai.LiveRealtimeInput{Text: text})
}

func (c *geminiChannel) SendToolResults(results []ToolResult) error {
	responses := make([]*genai.FunctionResponse, 0, len(results))
	for _, r := range results {
		responses = append(responses, &genai.FunctionResponse{ID: r.ID, Name: r.Name, Response: r.Response})
	}
	return c.sess.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: responses})
}

func (c *geminiChannel) Receive() (Event, error) {
	msg, err := c.sess.Receive()
	if err != nil {
		return Event{}, err
	}
	return toEvent(msg), nil
}

func (c *geminiChannel) Close() error {
	return c.sess.Close()
}

// toEvent flattens a server message into an Event. Inline audio parts that
// are not PCM are dropped.
func toEvent(msg *genai.LiveServerMessage) Event {
	var ev Event
	if msg == nil {
		return ev
	}
	ev.SetupComplete = msg.SetupComplete != nil
	ev.GoAway = msg.GoAway != nil

	if msg.ToolCall != nil {
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc == nil {
				continue
			}
			ev.ToolCalls = append(ev.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}

	sc := msg.ServerContent
	if sc == nil {
		return ev
	}
	if sc.InputTranscription != nil {
		ev.InputTranscript = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		ev.OutputTranscript = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || !audio.IsPCM(part.InlineData.MIMEType) {
				continue
			}
			ev.Audio = append(ev.Audio, Media{
				Kind:     MediaAudio,
				MIMEType: part.InlineData.MIMEType,
				Data:     part.InlineData.Data,
			})
		}
	}
	ev.Interrupted = sc.Interrupted
	ev.TurnComplete = sc.TurnComplete
	return ev
}
