package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/hubenschmidt/live-assistant/internal/capture"
	"github.com/hubenschmidt/live-assistant/internal/mode"
	"github.com/hubenschmidt/live-assistant/internal/session"
	"github.com/hubenschmidt/live-assistant/internal/vision"
)

const (
	appDir     = "live-assistant"
	configName = "config"
	configType = "toml"
	envPrefix  = "ASSISTANT"
)

type config struct {
	file           string
	apiKey         string
	model          string
	voice          string
	systemPrompt   string
	inputRate      int
	outputRate     int
	frameSize      int
	levelThreshold float64
	outputLatency  time.Duration
	visionInterval time.Duration
	visionSettle   time.Duration
	visionTier     vision.Tier
	visionDevice   string
	visionMaxWidth int
	visionQuality  int
	actionTTL      time.Duration
	httpAddr       string
	logLevel       string
	logFormat      string
	autoGrant      bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model", session.DefaultModel)
	v.SetDefault("voice", session.DefaultVoice)
	v.SetDefault("system_prompt", "")
	v.SetDefault("audio.input_rate", 16000)
	v.SetDefault("audio.output_rate", 24000)
	v.SetDefault("audio.frame_size", capture.DefaultFrameSize)
	v.SetDefault("audio.level_threshold", mode.DefaultThreshold)
	v.SetDefault("audio.output_latency", "100ms")
	v.SetDefault("vision.interval", "1s")
	v.SetDefault("vision.settle", "500ms")
	v.SetDefault("vision.tier", string(vision.TierMedium))
	v.SetDefault("vision.device", "")
	v.SetDefault("vision.max_width", 640)
	v.SetDefault("vision.jpeg_quality", vision.DefaultQuality)
	v.SetDefault("tools.action_ttl", "3s")
	v.SetDefault("http.addr", "127.0.0.1:8090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("permissions.auto_grant", false)
}

// configDir is where the persisted config lives.
func configDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}
	return filepath.Join(dir, appDir), nil
}

// loadConfig reads .env, the TOML file and ASSISTANT_* variables, in
// increasing precedence. A missing credential is not an error here.
func loadConfig(v *viper.Viper, file string) (config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("load .env", "error", err)
	}

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api_key", envPrefix+"_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"); err != nil {
		return config{}, fmt.Errorf("bind api key env: %w", err)
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		dir, err := configDir()
		if err != nil {
			return config{}, err
		}
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	tier, err := vision.ParseTier(v.GetString("vision.tier"))
	if err != nil {
		return config{}, err
	}

	return config{
		file:           v.ConfigFileUsed(),
		apiKey:         strings.TrimSpace(v.GetString("api_key")),
		model:          v.GetString("model"),
		voice:          v.GetString("voice"),
		systemPrompt:   v.GetString("system_prompt"),
		inputRate:      v.GetInt("audio.input_rate"),
		outputRate:     v.GetInt("audio.output_rate"),
		frameSize:      v.GetInt("audio.frame_size"),
		levelThreshold: v.GetFloat64("audio.level_threshold"),
		outputLatency:  v.GetDuration("audio.output_latency"),
		visionInterval: v.GetDuration("vision.interval"),
		visionSettle:   v.GetDuration("vision.settle"),
		visionTier:     tier,
		visionDevice:   v.GetString("vision.device"),
		visionMaxWidth: v.GetInt("vision.max_width"),
		visionQuality:  v.GetInt("vision.jpeg_quality"),
		actionTTL:      v.GetDuration("tools.action_ttl"),
		httpAddr:       v.GetString("http.addr"),
		logLevel:       v.GetString("log.level"),
		logFormat:      v.GetString("log.format"),
		autoGrant:      v.GetBool("permissions.auto_grant"),
	}, nil
}
