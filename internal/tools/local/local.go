// Package local implements the tool collaborators for a desktop host. Every
// action is best effort: it either hands a URL to the system opener or
// describes what it would have done.
package local

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/hubenschmidt/live-assistant/internal/tools"
)

// Opener hands a URL to whatever the host uses to open links.
type Opener func(ctx context.Context, target string) error

// SystemOpener opens target with xdg-open, open, or start depending on the OS.
func SystemOpener(ctx context.Context, target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", target)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", target)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", target, err)
	}
	go cmd.Wait()
	return nil
}

// New returns the collaborator set backed by open.
func New(open Opener, apps map[string]string) tools.Collaborators {
	if open == nil {
		open = SystemOpener
	}
	if apps == nil {
		apps = DefaultApps
	}
	return tools.Collaborators{
		Devices: &Devices{open: open, apps: apps, batteryDir: "/sys/class/power_supply"},
		Media:   &Media{open: open},
		Comms:   &Comms{open: open},
		Apps:    AppList(apps),
	}
}

// DefaultApps maps display names to a launch URL.
var DefaultApps = map[string]string{
	"YouTube":  "https://www.youtube.com",
	"Spotify":  "https://open.spotify.com",
	"Gmail":    "https://mail.google.com",
	"Maps":     "https://maps.google.com",
	"WhatsApp": "https://web.whatsapp.com",
	"Calendar": "https://calendar.google.com",
}

// AppList is a fixed application catalog.
type AppList map[string]string

func (a AppList) Installed(context.Context) (map[string]string, error) {
	out := make(map[string]string, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out, nil
}

// Media opens a search for the query on the named platform.
type Media struct {
	open Opener
}

func (m *Media) Play(ctx context.Context, platform, query string) error {
	return m.open(ctx, MediaURL(platform, query))
}

// MediaURL builds a search link for query on platform.
func MediaURL(platform, query string) string {
	q := url.QueryEscape(query)
	switch strings.ToLower(platform) {
	case "spotify":
		return "https://open.spotify.com/search/" + url.PathEscape(query)
	case "youtube music":
		return "https://music.youtube.com/search?q=" + q
	case "", "youtube":
		return "https://www.youtube.com/results?search_query=" + q
	default:
		return "https://www.google.com/search?q=" + url.QueryEscape(platform+" "+query)
	}
}

// Comms opens the URL scheme for each communication method.
type Comms struct {
	open Opener
}

func (c *Comms) Send(ctx context.Context, method tools.CommMethod, recipient, content string) error {
	target, err := CommURL(method, recipient, content)
	if err != nil {
		return err
	}
	return c.open(ctx, target)
}

var nonDigits = regexp.MustCompile(`[^0-9+]`)

// CommURL builds the tel:, sms:, mailto: or wa.me link for a message.
func CommURL(method tools.CommMethod, recipient, content string) (string, error) {
	phone := nonDigits.ReplaceAllString(recipient, "")
	switch method {
	case tools.PhoneCall:
		return "tel:" + phone, nil
	case tools.SendSMS, tools.SendMMS:
		u := "sms:" + phone
		if content != "" {
			u += "?body=" + url.QueryEscape(content)
		}
		return u, nil
	case tools.WhatsAppMessage:
		u := "https://wa.me/" + strings.TrimPrefix(phone, "+")
		if content != "" {
			u += "?text=" + url.QueryEscape(content)
		}
		return u, nil
	case tools.SendEmail:
		u := "mailto:" + recipient
		if content != "" {
			u += "?body=" + url.QueryEscape(content)
		}
		return u, nil
	default:
		return "", fmt.Errorf("unsupported communication method %q", method)
	}
}

// Devices handles device actions. Opening apps goes through the opener;
// hardware toggles are described since a desktop session cannot change them.
type Devices struct {
	open       Opener
	apps       map[string]string
	batteryDir string
}

func (d *Devices) Perform(ctx context.Context, action tools.DeviceAction, target string) (string, error) {
	switch action {
	case tools.OpenApp, tools.OpenAppScreen:
		link, ok := d.lookupApp(target)
		if !ok {
			return fmt.Sprintf("%s is not installed", target), nil
		}
		if err := d.open(ctx, link); err != nil {
			return "", err
		}
		return fmt.Sprintf("Opening %s", target), nil
	case tools.ToggleWifi:
		return "Toggling Wi-Fi", nil
	case tools.ToggleBluetooth:
		return "Toggling Bluetooth", nil
	case tools.ToggleFlashlight:
		return "Toggling flashlight", nil
	case tools.SetBrightness:
		return fmt.Sprintf("Setting brightness to %s", target), nil
	case tools.SetVolume:
		return fmt.Sprintf("Setting volume to %s", target), nil
	case tools.GetBatteryStatus:
		return d.battery(), nil
	default:
		return "", fmt.Errorf("unknown device action %q", action)
	}
}

func (d *Devices) lookupApp(name string) (string, bool) {
	for k, v := range d.apps {
		if strings.EqualFold(k, strings.TrimSpace(name)) {
			return v, true
		}
	}
	return "", false
}

func (d *Devices) battery() string {
	matches, _ := filepath.Glob(filepath.Join(d.batteryDir, "BAT*", "capacity"))
	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		return fmt.Sprintf("Battery at %s%%", strings.TrimSpace(string(raw)))
	}
	return "Battery status unavailable"
}
