// Package tools interprets the remote model's function calls, runs the
// matching local collaborator and builds the result sent back on the session.
package tools

import (
	"fmt"
	"strings"

	"github.com/hubenschmidt/live-assistant/internal/session"
)

// Function names as declared to the remote model.
const (
	NameControlDevice     = "controlDevice"
	NamePlayMedia         = "playMedia"
	NameSendCommunication = "sendCommunication"
	NameListInstalledApps = "listInstalledApps"
)

// DeviceAction is a device-level operation.
type DeviceAction string

const (
	OpenApp          DeviceAction = "OPEN_APP"
	OpenAppScreen    DeviceAction = "OPEN_APP_SCREEN"
	ToggleWifi       DeviceAction = "TOGGLE_WIFI"
	ToggleBluetooth  DeviceAction = "TOGGLE_BLUETOOTH"
	ToggleFlashlight DeviceAction = "TOGGLE_FLASHLIGHT"
	SetBrightness    DeviceAction = "SET_BRIGHTNESS"
	SetVolume        DeviceAction = "SET_VOLUME"
	GetBatteryStatus DeviceAction = "GET_BATTERY_STATUS"
)

var deviceActions = []DeviceAction{
	OpenApp, OpenAppScreen, ToggleWifi, ToggleBluetooth,
	ToggleFlashlight, SetBrightness, SetVolume, GetBatteryStatus,
}

// CommMethod is a communication channel.
type CommMethod string

const (
	PhoneCall       CommMethod = "PHONE_CALL"
	WhatsAppMessage CommMethod = "WHATSAPP_MESSAGE"
	SendEmail       CommMethod = "SEND_EMAIL"
	SendSMS         CommMethod = "SEND_SMS"
	SendMMS         CommMethod = "SEND_MMS"
)

var commMethods = []CommMethod{PhoneCall, WhatsAppMessage, SendEmail, SendSMS, SendMMS}

// DefaultPlatform is used when a media request names none.
const DefaultPlatform = "YouTube"

// Request is the closed set of actions a tool call can decode to.
type Request interface {
	// Label names the action for metrics.
	Label() string
}

type ControlDevice struct {
	Action DeviceAction
	Target string
}

type PlayMedia struct {
	Platform string
	Query    string
}

type SendCommunication struct {
	Method    CommMethod
	Recipient string
	Content   string
}

type ListApps struct{}

// Unhandled is any call whose name is not in the catalog. It still succeeds.
type Unhandled struct {
	Name string
	Args map[string]any
}

func (ControlDevice) Label() string     { return NameControlDevice }
func (PlayMedia) Label() string         { return NamePlayMedia }
func (SendCommunication) Label() string { return NameSendCommunication }
func (ListApps) Label() string          { return NameListInstalledApps }
func (Unhandled) Label() string         { return "unhandled" }

// Parse decodes a call into its catalog variant.
func Parse(call session.ToolCall) Request {
	switch call.Name {
	case NameControlDevice:
		return ControlDevice{
			Action: DeviceAction(strings.ToUpper(stringArg(call.Args, "action"))),
			Target: stringArg(call.Args, "target"),
		}
	case NamePlayMedia:
		platform := stringArg(call.Args, "platform")
		if platform == "" {
			platform = DefaultPlatform
		}
		return PlayMedia{Platform: platform, Query: stringArg(call.Args, "query")}
	case NameSendCommunication:
		return SendCommunication{
			Method:    CommMethod(strings.ToUpper(stringArg(call.Args, "method"))),
			Recipient: stringArg(call.Args, "recipient"),
			Content:   stringArg(call.Args, "content"),
		}
	case NameListInstalledApps:
		return ListApps{}
	default:
		return Unhandled{Name: call.Name, Args: call.Args}
	}
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Declarations is the fixed tool catalog declared when a session opens.
func Declarations() []session.FunctionDecl {
	return []session.FunctionDecl{
		{
			Name:        NameControlDevice,
			Description: "Perform a device action such as opening an app, toggling a radio, or reading battery status.",
			Parameters: []session.Parameter{
				{Name: "action", Description: "The device action to perform.", Enum: enumStrings(deviceActions), Required: true},
				{Name: "target", Description: "App name, screen, or level the action applies to."},
			},
		},
		{
			Name:        NamePlayMedia,
			Description: "Play a song, video, or other media on a streaming platform.",
			Parameters: []session.Parameter{
				{Name: "platform", Description: "Streaming platform. Defaults to " + DefaultPlatform + "."},
				{Name: "query", Description: "What to search for and play.", Required: true},
			},
		},
		{
			Name:        NameSendCommunication,
			Description: "Call or message a contact.",
			Parameters: []session.Parameter{
				{Name: "method", Description: "How to reach the recipient.", Enum: enumStrings(commMethods), Required: true},
				{Name: "recipient", Description: "Contact name, phone number, or email address.", Required: true},
				{Name: "content", Description: "Message body, when the method carries one."},
			},
		},
		{
			Name:        NameListInstalledApps,
			Description: "List the applications installed on this device.",
		},
	}
}

func enumStrings[T ~string](vals []T) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}
