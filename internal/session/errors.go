package session

import (
	"errors"
	"strings"

	"github.com/gorilla/websocket"
)

// ErrorClass splits inbound failures into the two kinds the engine surfaces.
type ErrorClass int

const (
	// ClassTransport is any failure that is not the credential's fault.
	ClassTransport ErrorClass = iota
	// ClassAuth means the service rejected the credential.
	ClassAuth
)

func (c ErrorClass) String() string {
	if c == ClassAuth {
		return "auth"
	}
	return "transport"
}

var authMarkers = []string{
	"api key",
	"api_key",
	"unauthenticated",
	"unauthorized",
	"permission denied",
	"permission_denied",
	"invalid authentication",
	"401",
	"403",
}

// Classify decides whether err is an authentication failure. The service
// reports bad keys as a policy-violation close frame or an error whose text
// names the key, so both are checked.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassTransport
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == websocket.ClosePolicyViolation {
		return ClassAuth
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range authMarkers {
		if strings.Contains(msg, marker) {
			return ClassAuth
		}
	}
	return ClassTransport
}
