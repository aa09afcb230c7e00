package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{name: "nil", err: nil, want: ClassTransport},
		{name: "policy violation close", err: &websocket.CloseError{Code: websocket.ClosePolicyViolation, Text: "denied"}, want: ClassAuth},
		{name: "bad key in close text", err: &websocket.CloseError{Code: 1007, Text: "API key not valid. Please pass a valid API key."}, want: ClassAuth},
		{name: "wrapped unauthenticated", err: fmt.Errorf("receive: %w", errors.New("rpc error: UNAUTHENTICATED")), want: ClassAuth},
		{name: "abnormal close", err: &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, want: ClassTransport},
		{name: "timeout", err: errors.New("i/o timeout"), want: ClassTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
	assert.Equal(t, "auth", ClassAuth.String())
	assert.Equal(t, "transport", ClassTransport.String())
}
