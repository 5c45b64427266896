package types //nolint:revive // types is a valid package name

import (
	"testing"
)

func TestMessage_Type(t *testing.T) {
	tests := []struct {
		msg     Message
		want    MessageType
		inbound bool
	}{
		{Request{}, MessageTypeRequest, true},
		{Disconnect{}, MessageTypeDisconnect, true},
		{ResponseStart{Status: 200}, MessageTypeResponseStart, false},
		{ResponseBody{}, MessageTypeResponseBody, false},
		{ResponseDisconnect{}, MessageTypeResponseDisconnect, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			if got := tt.msg.Type(); got != tt.want {
				t.Errorf("Type() = %q, want %q", got, tt.want)
			}
			if got := tt.msg.Type().IsInbound(); got != tt.inbound {
				t.Errorf("IsInbound() = %v, want %v", got, tt.inbound)
			}
		})
	}
}

func TestScope_Header(t *testing.T) {
	s := &Scope{Headers: []RawHeader{
		{Name: []byte("accept"), Value: []byte("a")},
		{Name: []byte("accept"), Value: []byte("b")},
	}}

	v, ok := s.Header("accept")
	if !ok || string(v) != "a" {
		t.Errorf("Header(accept) = %q, %v; want first value", v, ok)
	}
	if _, ok := s.Header("missing"); ok {
		t.Error("Header(missing) should not be found")
	}
}
