package types //nolint:revive // types is a valid package name

import (
	"context"
	"strings"
	"testing"
)

func TestEnvironFromCGI(t *testing.T) {
	vars := map[string]string{
		"REQUEST_METHOD":  "POST",
		"PATH_INFO":       "/items",
		"QUERY_STRING":    "a=1",
		"SERVER_NAME":     "example.test",
		"SERVER_PORT":     "8080",
		"REMOTE_ADDR":     "10.0.0.7",
		"REMOTE_PORT":     "51000",
		"CONTENT_TYPE":    "application/json",
		"CONTENT_LENGTH":  "2",
		"HTTP_X_TRACE_ID": "abc",
		"HTTP_ACCEPT":     "*/*",
	}

	env := EnvironFromCGI(vars, strings.NewReader("{}"))

	if env.Method != "POST" || env.PathInfo != "/items" || env.QueryString != "a=1" {
		t.Errorf("request line = %s %s ?%s", env.Method, env.PathInfo, env.QueryString)
	}
	if env.ServerPort != 8080 || env.RemotePort != 51000 {
		t.Errorf("ports = %d/%d", env.ServerPort, env.RemotePort)
	}
	if env.ContentLength != 2 || env.ContentType != "application/json" {
		t.Errorf("content = %d %q", env.ContentLength, env.ContentType)
	}
	if env.Protocol != DefaultProtocol || env.Scheme != DefaultScheme {
		t.Errorf("defaults not applied: %q %q", env.Protocol, env.Scheme)
	}

	// Sorted key order: HTTP_ACCEPT before HTTP_X_TRACE_ID
	if len(env.Headers) != 2 {
		t.Fatalf("headers = %v, want 2", env.Headers)
	}
	if env.Headers[0] != (Header{Name: "ACCEPT", Value: "*/*"}) {
		t.Errorf("headers[0] = %v", env.Headers[0])
	}
	if env.Headers[1] != (Header{Name: "X-TRACE-ID", Value: "abc"}) {
		t.Errorf("headers[1] = %v", env.Headers[1])
	}
}

func TestEnvironFromCGI_Defaults(t *testing.T) {
	env := EnvironFromCGI(map[string]string{"CONTENT_LENGTH": "nope"}, nil)

	if env.Method != "GET" {
		t.Errorf("Method = %q, want GET", env.Method)
	}
	if env.PathInfo != DefaultPath {
		t.Errorf("PathInfo = %q, want /", env.PathInfo)
	}
	if env.RemoteAddr != DefaultRemoteAddr {
		t.Errorf("RemoteAddr = %q", env.RemoteAddr)
	}
	if env.ContentLength != 0 {
		t.Errorf("ContentLength = %d, want 0 for invalid value", env.ContentLength)
	}
}

func TestEnvironFromCGI_ContentLength(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want int64
	}{
		{"missing", map[string]string{}, 0},
		{"empty", map[string]string{"CONTENT_LENGTH": ""}, 0},
		{"negative", map[string]string{"CONTENT_LENGTH": "-5"}, 0},
		{"garbage", map[string]string{"CONTENT_LENGTH": "12ab"}, 0},
		{"declared", map[string]string{"CONTENT_LENGTH": "42"}, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := EnvironFromCGI(tt.vars, strings.NewReader("ignored"))
			if env.ContentLength != tt.want {
				t.Errorf("ContentLength = %d, want %d", env.ContentLength, tt.want)
			}
		})
	}
}

func TestEnviron_Ctx(t *testing.T) {
	env := &Environ{}
	if env.Ctx() == nil {
		t.Fatal("Ctx() must never be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.Context = ctx
	if env.Ctx() != ctx {
		t.Error("Ctx() should return the configured context")
	}
}
