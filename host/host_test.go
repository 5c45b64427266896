package host

import "testing"

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		addr     string
		def      int
		wantHost string
		wantPort int
	}{
		{"example.com:8080", 80, "example.com", 8080},
		{"example.com", 80, "example.com", 80},
		{"10.0.0.1:55000", 0, "10.0.0.1", 55000},
		{"[::1]:443", 80, "::1", 443},
		{"[::1]", 443, "::1", 443},
		{"example.com:", 80, "example.com", 80},
		{"example.com:http", 80, "example.com", 80},
		{"", 80, "", 80},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			h, p := SplitHostPort(tt.addr, tt.def)
			if h != tt.wantHost || p != tt.wantPort {
				t.Errorf("SplitHostPort(%q) = %q, %d; want %q, %d", tt.addr, h, p, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestDefaultPort(t *testing.T) {
	if DefaultPort("https") != 443 || DefaultPort("http") != 80 || DefaultPort("") != 80 {
		t.Error("unexpected default ports")
	}
}

func TestIsContentHeader(t *testing.T) {
	for name, want := range map[string]bool{
		"Content-Type":   true,
		"content-length": true,
		"Content-MD5":    false,
		"Host":           false,
	} {
		if got := IsContentHeader(name); got != want {
			t.Errorf("IsContentHeader(%q) = %v, want %v", name, got, want)
		}
	}
}
