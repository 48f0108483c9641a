package origin

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		wantNorm string
		wantHost string
		wantOK   bool
	}{
		{"empty", "", "", "", false},
		{"null", "null", "null", "", true},
		{"simple", "https://app.example.com", "https://app.example.com", "app.example.com", true},
		{"uppercase", "HTTPS://App.Example.COM", "https://app.example.com", "app.example.com", true},
		{"default https port stripped", "https://app.example.com:443", "https://app.example.com", "app.example.com", true},
		{"default http port stripped", "http://app.example.com:80", "http://app.example.com", "app.example.com", true},
		{"custom port kept", "http://localhost:7071", "http://localhost:7071", "localhost:7071", true},
		{"trailing slash", "https://app.example.com/", "https://app.example.com", "app.example.com", true},
		{"path rejected", "https://app.example.com/login", "", "", false},
		{"query rejected", "https://app.example.com?x=1", "", "", false},
		{"userinfo rejected", "https://user@app.example.com", "", "", false},
		{"non-http scheme", "file:///etc/passwd", "", "", false},
		{"ipv6 literal", "http://[::1]:7071", "http://[::1]:7071", "[::1]:7071", true},
		{"port zero", "http://example.com:0", "", "", false},
		{"garbage", "not an origin", "", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			norm, host, ok := Normalize(tc.in)
			if ok != tc.wantOK || norm != tc.wantNorm || host != tc.wantHost {
				t.Fatalf("Normalize(%q)=(%q,%q,%v), want (%q,%q,%v)",
					tc.in, norm, host, ok, tc.wantNorm, tc.wantHost, tc.wantOK)
			}
		})
	}
}

func TestAllowed_Allowlist(t *testing.T) {
	allowlist := []string{"https://app.example.com", "null"}

	if !Allowed("https://app.example.com", "app.example.com", "relay.internal", allowlist) {
		t.Fatalf("allowlisted origin rejected")
	}
	if !Allowed("null", "", "relay.internal", allowlist) {
		t.Fatalf("allowlisted null origin rejected")
	}
	if Allowed("https://evil.example.com", "evil.example.com", "relay.internal", allowlist) {
		t.Fatalf("non-allowlisted origin admitted")
	}
	if !Allowed("https://anything.example", "anything.example", "relay.internal", []string{"*"}) {
		t.Fatalf("wildcard allowlist rejected origin")
	}
}

func TestAllowed_SameHostDefault(t *testing.T) {
	if !Allowed("http://localhost:7071", "localhost:7071", "localhost:7071", nil) {
		t.Fatalf("same host:port rejected")
	}
	if Allowed("http://localhost:7071", "localhost:7071", "localhost:9000", nil) {
		t.Fatalf("different port admitted")
	}
	if Allowed("null", "", "localhost:7071", nil) {
		t.Fatalf("null origin admitted without allowlist")
	}
	// Default ports are equivalent to their absence.
	if !Allowed("https://relay.example.com", "relay.example.com", "relay.example.com:443", nil) {
		t.Fatalf("default https port on request host should match")
	}
}
