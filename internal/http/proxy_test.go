package http

import (
	"net/http"
	"net/url"
	"os"
	"testing"

	ntlmssp "github.com/Azure/go-ntlmssp"

	"github.com/rescale/livelist/internal/config"
)

func TestProxyFuncWithBypass_EmptyNoProxy(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "")

	req, _ := http.NewRequest("GET", "https://records.example.com/query", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected proxy URL, got nil (direct)")
	}
	if result.Host != "proxy.corp:8080" {
		t.Errorf("expected proxy host proxy.corp:8080, got %s", result.Host)
	}
}

func TestProxyFuncWithBypass_Patterns(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "*.example.com, 192.168.0.0/16, internal.corp")

	tests := []struct {
		name       string
		url        string
		wantBypass bool
	}{
		{"wildcard match", "https://records.example.com/query", true},
		{"cidr match", "http://192.168.1.100/query", true},
		{"exact domain match", "https://internal.corp/query", true},
		{"subdomain of exact domain", "https://db.internal.corp/query", true},
		{"non-match", "https://records.other.org/query", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", tt.url, nil)
			result, err := proxyFunc(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantBypass && result != nil {
				t.Errorf("expected bypass (nil) for %s, got %v", tt.url, result)
			}
			if !tt.wantBypass && result == nil {
				t.Errorf("expected proxy for %s, got nil (bypass)", tt.url)
			}
		})
	}
}

func TestBuildProxyURL(t *testing.T) {
	u := buildProxyURL(config.ProxyConfig{Host: "proxy.corp"})
	if u.Host != "proxy.corp:8080" {
		t.Errorf("expected default port 8080, got %s", u.Host)
	}
	if u.User != nil {
		t.Error("expected no credentials without user")
	}

	u = buildProxyURL(config.ProxyConfig{Host: "proxy.corp", Port: 3128, User: "bob"})
	if u.User != nil {
		t.Error("expected no credentials when password is missing")
	}

	u = buildProxyURL(config.ProxyConfig{Host: "proxy.corp", Port: 3128, User: "bob", Password: "pw"})
	if u.User == nil || u.User.Username() != "bob" {
		t.Errorf("expected credentials for bob, got %v", u.User)
	}
}

func TestConfigureHTTPClient_Modes(t *testing.T) {
	client, err := ConfigureHTTPClient(config.ProxyConfig{Mode: "no-proxy"}, "")
	if err != nil {
		t.Fatalf("no-proxy: unexpected error: %v", err)
	}
	tr, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("no-proxy: expected *http.Transport, got %T", client.Transport)
	}
	if tr.Proxy != nil {
		t.Error("no-proxy: expected nil proxy func")
	}

	client, err = ConfigureHTTPClient(config.ProxyConfig{Mode: "ntlm", Host: "proxy.corp"}, "")
	if err != nil {
		t.Fatalf("ntlm: unexpected error: %v", err)
	}
	if _, ok := client.Transport.(ntlmssp.Negotiator); !ok {
		t.Errorf("ntlm: expected ntlmssp.Negotiator, got %T", client.Transport)
	}

	client, err = ConfigureHTTPClient(config.ProxyConfig{Mode: "basic"}, "")
	if err != nil {
		t.Fatalf("basic without host: unexpected error: %v", err)
	}
	if tr := client.Transport.(*http.Transport); tr.Proxy != nil {
		t.Error("basic without host: expected fallback to no proxy")
	}

	if _, err := ConfigureHTTPClient(config.ProxyConfig{Mode: "socks"}, ""); err == nil {
		t.Error("expected error for unsupported mode")
	}
}

func TestCreateOptimizedClient_KeepsNTLMWrapper(t *testing.T) {
	client, err := CreateOptimizedClient(config.ProxyConfig{Mode: "ntlm", Host: "proxy.corp"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.Transport.(ntlmssp.Negotiator); !ok {
		t.Errorf("expected ntlmssp.Negotiator, got %T", client.Transport)
	}

	client, err = CreateOptimizedClient(config.ProxyConfig{Mode: "basic", Host: "proxy.corp"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr := client.Transport.(*http.Transport)
	if tr.ForceAttemptHTTP2 && os.Getenv("FORCE_HTTP2") != "true" {
		t.Error("expected HTTP/2 disabled behind a proxy")
	}
}

func TestNeedsProxyPassword(t *testing.T) {
	tests := []struct {
		cfg  config.ProxyConfig
		want bool
	}{
		{config.ProxyConfig{Mode: "no-proxy", User: "bob"}, false},
		{config.ProxyConfig{Mode: "basic", User: "bob"}, true},
		{config.ProxyConfig{Mode: "ntlm", User: "bob", Password: "pw"}, false},
		{config.ProxyConfig{Mode: "NTLM", User: "bob"}, true},
	}
	for _, tt := range tests {
		if got := NeedsProxyPassword(tt.cfg); got != tt.want {
			t.Errorf("NeedsProxyPassword(%+v) = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}
