package util

import (
	"net/http"
	"testing"
)

func TestFold(t *testing.T) {
	tests := map[string]string{
		"Corrosión en  TERMINALES": "corrosion en terminales",
		"Conexión\ta tierra":       "conexion a tierra",
		"":                         "",
	}
	for in, want := range tests {
		if got := Fold(in); got != want {
			t.Errorf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("tablero", 20); got != "tablero" {
		t.Errorf("short strings should be kept, got %q", got)
	}
	if got := Truncate("añadir protección", 6); got != "añadir..." {
		t.Errorf("expected rune-aware cut, got %q", got)
	}
}

func TestNewProxyFunc(t *testing.T) {
	proxy := NewProxyFunc("http://proxy.local:3128", "", "localhost")

	req, _ := http.NewRequest(http.MethodGet, "https://api.openai.com/v1/chat/completions", nil)
	u, err := proxy(req)
	if err != nil {
		t.Fatalf("proxy failed: %v", err)
	}
	if u == nil || u.Host != "proxy.local:3128" {
		t.Errorf("expected the http proxy to serve https too, got %v", u)
	}

	req, _ = http.NewRequest(http.MethodGet, "http://localhost:11434/api/tags", nil)
	if u, _ := proxy(req); u != nil {
		t.Errorf("expected no_proxy host to bypass the proxy, got %v", u)
	}
}
