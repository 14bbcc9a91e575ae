package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestDetectCommand(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://ya.ru/archive/catalog/abc/3", "yandex"},
		{"https://www.prlib.ru/item/123", "prlib"},
		{"https://goskatalog.ru/portal/#/collections?id=42", "goskatalog"},
		{"https://example.com", "unknown"},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs([]string{"detect", tt.url})
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("detect %s error = %v", tt.url, err)
		}
		if got := strings.TrimSpace(out.String()); got != tt.want {
			t.Fatalf("detect %s = %q; want %q", tt.url, got, tt.want)
		}
	}
}

func TestDetectRequiresURL(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"detect"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatalf("detect without url error = nil; want args error")
	}
}
