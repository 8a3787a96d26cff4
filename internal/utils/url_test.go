package utils

import "testing"

func TestExtractURLs(t *testing.T) {
	urls := ExtractURLs("join https://badsite.com/free and http://ok.org now")
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %d", len(urls))
	}
}

func TestHostOf(t *testing.T) {
	host, err := HostOf("https://Example.COM/path?x=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host != "example.com" {
		t.Fatalf("unexpected host: %s", host)
	}
}

func TestHostOfUnicode(t *testing.T) {
	host, err := HostOf("https://bücher.example/x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host != "xn--bcher-kva.example" {
		t.Fatalf("unexpected host: %s", host)
	}
}
