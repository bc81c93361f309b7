package fetch

import "testing"

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://example.com/file.torrent", false},
		{"http://tracker.example.org/dl?id=5", false},
		{"ftp://example.com/file.torrent", true},
		{"magnet:?xt=urn:btih:abc", true},
		{"file:///etc/passwd", true},
		{"https://", true},
		{"not a url at all\x00", true},
	}
	for _, tt := range tests {
		err := ValidateURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
		}
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/ubuntu.torrent", "ubuntu.torrent"},
		{"https://example.com/dl/ubuntu", "ubuntu.torrent"},
		{"https://example.com/", "download.torrent"},
		{"https://example.com", "download.torrent"},
	}
	for _, tt := range tests {
		if got := Filename(tt.url); got != tt.want {
			t.Errorf("Filename(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestNewRejectsBadProxy(t *testing.T) {
	if _, err := New(t.TempDir(), "http://proxy:8080"); err == nil {
		t.Error("New accepted a non-socks5 proxy")
	}
	if _, err := New(t.TempDir(), "::bad::"); err == nil {
		t.Error("New accepted an unparsable proxy url")
	}
	if _, err := New(t.TempDir(), ""); err != nil {
		t.Errorf("New with no proxy: %v", err)
	}
	if _, err := New(t.TempDir(), "socks5://127.0.0.1:1080"); err != nil {
		t.Errorf("New with socks5 proxy: %v", err)
	}
}
