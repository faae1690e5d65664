package location

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestIPProviderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	p := NewIPProvider(IPOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	if _, err := p.Locate(context.Background()); err == nil {
		t.Fatal("HTTP 429 应返回错误")
	}
}

func TestIPProviderFailStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "fail", "message": "private range"})
	}))
	defer srv.Close()

	p := NewIPProvider(IPOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	if _, err := p.Locate(context.Background()); err == nil {
		t.Fatal("status=fail 应返回错误")
	}
}

func TestIPProviderSuccess(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if r.URL.Path != "/json/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "success",
			"lat":     16.8661,
			"lon":     96.1951,
			"city":    "Yangon",
			"country": "Myanmar",
		})
	}))
	defer srv.Close()

	p := NewIPProvider(IPOptions{BaseURL: srv.URL + "/", Timeout: time.Second, UserAgent: "test"}, zerolog.Nop())
	coords, err := p.Locate(context.Background())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if !coords.Known || coords.Latitude != 16.8661 || coords.Longitude != 96.1951 {
		t.Fatalf("坐标不符: %+v", coords)
	}
	if gotUA != "test" {
		t.Fatalf("应发送配置的 User-Agent, 实际 %q", gotUA)
	}
}

func TestIPProviderRejectsOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "lat": 91.0, "lon": 0.0})
	}))
	defer srv.Close()

	p := NewIPProvider(IPOptions{BaseURL: srv.URL}, zerolog.Nop())
	if _, err := p.Locate(context.Background()); err == nil {
		t.Fatal("越界纬度应返回错误")
	}
}
