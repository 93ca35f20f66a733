package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/go-clx/internal/codec"
	"github.com/rcarmo/go-clx/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:         "localhost",
			Port:         "8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Codec: config.CodecConfig{
			TransparentIndex: -1,
			HeaderSize:       6,
			MaxWidth:         4096,
			MaxHeight:        4096,
		},
		Archive: config.ArchiveConfig{Level: "default"},
		Security: config.SecurityConfig{
			AllowedOrigins: []string{"https://example.com"},
			MaxUploadBytes: 1 << 20,
		},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	os.Stdout = oldStdout
	_ = w.Close()
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestCreateServer(t *testing.T) {
	server := createServer(testConfig())

	require.NotNil(t, server)
	assert.Equal(t, "localhost:8080", server.Addr)
	assert.Equal(t, 30*time.Second, server.ReadTimeout)
	assert.Equal(t, 30*time.Second, server.WriteTimeout)
	assert.Equal(t, 120*time.Second, server.IdleTimeout)
}

func TestRoutes(t *testing.T) {
	cfg := testConfig()
	server := httptest.NewServer(createServer(cfg).Handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	index, err := http.Get(server.URL + "/")
	require.NoError(t, err)
	defer index.Body.Close()
	assert.Equal(t, http.StatusOK, index.StatusCode)
	body, err := io.ReadAll(index.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<html")

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewGray(image.Rect(0, 0, 4, 4))))
	enc, err := http.Post(server.URL+"/api/encode", "image/png", &img)
	require.NoError(t, err)
	defer enc.Body.Close()
	require.Equal(t, http.StatusOK, enc.StatusCode)
	list, err := io.ReadAll(enc.Body)
	require.NoError(t, err)
	parsed, err := codec.ParseList(list)
	require.NoError(t, err)
	assert.Equal(t, 1, parsed.Len())

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, wsResp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err, "upgrade must pass through the logging middleware")
	defer wsResp.Body.Close()
	_ = conn.Close()
}

func TestApplySecurityMiddleware(t *testing.T) {
	h := applySecurityMiddleware(okHandler(), testConfig())
	require.NotNil(t, h)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", rr.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rr.Header().Get("Referrer-Policy"))
}

func TestApplySecurityMiddlewareNilConfig(t *testing.T) {
	h := applySecurityMiddleware(okHandler(), nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	rr := httptest.NewRecorder()
	securityHeadersMiddleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	csp := rr.Header().Get("Content-Security-Policy")
	assert.Contains(t, csp, "default-src 'self'")
	assert.Contains(t, csp, "'wasm-unsafe-eval'")
}

func TestCorsMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		allowedOrigins []string
		requestOrigin  string
		requestHost    string
		expectAllowed  bool
	}{
		{
			name:           "allowed origin from list",
			allowedOrigins: []string{"https://example.com", "https://app.example.com"},
			requestOrigin:  "https://example.com",
			requestHost:    "example.com:8080",
			expectAllowed:  true,
		},
		{
			name:           "not allowed origin from list",
			allowedOrigins: []string{"https://example.com"},
			requestOrigin:  "https://malicious.com",
			requestHost:    "example.com:8080",
			expectAllowed:  false,
		},
		{
			name:           "same origin when no list configured",
			allowedOrigins: nil,
			requestOrigin:  "http://sprites.local:8080",
			requestHost:    "sprites.local:8080",
			expectAllowed:  true,
		},
		{
			name:           "foreign origin when no list configured",
			allowedOrigins: nil,
			requestOrigin:  "http://malicious.com",
			requestHost:    "sprites.local:8080",
			expectAllowed:  false,
		},
		{
			name:           "no origin header",
			allowedOrigins: nil,
			requestOrigin:  "",
			requestHost:    "sprites.local:8080",
			expectAllowed:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = tt.requestHost
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}
			rr := httptest.NewRecorder()
			corsMiddleware(okHandler(), tt.allowedOrigins).ServeHTTP(rr, req)

			if tt.expectAllowed {
				assert.Equal(t, tt.requestOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
			}
			assert.Equal(t, http.StatusOK, rr.Code)
		})
	}
}

func TestCorsMiddlewareOptionsRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/encode", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()

	corsMiddleware(okHandler(), []string{"https://example.com"}).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Body.String())
}

func TestBodyLimitMiddleware(t *testing.T) {
	h := bodyLimitMiddleware(okHandler(), 8)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/encode", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/encode", strings.NewReader("0123")))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequestLoggingMiddleware(t *testing.T) {
	h := requestLoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestSetupLogging(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Run(level, func(t *testing.T) {
			setupLogging(config.LoggingConfig{Level: level, Format: "text"})
		})
	}
	setupLogging(config.LoggingConfig{Level: "info", Format: "text"})
}

func TestStartServer(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"

	server := createServer(cfg)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- startServer(context.Background(), server)
	}()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Shutdown(ctx))

	select {
	case err := <-serverErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server shutdown timed out")
	}
}

func TestStartServerStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := testConfig()
	server := createServer(cfg)
	server.Addr = addr

	ctx, cancel := context.WithCancel(context.Background())
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- startServer(ctx, server)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-serverErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}

	_, err = http.Get("http://" + addr + "/healthz")
	assert.Error(t, err)
}

func TestStartServerListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	server := createServer(testConfig())
	server.Addr = ln.Addr().String()
	assert.Error(t, startServer(context.Background(), server))
}

func TestStartServerNilServer(t *testing.T) {
	assert.Error(t, startServer(context.Background(), nil))
}

func TestShowHelp(t *testing.T) {
	captured := captureStdout(t, showHelp)
	assert.Contains(t, captured, appName)
	assert.Contains(t, captured, "USAGE:")
	assert.Contains(t, captured, "OPTIONS:")
	assert.Contains(t, captured, "ENVIRONMENT VARIABLES:")
	assert.Contains(t, captured, "EXAMPLES:")
}

func TestShowVersion(t *testing.T) {
	captured := captureStdout(t, showVersion)
	assert.Contains(t, captured, appName+" "+appVersion)
	assert.Contains(t, captured, "Built with Go")
}

func TestParseFlags_UsesOsArgs(t *testing.T) {
	originalArgs := os.Args
	defer func() { os.Args = originalArgs }()

	os.Args = []string{"server", "-host", " example ", "-port", " 1234 ", "-log-level", "debug"}
	args, action := parseFlags()
	assert.Empty(t, action)
	assert.Equal(t, "example", args.host)
	assert.Equal(t, "1234", args.port)
	assert.Equal(t, "debug", args.logLevel)
}

func TestParseFlagsWithArgs(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedAction string
		checkArgs      func(t *testing.T, args parsedArgs)
	}{
		{
			name: "no args leaves everything to the environment",
			args: []string{},
			checkArgs: func(t *testing.T, args parsedArgs) {
				assert.Empty(t, args.host)
				assert.Empty(t, args.port)
				assert.Nil(t, args.transparent)
				assert.Nil(t, args.headerSize)
				assert.False(t, args.bottomUp)
			},
		},
		{
			name: "codec flags",
			args: []string{"-transparent", "-1", "-header", "10", "-bottom-up", "-zstd", "-palette", "town.pal"},
			checkArgs: func(t *testing.T, args parsedArgs) {
				require.NotNil(t, args.transparent)
				assert.Equal(t, -1, *args.transparent)
				require.NotNil(t, args.headerSize)
				assert.Equal(t, 10, *args.headerSize)
				assert.True(t, args.bottomUp)
				assert.True(t, args.compress)
				assert.Equal(t, "town.pal", args.paletteFile)
			},
		},
		{
			name:           "help",
			args:           []string{"-help"},
			expectedAction: "help",
		},
		{
			name:           "version",
			args:           []string{"-version"},
			expectedAction: "version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, action, err := parseFlagsWithArgs(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedAction, action)
			if tt.checkArgs != nil {
				tt.checkArgs(t, args)
			}
		})
	}

	_, _, err := parseFlagsWithArgs([]string{"-nope"})
	assert.Error(t, err)
}

func TestMain_Help(t *testing.T) {
	originalArgs := os.Args
	defer func() { os.Args = originalArgs }()

	os.Args = []string{"server", "-help"}
	captured := captureStdout(t, main)
	assert.Contains(t, captured, "USAGE:")
}

func TestRunWithServerError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()
	port := listener.Addr().(*net.TCPAddr).Port

	t.Setenv("CLX_PALETTE_FILE", "")
	err = run(parsedArgs{host: "127.0.0.1", port: fmt.Sprintf("%d", port), logLevel: "error"})
	assert.Error(t, err)
}

func TestRunWithInvalidConfig(t *testing.T) {
	header := 8
	err := run(parsedArgs{port: "8080", headerSize: &header})
	assert.ErrorContains(t, err, "failed to load config")
}
