package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rcarmo/go-clx/internal/config"
	"github.com/rcarmo/go-clx/internal/handler"
	"github.com/rcarmo/go-clx/internal/logging"
	"github.com/rcarmo/go-clx/web"
)

const (
	appName    = "CLX Sprite Service"
	appVersion = "v1.0.0"

	shutdownTimeout = 10 * time.Second
)

var log = logging.With("server")

type parsedArgs struct {
	host        string
	port        string
	logLevel    string
	paletteFile string
	transparent *int
	headerSize  *int
	bottomUp    bool
	compress    bool
}

func main() {
	args, action := parseFlags()
	switch action {
	case "help":
		showHelp()
		return
	case "version":
		showVersion()
		return
	}

	if err := run(args); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

func parseFlags() (parsedArgs, string) {
	args, action, err := parseFlagsWithArgs(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	return args, action
}

func parseFlagsWithArgs(argv []string) (parsedArgs, string, error) {
	fset := flag.NewFlagSet("clx-server", flag.ContinueOnError)

	hostFlag := fset.String("host", "", "listen host")
	portFlag := fset.String("port", "", "listen port")
	logLevelFlag := fset.String("log-level", "", "log level (debug, info, warn, error)")
	paletteFlag := fset.String("palette", "", "768-byte .pal file used for previews and RGB input")
	transparentFlag := fset.Int("transparent", -2, "palette index encoded as transparent runs, -1 for none")
	headerFlag := fset.Int("header", 0, "frame header size (6 or 10)")
	bottomUpFlag := fset.Bool("bottom-up", false, "store rows bottom row first")
	compressFlag := fset.Bool("zstd", false, "wrap encoded sprite lists in a zstd archive")
	helpFlag := fset.Bool("help", false, "show help")
	versionFlag := fset.Bool("version", false, "show version")

	if err := fset.Parse(argv); err != nil {
		return parsedArgs{}, "", err
	}

	if *helpFlag {
		return parsedArgs{}, "help", nil
	}
	if *versionFlag {
		return parsedArgs{}, "version", nil
	}

	args := parsedArgs{
		host:        strings.TrimSpace(*hostFlag),
		port:        strings.TrimSpace(*portFlag),
		logLevel:    strings.TrimSpace(*logLevelFlag),
		paletteFile: strings.TrimSpace(*paletteFlag),
		bottomUp:    *bottomUpFlag,
		compress:    *compressFlag,
	}
	// Sentinel defaults mean "not given"; the environment decides.
	if *transparentFlag != -2 {
		args.transparent = transparentFlag
	}
	if *headerFlag != 0 {
		args.headerSize = headerFlag
	}
	return args, "", nil
}

func run(args parsedArgs) error {
	cfg, err := config.LoadWithOverrides(config.LoadOptions{
		Host:        args.host,
		Port:        args.port,
		LogLevel:    args.logLevel,
		PaletteFile: args.paletteFile,
		Transparent: args.transparent,
		HeaderSize:  args.headerSize,
		BottomUp:    args.bottomUp,
		Compress:    args.compress,
	})
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	setupLogging(cfg.Logging)

	server := createServer(cfg)
	log.Info("starting server on %s (header=%d transparent=%d compress=%t)",
		server.Addr, cfg.Codec.HeaderSize, cfg.Codec.TransparentIndex, cfg.Archive.Compress)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return startServer(ctx, server)
}

func createServer(cfg *config.Config) *http.Server {
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	mux := http.NewServeMux()
	if assets, err := web.DistFS(); err == nil {
		mux.Handle("/", http.FileServer(http.FS(assets)))
	} else {
		log.Warn("embedded assets unavailable: %v", err)
	}
	mux.HandleFunc("/api/encode", handler.Encode)
	mux.HandleFunc("/api/decode", handler.Decode)
	mux.HandleFunc("/api/info", handler.Info)
	mux.HandleFunc("/ws", handler.Stream)
	mux.HandleFunc("/healthz", handler.Health)

	h := applySecurityMiddleware(mux, cfg)
	h = requestLoggingMiddleware(h)

	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func applySecurityMiddleware(next http.Handler, cfg *config.Config) http.Handler {
	if cfg == nil {
		return securityHeadersMiddleware(corsMiddleware(next, nil))
	}

	h := bodyLimitMiddleware(next, cfg.Security.MaxUploadBytes)
	h = corsMiddleware(h, cfg.Security.AllowedOrigins)
	h = securityHeadersMiddleware(h)

	return h
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// The preview page runs the WASM decoder and talks to /ws.
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline' 'wasm-unsafe-eval'; style-src 'self' 'unsafe-inline'; img-src 'self' blob: data:; connect-src 'self' ws: wss:")

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && handler.IsAllowedOrigin(origin, allowedOrigins, r.Host) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bodyLimitMiddleware rejects uploads whose declared length is over limit;
// handlers enforce the same limit while reading.
func bodyLimitMiddleware(next http.Handler, limit int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limit > 0 && r.ContentLength > limit {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func setupLogging(cfg config.LoggingConfig) {
	logging.SetLevelFromString(cfg.Level)
	logging.SetFormat(cfg.Format)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("%s %s %s %d %s", r.RemoteAddr, r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

// startServer serves until ctx is done, then drains connections for up to
// shutdownTimeout.
func startServer(ctx context.Context, server *http.Server) error {
	if server == nil {
		return fmt.Errorf("server is nil")
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-serveErr; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func showHelp() {
	fmt.Println(appName)
	fmt.Println("USAGE: clx-server [options]")
	fmt.Println("OPTIONS:")
	fmt.Println("  -host               Set server listen host (default 0.0.0.0)")
	fmt.Println("  -port               Set server listen port (default 8080)")
	fmt.Println("  -log-level          Set log level (debug, info, warn, error)")
	fmt.Println("  -palette            Palette file for previews and RGB uploads")
	fmt.Println("  -transparent        Transparent palette index (-1 for none)")
	fmt.Println("  -header             Frame header size, 6 or 10")
	fmt.Println("  -bottom-up          Store rows bottom row first")
	fmt.Println("  -zstd               Compress encoded sprite lists")
	fmt.Println("  -version            Show version information")
	fmt.Println("  -help               Show this help message")
	fmt.Println("ENVIRONMENT VARIABLES: SERVER_HOST, SERVER_PORT, LOG_LEVEL, LOG_FORMAT, CLX_TRANSPARENT_INDEX,")
	fmt.Println("  CLX_HEADER_SIZE, CLX_BOTTOM_UP, CLX_PALETTE_FILE, CLX_COMPRESS, CLX_ZSTD_LEVEL,")
	fmt.Println("  ALLOWED_ORIGINS, MAX_UPLOAD_BYTES")
	fmt.Println("EXAMPLES: clx-server -port 8080 -transparent 0 -palette town.pal")
}

func showVersion() {
	fmt.Printf("%s %s\n", appName, appVersion)
	fmt.Println("Built with Go", time.Now().Year())
	fmt.Println("Format: CLX sprite lists")
}

