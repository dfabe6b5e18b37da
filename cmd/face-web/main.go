package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fpang/talkingface/internal/auth"
	"github.com/fpang/talkingface/internal/generate"
	"github.com/fpang/talkingface/internal/logging"
	"github.com/fpang/talkingface/internal/session"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/genai"
)

//go:embed all:frontend_dist
var frontendFS embed.FS

// Documented model pair: the fast preview model is primary; the full model
// is the fallback when the fast one rejects the request shape.
const (
	defaultVideoModel    = "veo-3.1-fast-generate-preview"
	defaultFallbackModel = "veo-3.1-generate-preview"
)

// CLI flags
var (
	portFlag       int
	modelFlag      string
	fallbackFlag   string
	resolutionFlag string
	transcribeFlag bool
)

// Resolved at startup; read-only afterwards.
var (
	geminiKey      string
	geminiKeyValid bool
	scribeKey      string
	sessions       = session.NewRegistry()
)

var rootCmd = &cobra.Command{
	Use:   "face-web",
	Short: "Web UI for generating talking-face videos from a photo and a line of text",
	Long: `Face Web starts a local web server where you upload a face photo, type a
line of dialogue, and get back a short AI-generated talking-head video with
a clickable word-level transcript.

Examples:
  face-web
  face-web --port 9090
  face-web --model veo-3.1-generate-preview --transcribe=false`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 8080, "Port to listen on")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", logging.EnvOrDefault("FACE_VIDEO_MODEL", defaultVideoModel), "Primary video model")
	rootCmd.Flags().StringVar(&fallbackFlag, "fallback-model", logging.EnvOrDefault("FACE_FALLBACK_MODEL", defaultFallbackModel), "Fallback video model")
	rootCmd.Flags().StringVar(&resolutionFlag, "resolution", os.Getenv("FACE_RESOLUTION"), "Output resolution hint (e.g. 720p)")
	rootCmd.Flags().BoolVar(&transcribeFlag, "transcribe", os.Getenv("FACE_TRANSCRIBE") != "false", "Transcribe generated videos")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	// .env is optional; environment variables win.
	godotenv.Load()
	logging.Init()

	resolveCredentials()

	if err := generate.CheckFFprobeAvailable(); err != nil {
		log.Warn().Err(err).Msg("Video validation unavailable until FFmpeg is installed")
	}

	logging.NewStartupLogger("face-web").
		Config("model", modelFlag).
		Config("fallbackModel", fallbackFlag).
		Config("resolution", resolutionFlag).
		Feature("transcription", transcribeFlag).
		Secret("geminiKey", geminiKeyValid).
		Secret("scribeKey", scribeKey != "").
		Log()

	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/health", handleHealth)
	mux.HandleFunc("/api/session", handleSessionStart)
	mux.HandleFunc("/api/upload", handleUpload)
	mux.HandleFunc("/api/preview", handlePreview)
	mux.HandleFunc("/api/generate/start", handleGenerateStart)
	mux.HandleFunc("/api/generate/", handleGenerateRoutes)

	// Frontend static files (SPA fallback)
	frontendSub, err := fs.Sub(frontendFS, "frontend_dist")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to access embedded frontend")
	}
	fileServer := http.FileServer(http.FS(frontendSub))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Security headers
		w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' blob: data:; media-src 'self' blob:; style-src 'self' 'unsafe-inline'; connect-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// SPA fallback: if the file doesn't exist, serve index.html
		path := r.URL.Path
		if path != "/" {
			f, err := frontendSub.Open(strings.TrimPrefix(path, "/"))
			if err != nil {
				r.URL.Path = "/"
			} else {
				f.Close()
			}
		}
		fileServer.ServeHTTP(w, r)
	})

	handler := withLogging(withCORS(mux))

	addr := fmt.Sprintf(":%d", portFlag)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown; held video temp files are released with the sessions.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		sessions.CloseAll()
	}()

	log.Info().Int("port", portFlag).Msg("Starting web server")
	fmt.Printf("\n  Talking Face UI: http://localhost:%d\n\n", portFlag)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// resolveCredentials loads both API keys and validates the Gemini key with a
// minimal call. A missing or invalid key is not fatal: the frontend shows
// the key-selection screen until /api/health reports a working key.
func resolveCredentials() {
	scribeKey = auth.GetScribeAPIKey()
	if scribeKey == "" && transcribeFlag {
		log.Warn().Msg("ELEVENLABS_API_KEY not set; transcripts will be unavailable")
	}

	key, err := auth.GetAPIKey()
	if err != nil {
		log.Warn().Err(err).Msg("No Gemini API key configured")
		return
	}
	geminiKey = key

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: geminiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create Gemini client for validation")
		return
	}
	if err := auth.ValidateAPIKey(ctx, client); err != nil {
		log.Warn().Err(err).Msg("Gemini API key failed validation")
		return
	}
	geminiKeyValid = true
}

// --- Middleware ---

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if strings.HasPrefix(r.URL.Path, "/api/") {
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("API request")
		}
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only allow localhost origins; this is a local tool.
		origin := r.Header.Get("Origin")
		if origin != "" && (strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
