// Package gateway is the stateless HTTP front-end: it deserializes
// requests, calls into the session core, and maps failures to status
// codes. No conversation logic lives here.
package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"parley/internal/config"
	"parley/internal/mcp"
)

// maxAudioBytes caps uploads to the transcription proxy.
const maxAudioBytes = 25 << 20

// Chat is the session surface the gateway fronts.
type Chat interface {
	Send(ctx context.Context, text string) (string, error)
	NewSession(prompt string)
	ReconnectTools(ctx context.Context)
	Tools() []mcp.Tool
}

// Transcriber converts an audio upload to text.
type Transcriber interface {
	Transcribe(ctx context.Context, fileName string, data []byte) (string, error)
}

type Server struct {
	cfg  *config.HTTPConfig
	chat Chat
	stt  Transcriber
}

func NewServer(cfg *config.HTTPConfig, chat Chat, stt Transcriber) *Server {
	return &Server{cfg: cfg, chat: chat, stt: stt}
}

// Handler builds the full route table, CORS included.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/session", s.handleNewSession)
	mux.HandleFunc("POST /api/tools/reconnect", s.handleReconnect)
	mux.HandleFunc("GET /api/tools", s.handleTools)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	if s.cfg.WebRoot != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.WebRoot)))
	}
	return s.cors(mux)
}

// Serve blocks while handling HTTP. Cancel ctx to initiate graceful
// shutdown; in-flight requests are allowed to drain.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.AllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		http.Error(w, "expected a JSON body with a non-empty message field", http.StatusBadRequest)
		return
	}

	reply, err := s.chat.Send(r.Context(), req.Message)
	if err != nil {
		zap.S().Errorw("Chat turn failed", "error", err)
		http.Error(w, "chat backend error", http.StatusBadGateway)
		return
	}
	writeJSON(w, chatResponse{Reply: reply})
}

type sessionRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	// The body is optional; an empty prompt means the configured default.
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.chat.NewSession(req.Prompt)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	s.chat.ReconnectTools(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Server      string `json:"server"`
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	tools := s.chat.Tools()
	out := make([]toolInfo, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolInfo{Name: t.Name, Description: t.Description, Server: t.Server})
	}
	writeJSON(w, out)
}

type transcribeResponse struct {
	Text string `json:"text"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.stt == nil {
		http.Error(w, "transcription not configured", http.StatusNotImplemented)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "expected a multipart upload with a file field", http.StatusBadRequest)
		return
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(file, maxAudioBytes+1))
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}
	if len(data) > maxAudioBytes {
		http.Error(w, "audio upload exceeds the 25 MiB limit", http.StatusRequestEntityTooLarge)
		return
	}

	text, err := s.stt.Transcribe(r.Context(), header.Filename, data)
	if err != nil {
		zap.S().Errorw("Transcription failed", "error", err)
		http.Error(w, "transcription error", http.StatusBadGateway)
		return
	}
	writeJSON(w, transcribeResponse{Text: text})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Warnw("Failed to encode response", "error", err)
	}
}
