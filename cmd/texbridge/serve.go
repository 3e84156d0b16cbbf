package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/texbridge"
	"github.com/caffeineduck/texbridge/assets"
	"github.com/caffeineduck/texbridge/bridge"
	"github.com/caffeineduck/texbridge/internal/logging"
	"github.com/caffeineduck/texbridge/tool"
	"github.com/caffeineduck/texbridge/tool/latexdiff"
	"github.com/caffeineduck/texbridge/tool/latexindent"
	"github.com/caffeineduck/texbridge/tool/latexpand"
	"github.com/caffeineduck/texbridge/tool/texcount"
	"github.com/caffeineduck/texbridge/tool/texfmt"
	"github.com/caffeineduck/texbridge/vfs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for tool execution",
	Long: `Start an HTTP server that runs the tools on request bodies. All requests
share one sandbox.

Endpoints:
  POST   /count     {"input": "...", "options": {...}}
  POST   /format    {"input": "...", "options": {...}}
  POST   /diff      {"old": "...", "new": "...", "options": {...}}
  POST   /expand    {"input": "...", "options": {...}}
  POST   /indent    {"input": "...", "options": {...}}
  POST   /exec      {"argv": [...], "inputs": [...], "outputs": [...], "cwd": "..."}
  GET    /health    Health check`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().Int64("max-body", 16*1024*1024, "Max request body size")
	rootCmd.AddCommand(serveCmd)
}

type toolRequest struct {
	Input   string          `json:"input"`
	Old     string          `json:"old"`
	New     string          `json:"new"`
	Options json.RawMessage `json:"options,omitempty"`
}

type execRequest struct {
	Argv    []string   `json:"argv"`
	Inputs  []vfs.File `json:"inputs"`
	Outputs []string   `json:"outputs,omitempty"`
	Cwd     string     `json:"cwd,omitempty"`
}

type toolResponse struct {
	bridge.Result
	DurationMs int64             `json:"duration_ms"`
	Summary    *texcount.Summary `json:"summary,omitempty"`
}

type server struct {
	tk      *texbridge.Toolkit
	maxBody int64
	log     zerolog.Logger
}

func newServer(tk *texbridge.Toolkit, maxBody int64, log zerolog.Logger) http.Handler {
	s := &server{tk: tk, maxBody: maxBody, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /count", s.handleCount)
	mux.HandleFunc("POST /format", s.handleFormat)
	mux.HandleFunc("POST /diff", s.handleDiff)
	mux.HandleFunc("POST /expand", s.handleExpand)
	mux.HandleFunc("POST /indent", s.handleIndent)
	mux.HandleFunc("POST /exec", s.handleExec)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

// decodeTool reads the request and unmarshals its options into opts.
func (s *server) decodeTool(w http.ResponseWriter, r *http.Request, opts any) (toolRequest, bool) {
	var req toolRequest
	if !s.decode(w, r, &req) {
		return req, false
	}
	if len(req.Options) > 0 {
		if err := json.Unmarshal(req.Options, opts); err != nil {
			http.Error(w, "invalid options", http.StatusBadRequest)
			return req, false
		}
	}
	return req, true
}

func (s *server) handleCount(w http.ResponseWriter, r *http.Request) {
	var opts texcount.Options
	req, ok := s.decodeTool(w, r, &opts)
	if !ok {
		return
	}
	summary, res, err := s.tk.Count.Summarize(r.Context(), req.Input, opts)
	resp := toolResponse{Result: res}
	if err == nil && res.Success {
		resp.Summary = &summary
	}
	s.respond(w, r, resp, err)
}

func (s *server) handleFormat(w http.ResponseWriter, r *http.Request) {
	var opts texfmt.Options
	req, ok := s.decodeTool(w, r, &opts)
	if !ok {
		return
	}
	res, err := s.tk.Format.Format(r.Context(), req.Input, opts)
	s.respond(w, r, toolResponse{Result: res}, err)
}

func (s *server) handleDiff(w http.ResponseWriter, r *http.Request) {
	var opts latexdiff.Options
	req, ok := s.decodeTool(w, r, &opts)
	if !ok {
		return
	}
	res, err := s.tk.Diff.Diff(r.Context(), req.Old, req.New, opts)
	s.respond(w, r, toolResponse{Result: res}, err)
}

func (s *server) handleExpand(w http.ResponseWriter, r *http.Request) {
	var opts latexpand.Options
	req, ok := s.decodeTool(w, r, &opts)
	if !ok {
		return
	}
	res, err := s.tk.Expand.Expand(r.Context(), req.Input, opts)
	s.respond(w, r, toolResponse{Result: res}, err)
}

func (s *server) handleIndent(w http.ResponseWriter, r *http.Request) {
	var opts latexindent.Options
	req, ok := s.decodeTool(w, r, &opts)
	if !ok {
		return
	}
	res, err := s.tk.Indent.Indent(r.Context(), req.Input, opts)
	s.respond(w, r, toolResponse{Result: res}, err)
}

func (s *server) handleExec(w http.ResponseWriter, r *http.Request) {
	var req execRequest
	if !s.decode(w, r, &req) {
		return
	}
	inv := bridge.Invocation{Argv: req.Argv, Inputs: req.Inputs, Outputs: req.Outputs, WorkDir: req.Cwd}
	res, err := s.tk.Exec(r.Context(), inv, missingScripts(inv)...)
	s.respond(w, r, toolResponse{Result: res}, err)
}

func (s *server) respond(w http.ResponseWriter, r *http.Request, resp toolResponse, err error) {
	if err != nil && !errors.Is(err, tool.ErrEmptyOutput) {
		status := errorStatus(err)
		s.log.Warn().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
		http.Error(w, err.Error(), status)
		return
	}
	resp.DurationMs = resp.Duration.Milliseconds()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, bridge.ErrInvalidArgv),
		errors.Is(err, vfs.ErrInvalidPath),
		errors.Is(err, vfs.ErrDuplicatePath),
		errors.Is(err, latexdiff.ErrInvalidOption):
		return http.StatusBadRequest
	case errors.Is(err, bridge.ErrExecutionTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, bridge.ErrRemoteExecution),
		errors.Is(err, assets.ErrFileLoad):
		return http.StatusBadGateway
	case errors.Is(err, bridge.ErrInitialization),
		errors.Is(err, bridge.ErrNotInitialized),
		errors.Is(err, bridge.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	maxBody, _ := cmd.Flags().GetInt64("max-body")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logging.NewWithWriter(cmd.ErrOrStderr(), "texbridge", cfg.Verbose)
	tk, err := texbridge.New(cfg, texbridge.WithLogger(log))
	if err != nil {
		return err
	}
	defer tk.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           newServer(tk, maxBody, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", srv.Addr).Msg("texbridge server listening")
	return srv.ListenAndServe()
}
