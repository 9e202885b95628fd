// Command stats-index serves GET /index/{index_id}/stats, reporting each
// segment's doc counts straight from the manifest.
package main

import (
	"flag"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/epokhe/pathery"
	"github.com/epokhe/pathery/config"
	"github.com/epokhe/pathery/directory"
	"github.com/epokhe/pathery/logging"
)

type server struct {
	flags *config.Flags
}

func main() {
	f := &config.Flags{}
	addr := flag.String("addr", ":8083", "HTTP listen address")
	config.RegisterCommon(flag.CommandLine, f)
	config.RegisterDirectory(flag.CommandLine, f)
	flag.Parse()

	logging.Init(f.LogLevel)

	s := &server{flags: f}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /index/{index_id}/stats", s.handleStats)

	log.Info().Str("addr", *addr).Msg("stats-index listening")
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	indexID := r.PathValue("index_id")

	dir, err := config.OpenDirectory(r.Context(), s.flags, indexID)
	if err != nil {
		writeError(w, pathery.Internal(err))
		return
	}
	m, err := directory.ReadManifest(r.Context(), dir)
	if err != nil {
		writeError(w, pathery.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"segments": m.Segments})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	pe, ok := pathery.As(err)
	if !ok {
		pe = pathery.Internal(err)
	}
	if pe.Kind == pathery.KindInternal {
		log.Error().Err(pe).Msg("internal error")
	}
	writeJSON(w, pe.HTTPStatus(), map[string]any{
		"error":   pe.Kind.String(),
		"message": pe.Message,
	})
}
