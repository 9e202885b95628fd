// Command query-index-partition exposes query.Executor (the
// PartitionExecutor) as a standalone HTTP function, the shape the original
// Lambda-per-route deployment used for cross-process fan-out. query-index's
// default Coordinator calls query.Executor in-process via goroutines
// instead (Go needs no RPC bridge for that), so this binary only matters
// for a deployment that truly wants one process per partition invocation.
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
	"github.com/epokhe/pathery/query"
	"github.com/epokhe/pathery/schema"
)

type partitionRequest struct {
	Query      string                  `json:"query"`
	Segments   []directory.SegmentMeta `json:"segments"`
	PartitionN int                     `json:"partition_n"`
	Limit      int                     `json:"limit"`
	Offset     int                     `json:"offset"`
}

type runner struct {
	flags    *config.Flags
	registry *schema.Registry
}

func main() {
	f := &config.Flags{}
	addr := flag.String("addr", ":8082", "HTTP listen address")
	config.RegisterCommon(flag.CommandLine, f)
	config.RegisterDirectory(flag.CommandLine, f)
	flag.Parse()

	logging.Init(f.LogLevel)

	registry, err := config.LoadSchemaRegistry(f)
	if err != nil {
		log.Fatal().Err(err).Msg("load schema registry")
	}

	s := &runner{flags: f, registry: registry}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /index/{index_id}/partition", s.handlePartition)

	log.Info().Str("addr", *addr).Msg("query-index-partition listening")
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}

func (s *runner) handlePartition(w http.ResponseWriter, r *http.Request) {
	indexID := r.PathValue("index_id")

	var req partitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pathery.Invalid("request body is not valid JSON: %v", err))
		return
	}

	sch, err := s.registry.Load(indexID)
	if err != nil {
		writeError(w, err)
		return
	}
	dir, err := config.OpenDirectory(r.Context(), s.flags, indexID)
	if err != nil {
		writeError(w, pathery.Internal(err))
		return
	}

	exec := query.NewExecutor(dir, sch)
	hits, err := exec.Run(r.Context(), req.Query, req.Segments, req.PartitionN, req.Limit, req.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
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
