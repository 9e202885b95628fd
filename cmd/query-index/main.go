// Command query-index serves the query HTTP route, a thin adapter in
// front of query.Coordinator.
package main

import (
	"context"
	"flag"
	"net/http"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/epokhe/pathery"
	"github.com/epokhe/pathery/config"
	"github.com/epokhe/pathery/docstore"
	"github.com/epokhe/pathery/logging"
	"github.com/epokhe/pathery/query"
	"github.com/epokhe/pathery/schema"
)

type queryRequest struct {
	Query           string `json:"query"`
	PaginationToken string `json:"pagination_token,omitempty"`
}

type server struct {
	flags    *config.Flags
	registry *schema.Registry
	docs     docstore.DocumentStore

	mu           sync.Mutex
	coordinators map[string]*query.Coordinator
}

func main() {
	f := &config.Flags{}
	addr := flag.String("addr", ":8081", "HTTP listen address")
	config.RegisterCommon(flag.CommandLine, f)
	config.RegisterDirectory(flag.CommandLine, f)
	config.RegisterDocStore(flag.CommandLine, f)
	flag.Parse()

	logging.Init(f.LogLevel)

	registry, err := config.LoadSchemaRegistry(f)
	if err != nil {
		log.Fatal().Err(err).Msg("load schema registry")
	}
	docs, err := config.OpenDocStore(context.Background(), f)
	if err != nil {
		log.Fatal().Err(err).Msg("open document store")
	}

	s := &server{flags: f, registry: registry, docs: docs, coordinators: make(map[string]*query.Coordinator)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /index/{index_id}/query", s.handleQuery)

	log.Info().Str("addr", *addr).Msg("query-index listening")
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	indexID := r.PathValue("index_id")

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pathery.Invalid("request body is not valid JSON: %v", err))
		return
	}

	c, err := s.coordinatorFor(r.Context(), indexID)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := c.Search(r.Context(), req.Query, req.PaginationToken)
	if err != nil {
		writeError(w, err)
		return
	}

	matches := make([]map[string]any, len(result.Matches))
	for i, m := range result.Matches {
		matches[i] = map[string]any{
			"doc":      m.Doc,
			"snippets": m.Snippets,
			"score":    m.Score,
		}
	}
	resp := map[string]any{"matches": matches}
	if result.PaginationToken != "" {
		resp["pagination_token"] = result.PaginationToken
	}
	writeJSON(w, http.StatusOK, resp)
}

// coordinatorFor caches one Coordinator per index_id for the life of the
// process, the way the writer side pools one index.Writer per index.
func (s *server) coordinatorFor(ctx context.Context, indexID string) (*query.Coordinator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.coordinators[indexID]; ok {
		return c, nil
	}

	resolved, err := s.registry.Load(indexID)
	if err != nil {
		return nil, err
	}
	dir, err := config.OpenDirectory(ctx, s.flags, indexID)
	if err != nil {
		return nil, pathery.Internal(err)
	}

	c := query.NewCoordinator(indexID, dir, resolved, s.docs)
	s.coordinators[indexID] = c
	return c, nil
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
