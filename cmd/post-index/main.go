// Command post-index serves the add/batch/delete HTTP routes, a thin
// adapter translating request bodies into writer.Client calls. Request
// parsing, routing and JSON decoding live here; writer.Client and the
// engine packages never import net/http.
package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/epokhe/pathery"
	"github.com/epokhe/pathery/config"
	"github.com/epokhe/pathery/logging"
	"github.com/epokhe/pathery/schema"
	"github.com/epokhe/pathery/writer"
)

type server struct {
	registry *schema.Registry
	client   *writer.Client
}

func main() {
	f := &config.Flags{}
	addr := flag.String("addr", ":8080", "HTTP listen address")
	config.RegisterCommon(flag.CommandLine, f)
	config.RegisterDocStore(flag.CommandLine, f)
	config.RegisterBlobStore(flag.CommandLine, f)
	config.RegisterQueue(flag.CommandLine, f)
	flag.Parse()

	logging.Init(f.LogLevel)

	registry, err := config.LoadSchemaRegistry(f)
	if err != nil {
		log.Fatal().Err(err).Msg("load schema registry")
	}

	ctx := context.Background()
	blobs, err := config.OpenBlobStore(ctx, f)
	if err != nil {
		log.Fatal().Err(err).Msg("open blob store")
	}
	docs, err := config.OpenDocStore(ctx, f)
	if err != nil {
		log.Fatal().Err(err).Msg("open document store")
	}
	q, err := config.OpenQueue(ctx, f)
	if err != nil {
		log.Fatal().Err(err).Msg("open queue")
	}

	s := &server{registry: registry, client: writer.NewClient(blobs, docs, q)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /index/{index_id}", s.handleAdd)
	mux.HandleFunc("POST /index/{index_id}/batch", s.handleBatch)
	mux.HandleFunc("DELETE /index/{index_id}/doc/{doc_id}", s.handleDelete)

	log.Info().Str("addr", *addr).Msg("post-index listening")
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}

func (s *server) handleAdd(w http.ResponseWriter, r *http.Request) {
	indexID := r.PathValue("index_id")
	sch, err := s.registry.Load(indexID)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, pathery.Invalid("read request body: %v", err))
		return
	}

	jobID, err := s.client.IndexDocuments(r.Context(), indexID, sch, [][]byte{body})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":     jobID,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *server) handleBatch(w http.ResponseWriter, r *http.Request) {
	indexID := r.PathValue("index_id")
	sch, err := s.registry.Load(indexID)
	if err != nil {
		writeError(w, err)
		return
	}

	var docs []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&docs); err != nil {
		writeError(w, pathery.Invalid("request body is not a JSON array: %v", err))
		return
	}

	bodies := make([][]byte, len(docs))
	for i, d := range docs {
		bodies[i] = d
	}

	jobID, err := s.client.IndexDocuments(r.Context(), indexID, sch, bodies)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID})
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	indexID := r.PathValue("index_id")
	docID := r.PathValue("doc_id")

	if _, err := s.client.DeleteDocument(r.Context(), indexID, docID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"__id":       docID,
		"deleted_at": time.Now().UTC().Format(time.RFC3339),
	})
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
