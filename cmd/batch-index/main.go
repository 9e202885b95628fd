// Command batch-index is a CLI bulk loader: it reads newline-delimited JSON
// documents from a file and submits them to an index in batches, the CLI
// counterpart to the HTTP add/batch routes, mirroring the teacher's
// cmd/client shape of a flag-free usage banner and positional arguments.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/epokhe/pathery/config"
	"github.com/epokhe/pathery/logging"
	"github.com/epokhe/pathery/writer"
)

const batchSize = 500

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  batch-index [flags] <index_id> <ndjson-file>\n")
	flag.PrintDefaults()
	os.Exit(1)
}

func main() {
	f := &config.Flags{}
	config.RegisterCommon(flag.CommandLine, f)
	config.RegisterDocStore(flag.CommandLine, f)
	config.RegisterBlobStore(flag.CommandLine, f)
	config.RegisterQueue(flag.CommandLine, f)
	flag.Parse()

	if flag.NArg() != 2 {
		usage()
	}
	indexID, path := flag.Arg(0), flag.Arg(1)

	logging.Init(f.LogLevel)

	registry, err := config.LoadSchemaRegistry(f)
	if err != nil {
		log.Fatal().Err(err).Msg("load schema registry")
	}
	sch, err := registry.Load(indexID)
	if err != nil {
		log.Fatal().Err(err).Msg("resolve schema")
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
	client := writer.NewClient(blobs, docs, q)

	file, err := os.Open(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("open input file")
	}
	defer file.Close()

	var batch [][]byte
	var total, jobs int
	flush := func() {
		if len(batch) == 0 {
			return
		}
		jobID, err := client.IndexDocuments(ctx, indexID, sch, batch)
		if err != nil {
			log.Fatal().Err(err).Int("batch_size", len(batch)).Msg("submit batch")
		}
		jobs++
		total += len(batch)
		log.Info().Str("job_id", jobID).Int("count", len(batch)).Msg("batch submitted")
		batch = batch[:0]
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		doc := make(json.RawMessage, len(line))
		copy(doc, line)
		batch = append(batch, doc)
		if len(batch) >= batchSize {
			flush()
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatal().Err(err).Msg("read input file")
	}
	flush()

	fmt.Printf("submitted %d documents across %d jobs\n", total, jobs)
}
