// Package config bootstraps a Pathery binary from flags and environment
// variables, constructing the concrete backend clients (etcd, minio,
// nats) the core packages are wired against — deliberately plain
// flag.FlagSet parsing in the teacher's style, not a config library like
// viper: the set of knobs is small and fixed per binary.
package config

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/nats-io/nats.go"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/epokhe/pathery/blobstore"
	"github.com/epokhe/pathery/directory"
	"github.com/epokhe/pathery/docstore"
	"github.com/epokhe/pathery/queue"
	"github.com/epokhe/pathery/schema"
)

// Backend selects which concrete implementation a component flag
// resolves to.
type Backend string

const (
	BackendLocal   Backend = "local"
	BackendEtcd    Backend = "etcd"
	BackendMinio   Backend = "minio"
	BackendNats    Backend = "nats"
	BackendMemory  Backend = "memory"
)

// Flags holds the parsed command-line/environment configuration shared
// across the cmd/ binaries. Each binary declares only the flags it
// actually needs by calling the matching RegisterX function.
type Flags struct {
	DataRoot     string
	DirBackend   string
	EtcdEndpoint string
	MinioEndpoint string
	MinioBucket  string
	MinioAccessKey string
	MinioSecretKey string
	NatsURL      string
	NatsStream   string
	DocBackend   string
	BlobBackend  string
	QueueBackend string
	SchemaConfig string
	LogLevel     string
}

// RegisterCommon adds the flags every binary needs: logging level and
// schema config path.
func RegisterCommon(fs *flag.FlagSet, f *Flags) {
	fs.StringVar(&f.LogLevel, "log-level", envOr("PATHERY_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	fs.StringVar(&f.SchemaConfig, "schema-config", envOr("PATHERY_SCHEMA_CONFIG", ""), "path to the schema registry JSON config")
}

// RegisterDirectory adds the flags selecting and configuring a Directory
// backend.
func RegisterDirectory(fs *flag.FlagSet, f *Flags) {
	fs.StringVar(&f.DirBackend, "dir-backend", envOr("PATHERY_DIR_BACKEND", string(BackendLocal)), "directory backend: local, etcd, minio")
	fs.StringVar(&f.DataRoot, "data-root", envOr("PATHERY_DATA_ROOT", "./data"), "root directory for the local directory backend")
	fs.StringVar(&f.EtcdEndpoint, "etcd-endpoint", envOr("PATHERY_ETCD_ENDPOINT", "localhost:2379"), "etcd client endpoint")
	fs.StringVar(&f.MinioEndpoint, "minio-endpoint", envOr("PATHERY_MINIO_ENDPOINT", "localhost:9000"), "minio/S3 endpoint")
	fs.StringVar(&f.MinioBucket, "minio-bucket", envOr("PATHERY_MINIO_BUCKET", "pathery"), "minio/S3 bucket")
	fs.StringVar(&f.MinioAccessKey, "minio-access-key", envOr("PATHERY_MINIO_ACCESS_KEY", ""), "minio/S3 access key")
	fs.StringVar(&f.MinioSecretKey, "minio-secret-key", envOr("PATHERY_MINIO_SECRET_KEY", ""), "minio/S3 secret key")
}

// RegisterDocStore adds flags selecting the DocumentStore backend. A
// binary that also calls RegisterDirectory (which registers
// "etcd-endpoint" itself when the directory backend may be etcd) gets the
// flag only once: fs.Lookup, not the zero-valued Flags field, is what
// detects that — f.EtcdEndpoint is still "" at registration time
// regardless of what other Register* calls already ran.
func RegisterDocStore(fs *flag.FlagSet, f *Flags) {
	fs.StringVar(&f.DocBackend, "doc-backend", envOr("PATHERY_DOC_BACKEND", string(BackendEtcd)), "document store backend: etcd, memory")
	if fs.Lookup("etcd-endpoint") == nil {
		fs.StringVar(&f.EtcdEndpoint, "etcd-endpoint", envOr("PATHERY_ETCD_ENDPOINT", "localhost:2379"), "etcd client endpoint")
	}
}

// RegisterBlobStore adds flags selecting the BlobStore backend.
func RegisterBlobStore(fs *flag.FlagSet, f *Flags) {
	fs.StringVar(&f.BlobBackend, "blob-backend", envOr("PATHERY_BLOB_BACKEND", string(BackendMinio)), "blob store backend: minio, memory")
}

// RegisterQueue adds flags selecting the Queue backend.
func RegisterQueue(fs *flag.FlagSet, f *Flags) {
	fs.StringVar(&f.QueueBackend, "queue-backend", envOr("PATHERY_QUEUE_BACKEND", string(BackendNats)), "queue backend: nats, memory")
	fs.StringVar(&f.NatsURL, "nats-url", envOr("PATHERY_NATS_URL", nats.DefaultURL), "NATS server URL")
	fs.StringVar(&f.NatsStream, "nats-stream", envOr("PATHERY_NATS_STREAM", "PATHERY_WRITES"), "JetStream stream name")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// OpenDirectory constructs the Directory backend named by f.DirBackend for
// the given index id.
func OpenDirectory(ctx context.Context, f *Flags, indexID string) (directory.Directory, error) {
	switch Backend(f.DirBackend) {
	case BackendLocal, "":
		return directory.NewLocal(f.DataRoot, indexID)
	case BackendEtcd:
		cli, err := newEtcdClient(f)
		if err != nil {
			return nil, err
		}
		return directory.NewChunkedKV(cli, indexID), nil
	case BackendMinio:
		cli, err := newMinioClient(f)
		if err != nil {
			return nil, err
		}
		return directory.NewChunkedBlob(cli, f.MinioBucket, indexID), nil
	default:
		return nil, fmt.Errorf("unknown directory backend %q", f.DirBackend)
	}
}

// OpenDocStore constructs the DocumentStore backend named by f.DocBackend.
func OpenDocStore(ctx context.Context, f *Flags) (docstore.DocumentStore, error) {
	switch Backend(f.DocBackend) {
	case BackendEtcd, "":
		cli, err := newEtcdClient(f)
		if err != nil {
			return nil, err
		}
		return docstore.NewEtcdStore(cli), nil
	case BackendMemory:
		return docstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown document store backend %q", f.DocBackend)
	}
}

// OpenBlobStore constructs the BlobStore backend named by f.BlobBackend.
func OpenBlobStore(ctx context.Context, f *Flags) (blobstore.BlobStore, error) {
	switch Backend(f.BlobBackend) {
	case BackendMinio, "":
		cli, err := newMinioClient(f)
		if err != nil {
			return nil, err
		}
		return blobstore.NewMinio(cli, f.MinioBucket, "writer_batches"), nil
	case BackendMemory:
		return blobstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob store backend %q", f.BlobBackend)
	}
}

// OpenQueue constructs the Queue backend named by f.QueueBackend.
func OpenQueue(ctx context.Context, f *Flags) (queue.Queue, error) {
	switch Backend(f.QueueBackend) {
	case BackendNats, "":
		nc, err := nats.Connect(f.NatsURL)
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		return queue.NewNatsQueue(ctx, nc, f.NatsStream, "pathery.writes")
	case BackendMemory:
		return queue.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", f.QueueBackend)
	}
}

// LoadSchemaRegistry reads and parses the schema registry config named by
// f.SchemaConfig.
func LoadSchemaRegistry(f *Flags) (*schema.Registry, error) {
	if f.SchemaConfig == "" {
		return nil, fmt.Errorf("schema-config flag is required")
	}
	data, err := os.ReadFile(f.SchemaConfig)
	if err != nil {
		return nil, fmt.Errorf("read schema config: %w", err)
	}
	return schema.LoadRegistry(data)
}

func newEtcdClient(f *Flags) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{Endpoints: []string{f.EtcdEndpoint}})
}

func newMinioClient(f *Flags) (*minio.Client, error) {
	return minio.New(f.MinioEndpoint, &minio.Options{
		Creds: credentials.NewStaticV4(f.MinioAccessKey, f.MinioSecretKey, ""),
	})
}
