package config

import (
	"context"
	"flag"
	"os"
	"testing"
)

func TestRegisterCommonDefaultsFromEnv(t *testing.T) {
	os.Unsetenv("PATHERY_LOG_LEVEL")
	os.Unsetenv("PATHERY_SCHEMA_CONFIG")

	var f Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterCommon(fs, &f)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want info", f.LogLevel)
	}
}

func TestRegisterCommonEnvOverridesDefault(t *testing.T) {
	t.Setenv("PATHERY_LOG_LEVEL", "debug")

	var f Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterCommon(fs, &f)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug from env", f.LogLevel)
	}
}

func TestRegisterCommonFlagOverridesEnv(t *testing.T) {
	t.Setenv("PATHERY_LOG_LEVEL", "debug")

	var f Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterCommon(fs, &f)
	if err := fs.Parse([]string{"-log-level=warn"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q, want warn from explicit flag", f.LogLevel)
	}
}

// RegisterDocStore must not panic or double-register "etcd-endpoint" when a
// binary already called RegisterDirectory (which registers that flag too).
func TestRegisterDocStoreSharesEtcdEndpointFlag(t *testing.T) {
	var f Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterDirectory(fs, &f)
	RegisterDocStore(fs, &f)
	if err := fs.Parse([]string{"-etcd-endpoint=etcd.example:2379"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.EtcdEndpoint != "etcd.example:2379" {
		t.Fatalf("EtcdEndpoint = %q, want etcd.example:2379", f.EtcdEndpoint)
	}
}

func TestLoadSchemaRegistryRequiresPath(t *testing.T) {
	f := &Flags{}
	if _, err := LoadSchemaRegistry(f); err == nil {
		t.Fatal("expected an error when schema-config is unset")
	}
}

func TestLoadSchemaRegistryReadsAndParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/schema.json"
	const cfg = `{"schemas":[{"prefix":"blog-","fields":[{"name":"title","kind":"text","flags":["TEXT","STORED"]}]}]}`
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f := &Flags{SchemaConfig: path}
	reg, err := LoadSchemaRegistry(f)
	if err != nil {
		t.Fatalf("LoadSchemaRegistry: %v", err)
	}
	if _, err := reg.Load("blog-1"); err != nil {
		t.Fatalf("Load(blog-1): %v", err)
	}
}

func TestOpenDirectoryLocalBackend(t *testing.T) {
	f := &Flags{DirBackend: string(BackendLocal), DataRoot: t.TempDir()}
	d, err := OpenDirectory(context.Background(), f, "blog-1")
	if err != nil {
		t.Fatalf("OpenDirectory: %v", err)
	}
	if d == nil {
		t.Fatal("OpenDirectory returned a nil Directory")
	}
}

func TestOpenDirectoryUnknownBackendErrors(t *testing.T) {
	f := &Flags{DirBackend: "bogus"}
	if _, err := OpenDirectory(context.Background(), f, "blog-1"); err == nil {
		t.Fatal("expected an error for an unknown directory backend")
	}
}

func TestOpenDocStoreMemoryBackend(t *testing.T) {
	f := &Flags{DocBackend: string(BackendMemory)}
	if _, err := OpenDocStore(context.Background(), f); err != nil {
		t.Fatalf("OpenDocStore: %v", err)
	}
}

func TestOpenBlobStoreMemoryBackend(t *testing.T) {
	f := &Flags{BlobBackend: string(BackendMemory)}
	if _, err := OpenBlobStore(context.Background(), f); err != nil {
		t.Fatalf("OpenBlobStore: %v", err)
	}
}

func TestOpenQueueMemoryBackend(t *testing.T) {
	f := &Flags{QueueBackend: string(BackendMemory)}
	if _, err := OpenQueue(context.Background(), f); err != nil {
		t.Fatalf("OpenQueue: %v", err)
	}
}
