package directory

import (
	"context"
	"errors"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// errNotExist is returned by the chunked backends' read paths when a path
// has no header key, mirroring os.ErrNotExist for local.
var errNotExist = errors.New("file does not exist")

func newSession(ctx context.Context, cli *clientv3.Client) (*concurrency.Session, error) {
	return concurrency.NewSession(cli, concurrency.WithContext(ctx))
}

func newMutex(sess *concurrency.Session, key string) *concurrency.Mutex {
	return concurrency.NewMutex(sess, key)
}
