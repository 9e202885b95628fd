package docstore

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdStore is the DocumentStore backend for deployments that already run
// etcd as their metadata KV store; it reuses the same client the
// chunked-kv Directory backend and the writer's lease-based locks use,
// rather than standing up a second storage system.
type EtcdStore struct {
	cli *clientv3.Client
}

func NewEtcdStore(cli *clientv3.Client) *EtcdStore {
	return &EtcdStore{cli: cli}
}

func key(indexID, id string) string {
	return fmt.Sprintf("doc|%s|%s", indexID, id)
}

// SaveDocuments writes every document with Put. etcd transactions are
// capped at 128 operations, so batches larger than that are chunked; a
// chunk failure reports every id in that chunk as failed and the remaining
// chunks are still attempted, matching the batching semantics a queue-backed SQS equivalent
// would give a caller (partial batch failure, not an all-or-nothing
// transaction across the whole request).
func (s *EtcdStore) SaveDocuments(ctx context.Context, docs []Document) ([]string, error) {
	const maxOpsPerTxn = 128

	var failed []string
	for i := 0; i < len(docs); i += maxOpsPerTxn {
		end := i + maxOpsPerTxn
		if end > len(docs) {
			end = len(docs)
		}
		chunk := docs[i:end]

		txn := s.cli.Txn(ctx)
		var ops []clientv3.Op
		for _, d := range chunk {
			ops = append(ops, clientv3.OpPut(key(d.IndexID, d.ID), string(d.Body)))
		}
		resp, err := txn.Then(ops...).Commit()
		if err != nil || !resp.Succeeded {
			for _, d := range chunk {
				failed = append(failed, d.ID)
			}
			continue
		}
	}
	return failed, nil
}

func (s *EtcdStore) GetDocuments(ctx context.Context, indexID string, ids []string) ([]Document, error) {
	var out []Document
	for _, id := range ids {
		resp, err := s.cli.Get(ctx, key(indexID, id))
		if err != nil {
			return nil, fmt.Errorf("get document %q: %w", id, err)
		}
		if len(resp.Kvs) == 0 {
			continue
		}
		out = append(out, Document{IndexID: indexID, ID: id, Body: resp.Kvs[0].Value})
	}
	return out, nil
}

func (s *EtcdStore) DeleteDocuments(ctx context.Context, indexID string, ids []string) error {
	for _, id := range ids {
		if _, err := s.cli.Delete(ctx, key(indexID, id)); err != nil {
			return fmt.Errorf("delete document %q: %w", id, err)
		}
	}
	return nil
}
