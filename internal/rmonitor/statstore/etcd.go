package statstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/danshapiro/flowmon/internal/rmonitor/summary"
	"github.com/danshapiro/flowmon/internal/workflow/category"
)

const (
	DefaultKeyPrefix   = "/flowmon/categories/"
	DefaultDialTimeout = 5 * time.Second
	defaultMaxAttempts = 16
)

// ErrConflict is returned when a merge keeps losing the compare-and-swap race.
var ErrConflict = errors.New("statstore: too many concurrent updates")

type EtcdConfig struct {
	Endpoints   []string
	Prefix      string
	DialTimeout time.Duration
	Logger      *zap.Logger
}

// EtcdStore keeps one JSON-encoded category.Stats per category key and
// updates it with a read, merge, compare-and-swap loop.
type EtcdStore struct {
	client      *clientv3.Client
	kv          clientv3.KV
	prefix      string
	maxAttempts int
}

func NewEtcdStore(cfg EtcdConfig) (*EtcdStore, error) {
	var endpoints []string
	for _, ep := range cfg.Endpoints {
		if ep = strings.TrimSpace(ep); ep != "" {
			endpoints = append(endpoints, ep)
		}
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("statstore: no etcd endpoints")
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: timeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("statstore: connect etcd: %w", err)
	}
	return &EtcdStore{
		client:      cli,
		kv:          cli.KV,
		prefix:      keyPrefix(cfg.Prefix),
		maxAttempts: defaultMaxAttempts,
	}, nil
}

func keyPrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return DefaultKeyPrefix
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func (s *EtcdStore) key(name string) string {
	return s.prefix + normalizeName(name)
}

func (s *EtcdStore) Merge(ctx context.Context, name string, m *summary.Summary) error {
	if m == nil {
		return nil
	}
	key := s.key(name)
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		resp, err := s.kv.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("statstore: get %s: %w", key, err)
		}
		st := category.NewStats()
		cmp := clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
		if len(resp.Kvs) > 0 {
			kv := resp.Kvs[0]
			if st, err = decodeStats(kv.Value); err != nil {
				return fmt.Errorf("statstore: %s: %w", key, err)
			}
			cmp = clientv3.Compare(clientv3.ModRevision(key), "=", kv.ModRevision)
		}
		st.Add(m)
		b, err := encodeStats(st)
		if err != nil {
			return err
		}
		txn, err := s.kv.Txn(ctx).If(cmp).Then(clientv3.OpPut(key, string(b))).Commit()
		if err != nil {
			return fmt.Errorf("statstore: put %s: %w", key, err)
		}
		if txn.Succeeded {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrConflict, key)
}

func (s *EtcdStore) Load(ctx context.Context, name string) (category.Stats, error) {
	key := s.key(name)
	resp, err := s.kv.Get(ctx, key)
	if err != nil {
		return category.Stats{}, fmt.Errorf("statstore: get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return category.NewStats(), nil
	}
	return decodeStats(resp.Kvs[0].Value)
}

func (s *EtcdStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
