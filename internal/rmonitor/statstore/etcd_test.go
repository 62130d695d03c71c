package statstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	pb "go.etcd.io/etcd/api/v3/etcdserverpb"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/danshapiro/flowmon/internal/rmonitor/summary"
)

// fakeKV holds a single key with etcd-style revisions. Only Get and Txn are
// implemented; the embedded interface panics on anything else.
type fakeKV struct {
	clientv3.KV

	mu        sync.Mutex
	value     []byte
	createRev int64
	modRev    int64
	rev       int64
	gets      int
	commits   int
	lastCmp   clientv3.Cmp
	// beforeCommit runs ahead of each commit's comparison and can simulate a
	// concurrent writer.
	beforeCommit func(f *fakeKV)
}

func (f *fakeKV) Get(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	resp := &clientv3.GetResponse{}
	if f.createRev != 0 {
		resp.Kvs = []*mvccpb.KeyValue{{
			Key:            []byte(key),
			Value:          append([]byte(nil), f.value...),
			CreateRevision: f.createRev,
			ModRevision:    f.modRev,
		}}
	}
	return resp, nil
}

func (f *fakeKV) Txn(context.Context) clientv3.Txn {
	return &fakeTxn{kv: f}
}

// put stores v at a new revision. Callers hold f.mu.
func (f *fakeKV) put(v []byte) {
	f.rev++
	if f.createRev == 0 {
		f.createRev = f.rev
	}
	f.modRev = f.rev
	f.value = v
}

func (f *fakeKV) compare(c clientv3.Cmp) bool {
	switch c.Target {
	case pb.Compare_CREATE:
		u, ok := c.TargetUnion.(*pb.Compare_CreateRevision)
		return ok && f.createRev == u.CreateRevision
	case pb.Compare_MOD:
		u, ok := c.TargetUnion.(*pb.Compare_ModRevision)
		return ok && f.modRev == u.ModRevision
	default:
		return false
	}
}

type fakeTxn struct {
	kv   *fakeKV
	cmps []clientv3.Cmp
	ops  []clientv3.Op
}

func (t *fakeTxn) If(cs ...clientv3.Cmp) clientv3.Txn {
	t.cmps = append(t.cmps, cs...)
	return t
}

func (t *fakeTxn) Then(ops ...clientv3.Op) clientv3.Txn {
	t.ops = append(t.ops, ops...)
	return t
}

func (t *fakeTxn) Else(...clientv3.Op) clientv3.Txn { return t }

func (t *fakeTxn) Commit() (*clientv3.TxnResponse, error) {
	f := t.kv
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	if f.beforeCommit != nil {
		f.beforeCommit(f)
	}
	ok := true
	for _, c := range t.cmps {
		f.lastCmp = c
		if !f.compare(c) {
			ok = false
		}
	}
	if ok {
		for _, op := range t.ops {
			if op.IsPut() {
				f.put(op.ValueBytes())
			}
		}
	}
	return &clientv3.TxnResponse{Succeeded: ok}, nil
}

func newFakeEtcdStore(kv *fakeKV, attempts int) *EtcdStore {
	return &EtcdStore{kv: kv, prefix: keyPrefix(""), maxAttempts: attempts}
}

func storedStats(t *testing.T, kv *fakeKV) (count int, maxMem float64) {
	t.Helper()
	st, err := decodeStats(kv.value)
	if err != nil {
		t.Fatalf("stored value: %v", err)
	}
	return st.Count, st.Max[summary.Memory]
}

func TestEtcdStore_FirstMergeGuardsOnAbsentKey(t *testing.T) {
	kv := &fakeKV{}
	s := newFakeEtcdStore(kv, defaultMaxAttempts)
	if err := s.Merge(context.Background(), "align", mem(128)); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if kv.commits != 1 {
		t.Fatalf("commits: %d", kv.commits)
	}
	if kv.lastCmp.Target != pb.Compare_CREATE || string(kv.lastCmp.Key) != "/flowmon/categories/align" {
		t.Fatalf("first write must compare create revision on the category key: %+v", kv.lastCmp)
	}
	if count, maxMem := storedStats(t, kv); count != 1 || maxMem != 128 {
		t.Fatalf("stored: count=%d max=%v", count, maxMem)
	}

	if err := s.Merge(context.Background(), "align", mem(512)); err != nil {
		t.Fatalf("second Merge: %v", err)
	}
	if kv.lastCmp.Target != pb.Compare_MOD {
		t.Fatalf("update must compare mod revision: %+v", kv.lastCmp)
	}
	st, err := s.Load(context.Background(), "align")
	if err != nil {
		t.Fatal(err)
	}
	if st.Count != 2 || st.Max[summary.Memory] != 512 || st.Mean(summary.Memory) != 320 {
		t.Fatalf("loaded: %+v", st)
	}
}

func TestEtcdStore_RetriesAfterLostRace(t *testing.T) {
	kv := &fakeKV{}
	raced := false
	kv.beforeCommit = func(f *fakeKV) {
		if raced {
			return
		}
		raced = true
		other := NewMemoryStore()
		_ = other.Merge(context.Background(), "align", mem(1000))
		st, _ := other.Load(context.Background(), "align")
		b, _ := encodeStats(st)
		f.put(b)
	}
	s := newFakeEtcdStore(kv, defaultMaxAttempts)
	if err := s.Merge(context.Background(), "align", mem(10)); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if kv.commits != 2 || kv.gets != 2 {
		t.Fatalf("expected one retry: commits=%d gets=%d", kv.commits, kv.gets)
	}
	if count, maxMem := storedStats(t, kv); count != 2 || maxMem != 1000 {
		t.Fatalf("concurrent write lost: count=%d max=%v", count, maxMem)
	}
}

func TestEtcdStore_ConflictAfterMaxAttempts(t *testing.T) {
	kv := &fakeKV{}
	kv.beforeCommit = func(f *fakeKV) {
		f.put([]byte(`{"count":1}`))
	}
	s := newFakeEtcdStore(kv, 3)
	err := s.Merge(context.Background(), "align", mem(10))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if kv.commits != 3 {
		t.Fatalf("commits: %d", kv.commits)
	}
}

func TestEtcdStore_CorruptValue(t *testing.T) {
	kv := &fakeKV{}
	kv.put([]byte("{not json"))
	s := newFakeEtcdStore(kv, defaultMaxAttempts)
	err := s.Merge(context.Background(), "align", mem(10))
	if err == nil || errors.Is(err, ErrConflict) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if kv.commits != 0 {
		t.Fatalf("corrupt value must not be overwritten")
	}
	if _, err := s.Load(context.Background(), "align"); err == nil {
		t.Fatalf("Load: expected decode error")
	}
	if err := s.Merge(context.Background(), "align", nil); err != nil || kv.gets != 2 {
		t.Fatalf("nil summary should be a no-op: err=%v gets=%d", err, kv.gets)
	}
}
