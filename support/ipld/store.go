package ipld

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	block "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	ipldcbor "github.com/ipfs/go-ipld-cbor"
	format "github.com/ipfs/go-ipld-format"

	"github.com/filecoin-project/go-state-migration/actors/util/adt"
)

// Creates a new, empty, unsynchronized IPLD store in memory.
// This store is appropriate for most kinds of testing.
func NewADTStore(ctx context.Context) adt.Store {
	return adt.WrapBlockStore(ctx, NewBlockStoreInMemory())
}

// Creates a new, empty IPLD store in memory with synchronized access.
// Migrations running more than one worker need a store like this.
func NewSyncADTStore(ctx context.Context) adt.Store {
	return adt.WrapBlockStore(ctx, NewSyncBlockStoreInMemory())
}

//
// A basic in-memory block store.
//
type BlockStoreInMemory struct {
	data map[cid.Cid]block.Block
}

var _ ipldcbor.IpldBlockstore = (*BlockStoreInMemory)(nil)

func NewBlockStoreInMemory() *BlockStoreInMemory {
	return &BlockStoreInMemory{make(map[cid.Cid]block.Block)}
}

func (mb *BlockStoreInMemory) Get(_ context.Context, c cid.Cid) (block.Block, error) {
	d, ok := mb.data[c]
	if ok {
		return d, nil
	}
	return nil, format.ErrNotFound{Cid: c}
}

func (mb *BlockStoreInMemory) Put(_ context.Context, b block.Block) error {
	mb.data[b.Cid()] = b
	return nil
}

func (mb *BlockStoreInMemory) Has(c cid.Cid) bool {
	_, ok := mb.data[c]
	return ok
}

func (mb *BlockStoreInMemory) Len() int {
	return len(mb.data)
}

//
// Synchronized block store wrapper.
//
type SyncBlockStore struct {
	bs ipldcbor.IpldBlockstore
	mu sync.Mutex
}

var _ ipldcbor.IpldBlockstore = (*SyncBlockStore)(nil)

func NewSyncBlockStore(bs ipldcbor.IpldBlockstore) *SyncBlockStore {
	return &SyncBlockStore{
		bs: bs,
	}
}

func NewSyncBlockStoreInMemory() *SyncBlockStore {
	return NewSyncBlockStore(NewBlockStoreInMemory())
}

func (ss *SyncBlockStore) Get(ctx context.Context, c cid.Cid) (block.Block, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.bs.Get(ctx, c)
}

func (ss *SyncBlockStore) Put(ctx context.Context, b block.Block) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.bs.Put(ctx, b)
}

//
// Metric-recording block store wrapper.
//
type MetricsBlockStore struct {
	bs         ipldcbor.IpldBlockstore
	Writes     uint64
	WriteBytes uint64
	Reads      uint64
	ReadBytes  uint64
}

var _ ipldcbor.IpldBlockstore = (*MetricsBlockStore)(nil)

func NewMetricsBlockStore(underlying ipldcbor.IpldBlockstore) *MetricsBlockStore {
	return &MetricsBlockStore{bs: underlying}
}

func (ms *MetricsBlockStore) Get(ctx context.Context, c cid.Cid) (block.Block, error) {
	atomic.AddUint64(&ms.Reads, 1)
	blk, err := ms.bs.Get(ctx, c)
	if err != nil {
		return blk, err
	}
	atomic.AddUint64(&ms.ReadBytes, uint64(len(blk.RawData())))
	return blk, nil
}

func (ms *MetricsBlockStore) Put(ctx context.Context, b block.Block) error {
	atomic.AddUint64(&ms.Writes, 1)
	atomic.AddUint64(&ms.WriteBytes, uint64(len(b.RawData())))
	return ms.bs.Put(ctx, b)
}

func (ms *MetricsBlockStore) ReadCount() uint64 {
	return atomic.LoadUint64(&ms.Reads)
}

func (ms *MetricsBlockStore) WriteCount() uint64 {
	return atomic.LoadUint64(&ms.Writes)
}

func (ms *MetricsBlockStore) ReadSize() uint64 {
	return atomic.LoadUint64(&ms.ReadBytes)
}

func (ms *MetricsBlockStore) WriteSize() uint64 {
	return atomic.LoadUint64(&ms.WriteBytes)
}

//
// Write-buffering block store.
//
// Writes are held in memory until Commit copies them to the underlying store.
// Reads see buffered blocks first. A buffer that is dropped without Commit leaves the
// underlying store untouched.
type BufferedBlockStore struct {
	base ipldcbor.IpldBlockstore

	mu  sync.RWMutex
	buf map[cid.Cid]block.Block
}

var _ ipldcbor.IpldBlockstore = (*BufferedBlockStore)(nil)

func NewBufferedBlockStore(base ipldcbor.IpldBlockstore) *BufferedBlockStore {
	return &BufferedBlockStore{
		base: base,
		buf:  make(map[cid.Cid]block.Block),
	}
}

func (bb *BufferedBlockStore) Get(ctx context.Context, c cid.Cid) (block.Block, error) {
	bb.mu.RLock()
	blk, ok := bb.buf[c]
	bb.mu.RUnlock()
	if ok {
		return blk, nil
	}
	return bb.base.Get(ctx, c)
}

func (bb *BufferedBlockStore) Put(_ context.Context, b block.Block) error {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	bb.buf[b.Cid()] = b
	return nil
}

// Number of blocks written since the last Commit or Discard.
func (bb *BufferedBlockStore) Pending() int {
	bb.mu.RLock()
	defer bb.mu.RUnlock()
	return len(bb.buf)
}

// Writes all buffered blocks to the underlying store, in CID order, and empties the buffer.
func (bb *BufferedBlockStore) Commit(ctx context.Context) error {
	bb.mu.Lock()
	defer bb.mu.Unlock()

	keys := make([]cid.Cid, 0, len(bb.buf))
	for c := range bb.buf {
		keys = append(keys, c)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].KeyString() < keys[j].KeyString()
	})
	for _, c := range keys {
		if err := bb.base.Put(ctx, bb.buf[c]); err != nil {
			return err
		}
	}
	bb.buf = make(map[cid.Cid]block.Block)
	return nil
}

// Drops all buffered blocks.
func (bb *BufferedBlockStore) Discard() {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	bb.buf = make(map[cid.Cid]block.Block)
}
