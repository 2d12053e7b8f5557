package core

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	maddr "github.com/multiformats/go-multiaddr"
	"github.com/multiformats/go-multihash"
)

// cidFromKey wraps a DHT provider key (a file hash) into the cid.Cid the
// go-libp2p-kad-dht API requires for Provide/FindProvidersAsync. This is
// plumbing for the DHT's own API surface, not a general content-addressing
// layer — see DESIGN.md.
func cidFromKey(key string) cid.Cid {
	sum := sha256.Sum256([]byte(key))
	mh, _ := multihash.Encode(sum[:], multihash.SHA2_256)
	return cid.NewCidV1(cid.Raw, mh)
}

// EncodingMethod names the evaluation-point selection strategy for
// EncodeFile, per spec.md §6 and original_source's commands.rs::EncodingMethod.
type EncodingMethod int

const (
	// Vandermonde assigns evaluation points 0..n-1 in order.
	Vandermonde EncodingMethod = iota
	// Random draws n distinct field elements via crypto/rand.
	Random
)

// --- Listen -----------------------------------------------------------

type cmdListen struct {
	addr  string
	reply chan error
}

func (c *cmdListen) execute(rt *Runtime) {
	a, err := maddr.NewMultiaddr(c.addr)
	if err != nil {
		c.reply <- fmt.Errorf("listen: %w", ErrBadListener)
		return
	}
	if err := rt.node.host.Network().Listen(a); err != nil {
		c.reply <- fmt.Errorf("listen: %w", ErrBadListener)
		return
	}
	rt.mu.Lock()
	id := fmt.Sprintf("listener-%d", len(rt.listeners))
	rt.listeners[id] = c.addr
	rt.mu.Unlock()
	c.reply <- nil
}

// Listen registers a new listen address and returns once bound.
func (rt *Runtime) Listen(addr string) error {
	reply := make(chan error, 1)
	rt.SendCommand(&cmdListen{addr: addr, reply: reply})
	return <-reply
}

// --- GetListeners -------------------------------------------------------

type cmdGetListeners struct {
	reply chan map[string]string
}

func (c *cmdGetListeners) execute(rt *Runtime) {
	rt.mu.Lock()
	out := make(map[string]string, len(rt.listeners))
	for k, v := range rt.listeners {
		out[k] = v
	}
	rt.mu.Unlock()
	c.reply <- out
}

// GetListeners returns the current listener id -> multiaddr table.
func (rt *Runtime) GetListeners() map[string]string {
	reply := make(chan map[string]string, 1)
	rt.SendCommand(&cmdGetListeners{reply: reply})
	return <-reply
}

// --- RemoveListener -------------------------------------------------------

type cmdRemoveListener struct {
	id    string
	reply chan error
}

func (c *cmdRemoveListener) execute(rt *Runtime) {
	rt.mu.Lock()
	_, ok := rt.listeners[c.id]
	delete(rt.listeners, c.id)
	rt.mu.Unlock()
	if !ok {
		c.reply <- fmt.Errorf("remove listener: %w", ErrListenerGone)
		return
	}

	// Resolve pending dials with ErrListenerGone rather than leaving them
	// dangling. Dial entries do not record a listener, so every entry in the
	// table is resolved, including dials through other listeners.
	rt.pending.mu.Lock()
	for addr, ch := range rt.pending.dials {
		ch <- ErrListenerGone
		delete(rt.pending.dials, addr)
	}
	rt.pending.mu.Unlock()

	c.reply <- nil
}

// RemoveListener removes a listener and resolves every entry of the pending
// dial table with ErrListenerGone; entries are not tied to a listener, so
// dials through other listeners are resolved as well.
func (rt *Runtime) RemoveListener(id string) error {
	reply := make(chan error, 1)
	rt.SendCommand(&cmdRemoveListener{id: id, reply: reply})
	return <-reply
}

// --- GetConnectedPeers -------------------------------------------------------

type cmdGetConnectedPeers struct {
	reply chan []PeerID
}

func (c *cmdGetConnectedPeers) execute(rt *Runtime) {
	c.reply <- rt.sortedPeerIDs()
}

// GetConnectedPeers returns the currently connected peers, sorted by
// identity.
func (rt *Runtime) GetConnectedPeers() []PeerID {
	reply := make(chan []PeerID, 1)
	rt.SendCommand(&cmdGetConnectedPeers{reply: reply})
	return <-reply
}

// --- DialSingle / DialMultiple -------------------------------------------------------

type cmdDial struct {
	addrs []string
	reply chan error
}

func (c *cmdDial) execute(rt *Runtime) {
	c.reply <- rt.node.DialSeed(c.addrs)
}

// DialSingle dials one peer address.
func (rt *Runtime) DialSingle(addr string) error {
	reply := make(chan error, 1)
	rt.SendCommand(&cmdDial{addrs: []string{addr}, reply: reply})
	return <-reply
}

// DialMultiple dials several peer addresses.
func (rt *Runtime) DialMultiple(addrs []string) error {
	reply := make(chan error, 1)
	rt.SendCommand(&cmdDial{addrs: addrs, reply: reply})
	return <-reply
}

// --- AddPeer -------------------------------------------------------

type cmdAddPeer struct {
	addr  string
	reply chan error
}

func (c *cmdAddPeer) execute(rt *Runtime) {
	c.reply <- rt.node.DialSeed([]string{c.addr})
}

// AddPeer registers and dials a peer multiaddr.
func (rt *Runtime) AddPeer(addr string) error {
	reply := make(chan error, 1)
	rt.SendCommand(&cmdAddPeer{addr: addr, reply: reply})
	return <-reply
}

// --- StartProvide / StopProvide / GetProviders -------------------------------------------------------

type cmdStartProvide struct {
	key   string
	reply chan error
}

func (c *cmdStartProvide) execute(rt *Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rt.kad.Store(c.key, []byte(c.key))
	err := rt.dht.Provide(ctx, cidFromKey(c.key), true)
	if err != nil {
		c.reply <- fmt.Errorf("start provide: %w", ErrProvider)
		return
	}
	c.reply <- nil
}

// StartProvide announces to the DHT that this node holds key (a file hash).
func (rt *Runtime) StartProvide(key string) error {
	reply := make(chan error, 1)
	rt.SendCommand(&cmdStartProvide{key: key, reply: reply})
	return <-reply
}

type cmdStopProvide struct {
	key   string
	reply chan error
}

func (c *cmdStopProvide) execute(rt *Runtime) {
	h := hash160([]byte(c.key))
	rt.kad.mu.Lock()
	delete(rt.kad.store, h)
	rt.kad.mu.Unlock()
	c.reply <- nil
}

// StopProvide retracts a previous provider advertisement. The underlying
// Kademlia DHT protocol does not support explicit retraction (advertisements
// simply expire), so this only clears the local content-routing mirror.
func (rt *Runtime) StopProvide(key string) error {
	reply := make(chan error, 1)
	rt.SendCommand(&cmdStopProvide{key: key, reply: reply})
	return <-reply
}

type cmdGetProviders struct {
	key   string
	reply chan []PeerID
}

func (c *cmdGetProviders) execute(rt *Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	infoCh := rt.dht.FindProvidersAsync(ctx, cidFromKey(c.key), 20)
	var out []PeerID
	for info := range infoCh {
		out = append(out, PeerID(info.ID.String()))
	}
	c.reply <- out
}

// GetProviders queries the DHT for providers of key.
func (rt *Runtime) GetProviders(key string) []PeerID {
	reply := make(chan []PeerID, 1)
	rt.SendCommand(&cmdGetProviders{key: key, reply: reply})
	return <-reply
}

// --- Bootstrap -------------------------------------------------------

type cmdBootstrap struct {
	reply chan error
}

func (c *cmdBootstrap) execute(rt *Runtime) {
	if len(rt.node.Peers()) == 0 {
		c.reply <- fmt.Errorf("bootstrap: %w", ErrBootstrap)
		return
	}
	c.reply <- rt.dht.Bootstrap(context.Background())
}

// Bootstrap primes the DHT routing table from currently known peers.
func (rt *Runtime) Bootstrap() error {
	reply := make(chan error, 1)
	rt.SendCommand(&cmdBootstrap{reply: reply})
	return <-reply
}

// --- EncodeFile -------------------------------------------------------

type cmdEncodeFile struct {
	path    string
	replace bool
	method  EncodingMethod
	k, n    int
	reply   chan encodeFileResult
}

type encodeFileResult struct {
	FileHash string
	Err      error
}

func (c *cmdEncodeFile) execute(rt *Runtime) {
	go func() {
		res := rt.doEncodeFile(c.path, c.replace, c.method, c.k, c.n)
		c.reply <- res
	}()
}

func (rt *Runtime) doEncodeFile(path string, replace bool, method EncodingMethod, k, n int) encodeFileResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return encodeFileResult{Err: fmt.Errorf("encode file: %w", err)}
	}

	var blocks []Block
	if method == Random {
		indices, err := randomDistinctIndices(n)
		if err != nil {
			return encodeFileResult{Err: fmt.Errorf("encode file: %w", err)}
		}
		blocks, err = EncodeWithIndices(data, k, indices, rt.powers)
		if err != nil {
			return encodeFileResult{Err: fmt.Errorf("encode file: %w", err)}
		}
	} else {
		var err error
		blocks, err = Encode(data, k, n, rt.powers)
		if err != nil {
			return encodeFileResult{Err: fmt.Errorf("encode file: %w", err)}
		}
	}

	if replace && len(blocks) > 0 {
		dir := filepath.Join(rt.blockDir, fmt.Sprintf("%x", blocks[0].Shard.Hash))
		os.RemoveAll(filepath.Join(dir, "blocks"))
	}

	fileHashDir := ""
	for _, b := range blocks {
		if _, err := SaveBlock(rt.blockDir, b); err != nil {
			return encodeFileResult{Err: fmt.Errorf("encode file: %w", err)}
		}
		fileHashDir = fmt.Sprintf("%x", b.Shard.Hash)
	}

	if err := rt.AnnounceFile(fileHashDir); err != nil {
		rt.log.Warnf("encode file: announce failed: %v", err)
	}

	return encodeFileResult{FileHash: fileHashDir}
}

// randomDistinctIndices draws n distinct evaluation-point candidates via
// crypto/rand, resampling on collision, per the SUPPLEMENT EncodingMethod
// decision. Bounded retries; ErrInvalidArgument if exhausted.
func randomDistinctIndices(n int) ([]uint32, error) {
	const maxAttempts = 64
	seen := make(map[uint32]bool, n)
	out := make([]uint32, 0, n)
	attempts := 0
	for len(out) < n {
		if attempts >= maxAttempts*n {
			return nil, ErrInvalidArgument
		}
		attempts++
		buf := make([]byte, 4)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("random distinct indices: %w", err)
		}
		v := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}

// EncodeFile encodes the file at path into n blocks recoverable from any k,
// writing them under the runtime's block directory.
func (rt *Runtime) EncodeFile(path string, replace bool, method EncodingMethod, k, n int) (string, error) {
	reply := make(chan encodeFileResult, 1)
	rt.SendCommand(&cmdEncodeFile{path: path, replace: replace, method: method, k: k, n: n, reply: reply})
	res := <-reply
	return res.FileHash, res.Err
}

// --- DecodeBlocks -------------------------------------------------------

type cmdDecodeBlocks struct {
	dir         string
	blockHashes []string
	out         string
	reply       chan error
}

func (c *cmdDecodeBlocks) execute(rt *Runtime) {
	go func() {
		c.reply <- rt.doDecodeBlocks(c.dir, c.blockHashes, c.out)
	}()
}

func (rt *Runtime) doDecodeBlocks(dir string, blockHashes []string, out string) error {
	shards := make([]Shard, 0, len(blockHashes))
	for _, h := range blockHashes {
		b, err := LoadBlock(filepath.Join(dir, h))
		if err != nil {
			return fmt.Errorf("decode blocks: %w", err)
		}
		shards = append(shards, b.Shard)
	}
	data, err := Decode(shards)
	if err != nil {
		return fmt.Errorf("decode blocks: %w", err)
	}
	return os.WriteFile(out, data, 0o644)
}

// DecodeBlocks reconstructs a file from a list of on-disk block hashes.
func (rt *Runtime) DecodeBlocks(dir string, blockHashes []string, out string) error {
	reply := make(chan error, 1)
	rt.SendCommand(&cmdDecodeBlocks{dir: dir, blockHashes: blockHashes, out: out, reply: reply})
	return <-reply
}

// --- GetFile -------------------------------------------------------

type cmdGetFile struct {
	fileHash string
	out      string
	k        int
	reply    chan error
}

func (c *cmdGetFile) execute(rt *Runtime) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.reply <- Retrieve(ctx, c.fileHash, c.out, c.k, rt)
	}()
}

// GetFile retrieves and reconstructs a file from the swarm by its hash.
func (rt *Runtime) GetFile(fileHash, out string, k int) error {
	reply := make(chan error, 1)
	rt.SendCommand(&cmdGetFile{fileHash: fileHash, out: out, k: k, reply: reply})
	return <-reply
}

// --- GetBlockFrom -------------------------------------------------------

type cmdGetBlockFrom struct {
	peer                PeerID
	fileHash, blockHash string
	save                bool
	reply               chan getBlockFromResult
}

type getBlockFromResult struct {
	Block Block
	Err   error
}

func (c *cmdGetBlockFrom) execute(rt *Runtime) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		reply, err := rt.fetchBlock(ctx, c.peer, c.fileHash, c.blockHash)
		if err != nil {
			c.reply <- getBlockFromResult{Err: err}
			return
		}
		var cb cborBlock
		if err := cbor.Unmarshal(reply.BlockData, &cb); err != nil {
			c.reply <- getBlockFromResult{Err: fmt.Errorf("get block from: %w", ErrSerialization)}
			return
		}
		block, err := cb.toBlock()
		if err != nil {
			c.reply <- getBlockFromResult{Err: err}
			return
		}
		if c.save {
			if _, err := SaveBlock(rt.blockDir, block); err != nil {
				c.reply <- getBlockFromResult{Err: err}
				return
			}
		}
		c.reply <- getBlockFromResult{Block: block}
	}()
}

// GetBlockFrom fetches a single block directly from a known peer.
func (rt *Runtime) GetBlockFrom(peer PeerID, fileHash, blockHash string, save bool) (Block, error) {
	reply := make(chan getBlockFromResult, 1)
	rt.SendCommand(&cmdGetBlockFrom{peer: peer, fileHash: fileHash, blockHash: blockHash, save: save, reply: reply})
	res := <-reply
	return res.Block, res.Err
}

// --- GetBlocksInfoFrom -------------------------------------------------------

type cmdGetBlocksInfoFrom struct {
	peer     PeerID
	fileHash string
	reply    chan getBlocksInfoResult
}

type getBlocksInfoResult struct {
	Info blockInfoReply
	Err  error
}

func (c *cmdGetBlocksInfoFrom) execute(rt *Runtime) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		info, err := rt.fetchBlockInfo(ctx, c.peer, c.fileHash)
		c.reply <- getBlocksInfoResult{Info: info, Err: err}
	}()
}

// GetBlocksInfoFrom queries a known peer's block list for a file.
func (rt *Runtime) GetBlocksInfoFrom(peer PeerID, fileHash string) (blockInfoReply, error) {
	reply := make(chan getBlocksInfoResult, 1)
	rt.SendCommand(&cmdGetBlocksInfoFrom{peer: peer, fileHash: fileHash, reply: reply})
	res := <-reply
	return res.Info, res.Err
}

// --- GetBlockList -------------------------------------------------------

type cmdGetBlockList struct {
	fileHash string
	reply    chan []string
}

func (c *cmdGetBlockList) execute(rt *Runtime) {
	dir := filepath.Join(rt.blockDir, c.fileHash, "blocks")
	entries, err := os.ReadDir(dir)
	if err != nil {
		c.reply <- nil
		return
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, e.Name())
		}
	}
	c.reply <- out
}

// GetBlockList lists locally held block hashes for a file.
func (rt *Runtime) GetBlockList(fileHash string) []string {
	reply := make(chan []string, 1)
	rt.SendCommand(&cmdGetBlockList{fileHash: fileHash, reply: reply})
	return <-reply
}

// --- SendBlockTo -------------------------------------------------------

type cmdSendBlockTo struct {
	peer                PeerID
	fileHash, blockHash string
	reply               chan error
}

func (c *cmdSendBlockTo) execute(rt *Runtime) {
	sendID := string(c.peer) + "/" + c.blockHash
	rt.pending.mu.Lock()
	if rt.pending.inFlightPush[sendID] {
		rt.pending.mu.Unlock()
		c.reply <- &SendBlockToAlreadyStarted{SendID: sendID}
		return
	}
	rt.pending.inFlightPush[sendID] = true
	rt.pending.mu.Unlock()

	go func() {
		defer func() {
			rt.pending.mu.Lock()
			delete(rt.pending.inFlightPush, sendID)
			rt.pending.mu.Unlock()
		}()

		block, err := LoadBlock(filepath.Join(rt.blockDir, c.fileHash, "blocks", c.blockHash))
		if err != nil {
			c.reply <- err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.reply <- rt.sendBlockTo(ctx, c.peer, c.fileHash, c.blockHash, block)
	}()
}

// SendBlockTo pushes a single block to a peer, subject to idempotence:
// concurrent duplicate pushes for the same (peer, block-hash) fail with
// SendBlockToAlreadyStarted.
func (rt *Runtime) SendBlockTo(peer PeerID, fileHash, blockHash string) error {
	reply := make(chan error, 1)
	rt.SendCommand(&cmdSendBlockTo{peer: peer, fileHash: fileHash, blockHash: blockHash, reply: reply})
	return <-reply
}

// --- SendBlockList -------------------------------------------------------

type cmdSendBlockList struct {
	strategy    Strategy
	fileHash    string
	blockHashes []string
	reply       chan sendBlockListResult
}

type sendBlockListResult struct {
	Result DispersalResult
	Err    error
}

func (c *cmdSendBlockList) execute(rt *Runtime) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		peers := rt.sortedPeerIDs()
		res, err := Disperse(ctx, c.fileHash, c.blockHashes, c.strategy, peers, rt.pushForDispersal)
		c.reply <- sendBlockListResult{Result: res, Err: err}
	}()
}

// pushForDispersal adapts the runtime's block-loading + push path to the
// dispersal planner's pushAttemptFunc signature.
func (rt *Runtime) pushForDispersal(ctx context.Context, peer PeerID, fileHash, blockHash string) error {
	block, err := LoadBlock(filepath.Join(rt.blockDir, fileHash, "blocks", blockHash))
	if err != nil {
		return err
	}
	return rt.sendBlockTo(ctx, peer, fileHash, blockHash, block)
}

// SendBlockList drives the dispersal planner across known peers.
func (rt *Runtime) SendBlockList(strategy Strategy, fileHash string, blockHashes []string) (DispersalResult, error) {
	reply := make(chan sendBlockListResult, 1)
	rt.SendCommand(&cmdSendBlockList{strategy: strategy, fileHash: fileHash, blockHashes: blockHashes, reply: reply})
	res := <-reply
	return res.Result, res.Err
}

// --- GetAvailableStorage / ChangeAvailableSendStorage -------------------------------------------------------

type cmdGetAvailableStorage struct {
	reply chan int64
}

func (c *cmdGetAvailableStorage) execute(rt *Runtime) {
	c.reply <- rt.budget.Available()
}

// GetAvailableStorage returns the current accept budget.
func (rt *Runtime) GetAvailableStorage() int64 {
	reply := make(chan int64, 1)
	rt.SendCommand(&cmdGetAvailableStorage{reply: reply})
	return <-reply
}

type cmdChangeAvailableSendStorage struct {
	newBudget int64
	reply     chan bool
}

func (c *cmdChangeAvailableSendStorage) execute(rt *Runtime) {
	c.reply <- rt.budget.SetBudget(c.newBudget)
}

// ChangeAvailableSendStorage resizes the storage budget, returning whether
// future pushes will be accepted at all (§4.9 "Budget resize").
func (rt *Runtime) ChangeAvailableSendStorage(newBudget int64) bool {
	reply := make(chan bool, 1)
	rt.SendCommand(&cmdChangeAvailableSendStorage{newBudget: newBudget, reply: reply})
	return <-reply
}

// --- NodeInfo -------------------------------------------------------

// NodeInfoResult is the reply payload for the NodeInfo command.
type NodeInfoResult struct {
	PeerID          PeerID
	ConnectedPeers  int
	AvailableBudget int64
	OnDiskBudget    int64
}

type cmdNodeInfo struct {
	reply chan NodeInfoResult
}

func (c *cmdNodeInfo) execute(rt *Runtime) {
	c.reply <- NodeInfoResult{
		PeerID:          PeerID(rt.node.ID()),
		ConnectedPeers:  len(rt.node.Peers()),
		AvailableBudget: rt.budget.Available(),
		OnDiskBudget:    rt.budget.OnDisk(),
	}
}

// NodeInfo reports a snapshot of the runtime's identity, connectivity and
// budget state.
func (rt *Runtime) NodeInfo() NodeInfoResult {
	reply := make(chan NodeInfoResult, 1)
	rt.SendCommand(&cmdNodeInfo{reply: reply})
	return <-reply
}
