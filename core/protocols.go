package core

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"golang.org/x/sync/semaphore"
)

// decodePeerID parses a base58 peer identity string into a libp2p peer.ID.
func decodePeerID(id PeerID) (peer.ID, error) {
	pid, err := peer.Decode(string(id))
	if err != nil {
		return "", fmt.Errorf("decode peer id: %w", ErrInvalidArgument)
	}
	return pid, nil
}

// PeerID is a stable base58 string derived from a long-term keypair, per
// §3's "Peer identity".
type PeerID string

const (
	protocolBlockInfo = protocol.ID("/block-info/1")
	protocolBlock     = protocol.ID("/block/1")
	protocolSendBlock = protocol.ID("/send-block/1.0.0")

	// blockResponseCap enforces §4.5's 500 MiB response size limit.
	blockResponseCap = 500 << 20
	// pushInfoCap enforces §4.6 step 1's 1024-byte PeerBlockInfo cap.
	pushInfoCap = 1024
	// pushConcurrency is the default concurrency cap on accepted inbound
	// pushes (§4.6 "Concurrency limit").
	pushConcurrency = 10
)

// Push status byte codes, per §4.6.
const (
	pushAccept         byte = 0
	pushReject         byte = 1
	pushBlockCorrect   byte = 2
	pushBlockIncorrect byte = 3
)

type blockInfoRequest struct {
	FileHash string `cbor:"file_hash"`
}

type blockInfoReply struct {
	PeerIDBase58 string   `cbor:"peer_id_base_58"`
	FileHash     string   `cbor:"file_hash"`
	BlockHashes  []string `cbor:"block_hashes"`
	BlockSizes   []int64  `cbor:"block_sizes,omitempty"`
}

type blockRequest struct {
	FileHash  string `cbor:"file_hash"`
	BlockHash string `cbor:"block_hash"`
}

type blockReply struct {
	FileHash  string `cbor:"file_hash"`
	BlockHash string `cbor:"block_hash"`
	BlockData []byte `cbor:"block_data"`
}

// PeerBlockInfo is the JSON payload exchanged in step 1 of the push
// protocol (§4.6), grounded closely on
// original_source/src/send_block_to/protocol.rs.
type PeerBlockInfo struct {
	FileHash   string  `json:"file_hash"`
	BlockHash  string  `json:"block_hash"`
	BlockSizes []int64 `json:"block_sizes"`
}

// registerProtocols wires the three protocol handlers onto the runtime's
// libp2p host. Called once from the runtime's startup path.
func (rt *Runtime) registerProtocols() {
	sem := semaphore.NewWeighted(pushConcurrency)

	rt.node.host.SetStreamHandler(protocolBlockInfo, rt.handleBlockInfo)
	rt.node.host.SetStreamHandler(protocolBlock, rt.handleBlock)
	rt.node.host.SetStreamHandler(protocolSendBlock, func(s network.Stream) {
		rt.handleSendBlock(s, sem)
	})
}

func (rt *Runtime) handleBlockInfo(s network.Stream) {
	defer s.Close()

	var req blockInfoRequest
	dec := cbor.NewDecoder(io.LimitReader(s, pushInfoCap))
	if err := dec.Decode(&req); err != nil {
		rt.log.Warnf("block-info: bad request: %v", err)
		return
	}

	dir := filepath.Join(rt.blockDir, req.FileHash, "blocks")
	entries, err := os.ReadDir(dir)
	if err != nil {
		rt.log.Warnf("block-info: no blocks for %s: %v", req.FileHash, err)
		return
	}

	reply := blockInfoReply{
		PeerIDBase58: string(rt.node.ID()),
		FileHash:     req.FileHash,
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		reply.BlockHashes = append(reply.BlockHashes, e.Name())
		if info, err := e.Info(); err == nil {
			reply.BlockSizes = append(reply.BlockSizes, info.Size())
		}
	}

	enc := cbor.NewEncoder(s)
	if err := enc.Encode(reply); err != nil {
		rt.log.Warnf("block-info: failed to reply: %v", err)
	}
}

func (rt *Runtime) handleBlock(s network.Stream) {
	defer s.Close()

	var req blockRequest
	dec := cbor.NewDecoder(io.LimitReader(s, 4096))
	if err := dec.Decode(&req); err != nil {
		rt.log.Warnf("block: bad request: %v", err)
		return
	}

	path := filepath.Join(rt.blockDir, req.FileHash, "blocks", req.BlockHash)
	data, err := os.ReadFile(path)
	if err != nil {
		rt.log.Warnf("block: missing %s/%s: %v", req.FileHash, req.BlockHash, err)
		return
	}

	reply := blockReply{FileHash: req.FileHash, BlockHash: req.BlockHash, BlockData: data}
	enc := cbor.NewEncoder(s)
	if err := enc.Encode(reply); err != nil {
		rt.log.Warnf("block: failed to reply: %v", err)
	}
}

// handleSendBlock implements the receiver side of §4.6's six-step exchange.
func (rt *Runtime) handleSendBlock(s network.Stream, sem *semaphore.Weighted) {
	defer s.Close()

	ctx := context.Background()
	if !sem.TryAcquire(1) {
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
	}
	defer sem.Release(1)

	var lenBuf [8]byte
	if _, err := io.ReadFull(s, lenBuf[:]); err != nil {
		return
	}
	length := binary.BigEndian.Uint64(lenBuf[:])
	if length > pushInfoCap {
		rt.log.Warn("send-block: PeerBlockInfo exceeds cap, closing")
		return
	}

	infoBytes := make([]byte, length)
	if _, err := io.ReadFull(s, infoBytes); err != nil {
		return
	}
	var info PeerBlockInfo
	if err := json.Unmarshal(infoBytes, &info); err != nil {
		return
	}
	if len(info.BlockSizes) == 0 {
		return
	}
	sz := info.BlockSizes[0]

	if !rt.budget.TryAccept(sz) {
		s.Write([]byte{pushReject})
		return
	}

	if _, err := s.Write([]byte{pushAccept}); err != nil {
		rt.budget.Release(sz)
		return
	}

	blockBytes := make([]byte, sz)
	if _, err := io.ReadFull(s, blockBytes); err != nil {
		rt.budget.Release(sz)
		return
	}

	var cb cborBlock
	if err := cbor.Unmarshal(blockBytes, &cb); err != nil {
		s.Write([]byte{pushBlockIncorrect})
		rt.budget.Release(sz)
		return
	}
	block, err := cb.toBlock()
	if err != nil {
		s.Write([]byte{pushBlockIncorrect})
		rt.budget.Release(sz)
		return
	}

	ok, err := Verify(block, rt.powers)
	if err != nil || !ok {
		s.Write([]byte{pushBlockIncorrect})
		rt.budget.Release(sz)
		return
	}

	hashHex, err := SaveBlock(rt.blockDir, block)
	if err != nil {
		s.Write([]byte{pushBlockIncorrect})
		rt.budget.Release(sz)
		return
	}

	peerID := s.Conn().RemotePeer().String()
	rt.ledger.Append(LedgerEntry{
		Size:      sz,
		Timestamp: time.Now(),
		FileHash:  info.FileHash,
		BlockHash: hashHex,
		PeerID:    peerID,
	})

	s.Write([]byte{pushBlockCorrect})
}

// PushFunc is the sender-side push shape that takes the already-loaded
// block, as sendBlockTo does: issue a send-block-to push of block blockHash
// of file fileHash to peer, returning nil if the receiver reported it
// correct. Disperse takes the narrower pushAttemptFunc instead.
type PushFunc func(ctx context.Context, peer PeerID, fileHash, blockHash string, block Block) error

// sendBlockTo is the sender side of §4.6, issuing one push transfer on a
// fresh bidirectional stream.
func (rt *Runtime) sendBlockTo(ctx context.Context, peerID PeerID, fileHash, blockHash string, block Block) error {
	cb, err := block.toCBOR()
	if err != nil {
		return &SendBlockToError{SendID: string(peerID) + "/" + blockHash, Reason: err}
	}
	data, err := cbor.Marshal(cb)
	if err != nil {
		return &SendBlockToError{SendID: string(peerID) + "/" + blockHash, Reason: ErrSerialization}
	}

	info := PeerBlockInfo{
		FileHash:   fileHash,
		BlockHash:  blockHash,
		BlockSizes: []int64{int64(len(data))},
	}
	infoBytes, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("send block to: %w", ErrSerialization)
	}
	if len(infoBytes) > pushInfoCap {
		return fmt.Errorf("send block to: %w", ErrInvalidArgument)
	}

	pid, err := decodePeerID(peerID)
	if err != nil {
		return fmt.Errorf("send block to: %w", err)
	}

	s, err := rt.node.host.NewStream(ctx, pid, protocolSendBlock)
	if err != nil {
		return &SendBlockToError{SendID: string(peerID) + "/" + blockHash, Reason: err}
	}
	defer s.Close()

	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(infoBytes)))
	if _, err := s.Write(lenBuf[:]); err != nil {
		return &SendBlockToError{SendID: string(peerID) + "/" + blockHash, Reason: err}
	}
	if _, err := s.Write(infoBytes); err != nil {
		return &SendBlockToError{SendID: string(peerID) + "/" + blockHash, Reason: err}
	}

	var status [1]byte
	if _, err := io.ReadFull(s, status[:]); err != nil {
		return &SendBlockToError{SendID: string(peerID) + "/" + blockHash, Reason: err}
	}
	if status[0] == pushReject {
		return &SendBlockToError{SendID: string(peerID) + "/" + blockHash, Reason: ErrBudgetExhausted}
	}
	if status[0] != pushAccept {
		return &SendBlockToError{SendID: string(peerID) + "/" + blockHash, Reason: ErrSerialization}
	}

	if _, err := s.Write(data); err != nil {
		return &SendBlockToError{SendID: string(peerID) + "/" + blockHash, Reason: err}
	}

	if _, err := io.ReadFull(s, status[:]); err != nil {
		return &SendBlockToError{SendID: string(peerID) + "/" + blockHash, Reason: err}
	}
	switch status[0] {
	case pushBlockCorrect:
		return nil
	case pushBlockIncorrect:
		return &SendBlockToError{SendID: string(peerID) + "/" + blockHash, Reason: ErrBlockVerification}
	default:
		return &SendBlockToError{SendID: string(peerID) + "/" + blockHash, Reason: ErrSerialization}
	}
}

// fetchBlockInfo issues /block-info/1 against peer for fileHash.
func (rt *Runtime) fetchBlockInfo(ctx context.Context, peerID PeerID, fileHash string) (blockInfoReply, error) {
	pid, err := decodePeerID(peerID)
	if err != nil {
		return blockInfoReply{}, err
	}
	s, err := rt.node.host.NewStream(ctx, pid, protocolBlockInfo)
	if err != nil {
		return blockInfoReply{}, fmt.Errorf("fetch block info: %w", ErrProvider)
	}
	defer s.Close()

	enc := cbor.NewEncoder(s)
	if err := enc.Encode(blockInfoRequest{FileHash: fileHash}); err != nil {
		return blockInfoReply{}, fmt.Errorf("fetch block info: %w", ErrSerialization)
	}

	var reply blockInfoReply
	dec := cbor.NewDecoder(io.LimitReader(s, blockResponseCap))
	if err := dec.Decode(&reply); err != nil {
		return blockInfoReply{}, fmt.Errorf("fetch block info: %w", ErrProvider)
	}
	return reply, nil
}

// fetchBlock issues /block/1 against peer for the given file/block hash.
func (rt *Runtime) fetchBlock(ctx context.Context, peerID PeerID, fileHash, blockHash string) (blockReply, error) {
	pid, err := decodePeerID(peerID)
	if err != nil {
		return blockReply{}, err
	}
	s, err := rt.node.host.NewStream(ctx, pid, protocolBlock)
	if err != nil {
		return blockReply{}, fmt.Errorf("fetch block: %w", ErrBlockMissing)
	}
	defer s.Close()

	enc := cbor.NewEncoder(s)
	if err := enc.Encode(blockRequest{FileHash: fileHash, BlockHash: blockHash}); err != nil {
		return blockReply{}, fmt.Errorf("fetch block: %w", ErrSerialization)
	}

	var reply blockReply
	dec := cbor.NewDecoder(io.LimitReader(s, blockResponseCap))
	if err := dec.Decode(&reply); err != nil {
		return blockReply{}, fmt.Errorf("fetch block: %w", ErrBlockMissing)
	}
	return reply, nil
}
