package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
)

// TestDisperseRoundRobinSplitsEvenly is §8 scenario 5: two peers known to a
// sender, dispersal of 4 blocks with RoundRobin, peers sorted by identity,
// each receives exactly 2 blocks.
func TestDisperseRoundRobinSplitsEvenly(t *testing.T) {
	peers := []PeerID{"peerB", "peerA"}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })

	blocks := []string{"b1", "b2", "b3", "b4"}

	var mu sync.Mutex
	perPeer := make(map[PeerID]int)
	push := func(ctx context.Context, peer PeerID, fileHash, blockHash string) error {
		mu.Lock()
		perPeer[peer]++
		mu.Unlock()
		return nil
	}

	result, err := Disperse(context.Background(), "filehash", blocks, &RoundRobinStrategy{}, peers, push)
	if err != nil {
		t.Fatalf("Disperse failed: %v", err)
	}
	if len(result.Placements) != len(blocks) {
		t.Fatalf("expected %d placements, got %d", len(blocks), len(result.Placements))
	}
	for _, p := range peers {
		if perPeer[p] != 2 {
			t.Fatalf("expected peer %s to receive exactly 2 blocks, got %d", p, perPeer[p])
		}
	}

	seen := make(map[string]bool)
	for _, p := range result.Placements {
		if seen[p.BlockHash] {
			t.Fatalf("block %s placed more than once", p.BlockHash)
		}
		seen[p.BlockHash] = true
	}
}

// TestDisperseRecoversFromRejection covers §4.7 phase 2: a rejecting peer is
// never offered another block in the same run, and the rejected block is
// reassigned to a peer that has already accepted at least one.
func TestDisperseRecoversFromRejection(t *testing.T) {
	peers := []PeerID{"good", "bad"}

	var mu sync.Mutex
	offeredToBad := 0
	push := func(ctx context.Context, peer PeerID, fileHash, blockHash string) error {
		mu.Lock()
		defer mu.Unlock()
		if peer == "bad" {
			offeredToBad++
			if offeredToBad > 1 {
				t.Errorf("peer 'bad' was offered a block more than once")
			}
			return fmt.Errorf("rejected")
		}
		return nil
	}

	result, err := Disperse(context.Background(), "filehash", []string{"b1", "b2"}, &RoundRobinStrategy{}, peers, push)
	if err != nil {
		t.Fatalf("Disperse failed: %v", err)
	}
	if len(result.Placements) != 2 {
		t.Fatalf("expected both blocks eventually placed, got %d", len(result.Placements))
	}
	for _, p := range result.Placements {
		if p.Peer != "good" {
			t.Fatalf("expected all blocks to land on 'good' after recovery, got %s", p.Peer)
		}
	}
}

func TestDisperseFailsWithNoPeers(t *testing.T) {
	push := func(ctx context.Context, peer PeerID, fileHash, blockHash string) error { return nil }
	_, err := Disperse(context.Background(), "filehash", []string{"b1"}, &RoundRobinStrategy{}, nil, push)
	if err == nil {
		t.Fatal("expected error when no peers are known")
	}
}

func TestDisperseFailsWhenAllPeersReject(t *testing.T) {
	peers := []PeerID{"p1", "p2"}
	push := func(ctx context.Context, peer PeerID, fileHash, blockHash string) error {
		return fmt.Errorf("always rejects")
	}
	_, err := Disperse(context.Background(), "filehash", []string{"b1"}, &RoundRobinStrategy{}, peers, push)
	if err == nil {
		t.Fatal("expected SendListFailed when every peer rejects")
	}
	if _, ok := err.(*SendListFailed); !ok {
		t.Fatalf("expected *SendListFailed, got %T", err)
	}
}
