package core

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SendID identifies one (peer, file-hash, block-hash) pairing the dispersal
// planner places, per §4.7.
type SendID struct {
	Peer      PeerID
	FileHash  string
	BlockHash string
}

// SendTarget names the block a Strategy is being asked to place next.
type SendTarget struct {
	FileHash  string
	BlockHash string
}

// Strategy chooses which peer to offer the next block to, grounded 1:1 on
// original_source/src/send_strategy_impl/{random,round_robin}.rs.
type Strategy interface {
	ChooseNextPeerBlock(peers []PeerID, block SendTarget) (PeerID, error)
}

// RoundRobinStrategy cycles through peers sorted by identity, the stable
// ordering §4.7's invariant requires.
type RoundRobinStrategy struct {
	idx int
}

// ChooseNextPeerBlock returns the next peer in the sorted cycle.
func (s *RoundRobinStrategy) ChooseNextPeerBlock(peers []PeerID, _ SendTarget) (PeerID, error) {
	if len(peers) == 0 {
		return "", fmt.Errorf("round robin: %w", ErrBootstrap)
	}
	p := peers[s.idx%len(peers)]
	s.idx++
	return p, nil
}

// RandomStrategy draws uniformly with replacement from the live peer set.
type RandomStrategy struct{}

// ChooseNextPeerBlock returns a uniformly random peer from peers.
func (s *RandomStrategy) ChooseNextPeerBlock(peers []PeerID, _ SendTarget) (PeerID, error) {
	if len(peers) == 0 {
		return "", fmt.Errorf("random strategy: %w", ErrBootstrap)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(peers))))
	if err != nil {
		return "", fmt.Errorf("random strategy: %w", err)
	}
	return peers[n.Int64()], nil
}

// DispersalResult is the outcome of a successful Disperse call: the final
// placement of every block.
type DispersalResult struct {
	Placements []SendID
}

// pushAttemptFunc is the sender-side push used by Disperse, a narrower view
// of PushFunc that the runtime adapts from its block-loading path.
type pushAttemptFunc func(ctx context.Context, peer PeerID, fileHash, blockHash string) error

// Disperse drives the push protocol across peers per §4.7: phase 1 issues
// an optimistic push for every (peer, block) pairing chosen by strategy,
// bounded by a 10s timeout; phase 2 reassigns rejected blocks to peers that
// have accepted at least one block so far, until rejected is empty or no
// accepting peers remain.
func Disperse(ctx context.Context, fileHash string, blockHashes []string, strategy Strategy, peers []PeerID, push pushAttemptFunc) (DispersalResult, error) {
	runID := uuid.NewString()
	log := logrus.WithFields(logrus.Fields{"dispersal": runID, "file": fileHash})

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if len(peers) == 0 {
		return DispersalResult{}, &SendListFailed{Reason: ErrBootstrap}
	}

	livePeers := append([]PeerID(nil), peers...)
	rejected := append([]string(nil), blockHashes...)
	var placements []SendID
	accepted := make(map[PeerID]bool)

	for len(rejected) > 0 && len(livePeers) > 0 {
		var stillRejected []string
		for _, blockHash := range rejected {
			peer, err := strategy.ChooseNextPeerBlock(livePeers, SendTarget{FileHash: fileHash, BlockHash: blockHash})
			if err != nil {
				stillRejected = append(stillRejected, blockHash)
				continue
			}

			err = push(ctx, peer, fileHash, blockHash)
			if err != nil {
				log.Warnf("peer %s rejected block %s: %v", shortPeerID(peer), blockHash, err)
				livePeers = removePeer(livePeers, peer)
				stillRejected = append(stillRejected, blockHash)
				continue
			}

			accepted[peer] = true
			placements = append(placements, SendID{Peer: peer, FileHash: fileHash, BlockHash: blockHash})
		}
		rejected = stillRejected

		if len(rejected) > 0 {
			// Phase 2: restrict to peers that have accepted at least once.
			var acceptingPeers []PeerID
			for _, p := range livePeers {
				if accepted[p] {
					acceptingPeers = append(acceptingPeers, p)
				}
			}
			if len(acceptingPeers) == 0 {
				break
			}
			livePeers = acceptingPeers
		}

		select {
		case <-ctx.Done():
			return DispersalResult{Placements: placements}, &SendListFailed{Partial: placements, Reason: ctx.Err()}
		default:
		}
	}

	if len(rejected) > 0 {
		return DispersalResult{Placements: placements}, &SendListFailed{Partial: placements, Reason: ErrBudgetExhausted}
	}

	return DispersalResult{Placements: placements}, nil
}

func removePeer(peers []PeerID, target PeerID) []PeerID {
	out := peers[:0:0]
	for _, p := range peers {
		if p != target {
			out = append(out, p)
		}
	}
	return out
}
