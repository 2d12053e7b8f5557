package core

import (
	"context"
	"fmt"
	"sort"
	"sync"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
)

// RuntimeConfig bundles the knobs the peer runtime needs at construction
// time: the transport Config from common_structs.go plus the coding and
// storage settings the block/budget/ledger layers need.
type RuntimeConfig struct {
	Network    Config
	BlockDir   string
	LedgerPath string
	Budget     int64
	Powers     *Powers
}

// runtimeCommand is the small interface every runtime command implements:
// one struct type per command rather than a tagged union, matching the
// style of the other request/response types in core/common_structs.go.
type runtimeCommand interface {
	execute(rt *Runtime)
}

// Runtime is the single owner of swarm state described in §4.4: a
// single-threaded loop that drains commands one at a time, offloading long
// work to detached goroutines that talk back only through reply channels.
// Inbound protocol streams are not routed through this loop; the handlers
// registered on the libp2p host run on the host's own goroutines.
type Runtime struct {
	node   *Node
	dht    *dht.IpfsDHT
	kad    *Kademlia // local content-routing mirror written by StartProvide/StopProvide
	budget *BudgetManager
	ledger *Ledger
	powers *Powers

	blockDir string

	commands chan runtimeCommand

	mu        sync.Mutex
	listeners map[string]string // listener id -> multiaddr
	pending   *pendingTables

	log *logrus.Entry
}

// pendingTables holds the "exactly one producer, exactly one consumer"
// tables of §4.4: dial, start-provide, providers, block-info, block, and
// in-flight push requests.
type pendingTables struct {
	mu sync.Mutex

	dials        map[string]chan error
	provides     map[string]chan error
	providers    map[string]chan []string
	blockInfo    map[string]chan blockInfoReply
	blockFetch   map[string]chan blockReply
	inFlightPush map[string]bool
}

func newPendingTables() *pendingTables {
	return &pendingTables{
		dials:        make(map[string]chan error),
		provides:     make(map[string]chan error),
		providers:    make(map[string]chan []string),
		blockInfo:    make(map[string]chan blockInfoReply),
		blockFetch:   make(map[string]chan blockReply),
		inFlightPush: make(map[string]bool),
	}
}

// NewRuntime constructs a Runtime from the given configuration. It starts
// the underlying libp2p node, DHT, budget manager and ledger, but does not
// start the Run loop.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	node, err := NewNode(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("new runtime: %w", err)
	}

	kadDHT, err := dht.New(context.Background(), node.host)
	if err != nil {
		node.Close()
		return nil, fmt.Errorf("new runtime: creating dht: %w", err)
	}

	bm, err := NewBudgetManager(cfg.LedgerPath, cfg.Budget)
	if err != nil {
		node.Close()
		return nil, fmt.Errorf("new runtime: %w", err)
	}

	ledger, err := NewLedger(cfg.LedgerPath)
	if err != nil {
		node.Close()
		return nil, fmt.Errorf("new runtime: %w", err)
	}

	rt := &Runtime{
		node:      node,
		dht:       kadDHT,
		kad:       NewKademlia(node.ID()),
		budget:    bm,
		ledger:    ledger,
		powers:    cfg.Powers,
		blockDir:  cfg.BlockDir,
		commands:  make(chan runtimeCommand, 256),
		listeners: make(map[string]string),
		pending:   newPendingTables(),
		log:       logrus.WithField("component", "runtime"),
	}
	rt.registerProtocols()
	return rt, nil
}

// SendCommand enqueues a command for the runtime loop to execute. It never
// blocks on execution, only on channel capacity.
func (rt *Runtime) SendCommand(cmd runtimeCommand) {
	rt.commands <- cmd
}

// Run is the single-threaded loop of §4.4: it executes one command at a
// time from the command channel until ctx is cancelled. It does not read
// swarm events; inbound streams are served by the protocol handlers that
// registerProtocols installs on the host.
func (rt *Runtime) Run(ctx context.Context) {
	rt.log.Info("runtime loop starting")
	for {
		select {
		case <-ctx.Done():
			rt.log.Info("runtime loop shutting down")
			return
		default:
		}

		select {
		case <-ctx.Done():
			rt.log.Info("runtime loop shutting down")
			return
		case cmd := <-rt.commands:
			cmd.execute(rt)
		default:
			select {
			case <-ctx.Done():
				return
			case cmd := <-rt.commands:
				cmd.execute(rt)
			}
		}
	}
}

// AnnounceFile gossips a pubsub announcement that a new file has been
// locally encoded, so already-connected peers can opportunistically
// StartProvide without waiting on a future dial. Not required by any
// spec.md operation; a convenience layered on top of the broadcast/subscribe
// pair already present in core/network.go.
func (rt *Runtime) AnnounceFile(fileHash string) error {
	return rt.node.Broadcast("dragoonfly/file-announce/1", []byte(fileHash))
}

// sortedPeerIDs returns the runtime's known peers sorted by identity, the
// stable ordering the dispersal planner's RoundRobin strategy requires
// (§4.7 invariant).
func (rt *Runtime) sortedPeerIDs() []PeerID {
	peers := rt.node.Peers()
	ids := make([]PeerID, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, PeerID(p.ID))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// shortPeerID re-encodes the first few bytes of a base58 peer identity for
// compact log correlation, exercising the mr-tron/base58 codec directly
// rather than going through libp2p's peer.ID wrapper.
func shortPeerID(id PeerID) string {
	raw, err := base58.Decode(string(id))
	if err != nil || len(raw) < 6 {
		return string(id)
	}
	return base58.Encode(raw[:6])
}
