package core

// common_structs.go – centralised struct definitions shared across the
// networking layer, kept in a file separate from network.go.

import (
	"context"
	"sync"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	host "github.com/libp2p/go-libp2p/core/host"
)

// NodeID is the string form of a libp2p peer ID.
type NodeID string

// Peer describes a remote node this process has dialed or been dialed by.
// Latency is refreshed from the host's peerstore (an EWMA libp2p's identify
// protocol maintains from ping/stream RTTs) whenever the peer table is read;
// there is no Conn field because libp2p multiplexes many streams per peer
// over its own network.Conn abstraction, not a single net.Conn.
type Peer struct {
	ID      NodeID
	Addr    string
	Latency time.Duration
}

// Message is a decoded gossipsub message delivered to a topic subscriber.
type Message struct {
	From  NodeID
	Topic string
	Data  []byte
}

// Config carries the settings needed to stand up a Node.
type Config struct {
	ListenAddr     string
	BootstrapPeers []string
	DiscoveryTag   string
}

// Node wraps a libp2p host and gossipsub router. It is the low-level
// transport the peer runtime drives; command handling, protocol streams
// and planners live a layer above it.
type Node struct {
	host      host.Host
	pubsub    *pubsub.PubSub
	topics    map[string]*pubsub.Topic
	subs      map[string]*pubsub.Subscription
	topicLock sync.RWMutex
	subLock   sync.RWMutex
	peerLock  sync.RWMutex
	peers     map[NodeID]*Peer
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       Config
}

