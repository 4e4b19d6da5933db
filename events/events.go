// Package events defines the change notifications emitted by the adapter and
// registry, and a channel-backed broadcaster for delivering them to
// monitoring consumers.
package events

import (
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Type string

const (
	TypeAdapterCreated      Type = "adapterCreated"
	TypeOperatorsUpdated    Type = "operatorsUpdated"
	TypeSlippageUpdated     Type = "slippageUpdated"
	TypeRewardRouteUpdated  Type = "rewardRouteUpdated"
	TypeHarvest             Type = "harvest"
	TypeEmergencyWithdrawal Type = "emergencyWithdrawal"
	TypeShutdown            Type = "shutdown"
)

// Event is the envelope broadcast to subscribers. Data is shaped by Type.
type Event struct {
	Type      Type           `json:"type"`
	Adapter   common.Address `json:"adapter,omitempty"`
	Asset     common.Address `json:"asset,omitempty"`
	Timestamp int64          `json:"timestamp"` // Unix nanoseconds at emission
	Data      any            `json:"data,omitempty"`
}

// AdapterCreated reports a new adapter instance registered for an asset.
type AdapterCreated struct {
	Pool     common.Address `json:"pool"`
	Rewarder common.Address `json:"rewarder"`
	Symbol   string         `json:"symbol,omitempty"`
}

// SlippageUpdated reports a slippage-tolerance change, in parts per
// hundred-thousand.
type SlippageUpdated struct {
	Old uint64 `json:"old"`
	New uint64 `json:"new"`
}

// RewardRouteUpdated reports an allow-list edit for the external trading
// pipeline.
type RewardRouteUpdated struct {
	From    common.Address `json:"from"`
	To      common.Address `json:"to"`
	Allowed bool           `json:"allowed"`
}

// OperatorsUpdated reports a registry operator-configuration change. Only
// future adapter instances pick it up.
type OperatorsUpdated struct {
	Management   common.Address `json:"management"`
	FeeRecipient common.Address `json:"feeRecipient"`
	Keeper       common.Address `json:"keeper"`
}

// Harvest reports the total-asset figure produced by a report cycle.
type Harvest struct {
	TotalAssets *big.Int `json:"totalAssets"`
	Idle        *big.Int `json:"idle"`
	Deployed    *big.Int `json:"deployed"`
}

// EmergencyWithdrawal reports value moved from deployed to idle outside the
// normal withdrawal path.
type EmergencyWithdrawal struct {
	Requested *big.Int `json:"requested"`
	Freed     *big.Int `json:"freed"`
}

// Sink receives emitted events. Implementations must not block.
type Sink interface {
	Emit(Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// Now stamps an event with the current emission time.
func Now(e Event) Event {
	e.Timestamp = time.Now().UnixNano()
	return e
}

// Broadcaster is a Sink that fans events into a buffered channel. Emission
// never blocks: when the buffer is full the event is dropped and counted.
type Broadcaster struct {
	ch      chan Event
	dropped atomic.Uint64
}

func NewBroadcaster(bufferSize uint) *Broadcaster {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Broadcaster{ch: make(chan Event, bufferSize)}
}

func (b *Broadcaster) Emit(e Event) {
	select {
	case b.ch <- Now(e):
	default:
		b.dropped.Add(1)
	}
}

// Events returns the read side of the broadcast channel.
func (b *Broadcaster) Events() <-chan Event {
	return b.ch
}

// Dropped reports how many events were discarded because the buffer was full.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}
