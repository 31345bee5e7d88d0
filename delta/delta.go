// Package delta defines the normalized order-book event record every feed
// adapter emits, and its wire encodings: the tick-store text record and the
// pub/sub JSON envelope.
package delta

import "fmt"

// Event bitfield: side XOR kind.
const (
	Insert byte = 1 << iota
	Remove
	Update
	Trade
	Ask
	Bid
)

// Event combines a side bit and a kind bit into the wire event byte.
func Event(side, kind byte) byte {
	return side ^ kind
}

// Delta is one normalized order-book tick.
type Delta struct {
	Symbol string  `json:"symbol"`
	Price  float32 `json:"price"`
	Size   float32 `json:"size"`
	Seq    uint64  `json:"seq"`
	Event  byte    `json:"event"`
	TS     float64 `json:"ts"`
}

// IsTrade reports whether the delta's event carries the Trade bit.
func (d Delta) IsTrade() bool {
	return d.Event&Trade == Trade
}

// IsBid reports whether the delta's event carries the Bid bit.
func (d Delta) IsBid() bool {
	return d.Event&Bid == Bid
}

// IsRemove reports whether the delta's event carries the Remove bit, or is
// a zero-size update (both mean "cancel this level").
func (d Delta) IsRemove() bool {
	return d.Event&Remove == Remove || d.Size == 0
}

func boolFlag(b bool) string {
	if b {
		return "t"
	}
	return "f"
}

// Record renders the tick-store wire format for one delta:
// "{ts:.3}, {seq}, {is_trade}, {is_bid}, {price}, {size};\n"
func (d Delta) Record() string {
	return fmt.Sprintf("%.3f, %d, %s, %s, %g, %g;\n",
		d.TS, d.Seq, boolFlag(d.IsTrade()), boolFlag(d.IsBid()), d.Price, d.Size)
}
