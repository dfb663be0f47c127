package domain

import "encoding/json"

// Quote is a priced route returned by the aggregator.
// Amounts are integer base units of the respective mint.
type Quote struct {
	InputMint            string      // asset paid
	OutputMint           string      // asset received
	InAmount             uint64      // exact input amount
	OutAmount            uint64      // expected output amount, always > 0
	OtherAmountThreshold uint64      // minimum output after slippage
	PriceImpactPct       string      // decimal string as returned by the aggregator
	SlippageBps          int         // tolerance the quote was priced with
	Route                []RouteStep // hops in execution order
	ContextSlot          uint64      // slot the quote was computed at

	// Raw is the aggregator payload, forwarded verbatim to the swap build call.
	Raw json.RawMessage
}

// RouteStep is one hop of a quoted route.
type RouteStep struct {
	AMMKey     string // pool address
	Label      string // venue name
	InputMint  string
	OutputMint string
	InAmount   uint64
	OutAmount  uint64
	Percent    int // share of the input routed through this hop
}

// Venues returns the route's venue labels in order.
func (q *Quote) Venues() []string {
	labels := make([]string, 0, len(q.Route))
	for _, step := range q.Route {
		labels = append(labels, step.Label)
	}
	return labels
}
