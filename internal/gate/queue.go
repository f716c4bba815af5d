package gate

import (
	"context"
	"fmt"

	"github.com/ducminhle1904/risk-engine/pkg/types"
)

// openRequest pairs a submitted intent with its reply channel.
type openRequest struct {
	intent types.TradeIntent
	market MarketSnapshot
	resp   chan openResult
}

type openResult struct {
	order     *ApprovedOrder
	rejection *Rejection
}

// Serve consumes the bounded intent queue until the context is cancelled.
// Multiple strategy goroutines submit concurrently; this single consumer is
// the serialization point for admissions.
func (g *Gate) Serve(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-g.requests:
			order, rejection := g.RequestOpen(req.intent, req.market)
			req.resp <- openResult{order: order, rejection: rejection}
		}
	}
}

// Submit enqueues a trade intent and blocks for the decision. An in-flight
// request always completes to a terminal result; cancellation only abandons
// requests still waiting for queue space.
func (g *Gate) Submit(ctx context.Context, intent types.TradeIntent, market MarketSnapshot) (*ApprovedOrder, *Rejection, error) {
	req := openRequest{intent: intent, market: market, resp: make(chan openResult, 1)}
	select {
	case g.requests <- req:
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("intent for %s not submitted: %w", intent.Symbol, ctx.Err())
	}
	res := <-req.resp
	return res.order, res.rejection, nil
}
