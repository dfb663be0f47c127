// Package notify reports finished cycles to an operator.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nep7une-w/jupiter-trading-bot/internal/domain"
	"github.com/nep7une-w/jupiter-trading-bot/internal/solana"
)

// Notifier delivers a finished position.
type Notifier interface {
	NotifyPosition(ctx context.Context, p *domain.Position) error
}

// Nop discards notifications.
type Nop struct{}

// NotifyPosition implements Notifier.
func (Nop) NotifyPosition(context.Context, *domain.Position) error { return nil }

var _ Notifier = Nop{}

// Format renders a position as a short plain-text report.
func Format(p *domain.Position) string {
	var b strings.Builder

	switch p.State {
	case domain.StateClosed:
		fmt.Fprintf(&b, "CLOSED %s\n", p.Mint)
	case domain.StateFailed:
		fmt.Fprintf(&b, "FAILED %s in %s\n", p.Mint, p.FailedIn)
	default:
		fmt.Fprintf(&b, "%s %s\n", p.State, p.Mint)
	}

	if p.LamportsIn > 0 {
		fmt.Fprintf(&b, "buy: %s SOL", sol(p.LamportsIn))
		if p.TokensReceived > 0 {
			fmt.Fprintf(&b, " -> %s tokens", units(p.TokensReceived, p.TokenDecimals))
		}
		b.WriteString("\n")
	}
	if p.TokensSold > 0 {
		fmt.Fprintf(&b, "sell: %s tokens -> %s SOL\n", units(p.TokensSold, p.TokenDecimals), sol(p.LamportsOut))
		if p.LamportsIn > 0 {
			pnl := decimal.NewFromUint64(p.LamportsOut).Sub(decimal.NewFromUint64(p.LamportsIn)).Shift(-solana.NativeDecimals)
			fmt.Fprintf(&b, "pnl: %s SOL\n", pnl.String())
		}
	}
	if p.BuySignature != "" {
		fmt.Fprintf(&b, "buy tx: %s\n", p.BuySignature)
	}
	if p.SellSignature != "" {
		fmt.Fprintf(&b, "sell tx: %s\n", p.SellSignature)
	}
	if p.FailureReason != "" {
		fmt.Fprintf(&b, "reason: %s\n", p.FailureReason)
	}
	if d := p.Duration(); d > 0 {
		fmt.Fprintf(&b, "duration: %s\n", d.Round(time.Second))
	}

	return strings.TrimRight(b.String(), "\n")
}

func sol(lamports uint64) string {
	return units(lamports, solana.NativeDecimals)
}

func units(amount uint64, decimals uint8) string {
	return decimal.NewFromUint64(amount).Shift(-int32(decimals)).String()
}
