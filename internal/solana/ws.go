package solana

import "context"

// SignatureSubscriber defines the Solana WebSocket signature subscription interface.
type SignatureSubscriber interface {
	// SubscribeSignature delivers at most one notification when signature reaches
	// the subscription commitment. The channel is closed afterwards.
	SubscribeSignature(ctx context.Context, signature string) (<-chan SignatureNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification represents a signatureNotification message.
type SignatureNotification struct {
	Signature string
	Slot      int64
	Err       interface{}
}
