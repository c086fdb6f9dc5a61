package payment

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Receiver authenticates incoming webhook deliveries. Simulated deliveries
// (X-Test-Mode: true) skip signature checks, but only while the process
// itself runs in test mode.
type Receiver struct {
	testMode bool
	verifier SignatureVerifier
}

// NewReceiver: verifier == nil значит, что webhook secret не задан.
func NewReceiver(testMode bool, verifier SignatureVerifier) *Receiver {
	return &Receiver{testMode: testMode, verifier: verifier}
}

func (r *Receiver) Receive(payload []byte, signature string, simulated bool) (*Event, error) {
	if simulated {
		if r.testMode {
			return parseSimulated(payload)
		}
		log.Warn().Msg("payment: simulated webhook header ignored outside test mode")
	}

	if signature == "" {
		return nil, ErrMissingSignature
	}
	if r.verifier == nil {
		log.Error().Msg("payment: webhook received but STRIPE_WEBHOOK_SECRET is not set")
		return nil, ErrGatewayNotConfigured
	}

	ev, err := r.verifier.Verify(payload, signature)
	if err != nil {
		log.Warn().Err(err).Msg("payment: webhook signature rejected")
		return nil, err
	}
	return ev, nil
}

func parseSimulated(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	ev.Simulated = true
	return &ev, nil
}
