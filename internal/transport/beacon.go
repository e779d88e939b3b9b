package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/encore/internal/protocol"
)

// Beacon posts one message to an HTTP endpoint without waiting for, or
// reporting, the outcome. There is no acknowledgement path: delivery can
// only be observed on the receiving side.
type Beacon struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewBeacon creates a beacon posting to url.
func NewBeacon(url string, logger zerolog.Logger) *Beacon {
	return &Beacon{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger.With().Str("component", "beacon").Logger(),
	}
}

// Send posts cmd in the background. The returned channel is closed once the
// attempt has finished, successfully or not; callers may wait on it for a
// bounded time before exiting.
func (b *Beacon) Send(cmd protocol.Command) <-chan struct{} {
	done := make(chan struct{})

	body, err := protocol.Encode(cmd)
	if err != nil {
		b.logger.Debug().Err(err).Msg("Failed to encode beacon")
		close(done)
		return done
	}

	go func() {
		defer close(done)
		if err := b.post(body); err != nil {
			b.logger.Debug().Err(err).Msg("Beacon not delivered")
			return
		}
		b.logger.Debug().Str("opcode", cmd.Opcode().String()).Msg("Beacon sent")
	}()

	return done
}

func (b *Beacon) post(body []byte) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post beacon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("beacon rejected: status %d", resp.StatusCode)
	}
	return nil
}
