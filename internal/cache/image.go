package cache

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/encore/internal/protocol"
	"github.com/jfmyers9/encore/internal/store"
)

// Requester sends a command to the server and reports whether it went out.
type Requester interface {
	Send(cmd protocol.Command) bool
}

// Images is a two-tier artwork cache: an LRU in memory in front of a
// persistent store. Misses ask the server for the image once per URL until
// it arrives.
type Images struct {
	mem     *lru.Cache[string, []byte]
	disk    store.Images
	req     Requester
	pending map[string]struct{}
	logger  zerolog.Logger
}

// NewImages creates an image cache holding up to size entries in memory.
// disk may be nil.
func NewImages(size int, disk store.Images, logger zerolog.Logger) (*Images, error) {
	if size <= 0 {
		size = 1
	}
	mem, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}
	return &Images{
		mem:     mem,
		disk:    disk,
		pending: map[string]struct{}{},
		logger:  logger.With().Str("component", "images").Logger(),
	}, nil
}

// SetRequester sets where image requests are sent.
func (c *Images) SetRequester(r Requester) {
	c.req = r
}

// Get returns the image for url. On a miss in both tiers the image is
// requested from the server and Get reports false; a later Fill makes it
// available.
func (c *Images) Get(ctx context.Context, url string) ([]byte, bool) {
	if url == "" {
		return nil, false
	}

	if data, ok := c.mem.Get(url); ok {
		return data, true
	}

	if c.disk != nil {
		data, err := c.disk.GetImage(ctx, url)
		switch {
		case err == nil:
			c.mem.Add(url, data)
			return data, true
		case !errors.Is(err, store.ErrNotFound):
			c.logger.Warn().Err(err).Str("url", url).Msg("Failed to read stored image")
		}
	}

	c.request(url)
	return nil, false
}

func (c *Images) request(url string) {
	if _, ok := c.pending[url]; ok {
		return
	}
	if c.req == nil {
		return
	}
	if c.req.Send(protocol.RequestImage{URL: url}) {
		c.pending[url] = struct{}{}
	}
}

// Fill stores an image delivered by the server. payload is base64, either
// bare or as a data URI.
func (c *Images) Fill(ctx context.Context, url, payload string) {
	if url == "" || payload == "" {
		return
	}
	delete(c.pending, url)

	data, err := decodeImage(payload)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", url).Msg("Dropping undecodable image")
		return
	}

	if c.disk != nil {
		if err := c.disk.PutImage(ctx, url, data); err != nil {
			c.logger.Warn().Err(err).Str("url", url).Msg("Failed to store image")
		}
	}
	c.mem.Add(url, data)
}

// Pending reports whether url has been requested and not yet delivered.
func (c *Images) Pending(url string) bool {
	_, ok := c.pending[url]
	return ok
}

func decodeImage(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		i := strings.Index(payload, ",")
		if i < 0 || !strings.HasSuffix(payload[:i], ";base64") {
			return nil, errors.New("unsupported data uri")
		}
		payload = payload[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return data, nil
}
