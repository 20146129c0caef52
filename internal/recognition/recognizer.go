// internal/recognition/recognizer.go
package recognition

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/apex/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"meal-footprint/internal/metrics"
)

const DefaultMIMEType = "image/jpeg"

var ErrEmptyImage = errors.New("empty image")

// Recognizer turns a meal photo into the recognition service's text payload.
// Implementations must be safe for concurrent use.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, mimeType string) (string, error)
}

// StaticRecognizer answers every request with the same payload.
type StaticRecognizer struct {
	Payload string
}

func (s StaticRecognizer) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	return s.Payload, nil
}

// CachingRecognizer remembers payloads by image digest so the same upload is
// not sent to the service twice.
type CachingRecognizer struct {
	next  Recognizer
	cache *lru.Cache[string, string]
}

func NewCachingRecognizer(next Recognizer, size int) (*CachingRecognizer, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create recognition cache: %w", err)
	}
	return &CachingRecognizer{next: next, cache: cache}, nil
}

func (c *CachingRecognizer) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	key := cacheKey(image, mimeType)
	if payload, ok := c.cache.Get(key); ok {
		metrics.RecognitionCacheHits.Inc()
		log.WithField("digest", key[:12]).Debug("Recognition cache hit")
		return payload, nil
	}

	payload, err := c.next.Recognize(ctx, image, mimeType)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, payload)
	return payload, nil
}

func (c *CachingRecognizer) Len() int {
	return c.cache.Len()
}

func cacheKey(image []byte, mimeType string) string {
	h := sha256.New()
	h.Write([]byte(normalizeMIMEType(mimeType)))
	h.Write([]byte{0})
	h.Write(image)
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeMIMEType(mimeType string) string {
	if mimeType == "" {
		return DefaultMIMEType
	}
	return mimeType
}
