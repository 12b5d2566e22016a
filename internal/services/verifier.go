package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"chartsense/backend-go/internal/models"
)

const (
	reasonSkippedTraffic = "Verification skipped due to high traffic."
	reasonUnavailable    = "Validation service unavailable, proceeding."

	reasonClosedTraffic     = "Verification unavailable due to high traffic. Please try again shortly."
	reasonClosedUnavailable = "Validation service unavailable. Please try again."
)

// Gate decides whether an uploaded image belongs in the slot it targets.
// It is advisory: when the model cannot answer, the gate degrades open
// unless failClosed is set.
type Gate struct {
	model      Model
	cache      Cache
	ttl        time.Duration
	failClosed bool
}

func NewGate(model Model, cache Cache, ttl time.Duration, failClosed bool) *Gate {
	return &Gate{model: model, cache: cache, ttl: ttl, failClosed: failClosed}
}

// Verify returns the verdict and whether it came from a degraded path.
func (g *Gate) Verify(ctx context.Context, img models.UploadedImage, expected models.Timeframe) (models.Verification, bool) {
	key := verifyCacheKey(expected, img.Data)
	if g.cache != nil {
		if b, ok := g.cache.Get(ctx, key); ok {
			var cached models.Verification
			if err := UnmarshalCache(b, &cached); err == nil {
				return cached, false
			}
		}
	}

	v, err := g.model.Verify(ctx, ImageData{Data: img.Data, MediaType: img.MediaType}, expected)
	if err != nil {
		err = ClassifyModelError(err)
		log.Printf("[WARN] chart verification for %s failed: %v", expected, err)
		if IsQuota(err) {
			return g.degraded(reasonSkippedTraffic, reasonClosedTraffic), true
		}
		return g.degraded(reasonUnavailable, reasonClosedUnavailable), true
	}

	if g.cache != nil {
		if b, err := MarshalCache(v); err == nil {
			_ = g.cache.Set(ctx, key, b, g.ttl)
		}
	}
	return v, false
}

func (g *Gate) degraded(openReason, closedReason string) models.Verification {
	if g.failClosed {
		return models.Verification{IsValid: false, Reason: closedReason}
	}
	return models.Verification{IsValid: true, Reason: openReason}
}

func verifyCacheKey(tf models.Timeframe, data string) string {
	sum := sha1.Sum([]byte(data))
	return fmt.Sprintf("verify:v1:%s:%s", tf, hex.EncodeToString(sum[:]))
}
