// Package ident generates the two customer-facing identifiers: the
// per-tenant short id operators say out loud, and the globally unique
// tracking code printed on receipts.
package ident

import (
	"fmt"
	"math/rand"
	"time"
)

// FirstShortID is where a tenant's short-id sequence starts.
const FirstShortID = 1001

// TrackingPrefix is the fixed prefix of every tracking code.
const TrackingPrefix = "MF-"

const trackingAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const maxCollisionRetries = 10

// NextShortID returns the next short id after the current per-tenant
// maximum. The caller must read the maximum inside the same transaction
// that inserts the order, otherwise the sequence can duplicate.
func NextShortID(currentMax int) int {
	if currentMax < FirstShortID {
		return FirstShortID
	}
	return currentMax + 1
}

// NewTrackingCode draws a fresh MF- code, retrying on collision against
// exists. After ten collisions it falls back to a timestamp-suffixed
// variant, which is unique for all practical purposes. Only a failing
// exists check surfaces as an error.
func NewTrackingCode(exists func(code string) (bool, error)) (string, error) {
	for i := 0; i < maxCollisionRetries; i++ {
		code := randomCode()
		taken, err := exists(code)
		if err != nil {
			return "", fmt.Errorf("tracking code lookup: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return timestampCode(time.Now()), nil
}

func randomCode() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = trackingAlphabet[rand.Intn(len(trackingAlphabet))]
	}
	return TrackingPrefix + string(b)
}

// timestampCode is the collision fallback: last four digits of unix time
// plus a random letter and digit keeps the MF-XXXXXX shape.
func timestampCode(now time.Time) string {
	ts := fmt.Sprintf("%d", now.Unix())
	suffix := ts[len(ts)-4:]
	letter := trackingAlphabet[rand.Intn(26)]
	digit := trackingAlphabet[26+rand.Intn(10)]
	return fmt.Sprintf("%s%s%c%c", TrackingPrefix, suffix, letter, digit)
}
