package cache

import (
	"golang.org/x/sync/singleflight"

	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

// flightGroup coalesces concurrent pipeline executions for the same
// fingerprint (§4.1 Concurrency, §4.5 step 2, §8 property 5): at most one
// execution per fingerprint runs; latecomers await its result.
type flightGroup struct {
	group singleflight.Group
}

func newFlightGroup() *flightGroup {
	return &flightGroup{}
}

// Do runs fn for key if no call for key is in flight, or waits for and
// shares the result of the in-flight call otherwise.
func (f *flightGroup) Do(key string, fn func() (types.Answer, error)) (types.Answer, error, bool) {
	v, err, shared := f.group.Do(key, func() (any, error) {
		return fn()
	})
	if v == nil {
		return types.Answer{}, err, shared
	}
	return v.(types.Answer), err, shared
}
