package nukiapi

import (
	"sync"

	"github.com/korovkin/limiter"
	"github.com/pkg/errors"

	"github.com/jake-scott/nuki-checkin/internal/pkg/logging"
)

// CollectPins fetches the pins of every lock, running at most maxConcurrent
// requests at a time.  The result is keyed by lock ID.  The first error seen
// is returned along with the pins that could be fetched.
func CollectPins(api PinLister, locks []Smartlock, maxConcurrent int) (map[string][]Pin, error) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	var mu sync.Mutex
	var firstErr error
	result := make(map[string][]Pin, len(locks))

	limit := limiter.NewConcurrencyLimiter(maxConcurrent)
	for _, lock := range locks {
		lock := lock
		limit.ExecuteWithTicket(func(ticket int) {
			logging.Logger(nil).Debugf("collect-pins %d: fetching %s", ticket, lock)

			pins, err := lock.Pins(api)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				logging.Logger(nil).WithError(err).Warnf("fetching pins of %s", lock)
				if firstErr == nil {
					firstErr = errors.Wrapf(err, "fetching pins of %s", lock)
				}
				return
			}
			result[lock.ID] = pins
		})
	}
	limit.Wait()

	return result, firstErr
}
