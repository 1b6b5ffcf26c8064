package thumbnail

import (
	"errors"
	"fmt"
)

// DefaultPreloadCount is how many images around the visible range are preloaded
const DefaultPreloadCount = 20

var ErrInvalidRange = errors.New("invalid preload range")

// PreloadWindow returns the half-open range [start, end) of a list of total
// items to preload when items firstVisible..lastVisible (inclusive) are on
// screen. The window holds the visible items plus up to count/2 items on
// either side, clamped to the list.
func PreloadWindow(firstVisible, lastVisible, total, count int) (start, end int, err error) {
	switch {
	case count < 0:
		return 0, 0, fmt.Errorf("%w: negative count %d", ErrInvalidRange, count)
	case firstVisible < 0:
		return 0, 0, fmt.Errorf("%w: first visible %d", ErrInvalidRange, firstVisible)
	case lastVisible < firstVisible:
		return 0, 0, fmt.Errorf("%w: last visible %d before first %d", ErrInvalidRange, lastVisible, firstVisible)
	case lastVisible >= total:
		return 0, 0, fmt.Errorf("%w: last visible %d of %d items", ErrInvalidRange, lastVisible, total)
	}

	half := count / 2
	start = max(firstVisible-half, 0)
	end = min(lastVisible+1+half, total)
	return start, end, nil
}
