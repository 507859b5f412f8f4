package globaltime

import (
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now
)

// beijing is the anchor timezone for run dates: the digest is published on
// the Beijing calendar day regardless of where sources publish from.
var beijing = mustLoadBeijing()

func mustLoadBeijing() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return nowFunc()
}

func UTC() time.Time {
	return Now().UTC()
}

// Beijing returns the current time in the digest's anchor timezone.
func Beijing() time.Time {
	return Now().In(beijing)
}

// RunDate returns the current Beijing calendar date as YYYY-MM-DD.
func RunDate() string {
	return Beijing().Format("2006-01-02")
}

func SetMockTime(t time.Time) {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = func() time.Time { return t }
}

func ResetTime() {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = time.Now
}
