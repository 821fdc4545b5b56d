// Package schedule binds partition windows to proxies and worker slots.
package schedule

import (
	"errors"

	"github.com/JakeFAU/news-harvester/internal/harvest"
)

// ErrNoProxies is returned when there is nothing to assign windows to.
var ErrNoProxies = errors.New("schedule: proxy pool is empty")

// Assign gives window i the proxy at i mod M and returns the resulting
// parallelism, which equals the number of proxies.
func Assign(windows []harvest.Window, proxies []harvest.Proxy) ([]harvest.Shard, int, error) {
	if len(proxies) == 0 {
		return nil, 0, ErrNoProxies
	}
	shards := make([]harvest.Shard, 0, len(windows))
	if len(proxies) == 1 {
		for _, w := range windows {
			shards = append(shards, harvest.Shard{Window: w, Proxy: proxies[0]})
		}
		return shards, 1, nil
	}
	for i, w := range windows {
		slot := Mod(i, len(proxies))
		shards = append(shards, harvest.Shard{Window: w, Proxy: proxies[slot], Slot: slot})
	}
	return shards, len(proxies), nil
}

// Mod returns the non-negative remainder of i divided by n. n must be positive.
func Mod(i, n int) int {
	m := i % n
	if m < 0 {
		m += n
	}
	return m
}
