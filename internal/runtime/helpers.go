package runtime

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/region"
)

// newRegionMap turns the configured region -> URL table into a selector.
func newRegionMap(backends map[string]string) (*region.Map, error) {
	urls := make(map[region.Region]string, len(backends))
	for name, u := range backends {
		r := region.Region(strings.ToLower(name))
		switch r {
		case region.US, region.EU, region.AP:
		default:
			return nil, fmt.Errorf("unknown region %q in upstream.backends", name)
		}
		urls[r] = u
	}
	m, err := region.New(urls)
	if err != nil {
		return nil, fmt.Errorf("build region map: %w", err)
	}
	return m, nil
}

func regionNames(m *region.Map) []string {
	var names []string
	for _, r := range []region.Region{region.US, region.EU, region.AP} {
		if b, ok := m.Backend(r); ok {
			names = append(names, string(r)+"="+b.URL.Host)
		}
	}
	sort.Strings(names)
	return names
}
