package browser

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockable maps configuration names onto CDP resource types. Documents,
// scripts, XHR and fetch are absent: the application cannot render
// without them.
var blockable = map[string]proto.NetworkResourceType{
	"images":      proto.NetworkResourceTypeImage,
	"fonts":       proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
	"manifests":   proto.NetworkResourceTypeManifest,
	"pings":       proto.NetworkResourceTypePing,
}

// blockList is the set of resource types failed before they reach the
// network. Blocking never changes the captured DOM, only how long the page
// takes to go idle.
type blockList map[proto.NetworkResourceType]bool

func parseBlockList(names []string) (blockList, error) {
	if len(names) == 0 {
		return nil, nil
	}
	b := make(blockList, len(names))
	var unknown []string
	for _, n := range names {
		t, ok := blockable[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		b[t] = true
	}
	if len(unknown) > 0 {
		known := make([]string, 0, len(blockable))
		for k := range blockable {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("browser: cannot block %v (blockable: %s)", unknown, strings.Join(known, ", "))
	}
	return b, nil
}

func (b blockList) blocks(t proto.NetworkResourceType) bool { return b[t] }

// hijack installs the block list on page. Every request is either failed
// as blocked-by-client or continued untouched; blocked is incremented per
// failed request. The router must be stopped before the page closes.
func (b blockList) hijack(page *rod.Page, blocked *atomic.Int64) (*rod.HijackRouter, error) {
	router := page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		if b.blocks(h.Request.Type()) {
			blocked.Add(1)
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return nil, fmt.Errorf("browser: hijack: %w", err)
	}
	go router.Run()
	return router, nil
}
