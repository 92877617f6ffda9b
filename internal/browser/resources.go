package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceNames maps CDP resource types to the names used in config.
var resourceNames = map[proto.NetworkResourceType]string{
	proto.NetworkResourceTypeImage:      "images",
	proto.NetworkResourceTypeFont:       "fonts",
	proto.NetworkResourceTypeMedia:      "media",
	proto.NetworkResourceTypeStylesheet: "stylesheets",
}

// blockResources fails requests for the configured resource types. Chat
// pages stay usable without them and use far less memory.
func blockResources(page *rod.Page, names []string) {
	block := blockSet(names)
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if block[resourceName(h.Request.Type())] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

func blockSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[strings.ToLower(strings.TrimSpace(n))] = true
	}
	return out
}

func resourceName(t proto.NetworkResourceType) string {
	if n, ok := resourceNames[t]; ok {
		return n
	}
	return strings.ToLower(string(t))
}
