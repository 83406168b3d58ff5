package render

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Config names accepted in addition to the DevTools type names.
var resourceAliases = map[string]proto.NetworkResourceType{
	"images":      proto.NetworkResourceTypeImage,
	"fonts":       proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
	"scripts":     proto.NetworkResourceTypeScript,
}

// Types that can be blocked by their DevTools name. Document is absent:
// blocking it would blank the stock page.
var blockableTypes = []proto.NetworkResourceType{
	proto.NetworkResourceTypeImage,
	proto.NetworkResourceTypeFont,
	proto.NetworkResourceTypeMedia,
	proto.NetworkResourceTypeStylesheet,
	proto.NetworkResourceTypeScript,
	proto.NetworkResourceTypeTextTrack,
	proto.NetworkResourceTypeXHR,
	proto.NetworkResourceTypeFetch,
	proto.NetworkResourceTypeEventSource,
	proto.NetworkResourceTypeWebSocket,
	proto.NetworkResourceTypeManifest,
	proto.NetworkResourceTypePing,
	proto.NetworkResourceTypeOther,
}

// blockedTypes resolves configured names, case-insensitively, to resource
// types. Names that match nothing are returned in unknown.
func blockedTypes(names []string) (set map[proto.NetworkResourceType]bool, unknown []string) {
	set = make(map[proto.NetworkResourceType]bool, len(names))
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if t, ok := resourceAliases[key]; ok {
			set[t] = true
			continue
		}
		matched := false
		for _, t := range blockableTypes {
			if strings.EqualFold(key, string(t)) {
				set[t] = true
				matched = true
				break
			}
		}
		if !matched {
			unknown = append(unknown, name)
		}
	}
	return set, unknown
}

// blockResources fails requests whose type is in set. The hijack router
// runs until the page closes.
func blockResources(page *rod.Page, set map[proto.NetworkResourceType]bool) {
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if set[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}
