package paywall

import (
	"path"
	"strings"

	x402 "github.com/x402-foundation/botgate"
)

// MatchRoute finds the route that prices urlPath. Skip paths win, then an exact pattern,
// then the longest "/*" prefix pattern, then any other glob in path.Match syntax.
func MatchRoute(cfg *x402.Config, urlPath string) (string, x402.RouteConfig, bool) {
	for _, skip := range cfg.SkipPaths {
		if matchPattern(skip, urlPath) {
			return "", x402.RouteConfig{}, false
		}
	}

	if route, ok := cfg.Routes[urlPath]; ok {
		return urlPath, route, true
	}

	best := ""
	for pattern := range cfg.Routes {
		prefix, ok := strings.CutSuffix(pattern, "/*")
		if !ok || strings.ContainsAny(prefix, "*?[") {
			continue
		}
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			if len(pattern) > len(best) || (len(pattern) == len(best) && pattern < best) {
				best = pattern
			}
		}
	}
	if best != "" {
		return best, cfg.Routes[best], true
	}

	// Lexically smallest pattern wins among overlapping globs.
	for pattern := range cfg.Routes {
		if ok, _ := path.Match(pattern, urlPath); ok && (best == "" || pattern < best) {
			best = pattern
		}
	}
	if best != "" {
		return best, cfg.Routes[best], true
	}

	return "", x402.RouteConfig{}, false
}

func matchPattern(pattern, urlPath string) bool {
	if pattern == urlPath {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok && (urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/")) {
		return true
	}
	ok, _ := path.Match(pattern, urlPath)
	return ok
}
