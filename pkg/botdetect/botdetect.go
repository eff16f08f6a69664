// Package botdetect classifies requests as automated from their User-Agent and, optionally,
// a few browser-shaped headers.
package botdetect

import (
	"net/http"
	"strings"
)

const (
	// LabelBot is reported for automated clients without a more specific signature.
	LabelBot = "Bot"
	// LabelHuman is reported when nothing marked the request as automated.
	LabelHuman = "Human"
)

// Classification is the verdict for one User-Agent.
type Classification struct {
	IsBot bool   `json:"isBot"`
	Label string `json:"label"`
}

// Classify decides whether userAgent belongs to an automated client.
//
// An empty User-Agent is a bot. When headers is non-nil and no pattern matched, two
// heuristics apply: an Accept header naming neither HTML nor images, or a missing
// Accept-Language or Accept-Encoding, marks the request as a bot. These heuristics also
// catch legitimate API clients and privacy-hardened browsers.
func Classify(userAgent string, headers http.Header) Classification {
	if strings.TrimSpace(userAgent) == "" {
		return Classification{IsBot: true, Label: LabelBot}
	}

	if IsBot(userAgent) {
		return Classification{IsBot: true, Label: Label(userAgent)}
	}

	if headers != nil && failsBrowserHeuristics(headers) {
		return Classification{IsBot: true, Label: LabelBot}
	}

	return Classification{IsBot: false, Label: LabelHuman}
}

// IsBot reports whether userAgent matches any bot pattern.
func IsBot(userAgent string) bool {
	for _, pattern := range botPatterns {
		if pattern.MatchString(userAgent) {
			return true
		}
	}
	return false
}

// Label names the bot behind userAgent, or LabelBot when no signature is known.
func Label(userAgent string) string {
	return firstLabel(botLabels, userAgent, LabelBot)
}

// ClassifyAICrawler checks userAgent against AI-company crawler signatures only.
// An empty User-Agent is not a crawler.
func ClassifyAICrawler(userAgent string) Classification {
	label := firstLabel(aiCrawlerRules, userAgent, "")
	if label == "" {
		return Classification{IsBot: false, Label: LabelHuman}
	}
	return Classification{IsBot: true, Label: label}
}

// IsAllowed reports whether any allow-list entry is a case-insensitive substring of userAgent.
func IsAllowed(userAgent string, allowList []string) bool {
	ua := strings.ToLower(userAgent)
	for _, entry := range allowList {
		if entry == "" {
			continue
		}
		if strings.Contains(ua, strings.ToLower(entry)) {
			return true
		}
	}
	return false
}

func firstLabel(rules []rule, userAgent, fallback string) string {
	if userAgent == "" {
		return fallback
	}
	for _, lr := range rules {
		if lr.pattern.MatchString(userAgent) {
			return lr.label
		}
	}
	return fallback
}

func failsBrowserHeuristics(headers http.Header) bool {
	accept := strings.ToLower(headers.Get("Accept"))
	if !strings.Contains(accept, "html") && !strings.Contains(accept, "image/") {
		return true
	}
	return headers.Get("Accept-Language") == "" || headers.Get("Accept-Encoding") == ""
}
