package botdetect

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func browserHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	return h
}

func TestClassifyUserAgents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		userAgent string
		wantBot   bool
		wantLabel string
	}{
		{"", true, LabelBot},
		{"   ", true, LabelBot},
		{chromeUA, false, LabelHuman},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1", false, LabelHuman},
		{"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0", false, LabelHuman},
		{"Googlebot/2.1 (+http://www.google.com/bot.html)", true, "Google Bot"},
		{"Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)", true, "Bing Bot"},
		{"Mozilla/5.0 AppleWebKit/537.36 (KHTML, like Gecko; compatible; GPTBot/1.0; +https://openai.com/gptbot)", true, "OpenAI GPTBot"},
		{"Mozilla/5.0 AppleWebKit/537.36 (KHTML, like Gecko; compatible; ClaudeBot/1.0; +claudebot@anthropic.com)", true, "Anthropic Claude"},
		{"CCBot/2.0 (https://commoncrawl.org/faq/)", true, "Common Crawl"},
		{"curl/7.68.0", true, "cURL"},
		{"Wget/1.21.2", true, "Wget"},
		{"python-requests/2.31.0", true, "Python Script"},
		{"Go-http-client/1.1", true, "Go HTTP Client"},
		{"axios/1.6.2", true, "Node.js Client"},
		{"okhttp/4.12.0", true, "Java Client"},
		{"PostmanRuntime/7.36.0", true, "Postman"},
		{"Mozilla/5.0 (compatible; AhrefsBot/7.0; +http://ahrefs.com/robot/)", true, "Ahrefs Bot"},
		{"facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)", true, "Facebook Preview"},
		{"Twitterbot/1.0", true, "Twitter Bot"},
		{"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36", true, "Headless Chrome"},
		{"my-crawler/0.1", true, LabelBot},
		{"SomeSpider", true, LabelBot},
		{"Mozilla/5.0 (compatible; Yahoo! Slurp)", true, LabelBot},
	}

	for _, tt := range tests {
		t.Run(tt.userAgent, func(t *testing.T) {
			t.Parallel()

			got := Classify(tt.userAgent, nil)
			assert.Equal(t, tt.wantBot, got.IsBot, "IsBot")
			assert.Equal(t, tt.wantLabel, got.Label, "Label")
		})
	}
}

func TestClassifyGenericTokensAnyCase(t *testing.T) {
	t.Parallel()

	for _, ua := range []string{"bot", "BOT", "xBoTx", "Crawler", "CRAWLER/1", "spider", "SpIdEr-9"} {
		assert.True(t, Classify(ua, nil).IsBot, ua)
		assert.True(t, IsBot(ua), ua)
	}
}

func TestClassifyHeaderHeuristics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(http.Header)
		wantBot bool
	}{
		{"full browser headers", func(http.Header) {}, false},
		{"image only accept", func(h http.Header) { h.Set("Accept", "image/webp,*/*") }, false},
		{"json accept", func(h http.Header) { h.Set("Accept", "application/json") }, true},
		{"missing accept", func(h http.Header) { h.Del("Accept") }, true},
		{"missing accept-language", func(h http.Header) { h.Del("Accept-Language") }, true},
		{"missing accept-encoding", func(h http.Header) { h.Del("Accept-Encoding") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := browserHeaders()
			tt.mutate(h)

			got := Classify(chromeUA, h)
			assert.Equal(t, tt.wantBot, got.IsBot)
			if tt.wantBot {
				assert.Equal(t, LabelBot, got.Label)
			}
		})
	}
}

func TestClassifyPatternWinsOverHeaders(t *testing.T) {
	t.Parallel()

	got := Classify("curl/8.4.0", browserHeaders())
	assert.True(t, got.IsBot)
	assert.Equal(t, "cURL", got.Label)
}

func TestClassifyIsIdempotent(t *testing.T) {
	t.Parallel()

	first := Classify("Googlebot/2.1", nil)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Classify("Googlebot/2.1", nil))
	}
}

func TestClassifyAICrawler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		userAgent string
		wantBot   bool
		wantLabel string
	}{
		{"", false, LabelHuman},
		{chromeUA, false, LabelHuman},
		{"Googlebot/2.1", false, LabelHuman},
		{"curl/7.68.0", false, LabelHuman},
		{"Mozilla/5.0 (compatible; GPTBot/1.1; +https://openai.com/gptbot)", true, "OpenAI GPTBot"},
		{"Mozilla/5.0 AppleWebKit/537.36 (KHTML, like Gecko); compatible; ChatGPT-User/1.0; +https://openai.com/bot", true, "OpenAI ChatGPT"},
		{"ClaudeBot/1.0", true, "Anthropic Claude"},
		{"PerplexityBot/1.0", true, "Perplexity"},
		{"Mozilla/5.0 (compatible; Bytespider; spider-feedback@bytedance.com)", true, "ByteDance"},
		{"meta-externalagent/1.1", true, "Meta AI"},
		{"Applebot-Extended/0.1", true, "Apple Extended"},
	}

	for _, tt := range tests {
		got := ClassifyAICrawler(tt.userAgent)
		assert.Equal(t, tt.wantBot, got.IsBot, tt.userAgent)
		assert.Equal(t, tt.wantLabel, got.Label, tt.userAgent)
	}
}

func TestIsAllowed(t *testing.T) {
	t.Parallel()

	allow := []string{"Googlebot", "", "bingbot"}

	assert.True(t, IsAllowed("Googlebot/2.1", allow))
	assert.True(t, IsAllowed("mozilla/5.0 (compatible; GOOGLEBOT/2.1)", allow))
	assert.True(t, IsAllowed("Mozilla/5.0 (compatible; bingbot/2.0)", allow))
	assert.False(t, IsAllowed("curl/7.68.0", allow))
	assert.False(t, IsAllowed("Googlebot/2.1", nil))
	assert.False(t, IsAllowed("", allow))
}
