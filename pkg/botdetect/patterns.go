package botdetect

import "regexp"

// rule pairs a User-Agent pattern with the label reported when it is the first match.
type rule struct {
	pattern *regexp.Regexp
	label   string
}

func labelRule(expr, label string) rule {
	return rule{pattern: regexp.MustCompile(`(?i)` + expr), label: label}
}

// Bot detection patterns. Any match marks the User-Agent as automated.
var botPatterns = []*regexp.Regexp{
	// Generic tokens
	regexp.MustCompile(`(?i)bot`),
	regexp.MustCompile(`(?i)crawl`),
	regexp.MustCompile(`(?i)spider`),
	regexp.MustCompile(`(?i)slurp`),
	regexp.MustCompile(`(?i)scraper`),

	// Search engines without a generic token in their UA
	regexp.MustCompile(`(?i)yandex`),
	regexp.MustCompile(`(?i)sogou`),
	regexp.MustCompile(`(?i)exabot`),
	regexp.MustCompile(`(?i)ia_archiver`),

	// AI crawlers and assistants
	regexp.MustCompile(`(?i)chatgpt-user`),
	regexp.MustCompile(`(?i)claude-web`),
	regexp.MustCompile(`(?i)anthropic-ai`),
	regexp.MustCompile(`(?i)cohere-ai`),
	regexp.MustCompile(`(?i)perplexity-user`),
	regexp.MustCompile(`(?i)google-extended`),
	regexp.MustCompile(`(?i)meta-externalagent`),
	regexp.MustCompile(`(?i)mistralai-user`),
	regexp.MustCompile(`(?i)omgili`),

	// Scripted HTTP clients
	regexp.MustCompile(`(?i)curl`),
	regexp.MustCompile(`(?i)wget`),
	regexp.MustCompile(`(?i)python-requests`),
	regexp.MustCompile(`(?i)python-urllib`),
	regexp.MustCompile(`(?i)aiohttp`),
	regexp.MustCompile(`(?i)httpx`),
	regexp.MustCompile(`(?i)go-http-client`),
	regexp.MustCompile(`(?i)java/`),
	regexp.MustCompile(`(?i)okhttp`),
	regexp.MustCompile(`(?i)apache-httpclient`),
	regexp.MustCompile(`(?i)axios`),
	regexp.MustCompile(`(?i)node-fetch`),
	regexp.MustCompile(`(?i)undici`),
	regexp.MustCompile(`(?i)libwww-perl`),
	regexp.MustCompile(`(?i)postman`),
	regexp.MustCompile(`(?i)insomnia`),
	regexp.MustCompile(`(?i)scrapy`),
	regexp.MustCompile(`(?i)guzzlehttp`),

	// SEO tools
	regexp.MustCompile(`(?i)screaming frog`),
	regexp.MustCompile(`(?i)seokicks`),
	regexp.MustCompile(`(?i)sitebulb`),

	// Social link previews
	regexp.MustCompile(`(?i)facebookexternalhit`),
	regexp.MustCompile(`(?i)whatsapp`),
	regexp.MustCompile(`(?i)pinterest`),
	regexp.MustCompile(`(?i)embedly`),
	regexp.MustCompile(`(?i)skypeuripreview`),
	regexp.MustCompile(`(?i)vkshare`),

	// Headless browsers and automation
	regexp.MustCompile(`(?i)headlesschrome`),
	regexp.MustCompile(`(?i)phantomjs`),
	regexp.MustCompile(`(?i)puppeteer`),
	regexp.MustCompile(`(?i)playwright`),
	regexp.MustCompile(`(?i)selenium`),
	regexp.MustCompile(`(?i)webdriver`),
}

// Bot labels, scanned in order; the first match names the bot.
var botLabels = []rule{
	labelRule(`googlebot`, "Google Bot"),
	labelRule(`google-extended`, "Google Extended"),
	labelRule(`bingbot`, "Bing Bot"),
	labelRule(`yandex`, "Yandex Bot"),
	labelRule(`baiduspider`, "Baidu Spider"),
	labelRule(`duckduckbot`, "DuckDuckGo Bot"),
	labelRule(`applebot`, "Apple Bot"),

	labelRule(`gptbot`, "OpenAI GPTBot"),
	labelRule(`chatgpt-user`, "OpenAI ChatGPT"),
	labelRule(`oai-searchbot`, "OpenAI SearchBot"),
	labelRule(`claudebot|claude-web`, "Anthropic Claude"),
	labelRule(`anthropic-ai`, "Anthropic AI"),
	labelRule(`perplexitybot|perplexity-user`, "Perplexity Bot"),
	labelRule(`ccbot`, "Common Crawl"),
	labelRule(`bytespider`, "ByteDance Spider"),
	labelRule(`amazonbot`, "Amazon Bot"),
	labelRule(`meta-externalagent`, "Meta AI"),
	labelRule(`cohere-ai`, "Cohere AI"),

	labelRule(`curl`, "cURL"),
	labelRule(`wget`, "Wget"),
	labelRule(`python-requests|python-urllib|aiohttp|httpx`, "Python Script"),
	labelRule(`go-http-client`, "Go HTTP Client"),
	labelRule(`axios|node-fetch|undici`, "Node.js Client"),
	labelRule(`java/|okhttp|apache-httpclient`, "Java Client"),
	labelRule(`postman`, "Postman"),
	labelRule(`scrapy`, "Scrapy"),

	labelRule(`ahrefsbot`, "Ahrefs Bot"),
	labelRule(`semrushbot`, "SEMrush Bot"),
	labelRule(`mj12bot`, "Majestic Bot"),
	labelRule(`screaming frog`, "Screaming Frog"),

	labelRule(`facebookexternalhit`, "Facebook Preview"),
	labelRule(`twitterbot`, "Twitter Bot"),
	labelRule(`linkedinbot`, "LinkedIn Bot"),
	labelRule(`slackbot`, "Slack Bot"),
	labelRule(`discordbot`, "Discord Bot"),
	labelRule(`telegrambot`, "Telegram Bot"),
	labelRule(`whatsapp`, "WhatsApp Preview"),

	labelRule(`headlesschrome`, "Headless Chrome"),
	labelRule(`phantomjs`, "PhantomJS"),
	labelRule(`puppeteer`, "Puppeteer"),
	labelRule(`playwright`, "Playwright"),
	labelRule(`selenium|webdriver`, "Selenium"),
}

// AI crawler signatures and their labels. Used on its own, without heuristics.
var aiCrawlerRules = []rule{
	labelRule(`gptbot`, "OpenAI GPTBot"),
	labelRule(`chatgpt-user`, "OpenAI ChatGPT"),
	labelRule(`oai-searchbot`, "OpenAI SearchBot"),
	labelRule(`claudebot|claude-web`, "Anthropic Claude"),
	labelRule(`anthropic-ai`, "Anthropic AI"),
	labelRule(`perplexitybot|perplexity-user`, "Perplexity"),
	labelRule(`ccbot`, "Common Crawl"),
	labelRule(`google-extended`, "Google Extended"),
	labelRule(`applebot-extended`, "Apple Extended"),
	labelRule(`bytespider`, "ByteDance"),
	labelRule(`amazonbot`, "Amazon"),
	labelRule(`meta-externalagent|facebookbot`, "Meta AI"),
	labelRule(`cohere-ai`, "Cohere"),
	labelRule(`diffbot`, "Diffbot"),
	labelRule(`youbot`, "You.com"),
	labelRule(`ai2bot`, "AI2"),
	labelRule(`mistralai-user`, "Mistral AI"),
}
