// Package classifier provides stateless content checks: link detection,
// spam-signal heuristics and banned-term matching. No I/O, no state; the
// same input always yields the same result.
package classifier

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// Protocol URLs.
	urlRegex = regexp.MustCompile(`(?i)\bhttps?://[^\s<>()]+`)

	// Common URL shortener hosts, with or without a path.
	shortlinkRegex = regexp.MustCompile(`(?i)\b(?:bit\.ly|tinyurl\.com|goo\.gl|t\.co|is\.gd|cutt\.ly|rb\.gy)(?:/[^\s<>()]*)?`)

	// Telegram invite links and @handles.
	handleRegex = regexp.MustCompile(`(?i)(?:t\.me/(?:joinchat/|\+)?[a-z0-9_]+|@[a-z0-9_]{4,32})`)

	// Bare domains with common TLDs, optionally followed by a path.
	domainRegex = regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9-]*(?:\.[a-z0-9-]+)*\.(?:com|net|org|io|me|app|xyz|info|biz|ru|cn|store|live|top|site|club|online|shop|vip)\b(?:/[^\s<>()]*)?`)

	// Runs of terminal punctuation.
	punctRunRegex = regexp.MustCompile(`[!?.]{2,}`)

	emojiRegex = regexp.MustCompile(`[\x{1F600}-\x{1F64F}|\x{1F300}-\x{1F5FF}|\x{1F680}-\x{1F6FF}|\x{1F700}-\x{1F77F}|\x{1F780}-\x{1F7FF}|\x{1F800}-\x{1F8FF}|\x{1F900}-\x{1F9FF}|\x{1FA00}-\x{1FA6F}|\x{1FA70}-\x{1FAFF}|\x{2600}-\x{26FF}|\x{2700}-\x{27BF}]`)
)

// defaultBannedTerms is the built-in banned vocabulary; scopes add their own
// terms on top.
var defaultBannedTerms = []string{
	"scam",
	"porn",
	"casino",
	"free money",
	"crypto giveaway",
	"investment opportunity",
	"earn from home",
	"double your",
}

// LinkResult reports detected links, de-duplicated, in order of appearance.
type LinkResult struct {
	Found bool
	Items []string
}

// TermResult reports matched banned terms.
type TermResult struct {
	Found bool
	Items []string
}

// Spam signal kinds, in evaluation order.
const (
	SpamKindCaps        = "caps"
	SpamKindRepeat      = "repeat"
	SpamKindPunctuation = "punctuation"
	SpamKindEmoji       = "emoji"
)

// SpamResult reports which heuristics flagged the text. Kinds preserves
// evaluation order, so Kinds[0] is the primary signal.
type SpamResult struct {
	IsSpam bool
	Kinds  []string
}

// Thresholds holds the externally configurable spam heuristics limits.
type Thresholds struct {
	CapsRatio         float64
	CapsMinLetters    int
	MaxRepeatedChars  int
	MaxPunctuationRun int
	MaxEmojiCount     int
}

// DefaultThresholds returns the built-in limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CapsRatio:         0.7,
		CapsMinLetters:    10,
		MaxRepeatedChars:  6,
		MaxPunctuationRun: 4,
		MaxEmojiCount:     8,
	}
}

// DetectLinks finds protocol URLs, shortener links, bare domains and
// Telegram handle/invite syntax in the text.
func DetectLinks(text string) LinkResult {
	var items []string
	seen := make(map[string]struct{})

	add := func(match string) {
		match = strings.TrimRight(match, ".,;:")
		key := strings.ToLower(match)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		items = append(items, match)
	}

	// Each pass consumes its matches so a later, looser pattern does not
	// re-report a substring of an earlier match.
	remaining := text
	for _, re := range []*regexp.Regexp{urlRegex, shortlinkRegex, handleRegex, domainRegex} {
		for _, match := range re.FindAllString(remaining, -1) {
			add(match)
		}
		remaining = re.ReplaceAllString(remaining, " ")
	}

	return LinkResult{Found: len(items) > 0, Items: items}
}

// IsAllowed reports whether a detected link belongs to one of the allowed
// domains. Evaluated by the caller so detection itself stays scope-agnostic.
func IsAllowed(link string, allowedDomains []string) bool {
	host := strings.ToLower(link)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	if idx := strings.IndexAny(host, "/?#"); idx >= 0 {
		host = host[:idx]
	}

	for _, domain := range allowedDomains {
		domain = strings.ToLower(domain)
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// DetectSpamSignal evaluates the heuristics in fixed order: caps ratio,
// repeated-character runs, terminal punctuation runs, emoji count.
func DetectSpamSignal(text string, th Thresholds) SpamResult {
	var kinds []string

	if hasExcessiveCaps(text, th.CapsRatio, th.CapsMinLetters) {
		kinds = append(kinds, SpamKindCaps)
	}
	if hasRepeatedRun(text, th.MaxRepeatedChars) {
		kinds = append(kinds, SpamKindRepeat)
	}
	if hasPunctuationRun(text, th.MaxPunctuationRun) {
		kinds = append(kinds, SpamKindPunctuation)
	}
	if emojiCount(text) > th.MaxEmojiCount {
		kinds = append(kinds, SpamKindEmoji)
	}

	return SpamResult{IsSpam: len(kinds) > 0, Kinds: kinds}
}

// DetectBannedTerms matches the default list plus scope-specific extras,
// case-insensitively, as substrings.
func DetectBannedTerms(text string, extraTerms []string) TermResult {
	lowered := strings.ToLower(text)

	var items []string
	seen := make(map[string]struct{})
	check := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			return
		}
		if _, ok := seen[term]; ok {
			return
		}
		if strings.Contains(lowered, term) {
			seen[term] = struct{}{}
			items = append(items, term)
		}
	}

	for _, term := range defaultBannedTerms {
		check(term)
	}
	for _, term := range extraTerms {
		check(term)
	}

	return TermResult{Found: len(items) > 0, Items: items}
}

func hasExcessiveCaps(text string, ratio float64, minLetters int) bool {
	letters, upper := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters < minLetters {
		return false
	}
	return float64(upper)/float64(letters) > ratio
}

// hasRepeatedRun only counts letters; punctuation and emoji runs are
// scored by their own heuristics.
func hasRepeatedRun(text string, maxRun int) bool {
	if maxRun <= 0 {
		return false
	}
	var prev rune
	run := 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			prev = 0
			run = 0
			continue
		}
		if r == prev {
			run++
			if run >= maxRun {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

func hasPunctuationRun(text string, maxRun int) bool {
	if maxRun <= 0 {
		return false
	}
	for _, match := range punctRunRegex.FindAllString(text, -1) {
		if len(match) >= maxRun {
			return true
		}
	}
	return false
}

func emojiCount(text string) int {
	return len(emojiRegex.FindAllString(text, -1))
}
