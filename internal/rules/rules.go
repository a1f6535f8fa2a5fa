// Package rules holds the counting functions behind chat moderation. Every
// counter is deterministic for a given input and blacklist.
package rules

import (
	"log/slog"
	"net/netip"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/tedkulp/n3rdbot/internal/domain"
)

// urlPattern matches scheme-optional URLs and bare domains. The ip group is
// checked afterwards because RE2 has no lookahead to exclude private ranges.
var urlPattern = regexp.MustCompile(`(?i)(?:(?:(?:https?|ftp):)?//)?` +
	`(?:\S+(?::\S*)?@)?` +
	`(?:(?P<ip>(?:[1-9]\d?|1\d\d|2[01]\d|22[0-3])(?:\.(?:1?\d{1,2}|2[0-4]\d|25[0-5])){2}\.(?:[1-9]\d?|1\d\d|2[0-4]\d|25[0-4]))` +
	`|(?:(?:[a-z0-9\x{00a1}-\x{ffff}][a-z0-9\x{00a1}-\x{ffff}_-]{0,62})?[a-z0-9\x{00a1}-\x{ffff}]\.)+(?:[a-z\x{00a1}-\x{ffff}]{2,}\.?))` +
	`(?::\d{2,5})?` +
	`(?:[/?#]\S*)?`)

var ipGroup = urlPattern.SubexpIndex("ip")

var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
}

// Counts holds one value per rule.
type Counts struct {
	Emotes      int
	Length      int
	URLs        int
	Blacklisted int
}

// Within reports whether every count is at or below its threshold.
func (c Counts) Within(t domain.Thresholds) bool {
	return c.Emotes <= t.MaxEmotes &&
		c.Length <= t.MaxLength &&
		c.URLs <= t.MaxURLs &&
		c.Blacklisted <= t.MaxBlacklisted
}

// CountEmotes counts emote spans in the raw annotation ("25:0-4/88:19-26" is 2).
func CountEmotes(emotesRaw string) int {
	return strings.Count(emotesRaw, "-")
}

// CountLength returns the number of characters in the trimmed message.
func CountLength(msg string) int {
	return utf8.RuneCountInString(strings.TrimSpace(msg))
}

// CountURLs returns the number of non-overlapping URL matches, ignoring
// private, loopback and link-local IPv4 hosts.
func CountURLs(msg string) int {
	n := 0
	for _, m := range urlPattern.FindAllStringSubmatch(strings.TrimSpace(msg), -1) {
		if ip := m[ipGroup]; ip != "" && isPrivate(ip) {
			continue
		}
		n++
	}
	return n
}

func isPrivate(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, p := range privateRanges {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Matcher counts blacklist matches, memoizing compiled patterns by text.
// The zero value is ready to use.
type Matcher struct {
	compiled sync.Map // pattern -> *regexp.Regexp (nil when invalid)
}

func NewMatcher() *Matcher {
	return &Matcher{}
}

// CountBlacklisted sums the matches of every active entry. Matches from
// different entries all count, even when they overlap.
func (m *Matcher) CountBlacklisted(msg string, entries []domain.BlacklistEntry) int {
	msg = strings.TrimSpace(msg)
	n := 0
	for _, e := range entries {
		if !e.Active || e.Pattern == "" {
			continue
		}
		re := m.compile(e.Pattern)
		if re == nil {
			continue
		}
		n += len(re.FindAllStringIndex(msg, -1))
	}
	return n
}

func (m *Matcher) compile(pattern string) *regexp.Regexp {
	if v, ok := m.compiled.Load(pattern); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		slog.Warn("Skipping invalid blacklist pattern", "pattern", pattern, "error", err)
		re = nil
	}
	actual, _ := m.compiled.LoadOrStore(pattern, re)
	re, _ = actual.(*regexp.Regexp)
	return re
}

// Measure runs all four counters against the trimmed message.
func (m *Matcher) Measure(msg string, sender domain.Sender, entries []domain.BlacklistEntry) Counts {
	msg = strings.TrimSpace(msg)
	return Counts{
		Emotes:      CountEmotes(sender.EmotesRaw),
		Length:      CountLength(msg),
		URLs:        CountURLs(msg),
		Blacklisted: m.CountBlacklisted(msg, entries),
	}
}
