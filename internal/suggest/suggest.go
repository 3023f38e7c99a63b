// Package suggest corrects domain typos against a curated set of popular
// mail providers: gmial.com is close enough to gmail.com to be worth
// mentioning. Suggestions are advisory; they never fail a verification.
package suggest

import "strings"

// popularDomains is the correction target set. Only high-traffic
// providers belong here: suggesting an obscure domain as a "correction"
// does more harm than good.
var popularDomains = []string{
	"gmail.com", "googlemail.com",
	"yahoo.com", "yahoo.co.uk", "yahoo.co.jp", "yahoo.fr", "yahoo.de", "ymail.com",
	"hotmail.com", "hotmail.co.uk", "hotmail.fr", "hotmail.de",
	"outlook.com", "outlook.fr", "outlook.de", "live.com", "msn.com",
	"icloud.com", "me.com", "mac.com",
	"aol.com",
	"protonmail.com", "proton.me",
	"zoho.com",
	"mail.com", "mail.ru",
	"gmx.com", "gmx.net", "gmx.de", "web.de",
	"yandex.com", "yandex.ru",
	"fastmail.com",
	"comcast.net", "verizon.net", "att.net",
	"qq.com", "naver.com",
}

const defaultThreshold = 2

// Suggester finds the closest popular domain within an edit-distance
// threshold.
type Suggester struct {
	threshold int
	domains   []string
}

// New builds a Suggester. threshold <= 0 means the default of 2 edits.
// extra domains join the curated set (a deployment can add its own
// corporate domains).
func New(threshold int, extra ...string) *Suggester {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	domains := make([]string, 0, len(popularDomains)+len(extra))
	domains = append(domains, popularDomains...)
	for _, d := range extra {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}
	return &Suggester{threshold: threshold, domains: domains}
}

// Suggest returns the closest curated domain within the threshold, or ""
// when the input is an exact match or nothing is close enough. Ties go to
// the earlier entry in the curated set (the more popular provider).
func (s *Suggester) Suggest(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return ""
	}

	best := s.threshold + 1
	match := ""
	for _, candidate := range s.domains {
		if domain == candidate {
			return ""
		}
		d := boundedDistance(domain, candidate, s.threshold)
		if d >= 0 && d < best {
			best = d
			match = candidate
		}
	}
	return match
}

// boundedDistance computes the Levenshtein distance between a and b, but
// gives up and returns -1 as soon as the distance provably exceeds max.
// The two-row formulation keeps memory at O(min(len a, len b)).
func boundedDistance(a, b string, max int) int {
	ar := []rune(a)
	br := []rune(b)

	// A length gap larger than max already costs more than max edits.
	if diff := len(ar) - len(br); diff > max || -diff > max {
		return -1
	}
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}
	if len(ar) > len(br) {
		ar, br = br, ar
	}

	prev := make([]int, len(ar)+1)
	curr := make([]int, len(ar)+1)
	for i := range prev {
		prev[i] = i
	}

	for j, bc := range br {
		curr[0] = j + 1
		rowMin := curr[0]
		for i, ac := range ar {
			cost := 1
			if ac == bc {
				cost = 0
			}
			curr[i+1] = min3(
				curr[i]+1,    // deletion
				prev[i+1]+1,  // insertion
				prev[i]+cost, // substitution
			)
			if curr[i+1] < rowMin {
				rowMin = curr[i+1]
			}
		}
		if rowMin > max {
			return -1
		}
		prev, curr = curr, prev
	}

	if d := prev[len(ar)]; d <= max {
		return d
	}
	return -1
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}
