// Package score detects the end-of-session sentinel in counterpart replies
// and extracts the embedded score block that terminal replies carry.
//
// The score block is free-form model text, not a validated payload, so
// extraction is best effort: a terminal reply whose text does not match the
// expected grammar degrades to a null record instead of failing, and the
// session is finalized either way.
package score

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/talimhq/talim/pkg/types"
)

// Sentinel is the exact phrase a counterpart reply contains when the
// simulated conversation has concluded and scoring should be extracted.
// Matching is case-sensitive substring search.
const Sentinel = "Eğitim simülasyonumuz burada bitti."

// maxItems bounds how many rubric entries one reply may carry. Replies with
// more matches keep the first maxItems in order of appearance.
const maxItems = 10

var (
	// pairRe matches one rubric entry: `"Key<N>": "<label>", "Puan<N>": <int>`.
	// The two indices must agree; mismatched indices are not a pair.
	pairRe = regexp.MustCompile(`"Key(\d+)"\s*:\s*"([^"]*)"\s*,\s*"Puan(\d+)"\s*:\s*(-?\d+)`)

	// totalRe matches the explicit total token: `"Toplam_Puan": <int>`.
	totalRe = regexp.MustCompile(`"Toplam_Puan"\s*:\s*(-?\d+)`)
)

// ContainsSentinel reports whether reply declares the session over.
func ContainsSentinel(reply string) bool {
	return strings.Contains(reply, Sentinel)
}

// Extract parses the score block out of a terminal reply.
//
// Rules, in order:
//   - Every `"Key<N>": "<label>", "Puan<N>": <int>` group with matching
//     indices yields one item.
//   - An explicit `"Toplam_Puan": <int>` token sets the total.
//   - When the total token is absent but at least one item was found, the
//     total is the sum of the item points.
//   - When no items are found the record is null regardless of any stray
//     total token — the caller still finalizes the session with it.
func Extract(reply string) types.ScoreRecord {
	var rec types.ScoreRecord

	for _, m := range pairRe.FindAllStringSubmatch(reply, -1) {
		if m[1] != m[3] {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		points, err := strconv.Atoi(m[4])
		if err != nil {
			continue
		}
		rec.Items = append(rec.Items, types.ScoreItem{
			N:      n,
			Label:  m[2],
			Points: points,
		})
		if len(rec.Items) == maxItems {
			break
		}
	}

	if len(rec.Items) == 0 {
		return types.ScoreRecord{}
	}

	if m := totalRe.FindStringSubmatch(reply); m != nil {
		if total, err := strconv.Atoi(m[1]); err == nil {
			rec.Total = &total
		}
	}
	if rec.Total == nil {
		sum := rec.Sum()
		rec.Total = &sum
	}
	return rec
}
