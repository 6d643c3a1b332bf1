// Package vote tallies replica results by output digest and decides
// whether a strict supermajority agreed.
//
// Disagreement is not an error: a round without quorum returns a
// ConsensusResult whose decision is types.DissonanceDecision. Errors
// are reserved for bad thresholds and corrupted results.
package vote

import (
	"bytes"
	"fmt"
	"math/big"
	"slices"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/canon"
	"github.com/blockberries/resonance/types"
)

// ValidateQuorum checks that quorum is a strict supermajority of total:
// 1 <= quorum <= total and 2*quorum > total. Exactly half is rejected
// because it admits two disjoint winning groups.
func ValidateQuorum(quorum, total int) error {
	if total < 1 {
		return fmt.Errorf("%w: no replicas", resonance.ErrInvalidQuorum)
	}
	if quorum < 1 || quorum > total || 2*quorum <= total {
		return fmt.Errorf("%w: %d of %d", resonance.ErrInvalidQuorum, quorum, total)
	}
	return nil
}

// MinQuorum returns the smallest strict supermajority of total.
func MinQuorum(total int) int {
	return total/2 + 1
}

// Vote tallies results and decides the round.
//
// Every successful result's digest is recomputed from its decision and
// explanation; a carried digest that disagrees fails the round with
// resonance.ErrDigestMismatch. Failed results count toward the total
// but cast no vote. The winning fields are copied from the first
// agreeing result in input order, so the outcome does not depend on
// arrival order.
//
// meta is copied into the result; its Quorum and FailedReplicas are
// filled in here.
func Vote(results []types.ReplicaResult, quorum int, meta types.RoundMeta) (types.ConsensusResult, error) {
	total := len(results)
	if err := ValidateQuorum(quorum, total); err != nil {
		return types.ConsensusResult{}, err
	}

	histogram := make(map[types.Digest]int)
	first := make(map[types.Digest]int)
	var failed []string
	for i, r := range results {
		if !r.OK() {
			failed = append(failed, r.ReplicaID)
			continue
		}
		if err := canon.CheckOutput(r.Decision, r.Explanation); err != nil {
			return types.ConsensusResult{}, fmt.Errorf("%w: replica %s: %v", resonance.ErrDigestMismatch, r.ReplicaID, err)
		}
		if got := canon.OutputDigest(r.Decision, r.Explanation); got != r.Digest {
			return types.ConsensusResult{}, fmt.Errorf("%w: replica %s carried %s, output hashes to %s",
				resonance.ErrDigestMismatch, r.ReplicaID, r.Digest.Short(), got.Short())
		}
		if _, seen := first[r.Digest]; !seen {
			first[r.Digest] = i
		}
		histogram[r.Digest]++
	}

	winner, count := leader(histogram)

	meta.Quorum = quorum
	meta.FailedReplicas = failed
	out := types.ConsensusResult{
		VoteCount:     count,
		TotalReplicas: total,
		ResonanceRate: rate(count, total),
		Histogram:     histogram,
		Meta:          meta,
	}
	if count >= quorum {
		w := results[first[winner]]
		out.Decision = w.Decision
		out.Explanation = w.Explanation
		out.Confidence = w.Confidence
		out.Digest = winner
		out.ConsensusAchieved = true
		return out, nil
	}

	out.Decision = types.DissonanceDecision
	out.Explanation = fmt.Sprintf("no output reached quorum %d of %d (largest group %d, %d distinct outputs)",
		quorum, total, count, len(histogram))
	return out, nil
}

// leader returns the digest with the most votes. Ties break on the
// smaller digest so the choice is deterministic; with a strict
// supermajority quorum a tie can never win.
func leader(histogram map[types.Digest]int) (types.Digest, int) {
	digests := make([]types.Digest, 0, len(histogram))
	for d := range histogram {
		digests = append(digests, d)
	}
	slices.SortFunc(digests, func(a, b types.Digest) int {
		return bytes.Compare(a[:], b[:])
	})

	var best types.Digest
	bestCount := 0
	for _, d := range digests {
		if n := histogram[d]; n > bestCount {
			best, bestCount = d, n
		}
	}
	return best, bestCount
}

// rate returns count/total, computed exactly and rounded once.
func rate(count, total int) float64 {
	if total == 0 {
		return 0
	}
	f, _ := big.NewRat(int64(count), int64(total)).Float64()
	return f
}
