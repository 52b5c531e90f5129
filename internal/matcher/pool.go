package matcher

import (
	"github.com/shopspring/decimal"

	"semantic-reconciliation-service/internal/models"
)

// candidate is one target prepared for a single run
type candidate struct {
	record    *models.TargetRecord
	index     int
	narration string
	vector    []float32
	consumed  bool
}

// pool holds the candidates of one run in target input order, with an
// exact-amount index so a scan only visits targets that can match
type pool struct {
	entries   []*candidate
	byAmount  map[string][]int
	remaining int
}

func amountKey(amount decimal.Decimal) string {
	return amount.String()
}

func newPool(targets []models.TargetRecord) *pool {
	p := &pool{
		entries:  make([]*candidate, 0, len(targets)),
		byAmount: make(map[string][]int),
	}
	for i := range targets {
		p.entries = append(p.entries, &candidate{record: &targets[i], index: i})
		key := amountKey(targets[i].Amount)
		p.byAmount[key] = append(p.byAmount[key], i)
	}
	p.remaining = len(targets)
	return p
}

// scan returns the pool positions to visit for amount, in ascending order.
// Consumed entries are still returned and must be skipped by the caller.
func (p *pool) scan(amount decimal.Decimal, useIndex bool) []int {
	if useIndex {
		return p.byAmount[amountKey(amount)]
	}
	all := make([]int, len(p.entries))
	for i := range all {
		all[i] = i
	}
	return all
}

func (p *pool) consume(i int) {
	if !p.entries[i].consumed {
		p.entries[i].consumed = true
		p.remaining--
	}
}

// unconsumed returns the remaining targets in input order
func (p *pool) unconsumed() []models.TargetRecord {
	out := make([]models.TargetRecord, 0, p.remaining)
	for _, c := range p.entries {
		if !c.consumed {
			out = append(out, *c.record)
		}
	}
	return out
}

// AmountIndexStats describes how well amounts partition a target collection
type AmountIndexStats struct {
	Targets        int `json:"targets"`
	DistinctAmount int `json:"distinctAmounts"`
	LargestBucket  int `json:"largestBucket"`
}

// IndexStats reports the exact-amount buckets the engine would scan for targets
func IndexStats(targets []models.TargetRecord) AmountIndexStats {
	p := newPool(targets)
	stats := AmountIndexStats{Targets: len(targets), DistinctAmount: len(p.byAmount)}
	for _, bucket := range p.byAmount {
		if len(bucket) > stats.LargestBucket {
			stats.LargestBucket = len(bucket)
		}
	}
	return stats
}
