package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"claimverifier-backend/config"
	"claimverifier-backend/models"
	"claimverifier-backend/repository"
)

// Comparator verifies claims arithmetically against stored financial facts.
// It only claims a verdict when the data supports one; anything else falls
// through to the reasoning path.
type Comparator struct {
	facts      FactStore
	chunks     ChunkStore
	tolerances config.Tolerances
}

// NewComparator creates a deterministic comparator.
func NewComparator(facts FactStore, chunks ChunkStore, tolerances config.Tolerances) *Comparator {
	return &Comparator{facts: facts, chunks: chunks, tolerances: tolerances}
}

// computedMetrics are derivable from other facts when the filing never
// states them directly.
var computedMetrics = map[string]func(c *Comparator, ctx context.Context, ticker string, year, quarter int) (float64, bool){
	"free_cash_flow": func(c *Comparator, ctx context.Context, ticker string, year, quarter int) (float64, bool) {
		opCash, ok1 := c.lookup(ctx, ticker, year, quarter, "operating_cash_flow")
		capex, ok2 := c.lookup(ctx, ticker, year, quarter, "capex")
		if !ok1 || !ok2 {
			return 0, false
		}
		return opCash - capex, true
	},
	"operating_margin": func(c *Comparator, ctx context.Context, ticker string, year, quarter int) (float64, bool) {
		opInc, ok1 := c.lookup(ctx, ticker, year, quarter, "operating_income")
		rev, ok2 := c.lookup(ctx, ticker, year, quarter, "revenue")
		if !ok1 || !ok2 || rev == 0 {
			return 0, false
		}
		return 100 * opInc / rev, true
	},
	"gross_margin": func(c *Comparator, ctx context.Context, ticker string, year, quarter int) (float64, bool) {
		gross, ok1 := c.lookup(ctx, ticker, year, quarter, "gross_profit")
		rev, ok2 := c.lookup(ctx, ticker, year, quarter, "revenue")
		if !ok1 || !ok2 || rev == 0 {
			return 0, false
		}
		return 100 * gross / rev, true
	},
}

func (c *Comparator) lookup(ctx context.Context, ticker string, year, quarter int, metric string) (float64, bool) {
	fact, err := c.facts.Lookup(ctx, ticker, year, quarter, metric)
	if err == nil {
		return fact.Value, true
	}
	return 0, false
}

// resolveMetric fetches the actual value for a metric, falling back to the
// computed-metric table when the fact is absent.
func (c *Comparator) resolveMetric(ctx context.Context, ticker string, year, quarter int, metric string) (float64, bool, error) {
	fact, err := c.facts.Lookup(ctx, ticker, year, quarter, metric)
	if err == nil {
		return fact.Value, true, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return 0, false, err
	}
	if compute, ok := computedMetrics[metric]; ok {
		if v, ok := compute(c, ctx, ticker, year, quarter); ok {
			return v, true, nil
		}
	}
	return 0, false, nil
}

// Verify attempts a deterministic verdict. The second return is false when
// the claim cannot be decided from stored facts, in which case the caller
// escalates to the reasoning engine. No model is ever called here.
func (c *Comparator) Verify(ctx context.Context, claim *models.Claim) (*models.Verdict, bool, error) {
	if claim.IsForwardLooking {
		return nil, false, nil
	}

	if claim.Period.IsComparison() {
		return c.verifyGrowth(ctx, claim)
	}
	if claim.Unit == "%" {
		// A bare percentage without a comparison period is only decidable
		// when the metric itself is a ratio (margins).
		if !strings.Contains(claim.Metric, "margin") {
			return nil, false, nil
		}
	}
	return c.verifyAbsolute(ctx, claim)
}

func (c *Comparator) verifyGrowth(ctx context.Context, claim *models.Claim) (*models.Verdict, bool, error) {
	current, ok, err := c.resolveMetric(ctx, claim.Ticker, claim.Year, claim.Quarter, claim.Metric)
	if err != nil || !ok {
		return nil, false, err
	}

	baseYear, baseQuarter := claim.Year, claim.Quarter
	if claim.Period == models.PeriodYoY {
		baseYear--
	} else {
		baseQuarter--
		if baseQuarter == 0 {
			baseQuarter = 4
			baseYear--
		}
	}

	base, ok, err := c.resolveMetric(ctx, claim.Ticker, baseYear, baseQuarter, claim.Metric)
	if err != nil || !ok || base == 0 {
		return nil, false, err
	}

	actualGrowth := (current - base) / base
	claimedGrowth := claim.Value
	if claim.Unit == "%" || math.Abs(claimedGrowth) > 1.0 {
		claimedGrowth /= 100
	}

	tolerance := c.tolerances.GrowthPrecise
	if claim.Hedged {
		tolerance = c.tolerances.GrowthHedged
	}

	diff := math.Abs(actualGrowth - claimedGrowth)
	explanation := fmt.Sprintf("Calculated %s %s growth: %.2f%%. Claimed: %.2f%%.",
		claim.Period, claim.Metric, actualGrowth*100, claimedGrowth*100)

	verdict := c.newVerdict(claim, actualGrowth, claimedGrowth, diff, explanation)

	switch {
	case diff <= tolerance:
		verdict.Label = models.VerdictVerified
	case signMismatch(actualGrowth, claimedGrowth, tolerance):
		verdict.Label = models.VerdictMisleading
		verdict.MisleadingFlags = append(verdict.MisleadingFlags,
			fmt.Sprintf("Claimed growth direction is inverted: actual %s moved %.2f%%.", claim.Metric, actualGrowth*100))
	default:
		verdict.Label = models.VerdictFalse
	}

	c.applyCherryPicking(ctx, claim, verdict)
	c.attachCitation(ctx, claim, verdict)
	return verdict, true, nil
}

func (c *Comparator) verifyAbsolute(ctx context.Context, claim *models.Claim) (*models.Verdict, bool, error) {
	actual, ok, err := c.resolveMetric(ctx, claim.Ticker, claim.Year, claim.Quarter, claim.Metric)
	if err != nil || !ok {
		return nil, false, err
	}

	claimed := claim.AbsoluteValue()
	diff := math.Abs(actual - claimed)

	var verdict *models.Verdict
	if claim.Metric == "eps" {
		// Penny precision: EPS must match to the cent.
		explanation := fmt.Sprintf("Actual EPS: $%.2f. Claimed: $%.2f.", actual, claimed)
		verdict = c.newVerdict(claim, actual, claimed, diff, explanation)
		if diff <= c.tolerances.EPSAbsolute {
			verdict.Label = models.VerdictVerified
		} else {
			verdict.Label = models.VerdictFalse
		}
	} else {
		tolerance := c.tolerances.RelativePrecise
		if claim.Hedged {
			tolerance = c.tolerances.RelativeHedged
		}
		threshold := tolerance * math.Abs(actual)

		explanation := fmt.Sprintf("Actual %s: %.4g. Claimed: %.4g.", claim.Metric, actual, claimed)
		verdict = c.newVerdict(claim, actual, claimed, diff, explanation)

		switch {
		case diff <= threshold:
			verdict.Label = models.VerdictVerified
		case math.Abs(math.Abs(actual)-math.Abs(claimed)) <= threshold && actual*claimed < 0:
			// Magnitude right, sign wrong: a loss presented as a gain.
			verdict.Label = models.VerdictMisleading
			verdict.MisleadingFlags = append(verdict.MisleadingFlags,
				fmt.Sprintf("Claimed magnitude matches but the actual %s has the opposite sign.", claim.Metric))
		default:
			verdict.Label = models.VerdictFalse
		}
	}

	c.applyCherryPicking(ctx, claim, verdict)
	c.attachCitation(ctx, claim, verdict)
	return verdict, true, nil
}

func (c *Comparator) newVerdict(claim *models.Claim, actual, claimed, diff float64, explanation string) *models.Verdict {
	a, d := actual, diff
	return &models.Verdict{
		ClaimID:         claim.ID,
		Explanation:     explanation,
		Citations:       models.Citations{},
		ActualValue:     &a,
		ClaimedValue:    claimed,
		Difference:      &d,
		MisleadingFlags: models.StringList{},
		Confidence:      1.0,
		Method:          models.MethodDeterministic,
	}
}

// signMismatch reports an inverted-direction claim: the magnitudes agree
// within tolerance but the signs differ.
func signMismatch(actual, claimed, tolerance float64) bool {
	if actual*claimed >= 0 {
		return false
	}
	return math.Abs(math.Abs(actual)-math.Abs(claimed)) <= tolerance
}

// applyCherryPicking checks whether surrounding metrics undercut a true
// claim: YoY growth quoted while the metric declined sharply QoQ, or
// revenue growth highlighted while net income fell. A VERIFIED verdict with
// such flags becomes MISLEADING.
func (c *Comparator) applyCherryPicking(ctx context.Context, claim *models.Claim, verdict *models.Verdict) {
	var flags []string

	if claim.Metric == "revenue" {
		revCurr, ok1 := c.lookup(ctx, claim.Ticker, claim.Year, claim.Quarter, "revenue")
		revPrev, ok2 := c.lookup(ctx, claim.Ticker, claim.Year-1, claim.Quarter, "revenue")
		niCurr, ok3 := c.lookup(ctx, claim.Ticker, claim.Year, claim.Quarter, "net_income")
		niPrev, ok4 := c.lookup(ctx, claim.Ticker, claim.Year-1, claim.Quarter, "net_income")
		if ok1 && ok2 && ok3 && ok4 && revPrev != 0 && niPrev != 0 {
			revGrowth := (revCurr - revPrev) / revPrev
			niGrowth := (niCurr - niPrev) / niPrev
			if revGrowth > 0 && niGrowth < 0 {
				flags = append(flags, "Revenue is growing YoY, but net income is declining.")
			}
		}
	}

	if claim.Period == models.PeriodYoY {
		prevQYear, prevQ := claim.Year, claim.Quarter-1
		if prevQ == 0 {
			prevQ = 4
			prevQYear--
		}
		curr, ok1 := c.lookup(ctx, claim.Ticker, claim.Year, claim.Quarter, claim.Metric)
		yoyBase, ok2 := c.lookup(ctx, claim.Ticker, claim.Year-1, claim.Quarter, claim.Metric)
		qoqBase, ok3 := c.lookup(ctx, claim.Ticker, prevQYear, prevQ, claim.Metric)
		if ok1 && ok2 && ok3 && yoyBase != 0 && qoqBase != 0 {
			yoyGrowth := (curr - yoyBase) / yoyBase
			qoqGrowth := (curr - qoqBase) / qoqBase
			if yoyGrowth > 0 && qoqGrowth < -0.05 {
				flags = append(flags, fmt.Sprintf("%s shows YoY growth but declined more than 5%% sequentially.", claim.Metric))
			}
		}
	}

	if len(flags) > 0 {
		verdict.MisleadingFlags = append(verdict.MisleadingFlags, flags...)
		if verdict.Label == models.VerdictVerified {
			verdict.Label = models.VerdictMisleading
		}
		verdict.Explanation += " " + strings.Join(flags, " ")
	}
}

// attachCitation finds the indexed financial chunk that carries the metric
// this verdict compared against, so even arithmetic verdicts point at
// filing evidence.
func (c *Comparator) attachCitation(ctx context.Context, claim *models.Claim, verdict *models.Verdict) {
	if c.chunks == nil {
		return
	}
	scoped, err := c.chunks.ListByScope(ctx, claim.Ticker, claim.Year, claim.Quarter)
	if err != nil {
		return
	}
	for _, chunk := range scoped {
		if chunk.ChunkType != models.ChunkTypeFinancial || chunk.MetricType == nil {
			continue
		}
		if *chunk.MetricType == claim.Metric {
			verdict.Citations = append(verdict.Citations, models.Citation{
				ChunkID: chunk.ID,
				Quote:   chunk.Text,
			})
			return
		}
	}
}
