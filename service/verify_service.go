package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"claimverifier-backend/llm"
	"claimverifier-backend/models"
	"claimverifier-backend/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// verifyState is the explicit progression of one claim through the engine.
// Every claim enters at stateStart and reaches exactly one terminal verdict.
type verifyState int

const (
	stateStart verifyState = iota
	stateDeterministic
	stateReasoning
	stateDone
)

// VerificationService decides a verdict for each claim: deterministic
// arithmetic against stored facts first, retrieval plus model reasoning only
// when arithmetic cannot decide, UNVERIFIABLE when neither can.
type VerificationService struct {
	provider   llm.Provider
	comparator *Comparator
	retrieval  *RetrievalService
	claims     ClaimStore
	verdicts   VerdictStore
	jobs       JobStore
	workers    int
	logger     zerolog.Logger

	// claimLocks serializes concurrent verification of the same claim so two
	// racing runs cannot interleave reads and writes of its verdict. Entries
	// are reference counted and evicted once the last holder releases.
	mu         sync.Mutex
	claimLocks map[uuid.UUID]*claimLock
}

type claimLock struct {
	mu   sync.Mutex
	refs int
}

// VerificationOption configures the verification service.
type VerificationOption func(*VerificationService)

// WithVerificationWorkers sets batch concurrency.
func WithVerificationWorkers(n int) VerificationOption {
	return func(s *VerificationService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithVerificationJobs attaches batch job tracking.
func WithVerificationJobs(jobs JobStore) VerificationOption {
	return func(s *VerificationService) {
		s.jobs = jobs
	}
}

// WithVerificationLogger attaches a logger.
func WithVerificationLogger(logger zerolog.Logger) VerificationOption {
	return func(s *VerificationService) {
		s.logger = logger
	}
}

// NewVerificationService creates a verification service.
func NewVerificationService(
	provider llm.Provider,
	comparator *Comparator,
	retrieval *RetrievalService,
	claims ClaimStore,
	verdicts VerdictStore,
	opts ...VerificationOption,
) *VerificationService {
	s := &VerificationService{
		provider:   provider,
		comparator: comparator,
		retrieval:  retrieval,
		claims:     claims,
		verdicts:   verdicts,
		workers:    4,
		logger:     zerolog.Nop(),
		claimLocks: make(map[uuid.UUID]*claimLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *VerificationService) lockClaim(id uuid.UUID) func() {
	s.mu.Lock()
	lock, ok := s.claimLocks[id]
	if !ok {
		lock = &claimLock{}
		s.claimLocks[id] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.claimLocks, id)
		}
		s.mu.Unlock()
	}
}

// VerifyClaim runs one claim through the engine and persists the verdict.
// Re-verifying replaces the previous verdict; concurrent calls for the same
// claim serialize and leave exactly one verdict row.
func (s *VerificationService) VerifyClaim(ctx context.Context, claimID uuid.UUID) (*models.Verdict, error) {
	claim, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to load claim: %w", err)
	}

	unlock := s.lockClaim(claimID)
	defer unlock()

	verdict := s.decide(ctx, claim)

	if err := s.verdicts.Upsert(ctx, verdict); err != nil {
		return nil, fmt.Errorf("failed to store verdict: %w", err)
	}

	s.logger.Info().
		Str("claim_id", claimID.String()).
		Str("label", string(verdict.Label)).
		Str("method", string(verdict.Method)).
		Msg("claim verified")

	return verdict, nil
}

// decide walks the claim through the state machine. It always terminates
// with a verdict: UNVERIFIABLE is the answer when no path can decide.
func (s *VerificationService) decide(ctx context.Context, claim *models.Claim) *models.Verdict {
	state := stateStart
	var verdict *models.Verdict

	for state != stateDone {
		switch state {
		case stateStart:
			if claim.IsForwardLooking {
				verdict = s.unverifiable(claim, "Claim is forward-looking guidance; no filed results exist to verify it against.")
				state = stateDone
				break
			}
			state = stateDeterministic

		case stateDeterministic:
			v, decided, err := s.comparator.Verify(ctx, claim)
			if err != nil {
				s.logger.Warn().Err(err).Str("claim_id", claim.ID.String()).Msg("deterministic check errored")
			}
			if decided {
				verdict = v
				state = stateDone
				break
			}
			state = stateReasoning

		case stateReasoning:
			v, err := s.verifyWithReasoning(ctx, claim)
			if err != nil {
				s.logger.Warn().Err(err).Str("claim_id", claim.ID.String()).Msg("reasoning verification failed")
				v = s.unverifiable(claim, fmt.Sprintf("Evidence-based verification failed: %v", err))
			}
			verdict = v
			state = stateDone
		}
	}

	return verdict
}

func (s *VerificationService) unverifiable(claim *models.Claim, explanation string) *models.Verdict {
	return &models.Verdict{
		ClaimID:         claim.ID,
		Label:           models.VerdictUnverifiable,
		Explanation:     explanation,
		Citations:       models.Citations{},
		ClaimedValue:    claim.Value,
		MisleadingFlags: models.StringList{},
		Confidence:      0,
		Method:          models.MethodReasoning,
	}
}

// reasoningResponse is the JSON shape the reasoning prompt asks for.
type reasoningResponse struct {
	Verdict         string   `json:"verdict"`
	ActualValue     *float64 `json:"actual_value"`
	ClaimedValue    *float64 `json:"claimed_value"`
	Difference      *float64 `json:"difference"`
	Explanation     string   `json:"explanation"`
	MisleadingFlags []string `json:"misleading_flags"`
	Confidence      string   `json:"confidence"`
	Citations       []struct {
		ChunkID string `json:"chunk_id"`
		Quote   string `json:"quote"`
	} `json:"citations"`
}

func (s *VerificationService) verifyWithReasoning(ctx context.Context, claim *models.Claim) (*models.Verdict, error) {
	candidates, err := s.retrieval.RetrieveForClaim(ctx, claim)
	if err != nil {
		return nil, fmt.Errorf("evidence retrieval failed: %w", err)
	}
	if len(candidates) == 0 {
		return s.unverifiable(claim, "No filing evidence exists for this company and period."), nil
	}

	allowed := make(map[uuid.UUID]bool, len(candidates))
	var evidence strings.Builder
	for _, c := range candidates {
		allowed[c.Chunk.ID] = true
		fmt.Fprintf(&evidence, "[chunk_id: %s]\n%s\n\n", c.Chunk.ID, c.Chunk.Text)
	}

	prompt := fmt.Sprintf(`CLAIM TO VERIFY:
- Text: %q
- Speaker: %s
- Company: %s, Q%d %d
- Metric: %s
- Claimed Value: %g %s (%s)
- Period: %s
- GAAP: %t
- Hedging Language: %t

OFFICIAL FILING EVIDENCE:
%s
INSTRUCTIONS, follow these steps exactly:

STEP 1 - IDENTIFY: What exact financial metric is being claimed? Map it to the evidence.
STEP 2 - RETRIEVE: Find exact numbers from the evidence for all relevant periods. Quote them.
STEP 3 - COMPUTE: Calculate the actual value. Show your math.
STEP 4 - COMPARE: Compare claimed vs actual. State the difference.
STEP 5 - TOLERANCE: Apply tolerance (hedged claims: within 5%%; precise claims: within 1%%).
STEP 6 - MISLEADING CHECK: Evaluate framing:
  - Cherry-picking (positive highlighted, negative hidden)?
  - GAAP vs Non-GAAP divergence?
  - Period-shopping (YoY quoted because QoQ looks bad)?
  - Base-effect (huge %% off a tiny base)?
STEP 7 - VERDICT: VERIFIED | FALSE | MISLEADING | UNVERIFIABLE
STEP 8 - CITE: List the chunk_ids and exact quotes that support your verdict. Only cite chunk_ids from the evidence above. If the evidence does not contain the data needed, the verdict is UNVERIFIABLE.

Respond with ONLY valid JSON:
{
  "verdict": "...",
  "actual_value": 123.45,
  "claimed_value": 123.45,
  "difference": 0.0,
  "explanation": "Step-by-step reasoning...",
  "misleading_flags": [],
  "confidence": "high|medium|low",
  "citations": [{"chunk_id": "...", "quote": "..."}]
}`,
		claim.RawText, claim.Speaker, claim.Ticker, claim.Quarter, claim.Year,
		claim.Metric, claim.Value, claim.Unit, claim.Scale, claim.Period,
		claim.IsGAAP, claim.Hedged, evidence.String())

	resp, err := s.provider.Generate(ctx, llm.GenerateRequest{
		System:      "You are a senior financial analyst verifying earnings call claims against official filing data.",
		Prompt:      prompt,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("reasoning call failed: %w", err)
	}

	var parsed reasoningResponse
	if err := llm.DecodeJSONObject(resp.Text, &parsed); err != nil {
		return nil, fmt.Errorf("reasoning response unparseable: %w", err)
	}

	label := models.VerdictLabel(strings.ToUpper(strings.TrimSpace(parsed.Verdict)))
	if !label.Valid() {
		return nil, fmt.Errorf("model returned unknown verdict %q", parsed.Verdict)
	}

	// Citations are only accepted for chunks that were actually presented.
	citations := models.Citations{}
	for _, c := range parsed.Citations {
		id, err := uuid.Parse(c.ChunkID)
		if err != nil || !allowed[id] {
			continue
		}
		citations = append(citations, models.Citation{ChunkID: id, Quote: c.Quote})
	}

	// A decisive verdict without grounding is not trustworthy.
	if label != models.VerdictUnverifiable && len(citations) == 0 {
		label = models.VerdictUnverifiable
		parsed.Explanation += " (Downgraded: the model cited no evidence from the presented chunks.)"
	}

	confidence := 0.5
	switch strings.ToLower(parsed.Confidence) {
	case "high":
		confidence = 1.0
	case "low":
		confidence = 0.25
	}
	if label == models.VerdictUnverifiable {
		confidence = 0
	}

	claimedValue := claim.Value
	if parsed.ClaimedValue != nil {
		claimedValue = *parsed.ClaimedValue
	}

	flags := models.StringList{}
	flags = append(flags, parsed.MisleadingFlags...)

	return &models.Verdict{
		ClaimID:         claim.ID,
		Label:           label,
		Explanation:     parsed.Explanation,
		Citations:       citations,
		ActualValue:     parsed.ActualValue,
		ClaimedValue:    claimedValue,
		Difference:      parsed.Difference,
		MisleadingFlags: flags,
		Confidence:      confidence,
		Method:          models.MethodReasoning,
	}, nil
}

// BatchResult summarizes a synchronous batch verification.
type BatchResult struct {
	JobID    uuid.UUID        `json:"job_id,omitempty"`
	Verdicts []models.Verdict `json:"verdicts"`
	Failed   int              `json:"failed"`
}

type verifyJob struct {
	service *VerificationService
	claimID uuid.UUID
}

type verifyResult struct {
	claimID uuid.UUID
	verdict *models.Verdict
	err     error
}

func (r *verifyResult) Err() error { return r.err }

func (j *verifyJob) Run(ctx context.Context) worker.Result {
	verdict, err := j.service.VerifyClaim(ctx, j.claimID)
	return &verifyResult{claimID: j.claimID, verdict: verdict, err: err}
}

// ProcessBatch verifies every claim in a scope through the worker pool and
// returns the verdicts. Individual claim failures do not abort the batch.
func (s *VerificationService) ProcessBatch(ctx context.Context, scope Scope) (*BatchResult, error) {
	claims, err := s.claims.ListByScope(ctx, scope.Ticker, scope.Year, scope.Quarter)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}

	result := &BatchResult{}
	if len(claims) == 0 {
		return result, nil
	}

	pool := worker.NewPool(s.workers)
	pool.Start(ctx)

	for _, claim := range claims {
		if err := pool.Submit(ctx, &verifyJob{service: s, claimID: claim.ID}); err != nil {
			pool.Drain()
			return nil, fmt.Errorf("failed to submit verification job: %w", err)
		}
	}

	for _, r := range pool.Drain() {
		vr := r.(*verifyResult)
		if vr.err != nil {
			result.Failed++
			s.logger.Warn().Err(vr.err).Str("claim_id", vr.claimID.String()).Msg("batch claim failed")
			continue
		}
		result.Verdicts = append(result.Verdicts, *vr.verdict)
	}

	return result, nil
}

// StartBatch creates a tracked background job for a scope and runs it. The
// returned job ID can be polled while verification proceeds.
func (s *VerificationService) StartBatch(ctx context.Context, scope Scope) (uuid.UUID, error) {
	if s.jobs == nil {
		return uuid.Nil, fmt.Errorf("job tracking is not configured")
	}

	claims, err := s.claims.ListByScope(ctx, scope.Ticker, scope.Year, scope.Quarter)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to list claims: %w", err)
	}

	steps := make(models.VerificationSteps, len(claims))
	for i, claim := range claims {
		steps[i] = models.VerificationStep{ClaimID: claim.ID.String(), Status: "pending"}
	}

	job := &models.VerificationJob{
		Ticker:  scope.Ticker,
		Year:    scope.Year,
		Quarter: scope.Quarter,
		Status:  models.JobStatusPending,
		Steps:   steps,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create job: %w", err)
	}

	go s.runBatchJob(context.WithoutCancel(ctx), job, claims)

	return job.ID, nil
}

func (s *VerificationService) runBatchJob(ctx context.Context, job *models.VerificationJob, claims []models.Claim) {
	if err := s.jobs.UpdateStatus(ctx, job.ID, models.JobStatusInProgress); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to mark job in progress")
	}

	stepIndex := make(map[string]int, len(job.Steps))
	for i, step := range job.Steps {
		stepIndex[step.ClaimID] = i
	}

	pool := worker.NewPool(s.workers)
	pool.Start(ctx)

	submitted := 0
	for _, claim := range claims {
		if err := pool.Submit(ctx, &verifyJob{service: s, claimID: claim.ID}); err != nil {
			break
		}
		submitted++
	}

	failed := 0
	for _, r := range pool.Drain() {
		vr := r.(*verifyResult)
		if i, ok := stepIndex[vr.claimID.String()]; ok {
			if vr.err != nil {
				job.Steps[i].Status = "failed"
				failed++
			} else {
				job.Steps[i].Status = "completed"
				job.Steps[i].Label = string(vr.verdict.Label)
			}
		}
		if err := s.jobs.UpdateProgress(ctx, job.ID, job.Steps); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID.String()).Msg("failed to update job progress")
		}
	}

	if failed == len(claims) && len(claims) > 0 {
		_ = s.jobs.Fail(ctx, job.ID, fmt.Sprintf("all %d claims failed verification", failed))
		return
	}
	if err := s.jobs.Complete(ctx, job.ID); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to complete job")
	}
}
