// Package integrate turns a vision verdict into a grounded compliance report.
package integrate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ppiankov/inspecta/internal/chunk"
	"github.com/ppiankov/inspecta/internal/logger"
	"github.com/ppiankov/inspecta/internal/model"
	"github.com/ppiankov/inspecta/internal/vision"
	"github.com/ppiankov/inspecta/internal/worker"
)

const defaultConcurrency = 4

// VisionClient produces the raw findings for a photograph
type VisionClient interface {
	AnalyzeImage(ctx context.Context, image []byte, it model.InstallationType) (*vision.RawAnalysis, error)
}

// Retriever grounds findings in the regulatory corpus
type Retriever interface {
	FindApplicableArticles(ctx context.Context, text string, k int) ([]model.Citation, error)
	VerifyArticle(ctx context.Context, label string) bool
}

// Integrator runs the analysis of one photograph end to end. It holds no
// per-request state and may serve concurrent requests.
type Integrator struct {
	vision      VisionClient
	retriever   Retriever
	concurrency int
	log         logrus.FieldLogger
	now         func() time.Time
	newID       func() string
}

// Option configures an Integrator
type Option func(*Integrator)

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(i *Integrator) { i.log = logger.OrDiscard(log) }
}

// WithClock replaces time.Now for report timestamps
func WithClock(now func() time.Time) Option {
	return func(i *Integrator) { i.now = now }
}

// New creates an Integrator. cfg.Concurrency bounds the per-finding lookups.
func New(v VisionClient, r Retriever, cfg model.IntegrateConfig, opts ...Option) *Integrator {
	i := &Integrator{
		vision:      v,
		retriever:   r,
		concurrency: cfg.Concurrency,
		log:         logger.Discard(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	if i.concurrency <= 0 {
		i.concurrency = defaultConcurrency
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Analyze inspects image and returns the integrated report. On failure no
// report is returned and the error carries its kind.
func (i *Integrator) Analyze(ctx context.Context, image []byte, it model.InstallationType) (*model.AnalysisReport, error) {
	a, err := i.Run(ctx, image, it)
	if err != nil {
		return nil, err
	}
	return a.Report, nil
}

// Run is Analyze but returns the tracked Analysis, including its state
// history when the request failed.
func (i *Integrator) Run(ctx context.Context, image []byte, it model.InstallationType) (*Analysis, error) {
	a := newAnalysis(i.newID(), it, i.now)
	log := i.log.WithFields(logrus.Fields{"analysis": a.ID, "type": it})

	raw, err := i.vision.AnalyzeImage(ctx, image, it)
	if err != nil {
		log.WithError(err).Warn("vision stage failed")
		return a, a.fail(err)
	}
	a.Raw = raw
	if err := a.advance(StateVisionDone); err != nil {
		return a, a.fail(err)
	}

	if err := i.finish(ctx, a, log); err != nil {
		return a, err
	}
	log.WithField("findings", len(a.Findings)).Info("analysis integrated")
	return a, nil
}

// IntegrateRaw grounds and integrates a vision result obtained elsewhere
func (i *Integrator) IntegrateRaw(ctx context.Context, raw *vision.RawAnalysis, it model.InstallationType) (*model.AnalysisReport, error) {
	if raw == nil {
		return nil, model.Errorf(model.KindInternal, "integrate", "nil vision result")
	}
	a := newAnalysis(i.newID(), it, i.now)
	a.Raw = raw
	if err := a.advance(StateVisionDone); err != nil {
		return nil, err
	}
	if err := i.finish(ctx, a, i.log.WithField("analysis", a.ID)); err != nil {
		return nil, err
	}
	return a.Report, nil
}

// finish runs the normative and integration stages
func (i *Integrator) finish(ctx context.Context, a *Analysis, log logrus.FieldLogger) error {
	findings, err := i.ground(ctx, a.Raw.NonConformities, log)
	if err != nil {
		return a.fail(err)
	}
	a.Findings = findings
	if err := a.advance(StateNormativeDone); err != nil {
		return a.fail(err)
	}

	a.Report = i.integrate(a)
	if err := a.advance(StateIntegrated); err != nil {
		a.Report = nil
		return a.fail(err)
	}
	return nil
}

// ground resolves an article for every finding concurrently, keeping order
func (i *Integrator) ground(ctx context.Context, raw []vision.RawFinding, log logrus.FieldLogger) ([]model.Finding, error) {
	if len(raw) == 0 {
		return []model.Finding{}, nil
	}

	pool := worker.NewPool(ctx, i.concurrency)
	pool.Start()
	for idx, f := range raw {
		job := &groundJob{finding: f, integrator: i, log: log.WithField("finding", idx)}
		if err := pool.Submit(job); err != nil {
			break
		}
	}

	results, err := pool.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, model.NewError(model.KindUpstreamUnavailable, "normative lookup", err)
	}

	findings := make([]model.Finding, len(raw))
	for idx, r := range results {
		res := r.(*groundResult)
		if res.err != nil {
			return nil, res.err
		}
		f := raw[idx]
		findings[idx] = model.Finding{
			Description:    f.Description,
			Article:        res.article,
			Severity:       ClassifySeverity(f.Description),
			Location:       f.Location,
			Recommendation: f.Recommendation,
		}
	}
	return findings, nil
}

// resolveArticle keeps a proposed article the corpus confirms, falls back to
// the best retrieved citation and returns nil when neither exists
func (i *Integrator) resolveArticle(ctx context.Context, f vision.RawFinding, log logrus.FieldLogger) (*string, error) {
	if proposed := chunk.NormalizeArticle(f.Article); proposed != "" {
		if i.retriever.VerifyArticle(ctx, proposed) {
			return &proposed, nil
		}
		log.WithField("article", proposed).Debug("proposed article not in corpus")
	}

	cites, err := i.retriever.FindApplicableArticles(ctx, f.Description, 0)
	if err != nil {
		return nil, err
	}
	if len(cites) == 0 {
		return nil, nil
	}
	return model.StrPtr(cites[0].Article), nil
}

func (i *Integrator) integrate(a *Analysis) *model.AnalysisReport {
	classification := Classify(a.Findings)

	conformities := a.Raw.Conformities
	if conformities == nil {
		conformities = []string{}
	}

	return &model.AnalysisReport{
		ID:               a.ID,
		InstallationType: a.Type,
		Classification:   classification,
		Findings:         a.Findings,
		Conformities:     conformities,
		Summary:          Summarize(classification.Status, a.Findings, a.Raw.Summary),
		Recommendations:  recommendations(a.Raw, a.Findings),
		Model:            a.Raw.Model,
		CreatedAt:        i.now().UTC(),
	}
}

// recommendations uses the model's general list, or the per-finding ones when
// it gave none
func recommendations(raw *vision.RawAnalysis, findings []model.Finding) []string {
	if len(raw.Recommendations) > 0 {
		return raw.Recommendations
	}
	seen := map[string]bool{}
	var out []string
	for _, f := range findings {
		r := strings.TrimSpace(f.Recommendation)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

type groundJob struct {
	finding    vision.RawFinding
	integrator *Integrator
	log        logrus.FieldLogger
}

type groundResult struct {
	article *string
	err     error
}

func (r *groundResult) GetError() error {
	return r.err
}

// Execute leaves the finding without an article when a lookup fails. Only an
// empty corpus or cancellation of the request is reported.
func (j *groundJob) Execute(ctx context.Context) worker.Result {
	article, err := j.integrator.resolveArticle(ctx, j.finding, j.log)
	if err == nil {
		return &groundResult{article: article}
	}
	if ctx.Err() != nil {
		return &groundResult{err: model.NewError(model.KindUpstreamUnavailable, "normative lookup", ctx.Err())}
	}
	if errors.Is(err, model.ErrCollectionEmpty) {
		return &groundResult{err: err}
	}
	j.log.WithError(err).Warn("article lookup failed, finding left without article")
	return &groundResult{}
}
