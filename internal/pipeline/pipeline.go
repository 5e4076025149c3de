// Package pipeline orchestrates one analysis run: it owns the parse caches,
// runs the analyzers in a fixed order, isolates their failures and collapses
// their findings into the final report.
package pipeline

import (
	"query-doctor/internal/analyzer"
	"query-doctor/internal/config"
	"query-doctor/internal/dedup"
	"query-doctor/internal/model"
	"query-doctor/internal/schema"
	"query-doctor/internal/sqlparse"

	"go.uber.org/zap"
)

// Pipeline is a single-use orchestrator. Analysis is one synchronous pass:
// no analyzer runs concurrently, and the only shared state is the read-only
// metadata index and the extractor caches, which are pure functions of their
// SQL input.
type Pipeline struct {
	ext       *sqlparse.Extractor
	analyzers []model.Analyzer
	resolver  *dedup.Resolver
	watchdog  *MemoryWatchdog
	log       *zap.Logger
}

// New wires the closed analyzer set in its fixed execution order.
func New(cfg *config.Config, meta *schema.Index, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	ext := sqlparse.NewExtractor()
	keys := analyzer.NewKeyBuilder(ext)

	analyzers := []model.Analyzer{
		analyzer.NewNPlusOne(ext, keys, meta, cfg.NPlusOneThreshold),
		analyzer.NewCartesianProduct(ext, meta),
		analyzer.NewJoinOptimization(ext, meta, cfg.JoinRecommendedMax, cfg.JoinCriticalMax),
		analyzer.NewHydrationVolume(ext, cfg.RowWarnThreshold, cfg.RowCriticalThreshold),
		analyzer.NewInjectionRisk(ext, analyzer.ParseRiskLevel(cfg.InjectionMinLevel)),
	}

	return &Pipeline{
		ext:       ext,
		analyzers: analyzers,
		resolver:  dedup.NewResolver(ext),
		watchdog:  NewMemoryWatchdog(cfg.MemoryLimitMB, cfg.MemoryCeilingFraction),
		log:       log,
	}
}

// Run executes every analyzer over the query stream and returns the
// deduplicated report. The report is best effort: a failing analyzer is
// logged and omitted, and memory pressure skips whatever has not run yet.
func (p *Pipeline) Run(queries []model.QueryRecord) *model.Report {
	report := &model.Report{AnalyzedQueries: len(queries)}

	var raw []model.Issue
	for i, a := range p.analyzers {
		if p.watchdog.Exceeded() {
			report.SkippedAnalyzers = len(p.analyzers) - i
			p.log.Warn("memory ceiling reached, skipping remaining analyzers",
				zap.Int("skipped", report.SkippedAnalyzers))
			break
		}

		issues, ok := p.runIsolated(a, queries)
		if !ok {
			report.FailedAnalyzers++
			continue
		}
		raw = append(raw, issues...)
	}

	report.Issues = p.resolver.Deduplicate(raw)
	return report
}

// runIsolated collects one analyzer's issues, stopping its iteration early
// under memory pressure. A panic inside the analyzer is contained: its
// partial results are dropped and the rest of the run continues.
func (p *Pipeline) runIsolated(a model.Analyzer, queries []model.QueryRecord) (issues []model.Issue, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("analyzer failed, omitting its results",
				zap.String("analyzer", a.Name()),
				zap.Any("panic", r))
			issues, ok = nil, false
		}
	}()

	for issue := range a.Analyze(queries) {
		issues = append(issues, issue)
		if p.watchdog.Exceeded() {
			p.log.Warn("memory ceiling reached, stopping analyzer early",
				zap.String("analyzer", a.Name()),
				zap.Int("issues", len(issues)))
			break
		}
	}
	p.log.Debug("analyzer finished",
		zap.String("analyzer", a.Name()),
		zap.Int("issues", len(issues)))
	return issues, true
}
