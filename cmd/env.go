package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-classifier/internal/activity"
	"github.com/sells-group/contact-classifier/internal/budget"
	"github.com/sells-group/contact-classifier/internal/cache"
	"github.com/sells-group/contact-classifier/internal/classify"
	"github.com/sells-group/contact-classifier/internal/cost"
	"github.com/sells-group/contact-classifier/internal/enrich"
	"github.com/sells-group/contact-classifier/internal/metrics"
	"github.com/sells-group/contact-classifier/internal/pipeline"
	"github.com/sells-group/contact-classifier/internal/queue"
	"github.com/sells-group/contact-classifier/internal/resilience"
	"github.com/sells-group/contact-classifier/internal/rules"
	"github.com/sells-group/contact-classifier/internal/store"
	anthropicpkg "github.com/sells-group/contact-classifier/pkg/anthropic"
	"github.com/sells-group/contact-classifier/pkg/google"
	"github.com/sells-group/contact-classifier/pkg/jina"
	"github.com/sells-group/contact-classifier/pkg/sitemeta"
)

// classifierEnv holds the store, stages and instrumentation shared by the
// run, advance, serve and worker commands.
type classifierEnv struct {
	Store    store.Store
	Metrics  *metrics.Metrics
	Activity *activity.Recorder
	Breakers *resilience.Breakers

	rules  *pipeline.RulesStage
	enrich pipeline.EnrichStage
	ai     pipeline.AIStage
}

// Close releases resources held by the environment.
func (e *classifierEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// Orchestrator builds the job state machine scheduling continuations on q.
// A nil q makes every Advance a single step.
func (e *classifierEnv) Orchestrator(q queue.Enqueuer) *pipeline.Orchestrator {
	opts := []pipeline.Option{
		pipeline.WithActivity(e.Activity),
		pipeline.WithMetrics(e.Metrics),
		pipeline.WithSkipEnrichment(cfg.Enrichment.Skip),
		pipeline.WithIdleDelay(cfg.Queue.IdleDelay()),
	}
	if q != nil {
		opts = append(opts, pipeline.WithQueue(q))
	}
	return pipeline.New(e.Store, e.rules, e.enrich, e.ai, opts...)
}

// initStore opens the configured backend and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "classifier.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initClassifier sets up the store, provider clients and stages. Callers
// should defer env.Close().
func initClassifier(ctx context.Context, mode string) (*classifierEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	dict := rules.DefaultDictionary()
	if cfg.Rules.DictionaryPath != "" {
		dict, err = rules.LoadDictionary(cfg.Rules.DictionaryPath)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	engine := rules.New(dict, rules.Thresholds{
		Accept:      cfg.Rules.AcceptThreshold,
		Margin:      cfg.Rules.MarginThreshold,
		ReviewBelow: cfg.Rules.ReviewBelow,
	})

	m := metrics.New()
	rec := activity.New(st)
	retry, breakerCfg := resilience.FromConfig(cfg.Resilience)
	breakers := resilience.NewBreakers(breakerCfg, retry)
	layer := cache.New(st, cache.WithMetrics(m))
	gov := budget.Governor{
		MaxSearchCalls:  cfg.Budget.MaxSearchCalls,
		MaxAIRowPercent: cfg.Budget.MaxAIRowPercent,
		MaxAITokens:     cfg.Budget.MaxAITokens,
	}

	env := &classifierEnv{
		Store:    st,
		Metrics:  m,
		Activity: rec,
		Breakers: breakers,
		rules: pipeline.NewRulesStage(st, engine, rec, cfg.Rules.BatchSize,
			cfg.AI.AcceptThreshold, cfg.Queue.ClaimTTL()),
	}

	if !cfg.Enrichment.Skip {
		env.enrich = initEnrichStage(st, engine, layer, gov, rec, m, breakers)
	} else {
		zap.L().Info("enrichment disabled, rules feed the AI stage directly")
	}

	var classifier *classify.Classifier
	if cfg.Anthropic.Key != "" {
		opts := []anthropicpkg.Option{anthropicpkg.WithTimeout(seconds(cfg.Anthropic.TimeoutSecs))}
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicpkg.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		provider := classify.NewAnthropicProvider(
			anthropicpkg.NewClient(cfg.Anthropic.Key, opts...),
			breakers.Get("anthropic"),
			cfg.Anthropic.PrimaryModel,
			cfg.Anthropic.EscalationModel,
			cfg.Anthropic.MaxTokens,
		)
		classifier = classify.NewClassifier(provider, layer, cfg.Cache.AITTL(), cfg.AI.EscalateBelow, m)
	} else {
		zap.L().Warn("CLASSIFIER_ANTHROPIC_KEY not set, jobs needing AI classification will fail")
	}
	policy := classify.NewFallbackPolicy(cfg.AI.FallbackMaxConfidence, cfg.AI.ReassignCap, engine)
	env.ai = classify.NewStage(st, classifier, policy, gov, rec, m, cost.FromConfig(cfg.Pricing), classify.SettingsFromConfig(cfg))

	return env, nil
}

func initEnrichStage(st store.Store, engine *rules.Engine, layer *cache.Layer, gov budget.Governor,
	rec *activity.Recorder, m *metrics.Metrics, breakers *resilience.Breakers) *enrich.Stage {
	jinaClient := jina.NewClient(cfg.Jina.Key,
		jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL),
		jina.WithHTTPClient(&http.Client{Timeout: seconds(cfg.Jina.TimeoutSecs)}),
		jina.WithRateLimit(cfg.Jina.RateLimit),
	)
	search := enrich.NewJinaSearch(jinaClient, breakers.Get("jina"))

	// Google Places is optional: without a key, lookups rely on search alone.
	var places enrich.PlacesProvider
	if cfg.Google.Key != "" {
		places = enrich.NewGooglePlaces(google.NewClient(cfg.Google.Key,
			google.WithBaseURL(cfg.Google.BaseURL),
			google.WithHTTPClient(&http.Client{Timeout: seconds(cfg.Google.TimeoutSecs)}),
			google.WithRateLimit(cfg.Google.RateLimit),
		), breakers.Get("google"))
		zap.L().Info("google places api enabled")
	} else {
		zap.L().Debug("CLASSIFIER_GOOGLE_KEY not set, Google Places lookups disabled")
	}

	site := sitemeta.New(
		sitemeta.WithTimeout(seconds(cfg.SiteMeta.TimeoutSecs)),
		sitemeta.WithUserAgent(cfg.SiteMeta.UserAgent),
	)

	enricher := enrich.NewEnricher(search, places, site, engine, cfg.Enrichment.SnippetLimit, m)
	return enrich.NewStage(st, enricher, layer, gov, rec, m, enrich.SettingsFromConfig(cfg))
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
