package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/agentconfig"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/bant"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/config"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/conversation"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/handler"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/intent"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/knowledge"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/ledger"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/llm"
	natsclient "github.com/marwie0904/leadify-RE-APP-sub004/internal/nats"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/notify"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/service"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/logger"
)

// app holds the wired service and everything that needs closing.
type app struct {
	chat    *service.ChatService
	checks  map[string]handler.Checker
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) closeWith(c io.Closer) {
	a.closers = append(a.closers, func() { _ = c.Close() })
}

func build(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *app, err error) {
	a := &app{checks: make(map[string]handler.Checker)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	configs, err := openConfigs(ctx, cfg, log, a)
	if err != nil {
		return nil, err
	}

	records, err := openLedger(ctx, cfg, a)
	if err != nil {
		return nil, err
	}
	usage := ledger.New(records, configs)

	client, embedder, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	gw := llm.NewGateway(client, usage, log, llm.GatewayConfig{
		Model:           cfg.LLMModel,
		EmbeddingModel:  cfg.EmbeddingModel,
		Timeout:         cfg.LLMCallTimeout,
		BreakerFailures: cfg.LLMBreakerFailures,
		BreakerCooldown: cfg.LLMBreakerCooldown,
	})
	if embedder != nil {
		gw.WithEmbedder(embedder)
	}
	log.Info("model provider ready", zap.String("provider", gw.Provider()), zap.String("model", cfg.LLMModel))

	var search knowledge.Searcher = knowledge.NoopSearcher{}
	if cfg.ElasticsearchURL != "" {
		es, err := knowledge.NewElasticSearcher(knowledge.ElasticConfig{
			Addresses:   strings.Split(cfg.ElasticsearchURL, ","),
			Username:    cfg.ElasticsearchUsername,
			Password:    cfg.ElasticsearchPassword,
			IndexPrefix: cfg.KnowledgeIndexPrefix,
		}, gw, log)
		if err != nil {
			return nil, err
		}
		search = es
		a.checks["elasticsearch"] = es.Ping
	}

	var store conversation.Store = conversation.NewMemoryStore()
	if cfg.RedisURL != "" {
		rs, err := conversation.OpenRedis(ctx, cfg.RedisURL, cfg.ConversationTTL)
		if err != nil {
			return nil, err
		}
		a.closeWith(rs)
		a.checks["redis"] = rs.Ping
		store = rs
	}

	deps := service.Deps{
		Store: store,
		Machine: conversation.NewMachine(
			intent.NewRouter(gw, log),
			bant.NewExtractor(gw, log),
			gw, search, log,
			conversation.MachineConfig{HistoryWindow: cfg.HistoryWindow},
		),
		Configs: configs,
		Ledger:  usage,
		Logger:  log,
	}

	if cfg.NATSURL != "" {
		nc, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, nc.Close)
		a.checks["nats"] = nc.Ping

		streams := natsclient.NewStreamManager(nc)
		if err := streams.EnsureStreams(ctx); err != nil {
			return nil, err
		}
		deps.Audit = streams
		deps.Reader = streams
		deps.Sinks = append(deps.Sinks, streams)
	} else {
		log.Warn("NATS_URL not set, audit log and lead stream disabled")
	}

	if cfg.SNSTopicARN != "" {
		sns, err := notify.NewSNSNotifier(ctx, cfg.AWSRegion, cfg.SNSTopicARN, log)
		if err != nil {
			return nil, err
		}
		deps.Sinks = append(deps.Sinks, sns)
	}

	a.chat = service.NewChatService(deps)
	return a, nil
}

func openConfigs(ctx context.Context, cfg *config.Config, log *logger.Logger, a *app) (agentconfig.Source, error) {
	switch {
	case cfg.AgentConfigDir != "":
		src, err := agentconfig.OpenDir(cfg.AgentConfigDir, log)
		if err != nil {
			return nil, err
		}
		log.Info("agent configs loaded", zap.Strings("agents", src.Agents()))
		return src, nil
	case cfg.AgentConfigDSN != "":
		src, err := agentconfig.OpenPostgres(ctx, cfg.AgentConfigDSN)
		if err != nil {
			return nil, err
		}
		a.closeWith(src)
		a.checks["agent_configs"] = src.Ping
		return src, nil
	}
	log.Warn("no agent config source, every agent uses the default scoring rules")
	src, err := agentconfig.NewStatic()
	if err != nil {
		return nil, err
	}
	src.Fallback = true
	return src, nil
}

func openLedger(ctx context.Context, cfg *config.Config, a *app) (ledger.Store, error) {
	switch cfg.LedgerDriver {
	case "sqlite", "postgres":
		s, err := ledger.OpenSQL(ctx, ledger.Dialect(cfg.LedgerDriver), cfg.LedgerDSN)
		if err != nil {
			return nil, err
		}
		a.closeWith(s)
		a.checks["ledger"] = s.Ping
		return s, nil
	case "memory":
		return ledger.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unsupported ledger driver %q", cfg.LedgerDriver)
}

// newProvider returns the completion client and, when the completion
// provider cannot embed, an OpenAI embedder if a key is configured.
func newProvider(cfg *config.Config) (llm.Client, llm.Embedder, error) {
	switch cfg.DefaultLLM {
	case "anthropic":
		client, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, nil, err
		}
		if cfg.OpenAIAPIKey == "" {
			return client, nil, nil
		}
		embedder, err := llm.NewOpenAIClientWithBaseURL(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return client, embedder, nil
	default:
		client, err := llm.NewOpenAIClientWithBaseURL(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	}
}
