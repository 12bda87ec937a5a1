// Command core runs the billing engine as one process: usage ingestion
// (Kafka raw topic -> preprocessed store), the periodic scheduler, the
// outbox dispatcher, and the PGMQ worker pool, spec §4/§5. Grounded on
// vidinfra-flexprice/cmd/server/main.go's fx.New/fx.Provide/fx.Invoke
// wiring shape, trimmed to this module's single deployment mode — the
// teacher's Gin/Temporal/Lambda mode switch has no equivalent here since
// this module has no HTTP API surface of its own (spec's Non-goals
// explicitly exclude the outer API layer; see SPEC_FULL.md).
package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/meteroid-oss/meteroid-sub006/internal/cache"
	"github.com/meteroid-oss/meteroid-sub006/internal/config"
	"github.com/meteroid-oss/meteroid-sub006/internal/dispatcher"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/billablemetric"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/coupon"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/customer"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/fxrate"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/invoice"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/invoicingentity"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/ledger"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/outbox"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/plan"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/price"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/subscription"
	"github.com/meteroid-oss/meteroid-sub006/internal/domain/tenant"
	"github.com/meteroid-oss/meteroid-sub006/internal/fxprovider"
	"github.com/meteroid-oss/meteroid-sub006/internal/invoicesvc"
	"github.com/meteroid-oss/meteroid-sub006/internal/kafka"
	"github.com/meteroid-oss/meteroid-sub006/internal/logger"
	"github.com/meteroid-oss/meteroid-sub006/internal/objectstore"
	"github.com/meteroid-oss/meteroid-sub006/internal/payment"
	"github.com/meteroid-oss/meteroid-sub006/internal/pdfrender"
	postgresrepo "github.com/meteroid-oss/meteroid-sub006/internal/repository/postgres"
	"github.com/meteroid-oss/meteroid-sub006/internal/postgres"
	"github.com/meteroid-oss/meteroid-sub006/internal/scheduler"
	"github.com/meteroid-oss/meteroid-sub006/internal/secrets"
	"github.com/meteroid-oss/meteroid-sub006/internal/subscriptionsvc"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
	"github.com/meteroid-oss/meteroid-sub006/internal/usage"
	"github.com/meteroid-oss/meteroid-sub006/internal/webhookclient"
	"github.com/meteroid-oss/meteroid-sub006/internal/worker"
	"github.com/meteroid-oss/meteroid-sub006/internal/worker/handlers"
	"go.uber.org/fx"
)

func init() {
	time.Local = time.UTC
}

func main() {
	app := fx.New(
		fx.Provide(
			config.New,
			newLogger,

			// Postgres
			postgres.New,

			// Repositories
			postgresrepo.NewTenantRepository,
			postgresrepo.NewCustomerRepository,
			postgresrepo.NewPriceComponentRepository,
			postgresrepo.NewCouponRepository,
			postgresrepo.NewPlanRepository,
			postgresrepo.NewSubscriptionRepository,
			postgresrepo.NewInvoiceRepository,
			postgresrepo.NewInvoicingEntityRepository,
			postgresrepo.NewBillableMetricRepository,
			postgresrepo.NewFXRateRepository,
			postgresrepo.NewLedgerRepository,
			postgresrepo.NewOutboxRepository,

			// Interface bindings so fx resolves the domain Repository
			// interfaces (what the service layer depends on) from the
			// concrete postgres implementations above.
			asTenantRepository,
			asCustomerRepository,
			asPriceRepository,
			asCouponRepository,
			asPlanRepository,
			asSubscriptionRepository,
			asInvoiceRepository,
			asInvoicingEntityRepository,
			asBillableMetricRepository,
			asFXRateRepository,
			asLedgerRepository,
			asOutboxRepository,
			asIClient,
			asAdvisoryLocker,

			// External collaborators
			newTokenCache,
			newUsageStore,
			usage.NewClient,
			kafka.NewProducer,
			kafka.NewConsumer,
			newIngestor,
			newPreprocessor,
			newPaymentProvider,
			newObjectStore,
			newSecretsService,
			newWebhookClient,
			newPDFRenderer,
			newFXProvider,

			// Services
			subscriptionsvc.New,
			invoicesvc.New,
			scheduler.New,

			// Outbox dispatch + PGMQ workers
			newQueueRegistry,
			newDispatcher,
			newWorkerPool,
		),
		fx.Invoke(
			startUsageIngestionLoop,
			startScheduler,
			startDispatchLoop,
			startWorkerPool,
		),
	)
	app.Run()
}

func newLogger(cfg *config.Configuration) (*logger.Logger, error) {
	return logger.New(cfg.Logging.Level)
}

// --- interface bindings -----------------------------------------------

func asTenantRepository(r *postgresrepo.TenantRepository) tenant.Repository                   { return r }
func asCustomerRepository(r *postgresrepo.CustomerRepository) customer.Repository             { return r }
func asPriceRepository(r *postgresrepo.PriceComponentRepository) price.Repository             { return r }
func asCouponRepository(r *postgresrepo.CouponRepository) coupon.Repository                   { return r }
func asPlanRepository(r *postgresrepo.PlanRepository) plan.Repository                         { return r }
func asSubscriptionRepository(r *postgresrepo.SubscriptionRepository) subscription.Repository { return r }
func asInvoiceRepository(r *postgresrepo.InvoiceRepository) invoice.Repository                { return r }
func asInvoicingEntityRepository(r *postgresrepo.InvoicingEntityRepository) invoicingentity.Repository {
	return r
}
func asBillableMetricRepository(r *postgresrepo.BillableMetricRepository) billablemetric.Repository {
	return r
}
func asFXRateRepository(r *postgresrepo.FXRateRepository) fxrate.Repository { return r }
func asLedgerRepository(r *postgresrepo.LedgerRepository) ledger.Repository { return r }
func asOutboxRepository(r *postgresrepo.OutboxRepository) outbox.Repository { return r }
func asIClient(db *postgres.DB) postgres.IClient                           { return db }
func asAdvisoryLocker(db *postgres.DB) scheduler.AdvisoryLocker            { return db }

// --- external collaborators --------------------------------------------

func newUsageStore(cfg *config.Configuration, log *logger.Logger) (usage.Store, error) {
	return usage.NewClickHouseStore(&cfg.ClickHouse, log)
}

func newIngestor(cfg *config.Configuration, producer kafka.MessageProducer, log *logger.Logger) usage.Ingestor {
	return usage.NewKafkaIngestor(producer, cfg.Kafka.RawTopic, log)
}

func newPreprocessor(metrics billablemetric.Repository, store usage.Store, log *logger.Logger) usage.Preprocessor {
	return usage.NewKafkaPreprocessor(metrics, store, log)
}

func newPaymentProvider(cfg *config.Configuration) payment.Provider {
	connect, read := cfg.Payment.DefaultHTTPTimeouts()
	return payment.NewStripeProvider(cfg.Payment.StripeSecretKey, connect, read)
}

func newObjectStore(cfg *config.Configuration) (objectstore.Store, error) {
	return objectstore.New(context.Background(), cfg.ObjectStore.Region, cfg.ObjectStore.Bucket, cfg.ObjectStore.Prefix)
}

func newSecretsService(cfg *config.Configuration) (secrets.Service, error) {
	return secrets.New(cfg.Secrets.EncryptionKeyHex)
}

func newTokenCache(cfg *config.Configuration) *cache.TokenCache {
	return cache.New(cfg.Cache.TokenTTL, cfg.Cache.TokenCapacity)
}

func newWebhookClient(cfg *config.Configuration, apps *cache.TokenCache) (webhookclient.Client, error) {
	return webhookclient.New(cfg.Webhook.SvixBaseURL, cfg.Webhook.SvixAuthToken, cfg.Webhook.Enabled, apps)
}

func newPDFRenderer(cfg *config.Configuration) pdfrender.Renderer {
	return pdfrender.New(cfg.PDFRender.Endpoint, cfg.PDFRender.ConnectTimeout, cfg.PDFRender.ReadTimeout)
}

func newFXProvider(cfg *config.Configuration) fxprovider.Provider {
	return fxprovider.New(cfg.FX.Endpoint, cfg.FX.APIKey, cfg.FX.ConnectTimeout, cfg.FX.ReadTimeout)
}

// --- outbox dispatch + PGMQ worker pool ---------------------------------

// queueNames is the fixed set of PGMQ queues spec §4.6 names handlers for.
var queueNames = []types.QueueName{
	types.QueuePDFRender,
	types.QueueWebhookOut,
	types.QueuePaymentRequest,
	types.QueueQuoteConversion,
	types.QueueBillableMetricSync,
}

func newQueueRegistry(db *postgres.DB) dispatcher.Registry {
	reg := make(dispatcher.Registry, len(queueNames))
	for _, name := range queueNames {
		reg[name] = postgresrepo.NewQueue(db, name)
	}
	return reg
}

func newDispatcher(outboxes outbox.Repository, queues dispatcher.Registry, locker scheduler.AdvisoryLocker, cfg *config.Configuration, log *logger.Logger) *dispatcher.Dispatcher {
	return dispatcher.New(outboxes, queues, locker, cfg.PGMQ.DispatchBatchSize, log)
}

func newWorkerPool(
	db *postgres.DB,
	invoices invoice.Repository,
	customers customer.Repository,
	ledgers ledger.Repository,
	subs subscription.Repository,
	metrics billablemetric.Repository,
	renderer pdfrender.Renderer,
	store objectstore.Store,
	webhook webhookclient.Client,
	provider payment.Provider,
	cfg *config.Configuration,
	log *logger.Logger,
) *worker.Pool {
	pool := worker.NewPool(log)
	queueCfg := worker.QueueConfig{
		BatchSize:         cfg.PGMQ.BatchSize,
		VisibilityTimeout: cfg.PGMQ.VisibilityTimeout,
		PollInterval:      cfg.PGMQ.PollInterval,
		MaxReadCount:      cfg.PGMQ.MaxReadCount,
	}

	pool.Register(postgresrepo.NewQueue(db, types.QueuePDFRender), handlers.PdfRender(invoices, renderer, store, log), queueCfg)
	pool.Register(postgresrepo.NewQueue(db, types.QueueWebhookOut), handlers.WebhookOut(webhook), queueCfg)
	pool.Register(postgresrepo.NewQueue(db, types.QueuePaymentRequest), handlers.PaymentRequest(invoices, customers, provider, ledgers), queueCfg)
	pool.Register(postgresrepo.NewQueue(db, types.QueueQuoteConversion), handlers.QuoteConversion(subs), queueCfg)
	pool.Register(postgresrepo.NewQueue(db, types.QueueBillableMetricSync), handlers.BillableMetricSync(metrics, log), queueCfg)
	return pool
}

// --- lifecycle hooks -----------------------------------------------------

func startUsageIngestionLoop(lc fx.Lifecycle, consumer kafka.MessageConsumer, cfg *config.Configuration, preprocessor usage.Preprocessor, metrics billablemetric.Repository, log *logger.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go runPreprocessLoop(ctx, consumer, cfg.Kafka.RawTopic, preprocessor, metrics, log)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return consumer.Close()
		},
	})
}

func runPreprocessLoop(ctx context.Context, consumer kafka.MessageConsumer, topic string, preprocessor usage.Preprocessor, metrics billablemetric.Repository, log *logger.Logger) {
	messages, err := consumer.Subscribe(topic)
	if err != nil {
		log.Errorw("failed to subscribe to raw usage topic", "error", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var ev usage.Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				log.Errorw("failed to decode usage event", "error", err)
				msg.Ack()
				continue
			}
			metric, err := metrics.GetByCode(types.WithTenantID(ctx, ev.TenantID), ev.Code)
			if err != nil {
				log.Errorw("failed to resolve billable metric for usage event", "code", ev.Code, "error", err)
				msg.Nack()
				continue
			}
			if err := preprocessor.Process(ctx, ev, metric.ID); err != nil {
				log.Errorw("failed to preprocess usage event", "error", err)
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}
}

func startScheduler(lc fx.Lifecycle, sched *scheduler.Scheduler, cfg *config.Configuration) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return sched.Start(cfg.Scheduler)
		},
		OnStop: func(context.Context) error {
			sched.Stop()
			return nil
		},
	})
}

func startDispatchLoop(lc fx.Lifecycle, d *dispatcher.Dispatcher, cfg *config.Configuration, log *logger.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			interval := cfg.PGMQ.PollInterval
			if interval <= 0 {
				interval = 2 * time.Second
			}
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if n, err := d.RunOnce(ctx); err != nil {
							log.Errorw("outbox dispatch tick failed", "error", err)
						} else if n > 0 {
							log.Debugw("dispatched outbox rows", "count", n)
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func startWorkerPool(lc fx.Lifecycle, pool *worker.Pool) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			pool.Start(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
