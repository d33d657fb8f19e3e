package router

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"minutepad/config"
	docHandler "minutepad/internal/document"
	"minutepad/internal/document/repository"
	"minutepad/internal/document/service"
	"minutepad/internal/identity"
	"minutepad/internal/lock"
	"minutepad/internal/presence"
	"minutepad/internal/queue"
	"minutepad/internal/updates"
	"minutepad/internal/version"
	"minutepad/middleware"
	"minutepad/pkg/metrics"
)

func Setup(cfg *config.Config, db *sql.DB, rdb *redis.Client) http.Handler {
	mux := http.NewServeMux()

	versionRepo := version.NewRepository(db)
	auth := identity.NewSQLAuthorizer(db)

	docRepo := repository.NewDocumentRepository(db, versionRepo)
	docService := service.NewDocumentService(docRepo, versionRepo, auth, cfg.Sync.LockTTL)
	docHandler := docHandler.NewDocumentHandler(docService)

	lockRepo := lock.NewRepository(db)
	lockService := lock.NewService(lockRepo, docRepo, auth, cfg.Sync.LockTTL)
	lockHandler := lock.NewHandler(lockService)

	tracker := presence.NewTracker(rdb, cfg.Sync.PresenceWindow)
	presenceHandler := presence.NewHandler(tracker)

	queueRepo := queue.NewRepository(db, versionRepo)
	queueService := queue.NewService(queueRepo, docRepo, auth)
	queueHandler := queue.NewHandler(queueService)

	updatesService := updates.NewService(docRepo, lockService, tracker, queueRepo, auth)
	updatesHandler := updates.NewHandler(updatesService)

	guard := middleware.Auth(cfg.JWT.Secret)

	mux.Handle("/api/documents/create", guard(http.HandlerFunc(docHandler.CreateDocument)))
	mux.Handle("/api/documents/delete", guard(http.HandlerFunc(docHandler.DeleteDocument)))
	mux.Handle("/api/documents/finalize", guard(http.HandlerFunc(docHandler.FinalizeDocument)))
	mux.Handle("/api/documents/invite", guard(http.HandlerFunc(docHandler.Invite)))
	mux.Handle("/api/documents", guard(http.HandlerFunc(docHandler.GetDocuments)))
	mux.Handle("/api/documents/paragraphs", guard(http.HandlerFunc(docHandler.GetParagraphs)))
	mux.Handle("/api/documents/paragraphs/add", guard(http.HandlerFunc(docHandler.AddParagraph)))
	mux.Handle("/api/documents/paragraphs/delete", guard(http.HandlerFunc(docHandler.DeleteParagraph)))
	mux.Handle("/api/documents/paragraphs/reorder", guard(http.HandlerFunc(docHandler.Reorder)))
	mux.Handle("/api/documents/save", guard(http.HandlerFunc(docHandler.Save)))
	mux.Handle("/api/documents/history", guard(http.HandlerFunc(docHandler.GetHistory)))

	mux.Handle("/api/locks/acquire", guard(http.HandlerFunc(lockHandler.Acquire)))
	mux.Handle("/api/locks/release", guard(http.HandlerFunc(lockHandler.Release)))

	mux.Handle("/api/presence/heartbeat", guard(http.HandlerFunc(presenceHandler.Heartbeat)))
	mux.Handle("/api/presence", guard(http.HandlerFunc(presenceHandler.Online)))

	mux.Handle("/api/queue/submit", guard(http.HandlerFunc(queueHandler.Submit)))
	mux.Handle("/api/queue/process", guard(http.HandlerFunc(queueHandler.Process)))
	mux.Handle("/api/queue/append", guard(http.HandlerFunc(queueHandler.Append)))

	mux.Handle("/api/updates", guard(http.HandlerFunc(updatesHandler.GetUpdates)))

	registry := prometheus.NewRegistry()
	metrics.RegisterCollectors(registry)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return middleware.CORS(mux)
}
