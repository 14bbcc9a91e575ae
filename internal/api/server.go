package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
	"github.com/dgnsrekt/webarchivist/internal/relay"
	"github.com/dgnsrekt/webarchivist/internal/service"
	"github.com/dgnsrekt/webarchivist/internal/update"
)

type Service interface {
	StartYandex(ctx context.Context, req service.YandexRequest) (service.JobInfo, error)
	StartPrLib(ctx context.Context, req service.PrLibRequest) (service.JobInfo, error)
	StartLot(ctx context.Context, req service.LotRequest) (service.JobInfo, error)
	Job(id string) (service.JobInfo, error)
	Jobs() []service.JobInfo
	CheckVersion(ctx context.Context) (update.Status, error)
}

type jobOutput struct {
	Body service.JobInfo
}

func NewServer(svc Service, broker *relay.Broker, version string) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Web Archivist API", version)
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", servePage(docsHTML))
	router.Get("/docs/events", servePage(eventsDocsHTML))
	if broker != nil {
		router.Get("/api/v1/events", relay.SSEHandler(broker))
	}

	registerJobHandlers(api, svc)
	registerMiscHandlers(api, svc, broker)

	return router
}

func servePage(html string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(html)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *apperr.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case apperr.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case apperr.CodeJobNotFound, apperr.CodeResourceNotFound:
			return huma.Error404NotFound(coded.Message)
		case apperr.CodeNavigationTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case apperr.CodeNavigationFailed, apperr.CodeFetchFailed:
			return huma.Error502BadGateway(coded.Message)
		case apperr.CodeLibraryUnavail:
			return huma.Error503ServiceUnavailable(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
