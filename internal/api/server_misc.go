package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/webarchivist/internal/relay"
	"github.com/dgnsrekt/webarchivist/internal/sites"
	"github.com/dgnsrekt/webarchivist/internal/update"
)

func registerMiscHandlers(api huma.API, svc Service, broker *relay.Broker) {
	type healthOutput struct {
		Body struct {
			Status      string `json:"status"`
			Subscribers int    `json:"subscribers"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/api/v1/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			if broker != nil {
				out.Body.Subscribers = broker.ClientCount()
			}
			return out, nil
		})

	type versionOutput struct {
		Body update.Status
	}
	huma.Register(api, huma.Operation{OperationID: "check-version", Method: http.MethodGet, Path: "/api/v1/version", Summary: "Compare the running version with the published manifest", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*versionOutput, error) {
			status, err := svc.CheckVersion(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &versionOutput{Body: status}, nil
		})

	type detectInput struct {
		URL string `query:"url" required:"true" doc:"Page URL to classify"`
	}
	type detectOutput struct {
		Body struct {
			URL  string     `json:"url"`
			Site sites.Site `json:"site"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "detect-site", Method: http.MethodGet, Path: "/api/v1/detect", Summary: "Detect which supported site a URL belongs to", Tags: []string{"Sites"}},
		func(ctx context.Context, input *detectInput) (*detectOutput, error) {
			out := &detectOutput{}
			out.Body.URL = input.URL
			out.Body.Site = sites.Detect(input.URL)
			return out, nil
		})
}
