package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/webarchivist/internal/service"
)

func registerJobHandlers(api huma.API, svc Service) {
	type yandexInput struct {
		Body service.YandexRequest
	}
	huma.Register(api, huma.Operation{OperationID: "start-yandex", Method: http.MethodPost, Path: "/api/v1/jobs/yandex", Summary: "Download a page range from Yandex Archive", Tags: []string{"Jobs"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *yandexInput) (*jobOutput, error) {
			info, err := svc.StartYandex(ctx, input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			return &jobOutput{Body: info}, nil
		})

	type prlibInput struct {
		Body service.PrLibRequest
	}
	huma.Register(api, huma.Operation{OperationID: "start-prlib", Method: http.MethodPost, Path: "/api/v1/jobs/prlib", Summary: "Download tiled pages from the Presidential Library", Tags: []string{"Jobs"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *prlibInput) (*jobOutput, error) {
			info, err := svc.StartPrLib(ctx, input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			return &jobOutput{Body: info}, nil
		})

	type lotInput struct {
		Body service.LotRequest
	}
	huma.Register(api, huma.Operation{OperationID: "start-goskatalog", Method: http.MethodPost, Path: "/api/v1/jobs/goskatalog", Summary: "Download every image of a Goskatalog lot", Tags: []string{"Jobs"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *lotInput) (*jobOutput, error) {
			info, err := svc.StartLot(ctx, input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			return &jobOutput{Body: info}, nil
		})

	type listOutput struct {
		Body struct {
			Jobs []service.JobInfo `json:"jobs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-jobs", Method: http.MethodGet, Path: "/api/v1/jobs", Summary: "List jobs, oldest first", Tags: []string{"Jobs"}},
		func(ctx context.Context, input *struct{}) (*listOutput, error) {
			out := &listOutput{}
			out.Body.Jobs = svc.Jobs()
			return out, nil
		})

	type jobIDInput struct {
		JobID string `path:"job_id"`
	}
	huma.Register(api, huma.Operation{OperationID: "get-job", Method: http.MethodGet, Path: "/api/v1/jobs/{job_id}", Summary: "Get a job with its page results", Tags: []string{"Jobs"}},
		func(ctx context.Context, input *jobIDInput) (*jobOutput, error) {
			info, err := svc.Job(input.JobID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &jobOutput{Body: info}, nil
		})
}
