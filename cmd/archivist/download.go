package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/webarchivist/internal/app"
	"github.com/dgnsrekt/webarchivist/internal/rangejob"
	"github.com/dgnsrekt/webarchivist/internal/service"
	"github.com/dgnsrekt/webarchivist/internal/sites"
	"github.com/dgnsrekt/webarchivist/internal/ui"
)

var (
	// range selection
	flagURL   string
	flagStart int
	flagEnd   int
	flagZip   bool
	flagTitle string

	// prlib document
	flagKey   string
	flagGroup string
	flagFiles []string
)

// errJobFailed makes the process exit non-zero without printing twice.
var errJobFailed = errors.New("download failed")

func init() {
	yandexCmd := &cobra.Command{
		Use:   "yandex",
		Short: "Download a page range of a Yandex Archive document",
		RunE:  runYandex,
	}
	yandexCmd.Flags().StringVar(&flagURL, "url", "", "URL of any document page, ending in its page number")
	yandexCmd.Flags().IntVar(&flagStart, "start", 1, "first page")
	yandexCmd.Flags().IntVar(&flagEnd, "end", 0, "last page (default: start)")
	yandexCmd.Flags().BoolVar(&flagZip, "zip", false, "pack the range into one ZIP archive")
	yandexCmd.Flags().StringVar(&flagTitle, "title", "", "file title (default: read from the page)")
	_ = yandexCmd.MarkFlagRequired("url")

	prlibCmd := &cobra.Command{
		Use:   "prlib",
		Short: "Download tiled pages of a Presidential Library document",
		RunE:  runPrLib,
	}
	prlibCmd.Flags().StringVar(&flagKey, "key", "", "document key")
	prlibCmd.Flags().StringVar(&flagGroup, "group", "", "document file group")
	prlibCmd.Flags().StringSliceVar(&flagFiles, "files", nil, "page file names in order (e.g. a,b,c)")
	prlibCmd.Flags().StringVar(&flagTitle, "title", "", "file title (default: the key)")
	prlibCmd.Flags().IntVar(&flagStart, "start", 1, "first page")
	prlibCmd.Flags().IntVar(&flagEnd, "end", 0, "last page (default: last file)")
	prlibCmd.Flags().BoolVar(&flagZip, "zip", false, "pack the range into one ZIP archive")
	_ = prlibCmd.MarkFlagRequired("key")
	_ = prlibCmd.MarkFlagRequired("group")
	_ = prlibCmd.MarkFlagRequired("files")

	lotCmd := &cobra.Command{
		Use:   "lot",
		Short: "Download every image of a Goskatalog lot",
		RunE:  runLot,
	}
	lotCmd.Flags().StringVar(&flagURL, "url", "", "lot URL with a #/public_items?id=N fragment")
	_ = lotCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(yandexCmd, prlibCmd, lotCmd)
}

func runYandex(cmd *cobra.Command, _ []string) error {
	req := service.YandexRequest{URL: flagURL, Title: flagTitle, Start: flagStart, End: flagEnd, Zip: flagZip}
	return download(cmd.Context(), true, func(svc *service.Service) (service.JobInfo, error) {
		return svc.StartYandex(cmd.Context(), req)
	})
}

func runPrLib(cmd *cobra.Command, _ []string) error {
	req := service.PrLibRequest{
		Document: sites.PrLibDocument{Title: flagTitle, Key: flagKey, Group: flagGroup, Files: flagFiles},
		Start:    flagStart,
		End:      flagEnd,
		Zip:      flagZip,
	}
	return download(cmd.Context(), false, func(svc *service.Service) (service.JobInfo, error) {
		return svc.StartPrLib(cmd.Context(), req)
	})
}

func runLot(cmd *cobra.Command, _ []string) error {
	req := service.LotRequest{URL: flagURL}
	return download(cmd.Context(), true, func(svc *service.Service) (service.JobInfo, error) {
		return svc.StartLot(cmd.Context(), req)
	})
}

// download builds the service, submits one job and follows it to the end.
func download(parent context.Context, withBrowser bool, start func(*service.Service) (service.JobInfo, error)) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, withBrowser)
	if err != nil {
		return err
	}
	defer a.Close()

	subID, events := a.Broker.Subscribe()
	defer a.Broker.Unsubscribe(subID)

	info, err := start(a.Service)
	if err != nil {
		return err
	}

	pr := ui.NewProgress(os.Stdout, info.Title, info.Total())
	pr.Follow(ctx, events, info.ID)
	pr.Wait()

	final, err := a.Service.Wait(ctx, info.ID)
	if err != nil {
		return err
	}
	printSummary(final, a.Sink.URL())
	if final.Status == rangejob.StatusFail {
		return errJobFailed
	}
	return nil
}

func printSummary(info service.JobInfo, sinkURL string) {
	fmt.Printf("%s: %s (%d of %d pages failed)\n", info.Title, info.Status, info.Failed, info.Total())
	for _, p := range info.Pages {
		if !p.Success {
			fmt.Printf("  page %d: %s\n", p.Page, p.Error)
		}
	}
	for _, art := range info.Artifacts {
		fmt.Printf("  saved %s (%d bytes) to %s\n", art.Name, art.Size, sinkURL)
	}
	if info.Error != "" {
		fmt.Printf("  error: %s\n", info.Error)
	}
}
