package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"TenderRadar/internal/app"
	"TenderRadar/internal/config"
	"TenderRadar/internal/domain"
	"TenderRadar/internal/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.NewWithOptions(os.Stdout, logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	withApp := func(fn func(*app.Application) error) error {
		application, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer application.Close()
		return fn(application)
	}

	root := &cobra.Command{
		Use:          "tenderradar",
		Short:        "Harvests procurement announcements and notifies subscribers on keyword matches",
		Version:      version,
		SilenceUsage: true,
	}

	var siteID int64
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest all enabled sources once",
		Example: `  tenderradar run
  tenderradar run --site 3`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app.Application) error {
				var stats domain.HarvestStats
				if cmd.Flags().Changed("site") {
					var err error
					if stats, err = a.RunSource(ctx, siteID); err != nil {
						return err
					}
				} else {
					stats = a.Run(ctx)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "candidates=%d known=%d discarded=%d persisted=%d dispatched=%d\n",
					stats.Candidates, stats.Known, stats.Discarded, stats.Persisted, stats.Dispatched)
				return nil
			})
		},
	}
	runCmd.Flags().Int64Var(&siteID, "site", 0, "harvest only the source with this id, even when disabled")

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the crawler on its cron expression until interrupted",
		RunE: func(*cobra.Command, []string) error {
			return withApp(func(a *app.Application) error {
				return a.Schedule(ctx)
			})
		},
	}

	var family string
	refreshCmd := &cobra.Command{
		Use:   "refresh-credentials",
		Short: "Capture a fresh cookie/token for a credential family through the browser",
		Example: `  tenderradar refresh-credentials --family huaneng
  tenderradar refresh-credentials --family tang`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app.Application) error {
				cred, err := a.RefreshCredentials(ctx, family)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s cookie captured (token: %t)\n", family, cred.Token != "")
				return nil
			})
		},
	}
	refreshCmd.Flags().StringVar(&family, "family", "huaneng", "credential family to refresh")

	var enable, disable bool
	var templates string
	subscriptionCmd := &cobra.Command{
		Use:   "subscription",
		Short: "Show or change the subscription switch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if enable && disable {
				return fmt.Errorf("--enable and --disable are exclusive")
			}
			return withApp(func(a *app.Application) error {
				settings := a.Subscription(ctx)
				if enable || disable || cmd.Flags().Changed("templates") {
					if enable || disable {
						settings.Enabled = enable
					}
					if cmd.Flags().Changed("templates") {
						settings.TemplateIDs = splitIDs(templates)
					}
					if err := a.SetSubscription(ctx, settings); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enabled=%t templates=%s\n", settings.Enabled, strings.Join(settings.TemplateIDs, ","))
				return nil
			})
		},
	}
	subscriptionCmd.Flags().BoolVar(&enable, "enable", false, "turn notifications on")
	subscriptionCmd.Flags().BoolVar(&disable, "disable", false, "turn notifications off")
	subscriptionCmd.Flags().StringVar(&templates, "templates", "", "comma separated default template ids")

	root.AddCommand(runCmd, scheduleCmd, refreshCmd, subscriptionCmd)

	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func splitIDs(raw string) []string {
	var out []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
