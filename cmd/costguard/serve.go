package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/costguard/costguard/internal/models"
	"github.com/costguard/costguard/internal/report"
	"github.com/costguard/costguard/internal/server"
)

// shutdownTimeout bounds the drain of in-flight feedback requests.
const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the feedback callback server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFromFlags(cmd)
			if err != nil {
				return err
			}
			eng, err := a.newEngine(cmd.Context(), false)
			if err != nil {
				return err
			}

			srv := server.New(a.recorder, a.store, a.profile.AccountID, a.slackSigningSecret(cmd.Context()))
			httpSrv := &http.Server{
				Addr:              a.cfg.Server.ListenAddr,
				Handler:           srv.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx := cmd.Context()
			scheduler := cron.New()

			if _, err := scheduler.AddFunc(a.cfg.Reports.CollectCron, func() {
				runCtx, cancel := context.WithTimeout(ctx, collectTimeout)
				defer cancel()
				result, err := eng.RunCycle(runCtx, yesterday())
				if err != nil {
					log.Printf("scheduled collection: %v", err)
					return
				}
				if result.Snapshot != nil {
					log.Printf("collected %s: %d surfaced, %d suppressed",
						result.Snapshot.Date, len(result.Surfaced), result.Suppressed)
				}
			}); err != nil {
				return fmt.Errorf("schedule collection %q: %w", a.cfg.Reports.CollectCron, err)
			}

			if _, err := scheduler.AddFunc(a.cfg.Reports.DailyCron, func() {
				d, err := a.reports.Daily(ctx, a.profile.AccountID, yesterday())
				if err != nil {
					log.Printf("daily report: %v", err)
					return
				}
				if err := a.notifier.Send(ctx, models.SeverityInfo, report.DailyMessage(d)); err != nil {
					log.Printf("post daily report: %v", err)
				}
			}); err != nil {
				return fmt.Errorf("schedule daily report %q: %w", a.cfg.Reports.DailyCron, err)
			}

			if _, err := scheduler.AddFunc(a.cfg.Reports.WeeklyCron, func() {
				w, err := a.reports.Weekly(ctx, a.profile.AccountID, yesterday())
				if err != nil {
					log.Printf("weekly report: %v", err)
					return
				}
				if err := a.notifier.Send(ctx, models.SeverityInfo, report.WeeklyMessage(w)); err != nil {
					log.Printf("post weekly report: %v", err)
				}
			}); err != nil {
				return fmt.Errorf("schedule weekly report %q: %w", a.cfg.Reports.WeeklyCron, err)
			}

			scheduler.Start()
			log.Printf("listening on %s, collection cron %q", a.cfg.Server.ListenAddr, a.cfg.Reports.CollectCron)

			serveErr := make(chan error, 1)
			go func() {
				if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
			}()

			select {
			case err := <-serveErr:
				scheduler.Stop()
				return fmt.Errorf("feedback server: %w", err)
			case <-ctx.Done():
			}

			stopCtx := scheduler.Stop()
			drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(drainCtx); err != nil {
				return fmt.Errorf("shutdown feedback server: %w", err)
			}
			<-stopCtx.Done()
			return nil
		},
	}
}
