package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/conorfennell/studyloop/internal/cache"
	"github.com/conorfennell/studyloop/internal/config"
	"github.com/conorfennell/studyloop/internal/importer"
	"github.com/conorfennell/studyloop/internal/logger"
	"github.com/conorfennell/studyloop/internal/web"
)

var rootCmd = &cobra.Command{
	Use:           "studyloop",
	Short:         "Study material processing and mastery tracking service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var wakeCmd = &cobra.Command{
	Use:   "wake",
	Short: "Ping the processing API so a cold host starts",
	RunE:  runWake,
}

var importCmd = &cobra.Command{
	Use:   "import [dir-or-git-url]",
	Short: "Upload every supported file under a directory or git repository",
	Long: `Walks a local directory, or clones/pulls a git repository into the repos
directory first, and uploads every supported file that is not already stored
for the user. Processing triggers are paced by import.rate_per_second.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
	importCmd.Flags().String("user", "", "Email of the account that receives the documents")
	_ = importCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(serveCmd, wakeCmd, importCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads config and builds the logger and service graph.
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	if cfg.Auth.JWTSecret == config.DevJWTSecret {
		log.Warn("Using the development JWT secret; set auth.jwt_secret")
	}
	return newApp(cmd.Context(), cfg, log)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.log.Sync()
	defer a.close()
	ctx := cmd.Context()

	if err := a.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start change feed: %w", err)
	}
	go cache.Refresh(ctx, a.hub, a.cache, a.log)
	go func() {
		if a.client.WakeUp(ctx) {
			a.log.Info("Processing API is awake")
		}
	}()

	if a.cfg.Pipeline.Token == "" {
		a.log.Warn("pipeline.token is empty; pipeline callbacks are disabled")
	}
	if a.cfg.Log.Mode == "production" || a.cfg.Log.Mode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := web.NewServer(web.Deps{
		Auth:          a.auth,
		Documents:     a.documents,
		Quizzes:       a.quizzes,
		Study:         a.study,
		Dashboard:     a.dashboard,
		Pipeline:      a.db,
		Hub:           a.hub,
		Cache:         a.cache,
		Log:           a.log,
		PipelineToken: a.cfg.Pipeline.Token,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
	})
	return srv.Run(ctx, a.cfg.Server.Address, a.cfg.Server.ShutdownTimeout)
}

func runWake(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.log.Sync()
	defer a.close()

	if !a.client.WakeUp(cmd.Context()) {
		return fmt.Errorf("processing API at %s did not answer", a.client.RootURL())
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Processing API is awake")
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.log.Sync()
	defer a.close()
	ctx := cmd.Context()

	email, _ := cmd.Flags().GetString("user")
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := a.db.FindUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("no account for %s", email)
	}

	docs := a.documents.WithProcessor(importer.Pace(a.client, a.cfg.Import.RatePerSecond))
	im := importer.New(docs, a.db, a.cfg.Import.ReposDir, a.log)
	im.Progress = cmd.ErrOrStderr()

	report, err := im.Import(ctx, u.ID, args[0])
	if report != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		return errors.New("some files failed to import")
	}
	return nil
}
