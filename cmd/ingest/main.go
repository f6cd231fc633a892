// Package main 提供离线重建知识库的命令行工具。
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"offshore-assist-go/internal/app"
	"offshore-assist-go/internal/config"
	"offshore-assist-go/internal/service"
	"offshore-assist-go/pkg/log"
	"offshore-assist-go/pkg/tasks"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	configPath string
	sourceName string
	corpusDir  string
	docTypes   []string
)

var rootCmd = &cobra.Command{
	Use:           "ingest",
	Short:         "Manage the chat assistant knowledge base",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Rebuild the knowledge base from the corpus",
	Long: `Loads every .md/.txt document from the corpus, chunks and embeds it,
then replaces the stored embeddings in one rebuild. Other file types are ignored.`,
	RunE: runIngest,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored chunk count and the last ingestion report",
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "config file")
	runCmd.Flags().StringVar(&sourceName, "source", service.SourceDir, "corpus source: dir or minio")
	runCmd.Flags().StringVar(&corpusDir, "dir", "", "corpus directory (overrides ingest.dir)")
	runCmd.Flags().StringSliceVar(&docTypes, "types", nil, "only ingest these document types, e.g. md,txt")
	rootCmd.AddCommand(runCmd, statusCmd)
}

func setup(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if corpusDir != "" {
		cfg.Ingest.Dir = corpusDir
	}
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	return app.Build(ctx, cfg, app.Options{})
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	defer log.Sync()

	task := tasks.IngestTask{TaskID: uuid.NewString(), Source: sourceName, DocTypes: docTypes, RequestedBy: "cli"}
	cmd.Printf("Rebuilding knowledge base from %s...\n", sourceName)
	report, err := a.Ingest.Run(ctx, task)
	if report != nil {
		cmd.Printf("Loaded %d documents (%d skipped), %d chunks: %d processed, %d failed, %d stored\n",
			report.Loaded, report.Skipped, report.Chunks, report.Processed, report.Failed, report.Stored)
	}
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.Ingest.Status(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
