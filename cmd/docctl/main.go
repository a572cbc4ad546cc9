// Command docctl submits documents and inspects batches from the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"docrecon-backend/internal/batches"
	"docrecon-backend/internal/bootstrap"
	"docrecon-backend/internal/documents"
	"docrecon-backend/internal/exports"
	"docrecon-backend/internal/shared/config"
	"docrecon-backend/internal/shared/telemetry"
)

// buildApp is replaced in tests.
var buildApp = func() (*bootstrap.App, error) {
	cfg := config.Load()
	telemetry.SetLevel(cfg.LogLevel)
	return bootstrap.Build(cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	cmdRoot := &cobra.Command{
		Use:   "docctl",
		Short: "Document batch submission utility",
		Long:  `Submit documents to the remote processing service and follow their batches`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
				telemetry.SetLevel("warn")
			}
			return nil
		},
	}
	cmdRoot.PersistentFlags().Bool("quiet", false, "log warnings and errors only")
	cmdRoot.SetOut(out)
	cmdRoot.AddCommand(cmdSubmit())
	cmdRoot.AddCommand(cmdStatus())
	cmdRoot.AddCommand(cmdResume())
	cmdRoot.AddCommand(cmdExport())
	return cmdRoot
}

func cmdSubmit() *cobra.Command {
	var (
		cnpj        string
		source      string
		description string
		wait        bool
		batchUpload bool
		xlsxFile    string
		interval    time.Duration
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:          "submit <file.pdf>...",
		Short:        "register and submit PDF files as one batch",
		SilenceUsage: true,
		Args:         cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(cnpj) == "" {
				return errors.New("--cnpj is required")
			}
			if xlsxFile != "" && !wait {
				return errors.New("--xlsx requires --wait")
			}
			items := make([]batches.Item, 0, len(args))
			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				items = append(items, batches.Item{
					Content: content,
					Metadata: documents.Metadata{
						FileName:    filepath.Base(path),
						CNPJ:        cnpj,
						Source:      source,
						Description: description,
					},
				})
			}

			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.Close()

			b, submitErr := app.Coordinator.SubmitBatch(cmd.Context(), items, batches.SubmitOptions{
				WaitForCompletion: wait,
				PollInterval:      interval,
				Timeout:           timeout,
				UseBatchUpload:    batchUpload,
			})
			if submitErr != nil && b.ID == "" {
				return submitErr
			}
			if err := printJSON(cmd.OutOrStdout(), batches.ToResponse(b)); err != nil {
				return err
			}
			if submitErr != nil {
				return submitErr
			}
			if !wait {
				// The loop runs in this process; keep it alive until the batch closes.
				if _, err := app.Runner.Wait(cmd.Context(), b.ID); err != nil {
					return err
				}
			}
			if xlsxFile != "" {
				return writeWorkbook(cmd.Context(), app, b.ID, xlsxFile)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cnpj, "cnpj", "", "owner CNPJ (required)")
	cmd.Flags().StringVar(&source, "source", "", "document source label")
	cmd.Flags().StringVar(&description, "description", "", "document description")
	cmd.Flags().BoolVar(&wait, "wait", false, "print the final outcome instead of the submission snapshot")
	cmd.Flags().BoolVar(&batchUpload, "batch-upload", false, "use the remote batch upload endpoint")
	cmd.Flags().StringVar(&xlsxFile, "xlsx", "", "write extraction results to this workbook (requires --wait)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "status poll interval (default from POLL_INTERVAL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "reconciliation timeout (default from BATCH_TIMEOUT)")
	return cmd
}

func cmdStatus() *cobra.Command {
	return &cobra.Command{
		Use:          "status <batch-id>",
		Short:        "show the stored outcome of a batch",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.Close()

			b, err := app.BatchesRepo.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), batches.ToResponse(b))
		},
	}
}

func cmdResume() *cobra.Command {
	return &cobra.Command{
		Use:          "resume <batch-id>",
		Short:        "run the reconciliation loop for an open batch until it closes",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if _, err := app.Reconciler.Reconcile(cmd.Context(), args[0], batches.ReconcileOptions{}); err != nil {
				return err
			}
			b, err := app.BatchesRepo.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), batches.ToResponse(b))
		},
	}
}

func cmdExport() *cobra.Command {
	var xlsxFile string
	cmd := &cobra.Command{
		Use:          "export <batch-id>",
		Short:        "fetch extraction results of completed documents",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if xlsxFile != "" {
				return writeWorkbook(cmd.Context(), app, args[0], xlsxFile)
			}
			items, err := app.Aggregator.ExportCompleted(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := make([]map[string]any, 0, len(items))
			for _, item := range items {
				line := map[string]any{"documentId": item.DocumentID, "fileName": item.FileName}
				if item.Result != nil {
					line["result"] = item.Result
				}
				if item.Err != nil {
					line["error"] = item.Err.Error()
				}
				out = append(out, line)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVarP(&xlsxFile, "xlsx", "o", "", "write results to this workbook instead of stdout")
	return cmd
}

func writeWorkbook(ctx context.Context, app *bootstrap.App, batchID, path string) error {
	items, err := app.Aggregator.ExportCompleted(ctx, batchID)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := exports.WriteWorkbook(f, items); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Printf("%s: wrote %d results\n", path, len(items))
	return nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
