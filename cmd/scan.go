package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/flowspec"
	"github.com/xkilldash9x/lancet/internal/models"
	"github.com/xkilldash9x/lancet/internal/observability"
	"github.com/xkilldash9x/lancet/internal/reporting"
	"github.com/xkilldash9x/lancet/internal/results"
	"github.com/xkilldash9x/lancet/internal/runner"
	"github.com/xkilldash9x/lancet/internal/store"
)

// scanFlagBindings maps viper keys to the scan flags that override them.
var scanFlagBindings = map[string]string{
	"analysis.rules_path":  "rules",
	"analysis.model_paths": "models",
	"analysis.include":     "include",
	"analysis.exclude":     "exclude",
	"analysis.git_ref":     "git-ref",
	"analysis.concurrency": "concurrency",
	"analysis.fail_on":     "fail-on",
	"reporting.format":     "format",
	"reporting.output":     "output",
}

// newScanCmd creates and configures the `scan` command.
func newScanCmd() *cobra.Command {
	var ghUploadSpec string

	scanCmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Analyze Java sources for tainted data flows",
		Long: `Parses the Java sources under the given paths (default "."), traces
untrusted data through each method body, and reports every flow that reaches
a dangerous sink. With --git-ref the sources are read from a committed tree
instead of the working directory.`,
		Args: cobra.ArbitraryArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so command-line values override
			// the config file and environment with the right precedence.
			for key, name := range scanFlagBindings {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// The context passed from main is signal-aware.
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := resolveConfig()
			if err != nil {
				return err
			}
			if err := applyUploadSpec(cfg, ghUploadSpec, repoPathFor(args)); err != nil {
				return err
			}

			scanID := uuid.New().String()
			logger.Info("Starting scan",
				zap.String("scan_id", scanID),
				zap.Strings("paths", args),
				zap.String("git_ref", cfg.Analysis.GitRef),
				zap.String("format", cfg.Reporting.Format),
			)

			files, err := collectInputs(cfg, args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				logger.Warn("No Java sources matched the scan roots")
			}

			rules, modelStore, err := loadAnalysisTables(cfg, logger)
			if err != nil {
				return err
			}

			r, err := runner.New(runner.Options{
				Rules:       rules,
				Models:      modelStore,
				Concurrency: cfg.Analysis.Concurrency,
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			findings, err := r.Run(ctx, files)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Scan aborted gracefully", zap.String("scan_id", scanID))
					return fmt.Errorf("scan aborted by user signal: %w", err)
				}
				return err
			}

			pipeline := results.NewPipeline(nil, logger)
			report, err := pipeline.ProcessFindings(ctx, scanID, findings)
			if err != nil {
				return fmt.Errorf("failed to process findings: %w", err)
			}
			envelope := report.Envelope(time.Now().UTC())

			if cfg.Store.Enabled {
				if err := persistResults(ctx, cfg, envelope, logger); err != nil {
					return err
				}
			}

			if err := writeReport(cfg.Reporting.Format, cfg.Reporting.Output, envelope, logger); err != nil {
				return err
			}

			if cfg.Reporting.GitHub.Upload {
				uploadSARIF(ctx, cfg, envelope, logger)
			}

			logger.Info("Scan complete",
				zap.String("scan_id", scanID),
				zap.Int("findings", len(report.Findings)),
				zap.Any("summary", report.Summary),
			)

			return failOnGate(cfg.Analysis.FailOn, report.Findings)
		},
	}

	// Reporting flags.
	scanCmd.Flags().StringP("format", "f", "sarif", "Report format: sarif, json, checkstyle, annotate")
	scanCmd.Flags().StringP("output", "o", "", "Report file path. If unset, the report streams to stdout.")
	scanCmd.Flags().StringVar(&ghUploadSpec, "gh-upload", "", "Upload SARIF to GitHub code scanning, owner/repo@refs/heads/branch")

	// Analysis flags.
	scanCmd.Flags().String("rules", "", "Flow rules YAML replacing the builtin rule set")
	scanCmd.Flags().StringSlice("models", nil, "Method-flow model CSVs layered over the builtin table")
	scanCmd.Flags().StringSlice("include", nil, "Glob patterns a source path must match to be analyzed")
	scanCmd.Flags().StringSlice("exclude", nil, "Glob patterns that drop matching source paths")
	scanCmd.Flags().String("git-ref", "", "Scan sources from a git revision instead of the working tree")
	scanCmd.Flags().IntP("concurrency", "j", 0, "Parallel file analyses (0 = one per CPU)")
	scanCmd.Flags().String("fail-on", "", "Exit non-zero when a finding of at least this severity exists")

	return scanCmd
}

// repoPathFor picks the repository a --git-ref scan reads from.
func repoPathFor(paths []string) string {
	if len(paths) > 0 {
		return paths[0]
	}
	return "."
}

// collectInputs enumerates the sources a scan will analyze, from either the
// filesystem or a committed git tree.
func collectInputs(cfg *config.Config, paths []string) ([]runner.InputFile, error) {
	filter, err := runner.NewFilter(cfg.Analysis.Include, cfg.Analysis.Exclude)
	if err != nil {
		return nil, err
	}

	if ref := cfg.Analysis.GitRef; ref != "" {
		if len(paths) > 1 {
			return nil, fmt.Errorf("--git-ref scans a single repository, got %d paths", len(paths))
		}
		return runner.EnumerateGit(repoPathFor(paths), ref, filter)
	}
	return runner.EnumerateFS(paths, filter)
}

// loadAnalysisTables resolves the rule set and the method-flow model store
// the scan runs with.
func loadAnalysisTables(cfg *config.Config, logger *zap.Logger) (*flowspec.RuleSet, *models.Store, error) {
	var (
		rules *flowspec.RuleSet
		err   error
	)
	if path := cfg.Analysis.RulesPath; path != "" {
		rules, err = flowspec.Load(path)
	} else {
		rules, err = flowspec.DefaultRules()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading flow rules: %w", err)
	}

	modelStore, err := models.NewDefaultStore(cfg.Analysis.ModelPaths...)
	if err != nil {
		return nil, nil, fmt.Errorf("loading method-flow models: %w", err)
	}

	sources, sinks, sanitizers := rules.Counts()
	logger.Info("Analysis tables loaded",
		zap.Int("sources", sources),
		zap.Int("sinks", sinks),
		zap.Int("sanitizers", sanitizers),
		zap.Int("model_rows", modelStore.Len()),
	)
	return rules, modelStore, nil
}

// persistResults archives the scan into the findings database.
func persistResults(ctx context.Context, cfg *config.Config, envelope *schemas.ResultEnvelope, logger *zap.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to findings store: %w", err)
	}
	defer pool.Close()

	db, err := store.New(ctx, pool, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize findings store: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := db.PersistData(ctx, envelope); err != nil {
		return fmt.Errorf("failed to persist findings: %w", err)
	}
	logger.Info("Findings persisted",
		zap.String("scan_id", envelope.ScanID),
		zap.Int("count", len(envelope.Findings)),
	)
	return nil
}

// writeReport renders the envelope in the configured format. Close is what
// flushes the document, so its error is as fatal as a write failure.
func writeReport(format, outputPath string, envelope *schemas.ResultEnvelope, logger *zap.Logger) error {
	reporter, err := reporting.New(format, outputPath, logger, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	if err := reporter.Write(envelope); err != nil {
		reporter.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := reporter.Close(); err != nil {
		return fmt.Errorf("failed to finalize report: %w", err)
	}
	if outputPath != "" && outputPath != "stdout" {
		logger.Info("Report written", zap.String("path", outputPath), zap.String("format", format))
	}
	return nil
}

// applyUploadSpec folds a --gh-upload owner/repo@ref value into the config
// and fills the commit SHA from the scanned revision when nothing else
// provided one.
func applyUploadSpec(cfg *config.Config, spec, repoPath string) error {
	if spec == "" {
		return nil
	}
	slash := strings.Index(spec, "/")
	at := strings.Index(spec, "@")
	if slash <= 0 || at <= slash+1 || at == len(spec)-1 {
		return fmt.Errorf("invalid --gh-upload value %q, want owner/repo@refs/heads/branch", spec)
	}

	gh := &cfg.Reporting.GitHub
	gh.Upload = true
	gh.Owner = spec[:slash]
	gh.Repo = spec[slash+1 : at]
	gh.Ref = spec[at+1:]
	if gh.Token == "" {
		gh.Token = os.Getenv("LANCET_GITHUB_TOKEN")
	}
	if gh.CommitSHA == "" && cfg.Analysis.GitRef != "" {
		sha, err := runner.ResolveRevision(repoPath, cfg.Analysis.GitRef)
		if err != nil {
			return fmt.Errorf("cannot resolve the scanned commit for upload: %w", err)
		}
		gh.CommitSHA = sha
	}
	return gh.Validate()
}

// uploadSARIF pushes the scan's SARIF rendition to code scanning. Upload
// problems are reported, not fatal: the scan itself already succeeded.
func uploadSARIF(ctx context.Context, cfg *config.Config, envelope *schemas.ResultEnvelope, logger *zap.Logger) {
	doc, err := reporting.SARIFBytes(envelope, logger, Version)
	if err != nil {
		logger.Error("Failed to render SARIF for upload", zap.Error(err))
		return
	}

	gh := cfg.Reporting.GitHub
	uploader := reporting.NewSARIFUploader(gh.Token, logger)
	target := reporting.UploadTarget{
		Owner:     gh.Owner,
		Repo:      gh.Repo,
		CommitSHA: gh.CommitSHA,
		Ref:       gh.Ref,
	}
	if _, err := uploader.Upload(ctx, target, doc); err != nil {
		logger.Error("SARIF upload failed", zap.Error(err))
	}
}

// failOnGate turns findings at or above the configured severity into a
// non-zero exit.
func failOnGate(failOn string, findings []schemas.Finding) error {
	if failOn == "" {
		return nil
	}
	threshold := schemas.SeverityRank(schemas.Severity(failOn))
	count := 0
	for _, f := range findings {
		if schemas.SeverityRank(f.Severity) >= threshold {
			count++
		}
	}
	if count > 0 {
		return fmt.Errorf("%d finding(s) at or above severity %s", count, strings.ToLower(failOn))
	}
	return nil
}
