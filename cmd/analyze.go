package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/avlsec/solanalyzer/absint"
	"github.com/avlsec/solanalyzer/analytics"
	"github.com/avlsec/solanalyzer/baseline"
	"github.com/avlsec/solanalyzer/cfgbuild"
	"github.com/avlsec/solanalyzer/compiler"
	"github.com/avlsec/solanalyzer/errs"
	"github.com/avlsec/solanalyzer/output"
	"github.com/avlsec/solanalyzer/reaching"
	"github.com/avlsec/solanalyzer/report"
	"github.com/avlsec/solanalyzer/rewrite"
)

var (
	annotateDependencies bool
	domainFlag           string
	widenThresholdFlag   int
	formatFlag           string
	baselineFlag         string
	writeBaselineFlag    bool
	failOnFlag           string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <source-file-path>",
	Short: "Detect transaction-ordering dependence in a single contract source file",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&annotateDependencies, "annotate-dependencies", false, "include variable/control dependency tables in the reaching-definitions report")
	analyzeCmd.Flags().StringVar(&domainFlag, "domain", "interval", "abstract domain: interval, octagon, polyhedra")
	analyzeCmd.Flags().IntVar(&widenThresholdFlag, "widen-threshold", absint.WidenThreshold, "loop iterations before widening is applied at a WhileJoin")
	analyzeCmd.Flags().StringVar(&formatFlag, "format", "text", "output format: text, json, sarif, csv")
	analyzeCmd.Flags().StringVar(&baselineFlag, "baseline", "", "path to a baseline file; findings already present there are suppressed")
	analyzeCmd.Flags().BoolVar(&writeBaselineFlag, "write-baseline", false, "write current findings to --baseline instead of suppressing against it")
	analyzeCmd.Flags().StringVar(&failOnFlag, "fail-on", "", "comma-separated severities (high, low) that force a non-zero exit code")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	sourcePath := args[0]
	start := time.Now()

	verbosity := output.VerbosityDefault
	if verboseFlag {
		verbosity = output.VerbosityVerbose
	}

	logger, closeLog, err := output.NewFileLogger(sourcePath, verbosity)
	if err != nil {
		return err
	}
	defer closeLog()

	analytics.ReportEvent(analytics.AnalyzeStarted)

	findings, store, cfg, pts, vars, order, analyzeErr := analyze(sourcePath, logger)
	if analyzeErr != nil {
		analytics.ReportEvent(analytics.AnalyzeFailed)
		logger.Error("%v", analyzeErr)
		return analyzeErr
	}

	all := report.FromTOD(findings)
	all = append(all, report.TimestampFindings(store, cfg)...)

	if baselineFlag != "" {
		if writeBaselineFlag {
			if err := baseline.Save(baselineFlag, baseline.FromFindings(all)); err != nil {
				return err
			}
		} else {
			base, err := baseline.Load(baselineFlag)
			if err != nil {
				return err
			}
			all = base.Filter(all)
		}
	}

	if err := emit(sourcePath, all, start); err != nil {
		return err
	}

	if annotateDependencies || logger.IsDebug() {
		logger.Statistic("%s", report.ReachingDefinitionsText(store, cfg, all, annotateDependencies))
	}
	if pts != nil {
		logger.Debug("%s", report.AnalysisDumpText(vars, pts, order))
	}

	analytics.ReportEvent(analytics.AnalyzeCompleted)

	failOn := output.ParseFailOn(failOnFlag)
	if err := output.ValidateSeverities(failOn); err != nil {
		return err
	}
	code := output.DetermineExitCode(all, failOn, false)
	if code != output.ExitCodeSuccess {
		os.Exit(int(code))
	}
	return nil
}

// analyze runs the full rewrite -> compile -> CFG -> reaching ->
// abstract-interpretation pipeline for a single source file.
func analyze(sourcePath string, logger *output.Logger) ([]reaching.Finding, *reaching.Store, *cfgbuild.CFG, map[string]absint.PointState, []string, []string, error) {
	src, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, errs.Wrap(errs.InputNotFound, err, "reading %s", sourcePath)
	}

	done := logger.StartTiming("rewrite")
	rewritten := rewrite.Rewrite(string(src))
	done()
	logger.Progress("rewrote %d mapping(s) into scalar form", len(rewritten.Mappings))

	done = logger.StartTiming("compile")
	provider := compiler.NewSolcProvider()
	result, err := provider.Compile(rewritten.Source)
	done()
	if err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}
	if len(result.Names) == 0 {
		return nil, nil, nil, nil, nil, nil, errs.New(errs.CompileFailure, "no contracts found in %s", sourcePath)
	}
	contractRoot := result.AST(result.Names[0])

	done = logger.StartTiming("cfg")
	cfg, err := cfgbuild.Build(contractRoot)
	done()
	if err != nil {
		return nil, nil, nil, nil, nil, nil, err
	}
	logger.Statistic("built CFG with %d node(s)", len(cfg.Meta.AllNodeIDs()))

	done = logger.StartTiming("reaching")
	store, findings := reaching.Analyze(cfg, rewritten.Mappings)
	done()
	logger.Statistic("reaching definitions converged after %d iteration(s)", store.Iterations())

	kind := absint.DomainKind(domainFlag)
	done = logger.StartTiming("absint")
	engine := absint.NewEngine(cfg, kind, nil)
	engine.SetWidenThreshold(widenThresholdFlag)
	pts, rounds, converged := engine.Run()
	done()
	if !converged {
		logger.Warning("abstract interpretation did not converge within the iteration cap (%d rounds)", rounds)
	}

	logger.PrintTimingSummary()

	var order []string
	for _, id := range cfg.Meta.AllNodeIDs() {
		order = append(order, id)
	}

	return findings, store, cfg, pts, store.StateVariables(), order, nil
}

func emit(sourcePath string, findings []report.Finding, start time.Time) error {
	switch formatFlag {
	case "json":
		return output.NewJSONFormatter().Format(findings, output.ScanInfo{Target: sourcePath, Version: Version, Duration: time.Since(start)})
	case "sarif":
		return output.NewSARIFFormatter().Format(findings)
	case "csv":
		return output.NewCSVFormatter().Format(findings)
	case "text", "":
		return output.NewTextFormatter().Format(findings)
	default:
		return fmt.Errorf("unknown --format %q", formatFlag)
	}
}
