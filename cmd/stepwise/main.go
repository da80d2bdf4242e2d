package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/stepwise-qa/stepwise/pkg/config"
	"github.com/stepwise-qa/stepwise/pkg/creds"
	"github.com/stepwise-qa/stepwise/pkg/params"
	"github.com/stepwise-qa/stepwise/pkg/runner"
	"github.com/stepwise-qa/stepwise/pkg/schema"
	"github.com/stepwise-qa/stepwise/pkg/scripts"
	"github.com/stepwise-qa/stepwise/pkg/serve"
	"github.com/stepwise-qa/stepwise/pkg/tmparea"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	config.LoadDotEnv() // load .env file if present (gitignored)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stepwise",
	Short: "Step-oriented test plan execution engine",
	Long:  "stepwise — validates JSON test plans and executes their steps against a built-in function catalog, with credential injection and full execution logging.",
}

var configPath string

func loadConfig() (*config.Config, error) {
	return config.LoadFile(configPath)
}

// newEngine wires the execution engine: built-in function registry,
// variables file, shared temp area, OS keyring credentials.
func newEngine(cfg *config.Config, debugLevel int, interactive bool) (*runner.Engine, error) {
	vars, err := params.LoadVariables(cfg.Paths.VariablesFile)
	if err != nil {
		return nil, fmt.Errorf("load variables: %w", err)
	}

	var prompter creds.Prompter
	if interactive {
		prompter = &creds.TerminalPrompter{}
	}

	return &runner.Engine{
		Registry: scripts.Builtin(),
		Params: &params.Resolver{
			Variables: vars,
			Tmp:       tmparea.New(cfg.TmpBase()),
		},
		Creds:   creds.NewManager(creds.SystemKeyring{}, prompter),
		Console: &runner.Console{W: os.Stdout, Level: debugLevel},
	}, nil
}

// --- run ---

var (
	runTestCaseID string
	runDebugLevel int
)

var runCmd = &cobra.Command{
	Use:   "run [test-plan]",
	Short: "Execute one test plan",
	Long: `Validate and execute a test plan. The argument is either a path to a
plan JSON file or a bare plan name resolved under the configured plan
directory.

Exit codes:
  0 — all steps passed
  1 — at least one step failed
  2 — framework error or validation failure`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, runDebugLevel, true)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	report, err := engine.RunPlan(context.Background(), cfg.PlanPath(args[0]), runTestCaseID)
	if err != nil {
		return err
	}
	if report.State == runner.StateAborted {
		os.Exit(2)
	}

	reportPath, logPath, err := persistRun(cfg, engine.Console, []*runner.PlanReport{report}, startedAt)
	if err != nil {
		return err
	}
	engine.Console.FinalReport([]*runner.PlanReport{report}, reportPath, logPath)

	if report.Summary.FailedSteps > 0 {
		os.Exit(1)
	}
	return nil
}

// --- run-all ---

var runAllDebugLevel int

var runAllCmd = &cobra.Command{
	Use:   "run-all [dir]",
	Short: "Execute every test plan in a directory",
	Long: `Execute all *.json plans in the given directory (default: the
configured plan directory) in alphabetical order. A plan that fails
validation is reported as aborted and execution continues with the next
plan.

Exit codes:
  0 — all steps in all plans passed
  1 — at least one step failed
  2 — framework error, or a plan aborted with no step failures
  3 — no test plans found`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRunAll,
}

func runRunAll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, runAllDebugLevel, true)
	if err != nil {
		return err
	}

	dir := cfg.Paths.PlanDir
	if len(args) == 1 {
		dir = args[0]
	}

	startedAt := time.Now()
	reports, err := engine.RunAll(context.Background(), dir)
	if errors.Is(err, runner.ErrNoPlans) {
		fmt.Fprintf(os.Stderr, "No test plans found in %s\n", dir)
		os.Exit(3)
	}
	if err != nil {
		return err
	}

	reportPath, logPath, err := persistRun(cfg, engine.Console, reports, startedAt)
	if err != nil {
		return err
	}
	engine.Console.FinalReport(reports, reportPath, logPath)

	var failed, aborted bool
	for _, r := range reports {
		if r.Summary.FailedSteps > 0 {
			failed = true
		}
		if r.State == runner.StateAborted {
			aborted = true
		}
	}
	if failed {
		os.Exit(1)
	}
	if aborted {
		os.Exit(2)
	}
	return nil
}

// persistRun writes the aggregate report file and one execution log per
// plan. A write failure is framework-fatal: the caller surfaces it and
// the process exits 2.
func persistRun(cfg *config.Config, console *runner.Console, reports []*runner.PlanReport, startedAt time.Time) (reportPath, logPath string, err error) {
	reportPath, err = runner.WriteReport(cfg.Paths.ReportDir, reports)
	if err != nil {
		return "", "", fmt.Errorf("write report: %w", err)
	}

	commandLine := strings.Join(os.Args, " ")
	for _, r := range reports {
		execLog := runner.NewExecutionLog(r, startedAt, commandLine)
		path, err := runner.WriteExecutionLog(cfg.Paths.LogDir, execLog)
		if err != nil {
			return reportPath, "", fmt.Errorf("write execution log: %w", err)
		}
		logPath = path
	}
	return reportPath, logPath, nil
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [test-plan]",
	Short: "Validate a test plan JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.PlanPath(args[0])

	plan, errs := schema.ValidateFile(path)
	if len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n\n", len(errs))
		for i, e := range errs {
			fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
			}
		}
		return fmt.Errorf("validation failed with %d error(s)", len(errs))
	}

	steps := 0
	for _, tc := range plan.TestCases {
		steps += len(tc.Steps)
	}
	fmt.Printf("✓ %s is valid (%d test cases, %d steps)\n", plan.Name, len(plan.TestCases), steps)
	return nil
}

// --- catalog ---

var catalogJSON bool

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the built-in test functions",
	RunE:  runCatalog,
}

func runCatalog(cmd *cobra.Command, args []string) error {
	entries := scripts.Builtin().Catalog()

	if catalogJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Script", "Function", "Parameters", "Description"})
	for _, e := range entries {
		var specs []string
		for _, p := range e.Params {
			name := p.Name
			if p.Required {
				name += "*"
			}
			specs = append(specs, name)
		}
		t.AppendRow(table.Row{e.Script, e.Function, strings.Join(specs, ", "), e.Description})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	fmt.Println("  * required parameter")
	return nil
}

// --- creds ---

var credsCmd = &cobra.Command{
	Use:   "creds",
	Short: "Manage stored credentials",
}

var credsType string

var credsSetCmd = &cobra.Command{
	Use:   "set [name]",
	Short: "Store a credential in the OS keyring",
	Long: `Prompt for a credential and store it under the given authentication
name. Test plan steps reference it via their authentication block.`,
	Args: cobra.ExactArgs(1),
	RunE: runCredsSet,
}

func runCredsSet(cmd *cobra.Command, args []string) error {
	authName := args[0]
	mgr := creds.NewManager(creds.SystemKeyring{}, nil)
	prompter := &creds.TerminalPrompter{}

	var username, password, token string
	switch credsType {
	case creds.TypeBasic:
		var err error
		username, password, err = prompter.Basic(authName)
		if err != nil {
			return err
		}
	case creds.TypeToken:
		var err error
		token, err = prompter.Token(authName)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported credential type %q: must be basic or token", credsType)
	}

	if err := mgr.Store(credsType, authName, username, password, token); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	fmt.Printf("✓ Stored %s credential %q\n", credsType, authName)
	return nil
}

var credsCheckCmd = &cobra.Command{
	Use:   "check [name]",
	Short: "Check whether a credential is stored",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := creds.NewManager(creds.SystemKeyring{}, nil)
		if !mgr.Exists(credsType, args[0]) {
			fmt.Printf("✗ No %s credential stored as %q\n", credsType, args[0])
			os.Exit(1)
		}
		fmt.Printf("✓ %s credential %q is stored\n", credsType, args[0])
		return nil
	},
}

var credsDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Remove a credential from the OS keyring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := creds.NewManager(creds.SystemKeyring{}, nil)
		if err := mgr.Delete(args[0]); err != nil {
			return fmt.Errorf("delete credential: %w", err)
		}
		fmt.Printf("✓ Deleted credential %q\n", args[0])
		return nil
	},
}

// --- schema export ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the test plan JSON Schema to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.GenerateJSONSchema()
		if err != nil {
			return fmt.Errorf("generate schema: %w", err)
		}
		var out json.RawMessage = data
		formatted, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Println(string(data))
			return nil
		}
		fmt.Println(string(formatted))
		return nil
	},
}

// --- serve ---

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web admin API",
	Long: `Start the HTTP admin server: REST endpoints for test plan CRUD, the
function catalog, variables and execution logs, plus a websocket channel
that runs a plan and streams its output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Serve.Addr = serveAddr
		}
		// No prompter: the server never blocks on a terminal.
		mgr := creds.NewManager(creds.SystemKeyring{}, nil)
		return serve.New(cfg, scripts.Builtin(), mgr).ListenAndServe()
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stepwise %s (build: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the configuration file")

	runCmd.Flags().StringVarP(&runTestCaseID, "test-case-id", "i", "", "Run only the test case with this id")
	runCmd.Flags().IntVarP(&runDebugLevel, "debug-level", "d", 0, "Output detail: 0 status only, 1 failed steps, 2 all steps")

	runAllCmd.Flags().IntVarP(&runAllDebugLevel, "debug-level", "d", 0, "Output detail: 0 status only, 1 failed steps, 2 all steps")

	catalogCmd.Flags().BoolVar(&catalogJSON, "json", false, "Output as JSON")

	credsCmd.PersistentFlags().StringVar(&credsType, "type", creds.TypeBasic, "Credential type: basic or token")
	credsCmd.AddCommand(credsSetCmd)
	credsCmd.AddCommand(credsCheckCmd)
	credsCmd.AddCommand(credsDeleteCmd)

	schemaCmd.AddCommand(schemaExportCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides configuration)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runAllCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(credsCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
