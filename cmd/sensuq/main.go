package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vishnualpha/sensuQ-sub001/internal/shutdown"
	"github.com/vishnualpha/sensuQ-sub001/pkg/explorer"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool
	statePath  string

	// Explore flags
	maxDepth      int
	maxPages      int
	parallel      int
	maxScenarios  int
	rateLimit     float64
	screenshotDir string
	progressAddr  string
	allowedHosts  []string
	excludes      []string

	// Collaborator flags
	provider string
	model    string

	// Credential flags
	username  string
	password  string
	credBlob  string
	credFile  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sensuq",
		Short: "sensuQ - Autonomous Web Application Explorer",
		Long: `sensuQ explores a web application the way a tester would: it crawls
breadth-first through pooled browser sessions, identifies interactive
elements, logs in when credentials are available, exercises multi-step
scenarios, and records SPA states that never change the URL as
first-class pages with deterministic replay paths.`,
		Version: version,
	}

	exploreCmd := &cobra.Command{
		Use:   "explore [target]",
		Short: "Explore a target application",
		Long:  "Explore a target URL and record its pages, elements, and replay paths.",
		Args:  cobra.ExactArgs(1),
		RunE:  runExplore,
	}

	statusCmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show the state of a run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStatus,
	}

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE:  runList,
	}

	pagesCmd := &cobra.Command{
		Use:   "pages [run-id]",
		Short: "List the pages of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  runPages,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", "sensuq.db", "State database file")

	exploreCmd.Flags().IntVarP(&maxDepth, "max-depth", "d", 3, "Maximum crawl depth")
	exploreCmd.Flags().IntVar(&maxPages, "max-pages", 50, "Maximum pages per run")
	exploreCmd.Flags().IntVarP(&parallel, "parallel", "w", 3, "Maximum parallel browser sessions")
	exploreCmd.Flags().IntVar(&maxScenarios, "max-scenarios", 3, "Maximum scenarios per page")
	exploreCmd.Flags().Float64VarP(&rateLimit, "rate-limit", "r", 2, "Navigations per second")
	exploreCmd.Flags().StringVar(&screenshotDir, "screenshots", "", "Directory for page screenshots")
	exploreCmd.Flags().StringVar(&progressAddr, "progress-addr", "", "Serve WebSocket progress on this address")
	exploreCmd.Flags().StringArrayVar(&allowedHosts, "allow-host", nil, "Additional in-scope hosts")
	exploreCmd.Flags().StringArrayVar(&excludes, "exclude", nil, "URL patterns to exclude (regex)")

	exploreCmd.Flags().StringVar(&provider, "provider", "", "LLM collaborator (claude, openai); empty runs offline")
	exploreCmd.Flags().StringVar(&model, "model", "", "Collaborator model override")

	exploreCmd.Flags().StringVarP(&username, "username", "u", "", "Username for login forms")
	exploreCmd.Flags().StringVarP(&password, "password", "p", "", "Password for login forms")
	exploreCmd.Flags().StringVar(&credBlob, "credentials", "", "Credential map (JSON or base64 JSON)")
	exploreCmd.Flags().StringVar(&credFile, "credentials-file", "", "Credential map file")

	rootCmd.AddCommand(exploreCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(pagesCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildConfig(target string) (*explorer.Config, error) {
	config := explorer.DefaultConfig()
	if configFile != "" {
		loaded, err := explorer.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
		config = loaded
	}

	config.Target = target
	config.MaxDepth = maxDepth
	config.MaxPages = maxPages
	config.MaxParallelCrawls = parallel
	config.MaxScenariosPerPage = maxScenarios
	config.RateLimit.RequestsPerSecond = rateLimit
	config.StatePath = statePath
	config.ScreenshotDir = screenshotDir
	config.ProgressAddr = progressAddr
	config.Scope.AllowedHosts = append(config.Scope.AllowedHosts, allowedHosts...)
	config.Scope.ExcludePatterns = append(config.Scope.ExcludePatterns, excludes...)
	config.Provider.Name = provider
	config.Provider.Model = model
	config.Credentials.Username = username
	config.Credentials.Password = password
	config.Credentials.Blob = credBlob
	config.Credentials.File = credFile
	config.Verbose = verbose
	config.Debug = debug
	return config, nil
}

func runExplore(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(args[0])
	if err != nil {
		return err
	}

	e, err := explorer.New(explorer.WithConfig(config))
	if err != nil {
		return fmt.Errorf("create explorer: %w", err)
	}

	handler := shutdown.NewDefault()
	handler.RegisterFunc("explorer", e.Stop)
	go handler.Wait()

	fmt.Printf("sensuQ v%s\n", version)
	fmt.Printf("Target:    %s\n", config.Target)
	fmt.Printf("Depth:     %d  Pages: %d  Parallel: %d\n",
		config.MaxDepth, config.MaxPages, config.MaxParallelCrawls)
	if config.Provider.Name == "" {
		fmt.Println("Mode:      offline (static identification, no scenarios)")
	} else {
		fmt.Printf("Mode:      %s collaborator\n", config.Provider.Name)
	}
	fmt.Println()

	result, runErr := e.Explore(handler.Context())
	if closeErr := e.Close(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: close state database: %v\n", closeErr)
	}

	if result != nil {
		printSummary(result)
	}
	if runErr != nil && !handler.IsShuttingDown() {
		return fmt.Errorf("exploration failed: %w", runErr)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := explorer.New(
		explorer.WithTarget("http://placeholder.invalid/"),
		explorer.WithStatePath(statePath),
	)
	if err != nil {
		return err
	}
	defer e.Close()

	id := ""
	if len(args) > 0 {
		id = args[0]
	}
	if id == "" {
		runs, err := e.Runs()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded")
			return nil
		}
		id = runs[0].ID
	}

	info, err := e.Status(id)
	if err != nil {
		return fmt.Errorf("read run %s: %w", id, err)
	}

	fmt.Printf("Run:       %s\n", info.Run.ID)
	fmt.Printf("Target:    %s\n", info.Run.TargetURL)
	fmt.Printf("Status:    %s\n", info.Run.Status)
	fmt.Printf("Started:   %s\n", info.Run.StartedAt.Format(time.RFC3339))
	if !info.Run.FinishedAt.IsZero() {
		fmt.Printf("Finished:  %s\n", info.Run.FinishedAt.Format(time.RFC3339))
	}
	fmt.Printf("Pages:     %d\n", info.Pages)
	fmt.Printf("Queue:     %d queued, %d completed, %d failed\n",
		info.Queued, info.Completed, info.Failed)
	if info.Run.Error != "" {
		fmt.Printf("Error:     %s\n", info.Run.Error)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	e, err := explorer.New(
		explorer.WithTarget("http://placeholder.invalid/"),
		explorer.WithStatePath(statePath),
	)
	if err != nil {
		return err
	}
	defer e.Close()

	runs, err := e.Runs()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%-32s %-10s %-40s %s\n",
			run.ID, run.Status, run.TargetURL, run.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runPages(cmd *cobra.Command, args []string) error {
	e, err := explorer.New(
		explorer.WithTarget("http://placeholder.invalid/"),
		explorer.WithStatePath(statePath),
	)
	if err != nil {
		return err
	}
	defer e.Close()

	pages, err := e.Pages(args[0])
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		fmt.Println("No pages recorded for this run")
		return nil
	}

	for _, p := range pages {
		kind := " "
		if p.IsVirtual {
			kind = "V"
		}
		fmt.Printf("%s d%d %-12s %-30s %s\n", kind, p.Depth, p.PageType, p.ScreenName, p.URL)
	}
	return nil
}

func printSummary(result *explorer.RunResult) {
	fmt.Println()
	fmt.Println("Exploration Summary")
	fmt.Println("-------------------")
	fmt.Printf("Run:             %s\n", result.RunID)
	fmt.Printf("Status:          %s\n", result.Status)
	fmt.Printf("Duration:        %v\n", result.Duration.Round(time.Second))
	fmt.Printf("Pages:           %d (%d virtual)\n", result.PagesDiscovered, result.VirtualPages)
	fmt.Printf("Completed Items: %d\n", result.PagesCompleted)
	fmt.Printf("Failed Items:    %d\n", result.PagesFailed)
	fmt.Printf("Elements:        %d\n", result.Elements)
	if result.Error != "" {
		fmt.Printf("Error:           %s\n", result.Error)
	}
	fmt.Println()
}
