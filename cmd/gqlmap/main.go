// Command gqlmap is a GraphQL security scanner: it finds endpoints, runs
// security checks, fetches or infers schemas, and exports them to API
// client formats.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/giuseppesec/gqlmap/discovery"
	"github.com/giuseppesec/gqlmap/export"
	"github.com/giuseppesec/gqlmap/httpgql"
	"github.com/giuseppesec/gqlmap/infer"
	"github.com/giuseppesec/gqlmap/scan"
	"github.com/giuseppesec/gqlmap/schema"
)

const version = "0.3.0"

var (
	cyanTag   = color.New(color.FgCyan).Sprint("[*]")
	greenTag  = color.New(color.FgGreen).Sprint("[+]")
	redTag    = color.New(color.FgRed).Sprint("[-]")
	yellowTag = color.New(color.FgYellow).Sprint("[!]")
)

func printBanner() {
	magenta := color.New(color.FgHiMagenta)
	magenta.Println(`   __________    __    __  ___          `)
	magenta.Println(`  / ____/ __ \  / /   /  |/  /___ _____ `)
	magenta.Println(` / / __/ / / / / /   / /|_/ / __ ` + "`" + `/ __ \`)
	magenta.Println(`/ /_/ / /_/ / / /___/ /  / / /_/ / /_/ /`)
	magenta.Println(`\____/\___\_\/_____/_/  /_/\__,_/ .___/ `)
	magenta.Println(`                               /_/      `)
	fmt.Printf("  %s %s\n\n",
		color.New(color.Bold).Sprint("GraphQL Security Scanner"),
		color.New(color.Faint).Sprintf("v%s", version))
}

// clientFlags are the HTTP options shared by every network command.
type clientFlags struct {
	headers  []string
	proxy    string
	timeout  time.Duration
	insecure bool
	rps      float64
	debug    bool
	verbose  bool
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, `custom HTTP header ("Name: value" or JSON object, repeatable)`)
	cmd.Flags().StringVarP(&f.proxy, "proxy", "x", "", "HTTP/HTTPS/SOCKS proxy URL")
	cmd.Flags().DurationVar(&f.timeout, "timeout", httpgql.DefaultTimeout, "request timeout")
	cmd.Flags().BoolVarP(&f.insecure, "insecure", "k", false, "skip TLS certificate verification")
	cmd.Flags().Float64Var(&f.rps, "rps", 0, "max requests per second (0 = unlimited)")
	cmd.Flags().BoolVarP(&f.debug, "debug", "d", false, "tag requests with debug headers")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "verbose logging")
}

func (f *clientFlags) client(target string) (*httpgql.Client, error) {
	headers, err := parseHeaders(f.headers)
	if err != nil {
		return nil, err
	}
	return httpgql.NewClient(target, httpgql.Options{
		Headers:  headers,
		Proxy:    f.proxy,
		Timeout:  f.timeout,
		Insecure: f.insecure,
		RPS:      f.rps,
		Debug:    f.debug,
	})
}

func (f *clientFlags) logger() log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	if f.verbose {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	return log.With(logger, "ts", log.DefaultTimestampUTC)
}

// parseHeaders accepts both "Name: value" pairs and JSON objects.
func parseHeaders(raw []string) (http.Header, error) {
	headers := http.Header{}
	for _, h := range raw {
		if strings.HasPrefix(strings.TrimSpace(h), "{") {
			m := map[string]string{}
			if err := json.Unmarshal([]byte(h), &m); err != nil {
				return nil, errors.Wrapf(err, "invalid JSON header %q", h)
			}
			for k, v := range m {
				headers.Set(k, v)
			}
			continue
		}
		name, value, found := strings.Cut(h, ":")
		if !found {
			return nil, errors.Errorf("invalid header format: %q", h)
		}
		headers.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return headers, nil
}

func main() {
	// Ctrl-C cancels the command context instead of killing the process, so
	// a running inference finalizes and writes out its partial model.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "gqlmap",
		Short:         "a cli tool for testing graphql that does more than one thing",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(scanCommand())
	root.AddCommand(introspectCommand())
	root.AddCommand(inferCommand())
	root.AddCommand(exportCommand())
	root.AddCommand(discoverCommand())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", redTag, err)
		os.Exit(1)
	}
}

func scanCommand() *cobra.Command {
	flags := &clientFlags{}
	var (
		target    string
		output    string
		exclude   string
		force     bool
		discover  bool
		wordlist  string
		listScans bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run security checks against a GraphQL endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listScans {
				fmt.Println("Available security checks:")
				fmt.Println()
				for _, check := range scan.AllChecks() {
					fmt.Printf("  %s [%s] - %s\n", check.Name(), check.Severity(), check.Description())
				}
				return nil
			}
			if target == "" {
				return errors.New("required flag \"target\" not set")
			}
			printBanner()

			client, err := flags.client(target)
			if err != nil {
				return err
			}
			logger := flags.logger()

			targets := []string{target}
			if discover {
				fmt.Printf("%s Discovering GraphQL endpoints...\n\n", cyanTag)
				targets, err = discoverEndpoints(cmd, client, target, wordlist, logger)
				if err != nil {
					return err
				}
				if len(targets) == 0 {
					fmt.Printf("%s No GraphQL endpoints found\n", redTag)
					return nil
				}
			}

			var excludes []string
			if exclude != "" {
				for _, e := range strings.Split(exclude, ",") {
					excludes = append(excludes, strings.TrimSpace(e))
				}
			}

			for _, url := range targets {
				fmt.Printf("%s Target: %s\n\n", cyanTag, url)
				endpoint := client.WithURL(url)

				if !force {
					ok, err := scan.IsGraphQL(cmd.Context(), endpoint)
					if err != nil {
						fmt.Printf("%s Detection failed: %v\n", redTag, err)
						continue
					}
					if !ok {
						fmt.Printf("%s GraphQL not detected at this URL (use --force)\n", redTag)
						continue
					}
					fmt.Printf("%s GraphQL endpoint detected\n\n", greenTag)
				}

				runner := &scan.Runner{Exclude: excludes, Logger: logger}
				results, err := runner.Run(cmd.Context(), endpoint)
				if err != nil && len(results) == 0 {
					return err
				}
				sortResults(results)

				if output == "json" {
					raw, err := json.MarshalIndent(results, "", "  ")
					if err != nil {
						return err
					}
					fmt.Println(string(raw))
					continue
				}
				printResults(results)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&target, "target", "t", "", "target GraphQL endpoint URL")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, json)")
	cmd.Flags().StringVarP(&exclude, "exclude", "e", "", "checks to skip (comma-separated, globs allowed)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "scan even if GraphQL is not detected")
	cmd.Flags().BoolVar(&discover, "discover", false, "discover GraphQL endpoints under the target first")
	cmd.Flags().StringVarP(&wordlist, "wordlist", "w", "", "custom path wordlist for discovery")
	cmd.Flags().BoolVarP(&listScans, "list-tests", "l", false, "list available checks and exit")
	return cmd
}

var severityOrder = map[scan.Severity]int{
	scan.SeverityHigh:   0,
	scan.SeverityMedium: 1,
	scan.SeverityLow:    2,
	scan.SeverityInfo:   3,
}

func sortResults(results []*scan.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return severityOrder[results[i].Severity] < severityOrder[results[j].Severity]
	})
}

func printResults(results []*scan.Result) {
	vulnerable := 0
	for _, r := range results {
		if r.Vulnerable {
			vulnerable++
		}
	}
	if vulnerable == 0 {
		fmt.Printf("%s No vulnerabilities found\n", greenTag)
		return
	}
	fmt.Printf("%s Found %d issue(s):\n\n", yellowTag, vulnerable)
	for _, r := range results {
		if !r.Vulnerable {
			continue
		}
		tag := severityTag(r.Severity)
		fmt.Printf("%s %s - %s\n", tag, color.New(color.Bold).Sprint(r.Title), r.Description)
		fmt.Printf("    Impact: %s\n", r.Impact)
		fmt.Printf("    Verify: %s\n\n", color.New(color.Faint).Sprint(r.Curl))
	}
}

func severityTag(s scan.Severity) string {
	switch s {
	case scan.SeverityHigh:
		return color.New(color.FgRed, color.Bold).Sprintf("[%s]", s)
	case scan.SeverityMedium:
		return color.New(color.FgYellow, color.Bold).Sprintf("[%s]", s)
	case scan.SeverityLow:
		return color.New(color.FgBlue, color.Bold).Sprintf("[%s]", s)
	}
	return color.New(color.FgGreen, color.Bold).Sprintf("[%s]", s)
}

func introspectCommand() *cobra.Command {
	flags := &clientFlags{}
	var (
		target string
		output string
		sdl    bool
	)
	cmd := &cobra.Command{
		Use:   "introspect",
		Short: "Fetch and save the introspection schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner()
			client, err := flags.client(target)
			if err != nil {
				return err
			}
			fmt.Printf("%s Fetching introspection from %s...\n\n", cyanTag, target)

			result, err := client.Post(cmd.Context(), schema.IntrospectionQuery, nil, "introspect")
			if err != nil {
				return err
			}
			if !result.HasData() {
				if msgs := result.ErrorMessages(); len(msgs) > 0 {
					return errors.Errorf("introspection refused: %s", msgs[0])
				}
				return errors.Errorf("introspection refused (HTTP %d)", result.Status)
			}
			model, err := schema.ImportIntrospection(result.Raw)
			if err != nil {
				return err
			}

			if sdl {
				return writeSDL(model, output)
			}
			raw, err := json.MarshalIndent(json.RawMessage(result.Raw), "", "  ")
			if err != nil {
				return err
			}
			return writeOutput(raw, output, "Schema")
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&target, "target", "t", "", "target GraphQL endpoint URL")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path (default: stdout)")
	cmd.Flags().BoolVar(&sdl, "sdl", false, "emit SDL instead of introspection JSON")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func inferCommand() *cobra.Command {
	flags := &clientFlags{}
	var (
		target        string
		output        string
		wordlist      string
		argWordlist   string
		patterns      string
		workers       int
		maxProbes     int
		maxTime       time.Duration
		probeArgs     bool
		skipMutations bool
		sdl           bool
	)
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Infer the schema when introspection is disabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner()
			client, err := flags.client(target)
			if err != nil {
				return err
			}
			logger := flags.logger()
			fmt.Printf("%s Inferring schema from %s (introspection disabled mode)...\n\n", cyanTag, target)

			opts := infer.Options{
				Workers:       workers,
				MaxProbes:     maxProbes,
				MaxTime:       maxTime,
				ProbeArgs:     probeArgs,
				SkipMutations: skipMutations,
				Logger:        logger,
			}
			if wordlist != "" {
				if opts.Wordlist, err = infer.LoadWordlist(wordlist); err != nil {
					return err
				}
				fmt.Printf("%s Loaded %d words from %s\n", cyanTag, len(opts.Wordlist), wordlist)
			}
			if argWordlist != "" {
				if opts.ArgWordlist, err = infer.LoadWordlist(argWordlist); err != nil {
					return err
				}
			}
			if patterns != "" {
				cfg, err := infer.LoadPatterns(patterns)
				if err != nil {
					return err
				}
				if opts.Classifier, err = infer.NewClassifier(cfg); err != nil {
					return err
				}
			}

			engine := infer.New(client, opts)
			model, stats, err := engine.Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println()
			fmt.Printf("%s Discovered %d types with %d probes (%d confirmed, %d rejected, %d ambiguous)\n",
				greenTag, model.Len(), stats.Probes, stats.Confirmed, stats.Rejected, stats.Ambiguous)
			if stats.Partial {
				fmt.Printf("%s Partial results: %s\n", yellowTag, stats.Reason)
			}

			if sdl {
				return writeSDL(model, output)
			}
			raw, err := model.ToIntrospection()
			if err != nil {
				return err
			}
			return writeOutput(raw, output, "Inferred schema")
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&target, "target", "t", "", "target GraphQL endpoint URL")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path (default: stdout)")
	cmd.Flags().StringVarP(&wordlist, "wordlist", "w", "", "field wordlist file")
	cmd.Flags().StringVar(&argWordlist, "arg-wordlist", "", "argument wordlist file")
	cmd.Flags().StringVar(&patterns, "patterns", "", "YAML file with extra error patterns")
	cmd.Flags().IntVar(&workers, "workers", infer.DefaultWorkers, "concurrent probing workers")
	cmd.Flags().IntVar(&maxProbes, "max-probes", 0, "probe budget (0 = unlimited)")
	cmd.Flags().DurationVar(&maxTime, "max-time", 0, "wall clock budget for the run (0 = unlimited)")
	cmd.Flags().BoolVar(&probeArgs, "probe-args", false, "probe arguments on confirmed fields")
	cmd.Flags().BoolVar(&skipMutations, "skip-mutations", false, "do not probe the mutation root")
	cmd.Flags().BoolVar(&sdl, "sdl", false, "emit SDL instead of introspection JSON")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func exportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a schema to API client formats",
	}
	var schemaPath, output, url string
	register := func(sub *cobra.Command) {
		sub.Flags().StringVarP(&schemaPath, "schema", "s", "", "schema file (introspection JSON or gqlmap output)")
		sub.Flags().StringVarP(&output, "output", "o", "", "output path")
		sub.Flags().StringVarP(&url, "url", "u", "", "base URL for requests")
		_ = sub.MarkFlagRequired("schema")
		_ = sub.MarkFlagRequired("output")
		_ = sub.MarkFlagRequired("url")
		cmd.AddCommand(sub)
	}

	run := func(exporter func(model *schema.Model) (*export.Stats, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			printBanner()
			fmt.Printf("%s Loading schema from %s...\n", cyanTag, schemaPath)
			raw, err := os.ReadFile(schemaPath)
			if err != nil {
				return errors.Wrap(err, "reading schema file")
			}
			model, err := schema.Load(raw)
			if err != nil {
				return err
			}
			stats, err := exporter(model)
			if err != nil {
				return err
			}
			fmt.Printf("%s Exported %d queries and %d mutations to %s\n", greenTag, stats.Queries, stats.Mutations, output)
			return nil
		}
	}

	register(&cobra.Command{
		Use:   "bruno",
		Short: "Export to a Bruno collection",
		RunE: run(func(model *schema.Model) (*export.Stats, error) {
			return (&export.Bruno{Model: model, URL: url}).Export(output)
		}),
	})
	register(&cobra.Command{
		Use:   "postman",
		Short: "Export to a Postman collection",
		RunE: run(func(model *schema.Model) (*export.Stats, error) {
			return (&export.Postman{Model: model, URL: url}).Export(output)
		}),
	})
	register(&cobra.Command{
		Use:   "curl",
		Short: "Export to executable curl scripts",
		RunE: run(func(model *schema.Model) (*export.Stats, error) {
			return (&export.Curl{Model: model, URL: url}).Export(output)
		}),
	})
	register(&cobra.Command{
		Use:   "inql",
		Short: "Export to InQL/Burp GraphQL files",
		RunE: run(func(model *schema.Model) (*export.Stats, error) {
			return (&export.InQL{Model: model, URL: url}).Export(output)
		}),
	})
	return cmd
}

func discoverCommand() *cobra.Command {
	flags := &clientFlags{}
	var (
		target   string
		wordlist string
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover GraphQL endpoints under a base URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner()
			client, err := flags.client(target)
			if err != nil {
				return err
			}
			fmt.Printf("%s Discovering GraphQL endpoints...\n\n", cyanTag)
			found, err := discoverEndpoints(cmd, client, target, wordlist, flags.logger())
			if err != nil {
				return err
			}
			if len(found) == 0 {
				fmt.Printf("%s No GraphQL endpoints found\n", redTag)
				return nil
			}
			fmt.Printf("%s Found %d endpoint(s):\n\n", greenTag, len(found))
			for _, url := range found {
				fmt.Printf("    %s\n", url)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&target, "target", "t", "", "base URL to probe")
	cmd.Flags().StringVarP(&wordlist, "wordlist", "w", "", "custom path wordlist")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func discoverEndpoints(cmd *cobra.Command, client *httpgql.Client, target, wordlist string, logger log.Logger) ([]string, error) {
	d := &discovery.Discovery{Logger: logger}
	if wordlist != "" {
		paths, err := discovery.LoadWordlist(wordlist)
		if err != nil {
			return nil, err
		}
		d.Paths = paths
	}
	return d.Run(cmd.Context(), client, target)
}

func writeSDL(model *schema.Model, output string) error {
	if output == "" {
		return model.WriteSDL(os.Stdout)
	}
	f, err := os.Create(output)
	if err != nil {
		return errors.Wrap(err, "creating output file")
	}
	defer f.Close()
	if err := model.WriteSDL(f); err != nil {
		return err
	}
	fmt.Printf("%s Schema saved to %s\n", greenTag, output)
	return nil
}

func writeOutput(raw []byte, output, what string) error {
	if output == "" {
		fmt.Println(string(raw))
		return nil
	}
	if err := os.WriteFile(output, raw, 0o644); err != nil {
		return errors.Wrap(err, "writing output file")
	}
	fmt.Printf("%s %s saved to %s\n", greenTag, what, output)
	return nil
}
