package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"contactsync/internal/app"
	"contactsync/internal/config"
	"contactsync/internal/contacts"
	"contactsync/internal/encryption"
)

func main() {
	// A .env file is optional; it usually carries the S3 credentials.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the defaults.
func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "RunCycle", "Serve").
func newApp(operation string) (*app.App, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase prompts on stderr and reads a line from the terminal without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func parseContactID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid contact id %q", s)
	}
	return id, nil
}

func printContact(c *contacts.Contact) {
	ext := "-"
	if c.ExternalID.Valid {
		ext = c.ExternalID.String
	}
	fmt.Printf("#%d  %-30s  %-12s  %-12s  %s\n",
		c.ID,
		c.Name,
		ext,
		c.ContactMethod.String,
		c.LastUpdated.Local().Format("2006-01-02 15:04:05"),
	)
}

var rootCmd = &cobra.Command{
	Use:          "contactsync",
	Short:        "Collect contacts from note files and export them for the CRM",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init ROOT...",
	Short: "Initialize configuration scanning the given directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		roots := make([]string, 0, len(args))
		for _, arg := range args {
			abs, err := filepath.Abs(arg)
			if err != nil {
				return fmt.Errorf("resolving %s: %w", arg, err)
			}
			roots = append(roots, abs)
		}

		cfg := config.NewConfig(defaults["base_dir"], roots)
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		for _, r := range roots {
			fmt.Printf("Root:     %s\n", r)
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Database:   %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		for _, r := range cfg.Scan.Roots {
			fmt.Printf("Root:       %s\n", r)
		}
		fmt.Printf("Export Dir: %s\n", cfg.Export.Dir)
		fmt.Printf("Schedule:   %s\n", cfg.Schedule.At)
		fmt.Printf("Archive:    %s\n", cfg.Archive.Type)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		fmt.Printf("Log Dir:    %s\n", cfg.Log.Dir)

		if err := cfg.Validate(); err != nil {
			fmt.Printf("\n%v\n", err)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage archive encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the archive key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		var passphrase string
		if encryption.RequiresPassphrase(cfg.Encryption) {
			passphrase, err = readPassphrase("New passphrase: ")
			if err != nil {
				return err
			}
			confirm, err := readPassphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if passphrase != confirm {
				return fmt.Errorf("passphrases do not match")
			}
		}

		if err := app.InitKeys(cfg, passphrase); err != nil {
			return fmt.Errorf("initializing keys: %w", err)
		}
		fmt.Printf("Keys written to %s and %s\n", cfg.Encryption.PublicKeyPath, cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sync cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("RunCycle")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.RunCycle()
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		fmt.Printf("Found %d contact(s), exported %d to %s (%s)\n",
			report.ContactsFound,
			report.ContactsExported,
			report.ExportPath,
			report.Elapsed.Truncate(time.Millisecond),
		)
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a sync cycle every day at the configured time",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Serve")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return a.Serve(ctx)
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List matched contact files without storing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Scan")
		if err != nil {
			return err
		}
		defer a.Close()

		summaries := a.Scan()
		if len(summaries) == 0 {
			fmt.Println("No contact files found.")
			return nil
		}

		total := 0
		for _, s := range summaries {
			fmt.Printf("%5d  %s\n", s.Records, s.Path)
			total += s.Records
		}
		fmt.Printf("%5d  total\n", total)
		return nil
	},
}

// find command
var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Look up contacts by name or external id",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		externalID, _ := cmd.Flags().GetString("external-id")

		a, err := newApp("Find")
		if err != nil {
			return err
		}
		defer a.Close()

		found, err := a.Find(contacts.ContactQuery{Name: name, ExternalID: externalID})
		if err != nil {
			return err
		}

		if len(found) == 0 {
			fmt.Println("No contacts found.")
			return nil
		}
		for _, c := range found {
			printContact(c)
		}
		return nil
	},
}

// link command
var linkCmd = &cobra.Command{
	Use:   "link ID EXTERNAL_ID",
	Short: "Record the CRM id of a contact",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseContactID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("Link")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Link(id, args[1]); err != nil {
			return fmt.Errorf("linking contact: %w", err)
		}
		fmt.Printf("Linked contact #%d to %s\n", id, args[1])
		return nil
	},
}

// interaction command
var interactionCmd = &cobra.Command{
	Use:   "interaction",
	Short: "Manage a contact's interaction log",
}

var interactionAddCmd = &cobra.Command{
	Use:   "add ID KIND NOTES",
	Short: "Log an interaction",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseContactID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("AddInteraction")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.AddInteraction(id, args[1], args[2]); err != nil {
			return fmt.Errorf("logging interaction: %w", err)
		}
		fmt.Printf("Logged %s for contact #%d\n", args[1], id)
		return nil
	},
}

var interactionListCmd = &cobra.Command{
	Use:   "list ID",
	Short: "List a contact's interactions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseContactID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("ListInteractions")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Interactions(id)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No interactions logged.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %-10s  %s\n", e.Date.Local().Format("2006-01-02 15:04:05"), e.Kind, e.Notes)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No sync runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt.Valid {
				d := r.FinishedAt.Time.Sub(r.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %s  %-8s  found:%-4d exported:%-4d %s\n",
				r.ID,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Status,
				r.ContactsFound,
				r.ContactsExported,
				duration,
			)
			if r.Error.Valid {
				fmt.Printf("    error: %s\n", r.Error.String)
			}
		}
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect the off-site archive",
}

var archiveListCmd = &cobra.Command{
	Use:   "list [PREFIX]",
	Short: "List archived objects",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}

		a, err := newApp("ArchiveList")
		if err != nil {
			return err
		}
		defer a.Close()

		keys, err := a.ArchiveList(prefix)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

var archiveGetCmd = &cobra.Command{
	Use:   "get KEY DEST",
	Short: "Download and decrypt an archived object",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ArchiveGet")
		if err != nil {
			return err
		}
		defer a.Close()

		var passphrase string
		if a.RequiresPassphrase() {
			passphrase, err = readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}

		if err := a.ArchiveGet(args[0], args[1], passphrase); err != nil {
			if errors.Is(err, encryption.ErrWrongPassphrase) {
				return fmt.Errorf("incorrect passphrase")
			}
			return fmt.Errorf("restoring %s: %w", args[0], err)
		}
		fmt.Printf("Restored %s to %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// interaction subcommands
	interactionCmd.AddCommand(interactionAddCmd)
	interactionCmd.AddCommand(interactionListCmd)

	// archive subcommands
	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveGetCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(findCmd)
	findCmd.Flags().String("name", "", "Match contacts with this exact name")
	findCmd.Flags().String("external-id", "", "Match the contact with this CRM id")
	findCmd.MarkFlagsOneRequired("name", "external-id")
	findCmd.MarkFlagsMutuallyExclusive("name", "external-id")
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(interactionCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
	rootCmd.AddCommand(archiveCmd)
}
