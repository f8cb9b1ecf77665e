package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RealZimboGuy/chainflow/internal/config"
	"github.com/RealZimboGuy/chainflow/internal/repository"
	"github.com/RealZimboGuy/chainflow/internal/templates"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chainflow",
	Short: "Multi-step cross-network payment workflow orchestrator",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfgFile, _ := cmd.Flags().GetString("config")
		if err := config.LoadFile(cfgFile); err != nil {
			return fmt.Errorf("load config %s: %w", cfgFile, err)
		}
		if dbFile, _ := cmd.Flags().GetString("db"); dbFile != "" {
			config.Set(config.DATABASE_SQLLITE_FILE_NAME, dbFile)
		}
		chainflow.SetupLogger()
		return nil
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the workflow engine and REST API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			config.Set(config.SERVER_WEB_PORT, port)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return chainflow.Start(ctx, nil)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create a workflow from a template or definition file and execute it to completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		templateID, _ := cmd.Flags().GetString("template")
		defFile, _ := cmd.Flags().GetString("definition")
		def, err := loadDefinition(templateID, defFile)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		app, err := chainflow.Bootstrap(ctx, nil)
		if err != nil {
			return err
		}
		defer app.Close()

		wf, err := app.Run(ctx, def)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(wf)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return repository.Migrate()
	},
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the built-in workflow templates",
	Run: func(cmd *cobra.Command, args []string) {
		for _, t := range templates.All() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-18s %-24s %s\n", t.ID, t.Name, t.Description)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (yaml, json, toml)")
	rootCmd.PersistentFlags().String("db", "", "SQLite file, overrides CFLOW_DATABASE_SQLLITE_FILE_NAME")

	serveCmd.Flags().String("port", "", "HTTP port, overrides CFLOW_SERVER_WEB_PORT")
	runCmd.Flags().StringP("template", "t", "", "template id, see `chainflow templates`")
	runCmd.Flags().StringP("definition", "f", "", "path to a JSON workflow definition")
	runCmd.MarkFlagsMutuallyExclusive("template", "definition")
	runCmd.MarkFlagsOneRequired("template", "definition")

	rootCmd.AddCommand(serveCmd, runCmd, migrateCmd, templatesCmd)
}

func loadDefinition(templateID, path string) (domain.WorkflowDefinition, error) {
	if templateID != "" {
		t, ok := templates.Get(templateID)
		if !ok {
			return domain.WorkflowDefinition{}, fmt.Errorf("unknown template: %s", templateID)
		}
		return t.Definition, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.WorkflowDefinition{}, err
	}
	var def domain.WorkflowDefinition
	if err := json.Unmarshal(b, &def); err != nil {
		return domain.WorkflowDefinition{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return def, def.Validate()
}
