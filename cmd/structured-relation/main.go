package main

import (
	"context"
	"os"

	"github.com/sha1n/structured-relation/internal/app"
	"github.com/sha1n/structured-relation/internal/projection"
	"github.com/spf13/cobra"
)

var (
	// Version is injected at build time
	Version = "dev"
	// Build is injected at build time
	Build = "unknown"
	// ProgramName is injected at build time
	ProgramName = "structured-relation"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, Build, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, build, programName string, args []string) error {
	rootCmd := &cobra.Command{
		Use:   programName,
		Short: "Structured relation MCP server",
		Long: `Renders the related records of database rows into encoded index field values,
indexes them and serves rendering, decoding and search as MCP tools over stdio.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunWithDeps(context.Background(), app.DefaultRunParams(), cmd.Flags(), version)
		},
	}

	rootCmd.SetVersionTemplate(`{{.Version}}
`)

	app.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(
		newServeCommand(version),
		newIndexCommand(),
		newRenderCommand(),
		newDecodeCommand(),
	)
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

func newServeCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools over stdio (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunWithDeps(cmd.Context(), app.DefaultRunParams(), cmd.Flags(), version)
		},
	}
}

func newIndexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Index the configured table once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunIndex(cmd.Context(), app.DefaultRunParams(), cmd.Flags(), cmd.OutOrStdout())
		},
	}
}

func newRenderCommand() *cobra.Command {
	var (
		req    app.RenderRequest
		fields string
	)

	cmd := &cobra.Command{
		Use:   "render <table> <uid>",
		Short: "Render one relation field of a source record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUID(args[1])
			if err != nil {
				return err
			}
			req.Table = args[0]
			req.UID = uid
			req.Options.Fields = projection.ParseFieldList(fields)
			return app.RunRender(cmd.Context(), app.DefaultRunParams(), cmd.Flags(), req, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.IndexField, "index-field", "", "Configured index field whose options are used")
	flags.StringVar(&req.Options.LocalField, "local-field", "", "Relation field of the source table")
	flags.StringVar(&fields, "fields", "", "Comma-separated fields to keep on related records")
	flags.BoolVarP(&req.Options.MultiValue, "multi-value", "m", false, "Render a list of encoded values")
	flags.StringVar(&req.Options.AdditionalWhereClause, "where", "", "SQL condition restricting related records")
	flags.StringVar(&req.Options.RelationTableSortingField, "sort-by", "", "Join table column to order related records by")
	return cmd
}

func newDecodeCommand() *cobra.Command {
	var multiValue bool

	cmd := &cobra.Command{
		Use:   "decode <value>",
		Short: "Decode a stored index field value into JSON records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunDecode(args[0], multiValue, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&multiValue, "multi-value", "m", false, "The value is a list of encoded values")
	return cmd
}
