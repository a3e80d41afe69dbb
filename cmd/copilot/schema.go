package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abd2220/retail-copilot/internal/storage"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the structured store schema as query generation sees it",
	RunE:  runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := storage.Open(ctx, storage.Dialect(cfg.Store.Driver), cfg.Store.DSN, cfg.Store.Tables, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	tables, err := store.Schema(ctx)
	if err != nil {
		return err
	}
	fmt.Println(storage.RenderSchema(tables))
	return nil
}
