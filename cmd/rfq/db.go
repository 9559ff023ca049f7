package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/rfqdesk/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBCreateCmd())
	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBSeedCmd())
	return cmd
}

func newDBCreateCmd() *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the MySQL database named in the config",
		Long:  "Connects to the MySQL server without selecting a database and creates it when missing. Postgres and sqlite databases are created by their own tooling.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			admin, err := db.ConnectAdmin(cfg.Database)
			if err != nil {
				return err
			}
			if err := db.CreateDatabase(admin, cfg.Database.Name); err != nil {
				return err
			}
			fmt.Fprintf(out, "Database %s ready on %s:%d\n", cfg.Database.Name, cfg.Database.Host, cfg.Database.Port)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update all tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := openDB(flags)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(gormDB); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables on %s\n", len(db.AllModels()), cfg.Database.Driver)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newDBSeedCmd() *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load suppliers, clients, orders and quotes from a YAML file",
		Long: `Upserts suppliers and clients by name, then inserts their orders and quotes.
The tables are migrated first, so seeding a fresh database works.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sf, err := db.LoadSeedFile(args[0])
			if err != nil {
				return err
			}
			_, gormDB, err := openDB(flags)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(gormDB); err != nil {
				return err
			}
			counts, err := db.Seed(gormDB, sf)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d suppliers, %d clients, %d orders, %d quotes\n",
				counts.Suppliers, counts.Clients, counts.Orders, counts.Quotes)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
