package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/rfqdesk/internal/catalog"
	"github.com/zulandar/rfqdesk/internal/config"
	"github.com/zulandar/rfqdesk/internal/db"
	"github.com/zulandar/rfqdesk/internal/generate"
	"github.com/zulandar/rfqdesk/internal/intake"
	"github.com/zulandar/rfqdesk/internal/matching"
	"gorm.io/gorm"
)

const defaultConfigPath = "rfqdesk.yaml"

// configFlags are shared by every command that touches the database.
type configFlags struct {
	config string
	env    string
}

func (f *configFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.config, "config", "c", defaultConfigPath, "path to rfqdesk config file")
	cmd.Flags().StringVar(&f.env, "env", ".env", "dotenv file with secrets, ignored when missing")
}

// app is the wired set of services a command works with.
type app struct {
	cfg     *config.Config
	db      *gorm.DB
	cat     *catalog.Catalog
	gen     generate.Generator
	orch    *intake.Orchestrator
	matcher *matching.Matcher
}

// loadConfig reads secrets from the dotenv file and then the config.
func loadConfig(f configFlags) (*config.Config, error) {
	if err := config.LoadDotEnv(f.env); err != nil {
		return nil, err
	}
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openDB loads the config and connects to the database without migrating.
func openDB(f configFlags) (*config.Config, *gorm.DB, error) {
	cfg, err := loadConfig(f)
	if err != nil {
		return nil, nil, err
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

// openApp connects, migrates and wires the intake and matching services.
func openApp(f configFlags) (*app, error) {
	cfg, gormDB, err := openDB(f)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	gen, err := newGenerator(cfg.Generator)
	if err != nil {
		return nil, err
	}

	orch, err := intake.NewOrchestrator(intake.OrchestratorOpts{
		DB:               gormDB,
		Catalog:          cat,
		Generator:        gen,
		GeneratorTimeout: cfg.Generator.Timeout(),
		AIFieldDetection: cfg.Intake.AIFieldDetection,
		Continuation: intake.ContinuationOpts{
			Threshold:      cfg.Intake.ContinuationThreshold,
			ClosedWindow:   cfg.Intake.ClosedWindow(),
			ActivityWindow: cfg.Intake.ActivityWindow(),
			FailClosed:     !cfg.Intake.FailOpenEnabled(),
		},
		ReadyThreshold: cfg.Intake.ReadyThreshold,
		ReplyFrom:      cfg.Intake.ReplyFrom,
	})
	if err != nil {
		return nil, err
	}
	matcher, err := matching.NewMatcher(matching.MatcherOpts{
		Source:      matching.GormSource{DB: gormDB},
		MinScore:    cfg.Matching.MinScoreValue(),
		Limit:       cfg.Matching.Limit,
		SkipOverall: cfg.Matching.SkipOverall,
	})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, db: gormDB, cat: cat, gen: gen, orch: orch, matcher: matcher}, nil
}

// newGenerator returns nil when generation is disabled; every consumer falls
// back to its deterministic path.
func newGenerator(cfg config.GeneratorConfig) (generate.Generator, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	opts := generate.HTTPOpts{
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		Timeout:  cfg.Timeout(),
	}
	if cfg.OAuth.TokenURL != "" {
		opts.OAuth = &generate.OAuthOpts{
			TokenURL:     cfg.OAuth.TokenURL,
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			Scopes:       cfg.OAuth.Scopes,
		}
	}
	client, err := generate.NewHTTPClient(opts)
	if err != nil {
		return nil, err
	}
	return client, nil
}
