package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/contactsync/internal/config"
	"github.com/agentworkforce/contactsync/internal/contacts"
	"github.com/agentworkforce/contactsync/internal/reqcache"
	"github.com/agentworkforce/contactsync/internal/session"
	"github.com/agentworkforce/contactsync/internal/updatebus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app is the composition root shared by every subcommand.
type app struct {
	configFile string
	baseURL    string
	token      string
	sessionDSN string
	verbose    bool

	cfg      *config.Config
	logger   *log.Logger
	cache    reqcache.Store
	bus      *updatebus.Bus
	client   *contacts.Client
	sessions session.Backend
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "contactsync",
		Short:         "Contact service client and correction workflow",
		Long:          `Query the contact service, write contacts and walk the invalid rows of the source spreadsheet through correction.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default ./contactsync.yaml)")
	flags.StringVar(&a.baseURL, "base-url", "", "contact service base URL (overrides api.base_url)")
	flags.StringVar(&a.token, "token", "", "bearer token (overrides api.token)")
	flags.StringVar(&a.sessionDSN, "session", "", "session backend DSN (overrides session.dsn)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(readCommands(a)...)
	root.AddCommand(writeCommands(a)...)
	root.AddCommand(debugCmd(a), correctCmd(a), watchCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if v := strings.TrimSpace(a.baseURL); v != "" {
		cfg.API.BaseURL = v
	}
	if v := strings.TrimSpace(a.token); v != "" {
		cfg.API.Token = v
	}
	if v := strings.TrimSpace(a.sessionDSN); v != "" {
		cfg.Session.DSN = v
	}
	a.cfg = cfg

	var logger *log.Logger
	if a.verbose {
		logger = log.New(cmd.ErrOrStderr(), "contactsync: ", log.LstdFlags)
	} else {
		logger = log.New(io.Discard, "", 0)
	}
	a.logger = logger

	a.cache = reqcache.NewStore(cfg.Cache.Policy, reqcache.Options{
		Capacity:        cfg.Cache.Capacity,
		TTL:             cfg.Cache.TTL,
		ValidationTTL:   cfg.Cache.ValidationTTL,
		MaxPayloadBytes: cfg.Cache.MaxPayloadBytes,
		Logger:          logger,
	})
	a.bus = updatebus.New(logger)
	transport := contacts.NewHTTPClient(contacts.HTTPClientOptions{
		BaseURL:    cfg.API.BaseURL,
		Token:      cfg.API.Token,
		HTTPClient: &http.Client{Timeout: cfg.API.Timeout},
		UserAgent:  "contactsync-cli",
		MaxRetries: cfg.API.MaxRetries,
	})
	client, err := contacts.NewClient(transport, a.cache, a.bus, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize contact client: %w", err)
	}
	a.client = client
	return nil
}

// sessionBackend opens the session store lazily; only the correction
// commands need it.
func (a *app) sessionBackend() (session.Backend, error) {
	if a.sessions != nil {
		return a.sessions, nil
	}
	backend, err := session.BuildBackendFromDSN(a.cfg.Session.DSN)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	a.sessions = backend
	return backend, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
