package main

import (
	"net/url"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/contactsync/internal/identity"
)

func readCommands(a *app) []*cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := a.client.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, items)
		},
	}

	getCmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Fetch one contact by client key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contact, err := a.client.GetByID(cmd.Context(), identity.Parse(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd, contact)
		},
	}

	var page, size int
	var search string
	pageCmd := &cobra.Command{
		Use:   "page",
		Short: "Fetch one page of contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := a.client.Paginated(cmd.Context(), page, size, search)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	pageCmd.Flags().IntVar(&page, "page", 0, "zero-based page number")
	pageCmd.Flags().IntVar(&size, "size", 50, "page size")
	pageCmd.Flags().StringVar(&search, "search", "", "filter term")

	var searchPage, searchSize int
	searchCmd := &cobra.Command{
		Use:   "search TERM",
		Short: "Search contacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.client.Search(cmd.Context(), args[0], searchPage, searchSize)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	searchCmd.Flags().IntVar(&searchPage, "page", 0, "zero-based page number")
	searchCmd.Flags().IntVar(&searchSize, "size", 50, "page size")

	var fields map[string]string
	findCmd := &cobra.Command{
		Use:   "find",
		Short: "Find contacts by field",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := url.Values{}
			for k, v := range fields {
				params.Set(k, v)
			}
			items, err := a.client.Find(cmd.Context(), params)
			if err != nil {
				return err
			}
			return printJSON(cmd, items)
		},
	}
	findCmd.Flags().StringToStringVar(&fields, "field", nil, "field=value filters")

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Count contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.client.Count(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"total": n})
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show contact statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := a.client.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Show the source validation report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := a.client.ValidationReport(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}

	invalidCmd := &cobra.Command{
		Use:   "invalid",
		Short: "List rows that failed validation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := a.client.InvalidData(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, rows)
		},
	}

	errorsCmd := &cobra.Command{
		Use:   "errors",
		Short: "List validation errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			errs, err := a.client.ValidationErrors(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, errs)
		},
	}

	validateKeyCmd := &cobra.Command{
		Use:   "validate-key KEY",
		Short: "Check whether a client key is free",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			check, err := a.client.ValidateKey(cmd.Context(), identity.Parse(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd, check)
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check service health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			health, err := a.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, health)
		},
	}

	return []*cobra.Command{
		listCmd, getCmd, pageCmd, searchCmd, findCmd, countCmd, statsCmd,
		reportCmd, invalidCmd, errorsCmd, validateKeyCmd, healthCmd,
	}
}

func debugCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Service diagnostics",
	}
	raw := func(use, short string, fetch func(*cobra.Command) (any, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				v, err := fetch(cmd)
				if err != nil {
					return err
				}
				return printJSON(cmd, v)
			},
		}
	}
	cmd.AddCommand(
		raw("invalid-data", "Dump the service's invalid row buffer", func(c *cobra.Command) (any, error) {
			return a.client.DebugInvalidData(c.Context())
		}),
		raw("force-invalid", "Force a revalidation of the source", func(c *cobra.Command) (any, error) {
			return a.client.ForceInvalidData(c.Context())
		}),
		raw("check-source", "Inspect the source spreadsheet", func(c *cobra.Command) (any, error) {
			return a.client.CheckSource(c.Context())
		}),
		raw("with-validation", "List contacts with their validation state", func(c *cobra.Command) (any, error) {
			return a.client.WithValidation(c.Context())
		}),
	)
	return cmd
}
