package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/contactsync/internal/correction"
	"github.com/agentworkforce/contactsync/internal/reconcile"
	"github.com/agentworkforce/contactsync/internal/records"
)

// workflow builds a correction workflow whose worklist follows the bus, so
// saves made through the client prune it.
func (a *app) workflow(cmd *cobra.Command, load bool) (*correction.Workflow, error) {
	backend, err := a.sessionBackend()
	if err != nil {
		return nil, err
	}
	worklist := reconcile.NewWorklist(nil, a.logger)
	worklist.Attach(a.bus)
	wf, err := correction.NewWorkflow(a.client, backend, worklist, correction.WorkflowOptions{Logger: a.logger})
	if err != nil {
		return nil, err
	}
	if load {
		if _, err := wf.Load(cmd.Context()); err != nil {
			return nil, fmt.Errorf("load invalid rows: %w", err)
		}
	}
	return wf, nil
}

func correctCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correct",
		Short: "Correct rows that failed validation",
	}

	startCmd := &cobra.Command{
		Use:   "start [INDEX...]",
		Short: "Queue rows for correction and open the first one",
		Long:  "Queue the invalid rows at the given indices. With no indices every row is queued.",
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := a.workflow(cmd, true)
			if err != nil {
				return err
			}
			indices, err := parseIndices(args)
			if err != nil {
				return err
			}
			if len(indices) == 0 {
				for i := 0; i < wf.Worklist().Len(); i++ {
					indices = append(indices, i)
				}
			}
			progress, err := wf.StartMass(cmd.Context(), indices)
			if err != nil {
				return err
			}
			return printJSON(cmd, progress)
		},
	}

	oneCmd := &cobra.Command{
		Use:   "one INDEX",
		Short: "Open a single row for correction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := a.workflow(cmd, true)
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			nav, err := wf.CorrectOne(cmd.Context(), index)
			if err != nil {
				return err
			}
			return printJSON(cmd, nav)
		},
	}

	var form contactFlags
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Save the open correction form",
		Long:  "Save the open correction. Fields left unset keep the prefilled or stored value.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := a.workflow(cmd, true)
			if err != nil {
				return err
			}
			pending, err := wf.Pending()
			if err != nil {
				return err
			}
			if pending.Callback == nil {
				return correction.ErrNoActiveCorrection
			}
			base := records.Contact{ClientKey: pending.Callback.Key}
			switch {
			case pending.Prefill != nil:
				base = *pending.Prefill
			case pending.Callback.Kind == correction.KindEdit:
				if existing, err := a.client.GetByID(cmd.Context(), pending.Callback.Key); err == nil {
					base = existing
				}
			}
			outcome, err := wf.Submit(cmd.Context(), overlay(base, form))
			if err != nil {
				return err
			}
			return printJSON(cmd, outcome)
		},
	}
	form.register(submitCmd, true)

	skipCmd := &cobra.Command{
		Use:   "skip",
		Short: "Skip the queued row being corrected",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := a.workflow(cmd, true)
			if err != nil {
				return err
			}
			outcome, err := wf.Skip(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, outcome)
		},
	}

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Retry opening the queued row after a failed lookup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := a.workflow(cmd, true)
			if err != nil {
				return err
			}
			progress, err := wf.Resume(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, progress)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the persisted correction state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := a.workflow(cmd, false)
			if err != nil {
				return err
			}
			pending, err := wf.Pending()
			if err != nil {
				return err
			}
			return printJSON(cmd, pending)
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Abandon the correction in progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := a.workflow(cmd, false)
			if err != nil {
				return err
			}
			if err := wf.Cancel(); err != nil {
				return err
			}
			return printJSON(cmd, map[string]bool{"cancelled": true})
		},
	}

	cmd.AddCommand(startCmd, oneCmd, submitCmd, skipCmd, resumeCmd, statusCmd, cancelCmd)
	return cmd
}

func overlay(base records.Contact, f contactFlags) records.Contact {
	set := f.contact()
	if strings.TrimSpace(f.key) != "" {
		base.ClientKey = set.ClientKey
	}
	if f.name != "" {
		base.Name = set.Name
	}
	if f.email != "" {
		base.Email = set.Email
	}
	if f.phone != "" {
		base.Phone = set.Phone
	}
	return base
}

func parseIndices(args []string) ([]int, error) {
	out := make([]int, 0, len(args))
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid index %q", part)
			}
			out = append(out, n)
		}
	}
	return out, nil
}
