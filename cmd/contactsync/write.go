package main

import (
	"github.com/spf13/cobra"

	"github.com/agentworkforce/contactsync/internal/identity"
	"github.com/agentworkforce/contactsync/internal/records"
)

// contactFlags binds the editable contact fields onto a command.
type contactFlags struct {
	key   string
	name  string
	email string
	phone string
}

func (f *contactFlags) register(cmd *cobra.Command, withKey bool) {
	if withKey {
		cmd.Flags().StringVar(&f.key, "key", "", "client key")
	}
	cmd.Flags().StringVar(&f.name, "name", "", "contact name")
	cmd.Flags().StringVar(&f.email, "email", "", "contact email")
	cmd.Flags().StringVar(&f.phone, "phone", "", "contact phone")
}

func (f *contactFlags) contact() records.Contact {
	return records.Contact{
		ClientKey: identity.Parse(f.key),
		Name:      f.name,
		Email:     f.email,
		Phone:     f.phone,
	}
}

func writeCommands(a *app) []*cobra.Command {
	var created contactFlags
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a contact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			saved, err := a.client.Create(cmd.Context(), created.contact())
			if err != nil {
				return err
			}
			return printJSON(cmd, saved)
		},
	}
	created.register(createCmd, true)

	var updated contactFlags
	updateCmd := &cobra.Command{
		Use:   "update KEY",
		Short: "Update a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := identity.Parse(args[0])
			form := updated.contact()
			form.ClientKey = key
			saved, err := a.client.Update(cmd.Context(), key, form)
			if err != nil {
				return err
			}
			return printJSON(cmd, saved)
		},
	}
	updated.register(updateCmd, false)

	deleteCmd := &cobra.Command{
		Use:   "delete KEY",
		Short: "Delete a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := identity.Parse(args[0])
			if err := a.client.Delete(cmd.Context(), key); err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"deleted": key})
		},
	}

	reloadCmd := &cobra.Command{
		Use:   "reload",
		Short: "Reload the source spreadsheet on the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := a.client.Reload(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}

	return []*cobra.Command{createCmd, updateCmd, deleteCmd, reloadCmd}
}
