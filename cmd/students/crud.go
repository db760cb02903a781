package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aanand-mishra/student-crud/internal/controller"
	"github.com/aanand-mishra/student-crud/internal/querycache"
	"github.com/aanand-mishra/student-crud/internal/recordstore"
	"github.com/aanand-mishra/student-crud/internal/types"
)

// fieldFlags are the editable fields, exposed as flags on create and update.
var fieldFlags = []string{
	types.FieldName,
	types.FieldEmail,
	types.FieldAddress,
	types.FieldBirthdate,
	types.FieldAvatar,
}

func addFieldFlags(cmd *cobra.Command) {
	cmd.Flags().String(types.FieldName, "", "student name")
	cmd.Flags().String(types.FieldEmail, "", "student email")
	cmd.Flags().String(types.FieldAddress, "", "student address")
	cmd.Flags().String(types.FieldBirthdate, "", "birthdate, YYYY-MM-DD")
	cmd.Flags().String(types.FieldAvatar, "", "(optional) avatar URL")
}

// applyFieldFlags copies the flags the user set onto the controller draft.
func applyFieldFlags(cmd *cobra.Command, ctrl *controller.Controller) error {
	for _, name := range fieldFlags {
		if !cmd.Flags().Changed(name) {
			continue
		}
		value, err := cmd.Flags().GetString(name)
		if err != nil {
			return fmt.Errorf("%s flag: %w", name, err)
		}
		if err := ctrl.SetField(name, value); err != nil {
			return err
		}
	}
	return nil
}

// loadList waits for the student snapshot and fails on a fetch error.
func loadList(cmd *cobra.Command, a *app) (controller.View, error) {
	v, err := a.ctrl.Load(cmd.Context())
	if err != nil {
		return v, err
	}
	if v.Status == querycache.StatusError {
		return v, v.Err
	}
	return v, nil
}

// GetListCmd returns the list command.
func GetListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List students",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			v, err := loadList(cmd, a)
			if err != nil {
				return err
			}
			return controller.RenderList(os.Stdout, v.Records)
		},
	}
}

// GetCreateCmd returns the create command.
func GetCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a student",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := applyFieldFlags(cmd, a.ctrl); err != nil {
				return err
			}
			rec, err := a.ctrl.Submit(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created student %s\n", rec.ID)
			return nil
		},
	}
	addFieldFlags(cmd)
	return cmd
}

// GetUpdateCmd returns the update command. Fields not given keep their
// current values.
func GetUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := loadList(cmd, a); err != nil {
				return err
			}
			if err := a.ctrl.BeginEdit(args[0]); err != nil {
				return err
			}
			if err := applyFieldFlags(cmd, a.ctrl); err != nil {
				return err
			}
			rec, err := a.ctrl.Submit(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "updated student %s\n", rec.ID)
			return nil
		},
	}
	addFieldFlags(cmd)
	return cmd
}

// GetDeleteCmd returns the delete command.
func GetDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.ctrl.Delete(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, recordstore.ErrNotFound) {
					return fmt.Errorf("no student %s", args[0])
				}
				return err
			}
			fmt.Fprintf(os.Stdout, "deleted student %s\n", args[0])
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(GetListCmd())
	rootCmd.AddCommand(GetCreateCmd())
	rootCmd.AddCommand(GetUpdateCmd())
	rootCmd.AddCommand(GetDeleteCmd())
}
