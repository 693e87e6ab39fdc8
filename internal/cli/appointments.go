package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/appointment-store/internal/application"
	"github.com/example/appointment-store/internal/calendar"
)

func listCmd(rt *runtime) *cobra.Command {
	return viewCmd(rt, "list", "List every appointment ordered by time", func(v application.Views) []application.Appointment {
		return v.Sorted
	})
}

func upcomingCmd(rt *runtime) *cobra.Command {
	return viewCmd(rt, "upcoming", "List appointments scheduled from now on", func(v application.Views) []application.Appointment {
		return v.Upcoming
	})
}

func pastCmd(rt *runtime) *cobra.Command {
	return viewCmd(rt, "past", "List appointments scheduled before now", func(v application.Views) []application.Appointment {
		return v.Past
	})
}

func missedCmd(rt *runtime) *cobra.Command {
	return viewCmd(rt, "missed", "List past appointments that were never completed", func(v application.Views) []application.Appointment {
		return v.Missed
	})
}

func viewCmd(rt *runtime, use, short string, pick func(application.Views) []application.Appointment) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.loadConfig()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			store, b, err := rt.openStore(ctx, cfg, rt.commandLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer b.Close()

			views := store.Views()
			out := cmd.OutOrStdout()
			printAppointments(out, pick(views), views)
			printSummary(out, views)
			return nil
		},
	}
}

func addCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an appointment",
		Example: `  apptstore add --subject "Jane Doe" --date 2025-03-11 --time 09:00 --reason Checkup
  apptstore add -s "Jane Doe" -d 2025-03-11 -t 09:00 -r Checkup --notes "bring x-rays"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			date, _ := cmd.Flags().GetString("date")
			clock, _ := cmd.Flags().GetString("time")
			reason, _ := cmd.Flags().GetString("reason")

			draft := application.AppointmentDraft{
				SubjectName: subject,
				Date:        date,
				Time:        clock,
				Reason:      reason,
			}
			if cmd.Flags().Changed("notes") {
				notes, _ := cmd.Flags().GetString("notes")
				draft.Notes = &notes
			}

			cfg, err := rt.loadConfig()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			store, b, err := rt.openStore(ctx, cfg, rt.commandLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer b.Close()

			created, err := store.Create(ctx, draft)
			if err != nil {
				return describeError("failed to create appointment", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Created appointment %s\n", created.ID)
			printAppointment(out, created)
			return nil
		},
	}
	cmd.Flags().StringP("subject", "s", "", "subject name")
	cmd.Flags().StringP("date", "d", "", "date as YYYY-MM-DD")
	cmd.Flags().StringP("time", "t", "", "time as HH:MM")
	cmd.Flags().StringP("reason", "r", "", "reason for the appointment")
	cmd.Flags().String("notes", "", "free form notes")
	return cmd
}

func deleteCmd(rt *runtime) *cobra.Command {
	return mutateCmd(rt, "delete [id]", "Delete an appointment", "delete", "Deleted", func(cmd *cobra.Command, store *application.AppointmentStore, id string) error {
		return store.Delete(commandContext(cmd), id)
	})
}

func completeCmd(rt *runtime) *cobra.Command {
	return mutateCmd(rt, "complete [id]", "Mark an appointment completed", "complete", "Completed", func(cmd *cobra.Command, store *application.AppointmentStore, id string) error {
		return store.MarkCompleted(commandContext(cmd), id)
	})
}

func mutateCmd(rt *runtime, use, short, action, done string, apply func(*cobra.Command, *application.AppointmentStore, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return errors.New("appointment id is required")
			}

			cfg, err := rt.loadConfig()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			store, b, err := rt.openStore(ctx, cfg, rt.commandLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer b.Close()

			if err := apply(cmd, store, id); err != nil {
				return describeError(fmt.Sprintf("failed to %s appointment", action), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s appointment %s\n", done, id)
			return nil
		},
	}
}

func exportCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export appointments as an iCalendar file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")

			cfg, err := rt.loadConfig()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			store, b, err := rt.openStore(ctx, cfg, rt.commandLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer b.Close()

			views := store.Views()
			data, err := calendar.Render(views.Sorted, store.Location(), views.Now)
			if err != nil {
				return fmt.Errorf("failed to render calendar: %w", err)
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d appointments to %s\n", views.Summary.Total-views.Summary.Malformed, output)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	return cmd
}

// describeError expands validation failures into one line per field.
func describeError(prefix string, err error) error {
	var validationErr *application.ValidationError
	if !errors.As(err, &validationErr) || !validationErr.HasErrors() {
		return fmt.Errorf("%s: %w", prefix, err)
	}

	fields := make([]string, 0, len(validationErr.FieldErrors))
	for field := range validationErr.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(":")
	for _, field := range fields {
		fmt.Fprintf(&b, "\n  %s: %s", field, validationErr.FieldErrors[field])
	}
	return errors.New(b.String())
}
