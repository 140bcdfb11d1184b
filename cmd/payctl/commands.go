package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"crypto-role-subscription/internal/application"
	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/usecase"
)

func setupCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "setup <community-id> <payment-url>",
		Short: "Configure the payout destination from a gateway payment URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *application.App) error {
				c, err := app.Communities.Setup(ctx, args[0], name, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "payout set to %s %s/%s\n", c.PayoutAddress, c.Coin, c.Network)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "community display name")
	return cmd
}

func payoutCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "payout <community-id> <address> <coin> <network>",
		Short: "Set the payout destination explicitly",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *application.App) error {
				c, err := app.Communities.SetPayout(ctx, args[0], name, args[1], args[2], args[3])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "payout set to %s %s/%s\n", c.PayoutAddress, c.Coin, c.Network)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "community display name")
	return cmd
}

func methodCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "method",
		Short: "Manage payment methods",
	}
	cmd.AddCommand(methodCreateCmd(), methodListCmd(), methodDeleteCmd())
	return cmd
}

func methodCreateCmd() *cobra.Command {
	in := usecase.CreateMethodInput{}
	var params []string
	cmd := &cobra.Command{
		Use:   "create <community-id> <name>",
		Short: "Create a payment method",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.CommunityID, in.Name = args[0], args[1]
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			in.Params = p
			return withApp(cmd, func(ctx context.Context, app *application.App) error {
				m, err := app.Methods.Create(ctx, in)
				if err != nil {
					return err
				}
				printMethods(cmd.OutOrStdout(), []*model.PaymentMethod{m})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.RoleID, "role", "", "role granted on payment")
	cmd.Flags().IntVar(&in.DurationDays, "days", 0, "subscription length in days; 0 means one-time")
	cmd.Flags().StringVar(&in.Amount, "amount", "", "fixed amount requested from the gateway")
	cmd.Flags().BoolVar(&in.Donation, "donation", false, "create a donation method")
	cmd.Flags().StringVar(&in.WebhookURL, "webhook", "", "webhook receiving lifecycle events")
	cmd.Flags().StringSliceVarP(&params, "param", "p", nil, "gateway parameter as key=value, repeatable")
	return cmd
}

func methodListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <community-id>",
		Short: "List payment methods",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *application.App) error {
				ms, err := app.Methods.List(ctx, args[0])
				if err != nil {
					return err
				}
				printMethods(cmd.OutOrStdout(), ms)
				return nil
			})
		},
	}
}

func methodDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <community-id> <name>",
		Short: "Delete a payment method and expire its subscriptions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *application.App) error {
				res, err := app.Methods.Delete(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s: %d subscriptions expired, %d failed\n",
					res.Method.Name, res.Expired, res.Failed)
				return nil
			})
		},
	}
}

func payCmd() *cobra.Command {
	var method string
	cmd := &cobra.Command{
		Use:   "pay <community-id> <member-id>",
		Short: "Start a payment attempt for a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *application.App) error {
				a, err := app.Payments.StartPayment(ctx, args[0], args[1], method)
				if err != nil {
					return err
				}
				printAttempts(cmd.OutOrStdout(), []*model.PaymentAttempt{a})
				fmt.Fprintln(cmd.OutOrStdout(), a.CheckoutURL)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", "", "method name; the first method when empty")
	return cmd
}

func statusCmd() *cobra.Command {
	var poll bool
	cmd := &cobra.Command{
		Use:   "status <attempt-id>",
		Short: "Show a payment attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *application.App) error {
				if poll {
					if err := app.Payments.PollOnce(ctx, args[0]); err != nil {
						return err
					}
				}
				a, err := app.Payments.Get(ctx, args[0])
				if err != nil {
					return err
				}
				printAttempts(cmd.OutOrStdout(), []*model.PaymentAttempt{a})
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&poll, "poll", false, "poll the gateway once before printing")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one subscription sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *application.App) error {
				rep, err := app.Subscriptions.Sweep(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "notified=%d expired=%d failed=%d\n", rep.Notified, rep.Expired, rep.Failed)
				return nil
			})
		},
	}
}

func parseParams(kv []string) (map[string]string, error) {
	if len(kv) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(kv))
	for _, p := range kv {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("param %q: want key=value", p)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

func printMethods(w io.Writer, ms []*model.PaymentMethod) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tROLE\tDURATION\tAMOUNT\tPAYOUT")
	for _, m := range ms {
		role, dur, amount := "-", "one-time", "any"
		if m.RoleID != nil {
			role = *m.RoleID
		}
		if m.Duration != nil {
			dur = fmt.Sprintf("%dd", int(*m.Duration/(24*time.Hour)))
		}
		if m.Amount != nil {
			amount = m.Amount.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s/%s\n", m.Name, m.Kind, role, dur, amount, m.Coin, m.Network)
	}
	_ = tw.Flush()
}

func printAttempts(w io.Writer, as []*model.PaymentAttempt) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMEMBER\tSTATUS\tGATEWAY\tNEXT POLL\tDEADLINE")
	for _, a := range as {
		next := "-"
		if !a.Status.IsTerminal() {
			next = a.NextPollAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", a.ID, a.MemberID, a.Status, a.GatewayStatus, next, a.DeadlineAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}
