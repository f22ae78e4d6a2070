package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"jobledger/internal/domain"
	"jobledger/internal/engine"
)

func contractCmd() *cobra.Command {
	c := &cobra.Command{Use: "contract", Short: "Inspect contracts of --profile-id"}
	c.AddCommand(contractGetCmd())
	c.AddCommand(contractListCmd())
	return c
}

func contractGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <contract-id>",
		Short: "Show a contract the profile takes part in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("contract id", args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetContract(ctx, profileID(), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func contractListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List non-terminated contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cs, err := e.ListContracts(ctx, profileID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Status", "Client", "Contractor", "Terms"})
				for _, c := range cs {
					tw.AppendRow(table.Row{c.ID, c.Status, c.ClientID, c.ContractorID, c.Terms})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func jobCmd() *cobra.Command {
	j := &cobra.Command{Use: "job", Short: "List and pay jobs as --profile-id"}
	j.AddCommand(jobUnpaidCmd())
	j.AddCommand(jobPayCmd())
	return j
}

func jobUnpaidCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpaid",
		Short: "List unpaid jobs of active contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				jobs, err := e.ListUnpaidJobs(ctx, profileID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Contract", "Price", "Description"})
				var total decimal.Decimal
				for _, j := range jobs {
					tw.AppendRow(table.Row{j.ID, j.ContractID, j.Price.StringFixed(2), j.Description})
					total = total.Add(j.Price)
				}
				tw.AppendFooter(table.Row{"", "Total", total.StringFixed(2), ""})
				tw.Render()
				return nil
			})
		},
	}
}

func jobPayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pay <job-id>",
		Short: "Pay a job from the client's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("job id", args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.PayForJob(ctx, profileID(), id)
				return printResult(res, err)
			})
		},
	}
}

func balanceCmd() *cobra.Command {
	b := &cobra.Command{Use: "balance", Short: "Manage balances"}
	b.AddCommand(balanceDepositCmd())
	b.AddCommand(balanceShowCmd())
	return b
}

func balanceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the profile of --profile-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Caller(ctx, profileID())
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func balanceDepositCmd() *cobra.Command {
	var target int64
	cmd := &cobra.Command{
		Use:   "deposit <amount>",
		Short: "Deposit into the client's own balance",
		Long:  "A deposit may not exceed 25% of the total price of the client's unpaid jobs.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[0], err)
			}
			if target == 0 {
				target = profileID()
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Deposit(ctx, profileID(), target, amount)
				return printResult(res, err)
			})
		},
	}
	cmd.Flags().Int64Var(&target, "to", 0, "target profile (defaults to --profile-id)")
	return cmd
}

func adminCmd() *cobra.Command {
	a := &cobra.Command{Use: "admin", Short: "Marketplace reports"}
	a.AddCommand(adminBestProfessionCmd())
	a.AddCommand(adminBestClientsCmd())
	return a
}

func adminBestProfessionCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "best-profession",
		Short: "Profession that earned the most in the window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				best, err := e.BestProfession(ctx, start, end)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"bestProfession": best.Profession, "earnings": best.Earnings})
				}
				fmt.Printf("%s (%s)\n", best.Profession, best.Earnings.StringFixed(2))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last day, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func adminBestClientsCmd() *cobra.Command {
	var start, end string
	var limit int
	cmd := &cobra.Command{
		Use:   "best-clients",
		Short: "Clients that paid the most in the window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				clients, err := e.BestClients(ctx, start, end, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(clients)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Full name", "Paid"})
				for _, c := range clients {
					tw.AppendRow(table.Row{c.ID, c.FullName, c.Paid.StringFixed(2)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last day, YYYY-MM-DD")
	cmd.Flags().IntVar(&limit, "limit", engine.DefaultClientLimit, "number of clients")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

// printResult prints a transfer or deposit outcome; refusals are reported as errors.
func printResult(res domain.Result, err error) error {
	if err != nil {
		return err
	}
	if viper.GetBool("json") {
		if perr := printJSON(map[string]domain.Result{"result": res}); perr != nil {
			return perr
		}
	} else {
		fmt.Println(res)
	}
	if res != domain.ResultOK {
		return fmt.Errorf("refused: %s", res)
	}
	return nil
}

func parseID(what, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", what)
	}
	return id, nil
}
