package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAccountsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List the accounts in the account store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, baseDir, err := c.loadConfig()
			if err != nil {
				return setupError(err)
			}

			accts, err := c.accountStore(cfg, baseDir, "").List(cmd.Context())
			if err != nil {
				return setupError(err)
			}
			if len(accts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No wallets found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tADDRESS")
			for _, a := range accts {
				name := a.Name
				if name == "" {
					name = "-"
				}
				fmt.Fprintf(w, "%s\t%s\n", name, a.Address)
			}
			return w.Flush()
		},
	}
}

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pharosbot %s\n", version)
		},
	}
}
