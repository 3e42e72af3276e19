package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newTransactionsCommand() *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "transactions <bank-id>",
		Short: "Print one page of a bank's merged transaction view as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.banks.BankTransactions(cmd.Context(), args[0], page)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "1-indexed page number")

	return cmd
}
