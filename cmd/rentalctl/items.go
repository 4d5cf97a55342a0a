package main

import (
	"fmt"
	"strconv"

	"rentalnexus/internal/rental"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Create, search, rent and return items",
}

var (
	createName        string
	createDescription string
	createPrice       float64

	searchName string
	searchMin  string
	searchMax  string

	rentStart string
	rentEnd   string

	availFrom string
	availTo   string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new item",
	Example: `  rentalctl items create --name "Tent" --description "4-person tent" --price 12.5`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		item, err := client.CreateItem(cmd.Context(), createName, createDescription, createPrice)
		if err != nil {
			return fmt.Errorf("failed to create item: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), item)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search items by name and price range",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		items, err := client.SearchItems(cmd.Context(), rental.SearchCriteria{
			ItemName: searchName,
			MinPrice: searchMin,
			MaxPrice: searchMax,
		})
		if err != nil {
			return fmt.Errorf("failed to search items: %w", err)
		}
		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No items found matching criteria.")
			return nil
		}
		return printJSON(cmd.OutOrStdout(), items)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <item-id>",
	Short: "Show one item with its schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseItemID(args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		item, err := client.GetItem(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), item)
	},
}

var rentCmd = &cobra.Command{
	Use:   "rent <item-id>",
	Short: "Rent an item now or schedule a future reservation",
	Long: `Rent an item for [start, end). Omitting --start rents from today.

Dates accept YYYY-MM-DD, MM-DD-YYYY, RFC 3339 or epoch milliseconds.`,
	Example: `  rentalctl items rent 0b7c... --end 2026-11-03
  rentalctl items rent 0b7c... --start 2026-12-01 --end 2026-12-05`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseItemID(args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		details, msg, err := client.RentItem(cmd.Context(), rental.RentRequest{
			ID:          id.String(),
			RentalStart: dateFlag(rentStart),
			RentalEnd:   dateFlag(rentEnd),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return printJSON(cmd.OutOrStdout(), details)
	},
}

var returnCmd = &cobra.Command{
	Use:   "return <item-id>",
	Short: "Return a rented item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseItemID(args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		details, err := client.ReturnItem(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), details)
	},
}

var availabilityCmd = &cobra.Command{
	Use:   "availability <item-id>",
	Short: "List busy and free windows for an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseItemID(args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		report, err := client.Availability(cmd.Context(), id, availFrom, availTo)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	createCmd.Flags().StringVar(&createName, "name", "", "item name")
	createCmd.Flags().StringVar(&createDescription, "description", "", "item description")
	createCmd.Flags().Float64Var(&createPrice, "price", 0, "price per day")
	_ = createCmd.MarkFlagRequired("name")
	_ = createCmd.MarkFlagRequired("description")
	_ = createCmd.MarkFlagRequired("price")

	searchCmd.Flags().StringVar(&searchName, "name", "", "case-insensitive name fragment")
	searchCmd.Flags().StringVar(&searchMin, "min-price", "", "minimum price per day")
	searchCmd.Flags().StringVar(&searchMax, "max-price", "", "maximum price per day")

	rentCmd.Flags().StringVar(&rentStart, "start", "", "first day of the rental (default today)")
	rentCmd.Flags().StringVar(&rentEnd, "end", "", "day the rental ends")
	_ = rentCmd.MarkFlagRequired("end")

	availabilityCmd.Flags().StringVar(&availFrom, "from", "", "window start (default today)")
	availabilityCmd.Flags().StringVar(&availTo, "to", "", "window end (default 30 days after from)")

	itemsCmd.AddCommand(createCmd, searchCmd, getCmd, rentCmd, returnCmd, availabilityCmd)
}

func parseItemID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid item id %q", s)
	}
	return id, nil
}

// dateFlag reads an all-digit value as epoch milliseconds.
func dateFlag(s string) rental.DateInput {
	if s == "" {
		return rental.DateInput{}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && len(s) > 8 {
		return rental.DateMillis(ms)
	}
	return rental.DateText(s)
}
