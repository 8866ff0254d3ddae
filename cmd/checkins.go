package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/visitor-desk/internal/config"
	"github.com/kozaktomas/visitor-desk/internal/database"
	"github.com/kozaktomas/visitor-desk/internal/database/postgres"
)

var checkinsCmd = &cobra.Command{
	Use:   "checkins",
	Short: "List visitor check-ins",
	Long: `List visitors currently on site, newest first.

Examples:
  visitor-desk checkins
  visitor-desk checkins --all --limit 50
  visitor-desk checkins checkout 42`,
	RunE: runCheckins,
}

var checkinsCheckoutCmd = &cobra.Command{
	Use:   "checkout <check-in-id>",
	Short: "Check a visitor out",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckinsCheckout,
}

func init() {
	rootCmd.AddCommand(checkinsCmd)
	checkinsCmd.AddCommand(checkinsCheckoutCmd)

	checkinsCmd.Flags().Bool("all", false, "Include visitors who already checked out")
	checkinsCmd.Flags().Int("limit", 100, "Maximum number of check-ins to list")
	checkinsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runCheckins(cmd *cobra.Command, args []string) error {
	if err := connectDatabase(config.Load()); err != nil {
		return err
	}
	defer postgres.GetGlobalPool().Close()

	ctx := context.Background()
	reader, err := database.GetCheckInReader(ctx)
	if err != nil {
		return err
	}

	list, err := reader.ListCheckIns(ctx, !mustGetBool(cmd, "all"), mustGetInt(cmd, "limit"))
	if err != nil {
		return fmt.Errorf("listing check-ins: %w", err)
	}

	if mustGetBool(cmd, "json") {
		if list == nil {
			list = []database.CheckIn{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(list) == 0 {
		fmt.Println("No check-ins")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVISITOR\tMETHOD\tCHECKED IN\tCHECKED OUT")
	for _, c := range list {
		out := "-"
		if c.CheckedOutAt != nil {
			out = c.CheckedOutAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			c.ID, c.VisitorName, c.Method, c.CheckedInAt.Local().Format("2006-01-02 15:04"), out)
	}
	return w.Flush()
}

func runCheckinsCheckout(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid check-in ID %q", args[0])
	}

	d, err := connectDesk(config.Load())
	if err != nil {
		return err
	}
	defer postgres.GetGlobalPool().Close()

	if err := d.CheckOut(context.Background(), id); err != nil {
		return err
	}
	fmt.Printf("Check-in #%d closed\n", id)
	return nil
}
