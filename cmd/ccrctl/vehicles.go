package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/model"
)

var (
	vehiclesMine  bool
	vehiclesOwner string
	vehicleFile   string
	vehicleSets   []string
)

var vehiclesCmd = &cobra.Command{
	Use:   "vehicles",
	Short: "Browse and manage vehicle listings",
}

var vehiclesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active vehicles, or your own with --mine",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		vs := a.vehicles()
		var list []model.Vehicle
		switch {
		case vehiclesMine || vehiclesOwner != "":
			if !a.session.RequireAuth() {
				return fmt.Errorf("sign in first")
			}
			list = vs.ListOwned(ctx(cmd), vehiclesOwner)
		default:
			list = vs.ListActive(ctx(cmd))
		}
		printVehicles(cmd, list)
		return nil
	}),
}

var vehiclesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one vehicle",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		v, err := a.vehicles().Get(ctx(cmd), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, v)
	}),
}

var vehiclesCreateCmd = &cobra.Command{
	Use:   "create --file vehicle.json",
	Short: "Create a listing from a JSON file",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if !a.session.RequireHost() {
			return fmt.Errorf("only hosts can list vehicles")
		}
		data, err := os.ReadFile(vehicleFile)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", vehicleFile, err)
		}
		var v model.Vehicle
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("failed to parse %s: %w", vehicleFile, err)
		}
		saved, err := a.vehicles().Create(ctx(cmd), v)
		if err != nil {
			return err
		}
		cmd.Printf("Created vehicle %s\n", saved.ID)
		return nil
	}),
}

var vehiclesUpdateCmd = &cobra.Command{
	Use:   "update <id> --set field=value ...",
	Short: "Edit a listing",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		patch, err := parseSets(vehicleSets)
		if err != nil {
			return err
		}
		saved, err := a.vehicles().Update(ctx(cmd), args[0], patch)
		if err != nil {
			return err
		}
		cmd.Printf("Updated vehicle %s (edit %d)\n", saved.ID, saved.EditCount)
		return nil
	}),
}

var vehiclesStatusCmd = &cobra.Command{
	Use:       "status <id> <active|hidden>",
	Short:     "Show or hide a listing",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{model.VehicleActive, model.VehicleHidden},
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if !a.vehicles().SetStatus(ctx(cmd), args[0], args[1]) {
			return fmt.Errorf("could not set status of %s to %q", args[0], args[1])
		}
		cmd.Printf("Vehicle %s is now %s\n", args[0], args[1])
		return nil
	}),
}

var vehiclesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a listing, queueing it if the server is unreachable",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		vs := a.vehicles()
		removed := vs.Remove(ctx(cmd), args[0])
		for _, id := range vs.PendingDeletes() {
			if id == args[0] {
				cmd.Printf("Server unreachable, delete of %s queued\n", id)
				return nil
			}
		}
		if !removed {
			return fmt.Errorf("could not delete vehicle %s", args[0])
		}
		cmd.Printf("Deleted vehicle %s\n", args[0])
		return nil
	}),
}

var vehiclesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Retry queued deletes",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		vs := a.vehicles()
		done := vs.RetryPendingDeletes(ctx(cmd))
		cmd.Printf("Completed %d pending deletes, %d still queued\n", done, len(vs.PendingDeletes()))
		return nil
	}),
}

var vehiclesPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show your plan and whether you can add another vehicle",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		pc, err := a.vehicles().CheckPlan(ctx(cmd))
		if err != nil {
			return err
		}
		cmd.Printf("Plan: %s (active limit %s)\n", pc.Plan.Key, pc.Plan.LimitLabel())
		cmd.Printf("Active vehicles: %d, created: %d\n", pc.ActiveCount, pc.LifetimeCreated)
		if pc.Allowed {
			cmd.Println("You can add another vehicle.")
		} else {
			cmd.Println(pc.Message)
		}
		return nil
	}),
}

var vehiclesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the listings",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		st, err := a.client.VehicleStats(ctx(cmd))
		if err != nil {
			a.log.WithError(err).Debug("stats from local cache")
			vs := a.vehicles()
			vs.ListActive(ctx(cmd))
			st = vs.Stats()
		}
		return printJSON(cmd, st)
	}),
}

func init() {
	vehiclesListCmd.Flags().BoolVar(&vehiclesMine, "mine", false, "List your own vehicles")
	vehiclesListCmd.Flags().StringVar(&vehiclesOwner, "owner", "", "List vehicles of this owner id")
	vehiclesCreateCmd.Flags().StringVar(&vehicleFile, "file", "", "JSON file describing the vehicle")
	_ = vehiclesCreateCmd.MarkFlagRequired("file")
	vehiclesUpdateCmd.Flags().StringArrayVar(&vehicleSets, "set", nil, "field=value to change (repeatable)")

	vehiclesCmd.AddCommand(vehiclesListCmd, vehiclesShowCmd, vehiclesCreateCmd, vehiclesUpdateCmd,
		vehiclesStatusCmd, vehiclesDeleteCmd, vehiclesSyncCmd, vehiclesPlanCmd, vehiclesStatsCmd)
	rootCmd.AddCommand(vehiclesCmd)
}

// parseSets turns field=value pairs into a patch. Numbers and booleans are
// sent as such.
func parseSets(sets []string) (map[string]any, error) {
	patch := map[string]any{}
	for _, s := range sets {
		k, v, ok := strings.Cut(s, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q, expected field=value", s)
		}
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			patch[k] = n
		} else if b, err := strconv.ParseBool(v); err == nil {
			patch[k] = b
		} else {
			patch[k] = v
		}
	}
	if len(patch) == 0 {
		return nil, fmt.Errorf("nothing to update, pass --set field=value")
	}
	return patch, nil
}

func printVehicles(cmd *cobra.Command, vs []model.Vehicle) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tYEAR\tMAKE\tMODEL\tCITY\tPRICE\tSTATUS")
	for _, v := range vs {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%.2f/%s\t%s\n", v.ID, v.Year, v.Make, v.Model, v.City, v.Price, v.Frequency, v.Status)
	}
	_ = w.Flush()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
