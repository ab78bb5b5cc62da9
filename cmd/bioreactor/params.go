package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fentz26/bioreactor/internal/models"
	"github.com/fentz26/bioreactor/internal/reactor"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show PV and SP of every parameter",
	RunE:  runStatus,
}

var readCmd = &cobra.Command{
	Use:   "read [name...]",
	Short: "Read process values",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRead,
}

var writeCmd = &cobra.Command{
	Use:     "write [Name=value...]",
	Short:   "Write setpoints",
	Example: `  bioreactor write Agit=400 Air=1.5`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runWrite,
}

var trendCmd = &cobra.Command{
	Use:   "trend [name]",
	Short: "Plot the recent PV history of a parameter",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrend,
}

var loopsCmd = &cobra.Command{
	Use:   "loops",
	Short: "Show control loop status",
	RunE:  runLoops,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check daemon health",
	RunE:  runHealth,
}

var trendHeight int

func init() {
	trendCmd.Flags().IntVar(&trendHeight, "height", 12, "Plot height in rows")
}

func runStatus(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/status")
	if err != nil {
		return err
	}

	var status map[string]models.ParameterStatus
	if err := json.Unmarshal(resp, &status); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PARAMETER\tPV\tSP")
	for _, name := range sortedKeys(status) {
		s := status[name]
		fmt.Fprintf(w, "%s\t%.2f\t%s\n", name, s.PV, reactor.FormatValue(s.SP))
	}
	w.Flush()
	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/read_multi_real", map[string][]string{"parameters": args})
	if err != nil {
		return err
	}

	var values map[string]float64
	if err := json.Unmarshal(resp, &values); err != nil {
		return err
	}

	for _, name := range args {
		fmt.Printf("%s = %.3f\n", name, values[name])
	}
	return nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	values, err := reactor.ParseAssignments(args)
	if err != nil {
		return err
	}

	resp, err := apiPost("/write_multi_real", map[string]interface{}{"values": values})
	if err != nil {
		return err
	}

	var outcomes map[string]string
	if err := json.Unmarshal(resp, &outcomes); err != nil {
		return err
	}

	for _, name := range sortedKeys(outcomes) {
		fmt.Println(outcomes[name])
	}
	return nil
}

func runTrend(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/trend?parameter=" + url.QueryEscape(args[0]))
	if err != nil {
		return err
	}

	var trend models.Trend
	if err := json.Unmarshal(resp, &trend); err != nil {
		return err
	}

	if len(trend.Values) == 0 {
		fmt.Printf("No history for %s yet\n", trend.Parameter)
		return nil
	}

	fmt.Println(asciigraph.Plot(trend.Values,
		asciigraph.Height(trendHeight),
		asciigraph.Caption(fmt.Sprintf("%s (%d samples)", trend.Parameter, len(trend.Values))),
	))
	return nil
}

func runLoops(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/control_loops")
	if err != nil {
		return err
	}

	var loops models.ControlLoops
	if err := json.Unmarshal(resp, &loops); err != nil {
		return err
	}

	fmt.Printf("Status:       %s\n", loops.Status)
	if len(loops.ActiveLoops) == 0 {
		fmt.Println("Active loops: none")
	} else {
		fmt.Printf("Active loops: %s\n", strings.Join(loops.ActiveLoops, ", "))
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	health, err := CheckHealth()
	if health != nil {
		fmt.Printf("OK:      %v\n", health.OK)
		fmt.Printf("DB:      %s\n", health.DB)
		fmt.Printf("Version: %s\n", health.Version)
		fmt.Printf("Time:    %s\n", health.Time)
	}
	return err
}

// --- Helpers ---

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
