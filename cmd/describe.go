package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/traits"
)

var describeCmd = &cobra.Command{
	Use:   "describe <catalog-file> <item-id>",
	Short: "Show the traits of one item and the stratum each value comes from",
	Args:  cobra.ExactArgs(2),
	RunE:  runDescribe,
}

func init() {
	describeCmd.Flags().Bool("load", false, "load the item before describing it")
	describeCmd.Flags().Bool("all", false, "include traits without a value")
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	doLoad, _ := cmd.Flags().GetBool("load")
	all, _ := cmd.Flags().GetBool("all")

	s, err := open(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	it, ok := s.cat.Item(args[1])
	if !ok {
		return fmt.Errorf("no item %q in %s", args[1], args[0])
	}
	if doLoad {
		outcome := loadAll(cmd.Context(), []model.Item{it}, 1, true)[0]
		printOutcome(cmd.OutOrStdout(), outcome)
	}
	renderItem(cmd.OutOrStdout(), it, all)
	return nil
}

func renderItem(w io.Writer, it model.Item, all bool) {
	name := it.ID()
	if cm, ok := it.(model.CatalogMember); ok {
		name = cm.Name()
	}
	fmt.Fprintln(w, styleTitle.Render(name)+" "+styleMuted.Render(it.ID()+" · "+it.Type()))

	caps := make([]string, 0, 8)
	for _, c := range model.Capabilities(it) {
		caps = append(caps, string(c))
	}
	fmt.Fprintln(w, styleMuted.Render("capabilities: "+strings.Join(caps, ", ")))

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleMuted).
		Headers("TRAIT", "VALUE", "STRATUM").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			return styleCell
		})
	for _, name := range traitNames(it) {
		v := it.Trait(name)
		stratum, set := it.Strata().Which(name)
		if v == nil && !all {
			continue
		}
		if !set {
			stratum = "-"
		}
		t.Row(name, formatValue(v), stratum)
	}
	fmt.Fprintln(w, t.Render())
}

func traitNames(it model.Item) []string {
	if m, ok := it.(interface{ Schema() *traits.Schema }); ok {
		return m.Schema().Names()
	}
	return nil
}

// formatValue renders v on one line, eliding long values.
func formatValue(v any) string {
	const maxWidth = 60
	s := fmt.Sprint(v)
	if v == nil {
		s = styleMuted.Render("unset")
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > maxWidth {
		s = string(r[:maxWidth-1]) + "…"
	}
	return s
}
