package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// printCatalog lists titles as an aligned table.
func printCatalog(w io.Writer, c *Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TITLE\tGAME\tASSET\tDESCRIPTION")
	for _, name := range c.Names() {
		e := c.Titles[name]
		asset := e.Asset
		if asset == "" {
			asset = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, e.Game, asset, e.Description)
	}
	return tw.Flush()
}

// titlesCmd lists the titles available through the catalog
var titlesCmd = &cobra.Command{
	Use:   "titles",
	Short: "List available titles",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := resolveCatalog(catalogPath)
		if err != nil {
			return err
		}
		return printCatalog(os.Stdout, c)
	},
}
