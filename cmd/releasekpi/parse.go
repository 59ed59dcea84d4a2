package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/releasekpi/pkg/release"
)

var parseCmd = &cobra.Command{
	Use:   "parse <title>...",
	Short: "Show the release identity recovered from titles",
	Long: `Parse each title with the configured grammar and print the recovered
identity. Useful when tuning release.grammar and its allow-lists.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		parser, _, err := buildParser(cfg)
		if err != nil {
			return err
		}

		return writeIdentities(os.Stdout, parser, args)
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
}

func writeIdentities(w io.Writer, parser *release.Parser, titles []string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TITLE\tRELEASE\tPLATFORM\tLANGUAGE\tTEST TYPE\tSPRINT")

	for _, title := range titles {
		id, ok := parser.Parse(title)
		if !ok {
			fmt.Fprintf(tw, "%q\t(unparseable)\t\t\t\t\n", title)

			continue
		}

		fmt.Fprintf(tw, "%q\t%s\t%s\t%s\t%s\t%s\n", title, id.OfficialID,
			dash(id.Platform), dash(id.Language), dash(id.TestType), dash(id.Sprint))
	}

	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
