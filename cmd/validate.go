package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mongiaK/openvswitch/internal/config"
)

var validateTemplateFile string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an NSH template file",
	Long: `Validate an NSH template file without processing any packet.

This is useful for pre-checking a template before running encap with it.

Examples:
  ovs-nsh validate -f md1.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(validateTemplateFile, cmd.OutOrStdout())
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateTemplateFile, "file", "f", "",
		"template file to validate (required)")
	validateCmd.MarkFlagRequired("file")
}

func runValidate(path string, out io.Writer) error {
	tmpl, err := config.LoadTemplate(path)
	if err != nil {
		fmt.Fprintf(out, "INVALID: %v\n", err)
		return err
	}
	fmt.Fprintf(out, "VALID: %s (%d bytes)\n", tmpl, tmpl.Len())
	return nil
}
