package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ksm-android/resultmail/pkg/mail"
	"github.com/ksm-android/resultmail/pkg/recipients"
	"github.com/ksm-android/resultmail/pkg/resultmail/config"
	"github.com/ksm-android/resultmail/pkg/resultmail/output"
)

func NewPreviewCommand() *cobra.Command {
	var (
		name     string
		role     string
		division string
		outPath  string
	)

	cmd := &cobra.Command{
		Use:       "preview acceptance|rejection",
		Short:     "Render one example mail to a local HTML file",
		Long:      "Renders the variant for an example recipient and writes the HTML to a file for manual inspection. Nothing is sent.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: variantNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			variant, err := mail.ParseVariant(args[0])
			if err != nil {
				return err
			}

			example := map[string]string{
				recipients.ColumnName:     name,
				recipients.ColumnRole:     role,
				recipients.ColumnDivision: division,
			}
			fields := make(map[string]string, len(example))
			for _, column := range variant.RequiredFields() {
				fields[column] = example[column]
			}
			body, err := mail.NewRenderer(rt.escapeHTML).Render(variant, recipients.New(fields))
			if err != nil {
				return err
			}
			html := body.HTML

			path := outPath
			if path == "" {
				path = previewFor(rt.Config(), variant)
			}
			if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
				return fmt.Errorf("failed to write preview: %w", err)
			}
			rt.Logger().Debugw("Wrote preview", "variant", variant, "path", path, "bytes", len(html))

			label := "email"
			if variant == mail.Rejection {
				label = "rejection email template"
			}
			output.WritePreviewSaved(rt.Writer(), label, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "John Doe", "Recipient name")
	cmd.Flags().StringVar(&role, "role", "Staff", "Role (acceptance only)")
	cmd.Flags().StringVar(&division, "division", "Mobile Development", "Division (acceptance only)")
	cmd.Flags().StringVar(&outPath, "out", "", "Output file (default from config per variant)")

	return cmd
}

func previewFor(cfg *config.Config, v mail.Variant) string {
	if v == mail.Rejection {
		return cfg.Preview.Rejection
	}
	return cfg.Preview.Acceptance
}
