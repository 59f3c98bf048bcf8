package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tripfx/tripfx/internal/output"
)

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

// sanitizeFilename lowercases name and collapses anything outside
// [a-z0-9._-] into dashes, so "Recommend.JFK/USD" becomes "recommend.jfk-usd".
func sanitizeFilename(name string) string {
	clean := nonFilename.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	clean = strings.Trim(clean, "-.")
	if clean == "" {
		return "output"
	}
	return clean
}

// addOutputFlags registers --output-format, --out and --out-dir.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: table, json, markdown")
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	cmd.Flags().String("out-dir", "", "Write output to a directory, one file per result")
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

// outputPath resolves where rendered output goes. An empty result means
// stdout. With --out-dir the file is named <name>.<ext>.
func outputPath(cmd *cobra.Command, format output.Format, name string) (string, error) {
	outPath, _ := cmd.Flags().GetString("out")
	outDir, _ := cmd.Flags().GetString("out-dir")
	outPath, outDir = strings.TrimSpace(outPath), strings.TrimSpace(outDir)

	switch {
	case outPath != "" && outDir != "":
		return "", fmt.Errorf("--out and --out-dir are mutually exclusive")
	case outDir != "":
		return filepath.Join(outDir, sanitizeFilename(name)+"."+format.Extension()), nil
	case outPath == "-":
		return "", nil
	default:
		return outPath, nil
	}
}

// writeRendered writes rendered output to the target chosen by the output flags.
func writeRendered(cmd *cobra.Command, format output.Format, name, rendered string) error {
	path, err := outputPath(cmd, format, name)
	if err != nil {
		return err
	}
	if path == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(file, rendered); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
