package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fengqlin/GrandR/internal/vault"
)

// assetInfo is the JSON shape of one asset version.
type assetInfo struct {
	Name      string `json:"name"`
	Version   int64  `json:"version"`
	RowCount  int64  `json:"row_count"`
	Columns   int    `json:"columns"`
	Digest    string `json:"digest"`
	CreatedAt string `json:"created_at"`
}

func toAssetInfo(a vault.Asset) assetInfo {
	return assetInfo{
		Name:      a.Name,
		Version:   a.Version,
		RowCount:  a.RowCount,
		Columns:   len(a.Schema),
		Digest:    string(a.Digest),
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// NewAssetCommand creates the asset command group.
func NewAssetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Manage versioned data assets",
	}
	cmd.AddCommand(newAssetWriteCommand(rootOpts))
	cmd.AddCommand(newAssetExportCommand(rootOpts))
	cmd.AddCommand(newAssetListCommand(rootOpts))
	return cmd
}

func newAssetWriteCommand(rootOpts *RootOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "write <name> <csv-file>",
		Short: "Import a CSV file as a new asset version",
		Long: `Import a CSV file into the vault under a new version of <name>.

Column types are sniffed from the data (int, float, bool, string); empty
cells become nulls. With --strict the new version must match the schema of
the latest existing version.

Example:
  grandr asset write Cohort ./cohort.csv
  grandr asset write Cohort ./cohort.csv --strict`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(rootOpts)
			if err != nil {
				return err
			}
			defer ws.Close()

			f, err := os.Open(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open csv file", err)
			}
			defer f.Close()

			table, err := tableFromCSV(f)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to parse csv", err)
			}

			var opts []vault.WriteOption
			if strict {
				opts = append(opts, vault.WithStrictSchema())
			}
			asset, err := ws.vault.Write(cmd.Context(), args[0], table, opts...)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to write asset", err)
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			line := fmt.Sprintf("wrote %s version %d (%d rows, %d columns)",
				asset.Name, asset.Version, asset.RowCount, len(asset.Schema))
			return out.SuccessText(line, toAssetInfo(asset))
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "require the schema of the latest version")
	return cmd
}

func newAssetExportCommand(rootOpts *RootOptions) *cobra.Command {
	var version int64

	cmd := &cobra.Command{
		Use:   "export <name> <csv-file>",
		Short: "Materialize an asset version to a CSV file",
		Long: `Materialize an asset version and write it as CSV.

Without --version the latest version is exported.

Example:
  grandr asset export Cohort ./out.csv
  grandr asset export Cohort ./out.csv --version 1`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(rootOpts)
			if err != nil {
				return err
			}
			defer ws.Close()

			var handle *vault.Handle
			if version > 0 {
				handle, err = ws.vault.ReadVersion(cmd.Context(), args[0], version)
			} else {
				handle, err = ws.vault.Read(cmd.Context(), args[0])
			}
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read asset", err)
			}

			table, err := handle.Materialize(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to materialize asset", err)
			}

			f, err := os.Create(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to create csv file", err)
			}
			defer f.Close()
			if err := tableToCSV(f, table); err != nil {
				return WrapExitError(ExitCommandError, "failed to write csv", err)
			}

			asset := handle.Asset()
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			line := fmt.Sprintf("exported %s version %d to %s", asset.Name, asset.Version, args[1])
			return out.SuccessText(line, toAssetInfo(asset))
		},
	}

	cmd.Flags().Int64Var(&version, "version", 0, "asset version (default: latest)")
	return cmd
}

func newAssetListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list [name]",
		Short:         "List assets, or the versions of one asset",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(rootOpts)
			if err != nil {
				return err
			}
			defer ws.Close()

			var assets []vault.Asset
			if len(args) == 1 {
				assets, err = ws.vault.Versions(cmd.Context(), args[0])
			} else {
				assets, err = ws.vault.Assets(cmd.Context())
			}
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list assets", err)
			}

			infos := make([]assetInfo, len(assets))
			for i, a := range assets {
				infos[i] = toAssetInfo(a)
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			if rootOpts.Format == "json" {
				return out.Success(infos)
			}

			var b strings.Builder
			for _, info := range infos {
				fmt.Fprintf(&b, "%s\tv%d\t%d rows\t%d cols\t%s\n",
					info.Name, info.Version, info.RowCount, info.Columns, info.CreatedAt)
			}
			if len(infos) == 0 {
				b.WriteString("no assets")
			}
			return out.Success(strings.TrimRight(b.String(), "\n"))
		},
	}
	return cmd
}
