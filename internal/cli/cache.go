package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fengqlin/GrandR/internal/fingerprint"
	"github.com/fengqlin/GrandR/internal/record"
)

// cacheInfo is the JSON shape of one cache entry's metadata.
type cacheInfo struct {
	Fingerprint string   `json:"fingerprint"`
	FuncName    string   `json:"func_name"`
	ArgsSummary string   `json:"args_summary"`
	Note        string   `json:"note,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
	CreatedAt   string   `json:"created_at"`
	Slots       []string `json:"slots"`
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and purge cached execution results",
	}
	cmd.AddCommand(newCacheGetCommand(rootOpts))
	cmd.AddCommand(newCachePurgeCommand(rootOpts))
	return cmd
}

func parseFingerprintArg(arg string) (fingerprint.Fingerprint, error) {
	fp := fingerprint.Fingerprint(arg)
	if !fp.Valid() {
		return "", NewExitError(ExitCommandError, fmt.Sprintf("invalid fingerprint %q", arg))
	}
	return fp, nil
}

func newCacheGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "get <fingerprint>",
		Short:         "Show the cached entry for a fingerprint",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := parseFingerprintArg(args[0])
			if err != nil {
				return err
			}

			ws, err := openWorkspace(rootOpts)
			if err != nil {
				return err
			}
			defer ws.Close()

			entry, ok, err := ws.recorder.GetCacheEntry(cmd.Context(), fp)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read cache", err)
			}
			if !ok {
				return NewExitError(ExitFailure, fmt.Sprintf("no cache entry for %s", fp.Short()))
			}

			info := cacheInfo{
				Fingerprint: string(entry.Fingerprint),
				FuncName:    entry.Meta.FuncName,
				ArgsSummary: entry.Meta.ArgsSummary,
				Note:        entry.Meta.Note,
				DurationMS:  entry.Meta.Duration.Milliseconds(),
				CreatedAt:   entry.Meta.CreatedAt.UTC().Format(time.RFC3339),
				Slots:       slotSummaries(entry.Payload),
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			if rootOpts.Format == "json" {
				return out.Success(info)
			}

			var b strings.Builder
			fmt.Fprintf(&b, "fingerprint: %s\n", info.Fingerprint)
			fmt.Fprintf(&b, "func:        %s\n", info.FuncName)
			fmt.Fprintf(&b, "args:        %s\n", info.ArgsSummary)
			if info.Note != "" {
				fmt.Fprintf(&b, "note:        %s\n", info.Note)
			}
			fmt.Fprintf(&b, "duration:    %dms\n", info.DurationMS)
			fmt.Fprintf(&b, "created:     %s\n", info.CreatedAt)
			fmt.Fprintf(&b, "slots:       %s", strings.Join(info.Slots, ", "))
			return out.Success(b.String())
		},
	}
	return cmd
}

func slotSummaries(p *record.Payload) []string {
	names := p.Names()
	summaries := make([]string, len(names))
	for i, name := range names {
		slot, _ := p.Get(name)
		summaries[i] = fmt.Sprintf("%s (%s)", name, slot.Kind)
	}
	return summaries
}

func newCachePurgeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "purge <fingerprint>",
		Short:         "Remove a cached entry, marking its audit records artifact-missing",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := parseFingerprintArg(args[0])
			if err != nil {
				return err
			}

			ws, err := openWorkspace(rootOpts)
			if err != nil {
				return err
			}
			defer ws.Close()

			purged, err := ws.recorder.PurgeCacheEntry(cmd.Context(), fp)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to purge cache entry", err)
			}
			if !purged {
				return NewExitError(ExitFailure, fmt.Sprintf("no cache entry for %s", fp.Short()))
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			return out.SuccessText("purged "+fp.Short(), map[string]string{"fingerprint": string(fp)})
		},
	}
	return cmd
}
