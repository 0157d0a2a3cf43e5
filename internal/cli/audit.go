package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fengqlin/GrandR/internal/audit"
	"github.com/fengqlin/GrandR/internal/fingerprint"
)

// auditInfo is the JSON shape of one ledger record.
type auditInfo struct {
	Seq             int64  `json:"seq"`
	Fingerprint     string `json:"fingerprint"`
	Outcome         string `json:"outcome"`
	Note            string `json:"note,omitempty"`
	ReportRef       string `json:"report_ref,omitempty"`
	ArtifactMissing bool   `json:"artifact_missing,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func toAuditInfo(r audit.Record) auditInfo {
	return auditInfo{
		Seq:             r.Seq,
		Fingerprint:     string(r.Fingerprint),
		Outcome:         string(r.Outcome),
		Note:            r.Note,
		ReportRef:       r.ReportRef,
		ArtifactMissing: r.ArtifactMissing,
		CreatedAt:       r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// NewAuditCommand creates the audit command group.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the append-only execution ledger",
	}
	cmd.AddCommand(newAuditListCommand(rootOpts))
	return cmd
}

func newAuditListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		fp       string
		sinceSeq int64
		untilSeq int64
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit records in sequence order",
		Long: `List ledger records, oldest first. Every recorded run appends one
record; purged cache entries leave their records in place, marked
artifact-missing.

Example:
  grandr audit list
  grandr audit list --fingerprint <64-hex> --format json
  grandr audit list --since-seq 100 --until-seq 200`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := audit.Filter{SinceSeq: sinceSeq, UntilSeq: untilSeq}
			if fp != "" {
				f := fingerprint.Fingerprint(fp)
				if !f.Valid() {
					return NewExitError(ExitCommandError, fmt.Sprintf("invalid fingerprint %q", fp))
				}
				filter.Fingerprint = f
			}

			ws, err := openWorkspace(rootOpts)
			if err != nil {
				return err
			}
			defer ws.Close()

			records, err := ws.recorder.ListAudit(cmd.Context(), filter)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list audit records", err)
			}

			infos := make([]auditInfo, len(records))
			for i, r := range records {
				infos[i] = toAuditInfo(r)
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			if rootOpts.Format == "json" {
				return out.Success(infos)
			}

			var b strings.Builder
			for _, info := range infos {
				missing := ""
				if info.ArtifactMissing {
					missing = "\t[artifact missing]"
				}
				fmt.Fprintf(&b, "#%d\t%s\t%s\t%s%s\n",
					info.Seq, info.Fingerprint[:12], info.Outcome, info.CreatedAt, missing)
			}
			if len(infos) == 0 {
				b.WriteString("no audit records")
			}
			return out.Success(strings.TrimRight(b.String(), "\n"))
		},
	}

	cmd.Flags().StringVar(&fp, "fingerprint", "", "only records for this fingerprint")
	cmd.Flags().Int64Var(&sinceSeq, "since-seq", 0, "lowest sequence number, inclusive")
	cmd.Flags().Int64Var(&untilSeq, "until-seq", 0, "highest sequence number, inclusive")
	return cmd
}
