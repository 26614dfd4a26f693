package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/vdavid/fsops/pkg/fsops"
	"github.com/vdavid/fsops/pkg/fsops/vfs"
)

const timeRound = 10 * time.Millisecond

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview an operation without writing anything",
		Long:  "Scan the sources, size the work, and list destination conflicts without touching the filesystem.",
	}
	cmd.AddCommand(newPlanSubcommand(fsops.KindCopy, "copy SOURCE... DEST"))
	cmd.AddCommand(newPlanSubcommand(fsops.KindMove, "move SOURCE... DEST"))
	cmd.AddCommand(newPlanSubcommand(fsops.KindDelete, "delete SOURCE..."))
	return cmd
}

func newPlanSubcommand(kind fsops.Kind, use string) *cobra.Command {
	minArgs := 2
	if kind == fsops.KindDelete {
		minArgs = 1
	}
	return &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Preview a %s", kind),
		Args:  cobra.MinimumNArgs(minArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, dest := args, ""
			if kind != fsops.KindDelete {
				sources, dest = args[:len(args)-1], args[len(args)-1]
			}

			fc, err := loadFileConfig()
			if err != nil {
				return err
			}
			cfg, err := buildConfig(fc, "")
			if err != nil {
				return err
			}
			level, err := fsops.LogLevelFromString(logLevel)
			if err != nil {
				return err
			}

			engine := fsops.New(vfs.NewLocal("local"), fsops.WithLogger(fsops.NewLogger(os.Stderr, level)))
			report, err := engine.DryRun(kind, sources, dest, cfg)
			if err != nil {
				var opErr *fsops.OpError
				if errors.As(err, &opErr) {
					pterm.Error.Println(opErr.Message())
				}
				return err
			}

			pterm.Info.Printfln("%s would touch %d file(s), %s",
				kind, report.FilesTotal, humanBytes(report.BytesTotal))

			if len(report.Conflicts) > 0 {
				rows := pterm.TableData{{"Source", "Destination", "Size"}}
				for _, c := range report.Conflicts {
					rows = append(rows, []string{c.SourcePath, c.DestPath, humanBytes(c.DestSize)})
				}
				if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
					return err
				}
				if report.ConflictsTruncated {
					pterm.Warning.Printfln("Conflict list truncated at %d entries.", len(report.Conflicts))
				}
			} else if kind != fsops.KindDelete {
				pterm.Success.Println("No conflicts.")
			}
			return nil
		},
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
