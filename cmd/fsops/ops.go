package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/vdavid/fsops/pkg/fsops"
	"github.com/vdavid/fsops/pkg/fsops/events"
	"github.com/vdavid/fsops/pkg/fsops/vfs"
)

func newCopyCommand() *cobra.Command {
	var policy string
	cmd := &cobra.Command{
		Use:   "copy SOURCE... DEST",
		Short: "Copy files and directories into a destination directory",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, dest := args[:len(args)-1], args[len(args)-1]
			return runTransfer(fsops.KindCopy, sources, dest, policy)
		},
	}
	cmd.Flags().StringVar(&policy, "on-conflict", "", "conflict policy: stop, skip, overwrite, rename")
	return cmd
}

func newMoveCommand() *cobra.Command {
	var policy string
	cmd := &cobra.Command{
		Use:   "move SOURCE... DEST",
		Short: "Move files and directories into a destination directory",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, dest := args[:len(args)-1], args[len(args)-1]
			return runTransfer(fsops.KindMove, sources, dest, policy)
		},
	}
	cmd.Flags().StringVar(&policy, "on-conflict", "", "conflict policy: stop, skip, overwrite, rename")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete SOURCE...",
		Short: "Delete files and directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				ok, err := pterm.DefaultInteractiveConfirm.
					Show(fmt.Sprintf("Delete %d item(s)?", len(args)))
				if err != nil {
					return errors.Errorf("reading confirmation: %w", err)
				}
				if !ok {
					pterm.Info.Println("Nothing deleted.")
					return nil
				}
			}
			return runOperation(func(engine *fsops.Engine, cfg fsops.Config) (fsops.OperationID, error) {
				return engine.Delete(args, cfg)
			}, "")
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "delete without confirmation")
	return cmd
}

func runTransfer(kind fsops.Kind, sources []string, dest, policy string) error {
	start := func(engine *fsops.Engine, cfg fsops.Config) (fsops.OperationID, error) {
		if kind == fsops.KindMove {
			return engine.Move(sources, dest, cfg)
		}
		return engine.Copy(sources, dest, cfg)
	}
	return runOperation(start, policy)
}

// runOperation wires an engine to the terminal: a progress bar fed from the
// event stream, interactive conflict prompts, and a final status line.
func runOperation(start func(*fsops.Engine, fsops.Config) (fsops.OperationID, error), policy string) error {
	fc, err := loadFileConfig()
	if err != nil {
		return err
	}
	cfg, err := buildConfig(fc, policy)
	if err != nil {
		return err
	}
	level, err := fsops.LogLevelFromString(logLevel)
	if err != nil {
		return errors.Errorf("parsing log level: %w", err)
	}

	engine := fsops.New(vfs.NewLocal("local"), fsops.WithLogger(fsops.NewLogger(os.Stderr, level)))
	bus := engine.Bus()

	var (
		mu  sync.Mutex
		bar *pterm.ProgressbarPrinter
	)
	done := make(chan error, 1)

	bus.Subscribe(events.TypeProgress, events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		p := event.Data.(events.Progress)
		mu.Lock()
		defer mu.Unlock()
		if bar == nil && p.FilesTotal > 0 {
			bar, _ = pterm.DefaultProgressbar.
				WithTotal(int(p.FilesTotal)).
				WithTitle(p.Phase).
				Start()
		}
		if bar != nil {
			title := p.Phase
			if p.CurrentFile != "" {
				title = fmt.Sprintf("%s %s", p.Phase, filepath.Base(p.CurrentFile))
			}
			bar.UpdateTitle(title)
			if delta := int(p.FilesDone) - bar.Current; delta > 0 {
				bar.Add(delta)
			}
		}
		return nil
	}))

	bus.Subscribe(events.TypeConflict, events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		return promptConflict(engine, event.Data.(events.Conflict))
	}))

	bus.Subscribe(events.TypeComplete, events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		c := event.Data.(events.Complete)
		for _, warning := range c.Warnings {
			pterm.Warning.Println(warning)
		}
		pterm.Success.Printfln("Done: %d file(s), %s in %s",
			c.FilesDone, humanBytes(c.BytesDone), c.Duration.Round(timeRound))
		done <- nil
		return nil
	}))
	bus.Subscribe(events.TypeCancelled, events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		c := event.Data.(events.Cancelled)
		if c.RolledBack {
			pterm.Warning.Println("Cancelled, partial work rolled back.")
		} else {
			pterm.Warning.Println("Cancelled, partial work kept.")
		}
		done <- errors.New("operation cancelled")
		return nil
	}))
	bus.Subscribe(events.TypeFailed, events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		f := event.Data.(events.Failed)
		pterm.Error.Println(f.Message)
		done <- errors.Errorf("%s: %s", f.Code, f.Message)
		return nil
	}))

	if _, err := start(engine, cfg); err != nil {
		var opErr *fsops.OpError
		if errors.As(err, &opErr) {
			pterm.Error.Println(opErr.Message())
		}
		return err
	}

	result := <-done
	mu.Lock()
	if bar != nil {
		_, _ = bar.Stop()
	}
	mu.Unlock()
	return result
}

// promptConflict asks the user how to handle one collision and forwards the
// answer to the engine. Runs on the worker goroutine while the operation
// waits, bounded by the engine's conflict timeout.
func promptConflict(engine *fsops.Engine, c events.Conflict) error {
	pterm.Warning.Printfln("Conflict: %s already exists (%s, modified %s)",
		c.DestPath, humanBytes(c.DestSize), c.DestModified.Format("2006-01-02 15:04"))

	const (
		optOverwrite    = "Overwrite"
		optOverwriteAll = "Overwrite all"
		optSkip         = "Skip"
		optSkipAll      = "Skip all"
		optRename       = "Keep both (rename)"
		optRenameAll    = "Keep both for all"
		optCancel       = "Cancel operation"
	)
	choice, err := pterm.DefaultInteractiveSelect.
		WithOptions([]string{optOverwrite, optOverwriteAll, optSkip, optSkipAll, optRename, optRenameAll, optCancel}).
		Show("How should this be handled?")
	if err != nil {
		return errors.Errorf("reading conflict choice: %w", err)
	}

	var (
		resolution fsops.Resolution
		applyToAll bool
	)
	switch choice {
	case optOverwrite:
		resolution = fsops.ResolutionOverwrite
	case optOverwriteAll:
		resolution, applyToAll = fsops.ResolutionOverwrite, true
	case optSkip:
		resolution = fsops.ResolutionSkip
	case optSkipAll:
		resolution, applyToAll = fsops.ResolutionSkip, true
	case optRename:
		resolution = fsops.ResolutionRename
	case optRenameAll:
		resolution, applyToAll = fsops.ResolutionRename, true
	default:
		resolution = fsops.ResolutionCancel
	}
	return engine.Resolve(fsops.OperationID(c.OperationID), resolution, applyToAll)
}
