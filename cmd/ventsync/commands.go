package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ventlearn/progress-sync/internal/domain"
)

var (
	flagModule   string
	flagPosition int
	flagProgress float64
	flagScore    float64
	flagJSON     bool
	flagLessons  []string
)

var recordCmd = &cobra.Command{
	Use:   "record [lesson-id]",
	Short: "Record progress against a lesson",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		lessonID := args[0]

		if _, err := engine.SetCurrentLesson(ctx, lessonID, flagModule); err != nil {
			return err
		}

		upd := domain.ProgressUpdate{}
		if cmd.Flags().Changed("position") {
			upd.PositionSeconds = &flagPosition
		}
		if cmd.Flags().Changed("progress") {
			upd.Progress = &flagProgress
		}
		rec, err := engine.UpdateProgress(ctx, lessonID, upd)
		if err != nil {
			return err
		}

		engine.FlushNow(ctx)
		return printRecord(rec)
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete [lesson-id]",
	Short: "Mark a lesson as completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		lessonID := args[0]

		if _, err := engine.SetCurrentLesson(ctx, lessonID, flagModule); err != nil {
			return err
		}

		var score *float64
		if cmd.Flags().Changed("score") {
			score = &flagScore
		}
		rec, err := engine.MarkLessonComplete(ctx, lessonID, flagModule, score)
		if err != nil {
			return err
		}

		engine.FlushNow(ctx)
		return printRecord(rec)
	},
}

var showCmd = &cobra.Command{
	Use:   "show [lesson-id]",
	Short: "Show the local record for a lesson",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printRecord(engine.GetLessonProgress(args[0]))
	},
}

var moduleCmd = &cobra.Command{
	Use:   "module [module-id]",
	Short: "Show aggregate completion for a module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agg := engine.GetModuleProgress(args[0], flagLessons)
		if flagJSON {
			return printJSON(agg)
		}
		fmt.Printf("%s: %d/%d lessons completed (%d%%)\n",
			agg.ModuleID, agg.CompletedCount, agg.TotalCount, agg.Percent)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization cycle now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := commandContext(cmd)
		ok := engine.FlushNow(ctx)
		printStatus()
		if !ok {
			return fmt.Errorf("synchronization incomplete")
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status and counters",
	RunE: func(*cobra.Command, []string) error {
		if flagJSON {
			status, message := engine.Status()
			return printJSON(map[string]any{
				"status":  status,
				"message": message,
				"stats":   engine.Stats(),
			})
		}
		printStatus()
		stats := engine.Stats()
		fmt.Printf("pushed %d, confirmed %d, conflicts %d, dropped %d, retried %d\n",
			stats.Pushed, stats.Confirmed, stats.Conflicts,
			stats.ValidationDrops, stats.TransientRetries)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard all local engine state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine.Reset(commandContext(cmd))
		fmt.Println("local state cleared")
		return nil
	},
}

func printRecord(rec domain.ProgressRecord) error {
	if flagJSON {
		return printJSON(rec)
	}
	completed := color.RedString("no")
	if rec.IsCompleted {
		completed = color.GreenString("yes")
	}
	score := "-"
	if rec.Score != nil {
		score = strconv.FormatFloat(*rec.Score, 'f', 2, 64)
	}
	fmt.Printf("Lesson:    %s\n", rec.LessonID)
	fmt.Printf("Module:    %s\n", rec.ModuleID)
	fmt.Printf("Position:  %ds\n", rec.PositionSeconds)
	fmt.Printf("Progress:  %.0f%%\n", rec.Progress*100)
	fmt.Printf("Completed: %s\n", completed)
	fmt.Printf("Attempts:  %d\n", rec.Attempts)
	fmt.Printf("Score:     %s\n", score)
	return nil
}

func printStatus() {
	status, message := engine.Status()
	label := string(status)
	switch status {
	case domain.SyncStatusSaved, domain.SyncStatusIdle:
		label = color.GreenString(label)
	case domain.SyncStatusError:
		label = color.RedString(label)
	case domain.SyncStatusOfflineQueued, domain.SyncStatusDirty:
		label = color.YellowString(label)
	}
	fmt.Printf("status: %s\n", label)
	if message != "" {
		fmt.Printf("message: %s\n", message)
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	recordCmd.Flags().StringVarP(&flagModule, "module", "m", "", "module the lesson belongs to")
	recordCmd.Flags().IntVarP(&flagPosition, "position", "p", 0, "playback position in seconds")
	recordCmd.Flags().Float64Var(&flagProgress, "progress", 0, "progress fraction between 0 and 1")

	completeCmd.Flags().StringVarP(&flagModule, "module", "m", "", "module the lesson belongs to")
	completeCmd.Flags().Float64Var(&flagScore, "score", 0, "assessment score between 0 and 1")

	moduleCmd.Flags().StringSliceVar(&flagLessons, "lessons", nil, "lesson IDs making up the module")

	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "print machine-readable output")

	rootCmd.AddCommand(recordCmd, completeCmd, showCmd, moduleCmd, syncCmd, statusCmd, resetCmd)
}
