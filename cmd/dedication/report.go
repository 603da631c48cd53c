package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/dedication/internal/export"
	"github.com/verte-zerg/dedication/internal/logging"
	"github.com/verte-zerg/dedication/internal/report"
	"github.com/verte-zerg/dedication/internal/reportui"
)

var (
	outputFormat    string
	outputPath      string
	includeInactive bool
	showBars        bool
	forceColor      bool
	simpleTotal     bool
)

func newCourseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "course COURSE_ID",
		Short: "Show dedication time for every student of a course",
		Args:  cobra.ExactArgs(1),
		RunE:  runCourseCmd,
	}
	addPeriodFlags(cmd)
	addOutputFlags(cmd)
	cmd.Flags().BoolVar(&includeInactive, "inactive", false, "include enrolled students without activity")
	cmd.Flags().BoolVar(&showBars, "bars", false, "print a daily bar chart after the table")
	cmd.Flags().BoolVar(&forceColor, "color", false, "force colored bars even when not a TTY")
	return cmd
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user COURSE_ID USER_ID",
		Short: "Show the sessions of one student in a course",
		Args:  cobra.ExactArgs(2),
		RunE:  runUserCmd,
	}
	addPeriodFlags(cmd)
	addOutputFlags(cmd)
	cmd.Flags().BoolVar(&simpleTotal, "simple", false, "print only the total dedication in seconds")
	cmd.Flags().BoolVar(&showBars, "bars", false, "print a daily bar chart after the sessions")
	cmd.Flags().BoolVar(&forceColor, "color", false, "force colored bars even when not a TTY")
	return cmd
}

func newUICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ui COURSE_ID",
		Short: "Browse a course report in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  runUICmd,
	}
	addPeriodFlags(cmd)
	return cmd
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputFormat, "format", "f", string(export.FormatTable), "output format: table, csv or json")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write to this file, or into this directory using the course name (default: stdout)")
}

func runCourseCmd(cmd *cobra.Command, args []string) error {
	courseID, err := parseID("course", args[0])
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	cfg, err := reportConfig(courseID)
	if err != nil {
		return err
	}
	cfg.IncludeInactive = includeInactive

	ctx := cmd.Context()
	src, err := openSource(ctx)
	if err != nil {
		return err
	}
	defer closeSource(src)

	rep, err := report.BuildCourseReport(ctx, src, cfg)
	if err != nil {
		return fmt.Errorf("failed to build course report: %w", err)
	}
	logging.Debug().Int64("course", courseID).Int("students", len(rep.Rows)).Msg("built course report")

	return withOutput(export.Filename(rep.Course, format), func(w io.Writer) error {
		switch format {
		case export.FormatCSV:
			return export.WriteCourseCSV(w, rep)
		case export.FormatJSON:
			return export.WriteJSON(w, export.NewCourseDocument(rep))
		}
		if err := report.RenderCourseSummary(w, rep); err != nil {
			return err
		}
		if showBars {
			return report.RenderDailyBars(w, "Daily dedication", rep.Daily, 0, forceColor)
		}
		return nil
	})
}

func runUserCmd(cmd *cobra.Command, args []string) error {
	courseID, err := parseID("course", args[0])
	if err != nil {
		return err
	}
	userID, err := parseID("user", args[1])
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	cfg, err := reportConfig(courseID)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	src, err := openSource(ctx)
	if err != nil {
		return err
	}
	defer closeSource(src)

	rep, err := report.BuildUserReport(ctx, src, cfg, userID)
	if err != nil {
		return fmt.Errorf("failed to build user report: %w", err)
	}

	return withOutput(export.Filename(rep.Course, format), func(w io.Writer) error {
		if simpleTotal {
			if format == export.FormatJSON {
				return export.WriteJSON(w, rep.Detail(true))
			}
			return report.RenderTotal(w, rep)
		}
		switch format {
		case export.FormatCSV:
			return export.WriteUserCSV(w, rep)
		case export.FormatJSON:
			return export.WriteJSON(w, export.NewUserDocument(rep))
		}
		if err := report.RenderUserSessions(w, rep); err != nil {
			return err
		}
		if showBars {
			return report.RenderDailyBars(w, "Daily dedication", rep.Daily, 0, forceColor)
		}
		return nil
	})
}

func runUICmd(cmd *cobra.Command, args []string) error {
	courseID, err := parseID("course", args[0])
	if err != nil {
		return err
	}
	cfg, err := reportConfig(courseID)
	if err != nil {
		return err
	}
	src, err := openSource(cmd.Context())
	if err != nil {
		return err
	}
	defer closeSource(src)

	program := tea.NewProgram(reportui.NewModel(src, cfg), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run ui: %w", err)
	}
	return nil
}

// withOutput runs write against stdout or the --output target. A directory
// target receives a file named after the course.
func withOutput(defaultName string, write func(io.Writer) error) error {
	if outputPath == "" || outputPath == "-" {
		return write(os.Stdout)
	}
	path := outputPath
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, defaultName)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(file); err != nil {
		if cerr := file.Close(); cerr != nil {
			_ = cerr
		}
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	logging.Info().Str("path", path).Msg("report written")
	return nil
}
