package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/noah-isme/ecole-api/internal/dto"
)

func (cli *commandLine) runTask(ctx context.Context, task string) error {
	report, err := cli.tasks.Run(ctx, task)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s: processed=%d changed=%d skipped=%d failed=%d\n",
		report.Task, report.Processed, report.Changed, report.Skipped, report.Failed)
	for _, note := range report.Notes {
		fmt.Fprintf(cli.out, "  note: %s\n", note)
	}
	if len(report.Lines) > 0 {
		printCheckLines(cli, report.Lines)
	}
	return nil
}

func printCheckLines(cli *commandLine, lines []dto.EnrollmentCheckLine) {
	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENROLLMENT\tUSER\tNAME\tROLE\tYEAR\tSTATE")
	for _, l := range lines {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", l.EnrollmentID, l.StudentID, l.StudentName, l.Role, l.YearName, yearState(l.IsCurrent, l.IsArchived))
	}
	_ = w.Flush()
}

func yearState(current, archived bool) string {
	var states []string
	if current {
		states = append(states, "current")
	}
	if archived {
		states = append(states, "archived")
	}
	if len(states) == 0 {
		return "-"
	}
	return strings.Join(states, ",")
}

func (cli *commandLine) recompute(ctx context.Context) error {
	result, err := cli.years.Recompute(ctx, nowFunc())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "demoted %d current year(s)\n", result.Demoted)
	for _, y := range result.Finished {
		fmt.Fprintf(cli.out, "  finished: %s (%s) ended %s\n", y.Name, y.Session, y.EndDate.Format("2006-01-02"))
	}
	return nil
}
