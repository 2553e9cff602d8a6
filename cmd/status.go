package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/kebairia/sitebackup/internal/operations"
)

var (
	okLabel   = color.New(color.FgGreen, color.Bold).SprintFunc()
	failLabel = color.New(color.FgRed, color.Bold).SprintFunc()
)

func printSuccess(w io.Writer, res operations.Result) {
	fmt.Fprintf(w, "%s backup %s written to %s (%s, %d entries)\n",
		okLabel("OK"), res.RunID, res.Archive, humanize.Bytes(uint64(res.ArchiveSize)), len(res.Entries))
}

func printFailure(w io.Writer, err error) {
	var stageErr *operations.StageError
	if errors.As(err, &stageErr) {
		fmt.Fprintf(w, "%s %s stage: %v (exit %d)\n",
			failLabel("FAILED"), stageErr.Stage, stageErr.Err, operations.ExitCode(err))
		return
	}
	fmt.Fprintf(w, "%s %v (exit %d)\n", failLabel("FAILED"), err, operations.ExitCode(err))
}
