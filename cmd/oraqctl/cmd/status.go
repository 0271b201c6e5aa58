package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oraq-io/oraq/internal/base"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the pending and processing queue depth and members",
	Long: `Status reports the live state of one (prefix, id) queue namespace:
the number of jobs waiting for admission, the number currently admitted
and running, and the job id at each.`,
	Args: cobra.NoArgs,
	Run:  status,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func status(cmd *cobra.Command, args []string) {
	r := createRDB()
	defer r.Close()

	prefix := viper.GetString("prefix")
	qid := viper.GetString("id")
	pendingKey := base.PendingKey(prefix, qid)
	processingKey := base.ProcessingKey(prefix, qid)

	ctx := context.Background()
	pending, err := r.LRange(ctx, pendingKey)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	processing, err := r.LRange(ctx, processingKey)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	bold := color.New(color.Bold)
	out := cmd.OutOrStdout()
	printSection(out, bold, fmt.Sprintf("Pending (%d)", len(pending)), pending)
	printSection(out, bold, fmt.Sprintf("Processing (%d)", len(processing)), processing)
}

func printSection(out io.Writer, bold *color.Color, title string, ids []string) {
	bold.Fprintln(out, title)
	if len(ids) == 0 {
		fmt.Fprintln(out, "  (empty)")
		return
	}
	fmt.Fprintln(out, "  "+strings.Join(ids, "\n  "))
}
