package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oraq-io/oraq/internal/base"
)

var rmCmd = &cobra.Command{
	Use:   "rm [job id]",
	Short: "Removes a pending job given its id",
	Long: `Rm removes a job from the pending queue given its id, deleting its
pending-lock along with it. It has no effect on a job that has already
been admitted into the processing queue: an admitted job must run to
completion or be reclaimed by lock expiry.

Example: oraqctl rm a1b2c3d4e5f60718`,
	Args: cobra.ExactArgs(1),
	Run:  rm,
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

func rm(cmd *cobra.Command, args []string) {
	r := createRDB()
	defer r.Close()

	prefix := viper.GetString("prefix")
	qid := viper.GetString("id")
	pendingKey := base.PendingKey(prefix, qid)
	lockKey := base.LockKey(pendingKey, args[0])

	if err := r.RemoveByID(context.Background(), pendingKey, lockKey, args[0]); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Printf("Successfully removed %v\n", args[0])
}
