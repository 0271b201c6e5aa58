package cmd

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oraq-io/oraq/internal/rdb"
)

var cfgFile string

// Global flag variables, bound to viper in init so a config file or
// environment variable can supply them too.
var (
	uri      string
	db       int
	password string
	prefix   string
	id       string
)

var rootCmd = &cobra.Command{
	Use:   "oraqctl <command> [flags]",
	Short: "oraq CLI",
	Long:  `Command line tool to inspect and manage oraq admission-control queues.`,

	SilenceUsage:  true,
	SilenceErrors: true,

	Example: heredoc.Doc(`
		$ oraqctl status
		$ oraqctl rm a1b2c3d4e5f60718`),
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file to set flag default values (default is $HOME/.oraqctl.yaml)")
	rootCmd.PersistentFlags().StringVarP(&uri, "uri", "u", "127.0.0.1:6379", "backing store server URI")
	rootCmd.PersistentFlags().IntVarP(&db, "db", "n", 0, "backing store database number")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "password to use when connecting to the backing store")
	rootCmd.PersistentFlags().StringVar(&prefix, "prefix", "oraq", "key namespace prefix")
	rootCmd.PersistentFlags().StringVarP(&id, "id", "i", "queue", "queue identity")

	viper.BindPFlag("uri", rootCmd.PersistentFlags().Lookup("uri"))
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("password", rootCmd.PersistentFlags().Lookup("password"))
	viper.BindPFlag("prefix", rootCmd.PersistentFlags().Lookup("prefix"))
	viper.BindPFlag("id", rootCmd.PersistentFlags().Lookup("id"))
}

// initConfig reads in a config file and environment variables, if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".oraqctl")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// createRDB creates an *rdb.RDB from the resolved flag values.
func createRDB() *rdb.RDB {
	c := redis.NewClient(&redis.Options{
		Addr:     viper.GetString("uri"),
		DB:       viper.GetInt("db"),
		Password: viper.GetString("password"),
	})
	return rdb.NewRDB(c)
}
