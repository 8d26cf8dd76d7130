package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// options is the state shared by every subcommand.
type options struct {
	v       *viper.Viper
	cfgFile string
}

// NewRootCommand builds the rulctl command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	o := &options{v: viper.New()}

	root := &cobra.Command{
		Use:   "rulctl",
		Short: "Query and inspect rulstack battery RUL predictors",
		Long: `rulctl sends battery cycle readings to a rulstack-server, summarises its
prediction metrics and inspects model artifacts without a server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.initConfig(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.cfgFile, "config", "", "config file (default is $HOME/.rulctl.yaml)")
	pf.String("server", "http://localhost:3000", "rulstack-server base URL")
	pf.String("grpc-addr", "localhost:50051", "rulstack-server gRPC address")
	pf.Duration("timeout", 10*time.Second, "per-request timeout")
	pf.BoolP("verbose", "v", false, "verbose output")
	for _, name := range []string{"server", "grpc-addr", "timeout", "verbose"} {
		o.v.BindPFlag(name, pf.Lookup(name)) //nolint:errcheck
	}

	root.AddCommand(
		newPredictCmd(o),
		newStatsCmd(o),
		newInspectCmd(o),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

func (o *options) initConfig(cmd *cobra.Command) error {
	if o.cfgFile != "" {
		o.v.SetConfigFile(o.cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			o.v.AddConfigPath(home)
		}
		o.v.AddConfigPath(".")
		o.v.SetConfigType("yaml")
		o.v.SetConfigName(".rulctl")
	}

	o.v.SetEnvPrefix("RULCTL")
	o.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	o.v.AutomaticEnv()

	if err := o.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if o.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	level := slog.LevelWarn
	if o.v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	slog.Debug("rulctl: settings",
		"config", o.v.ConfigFileUsed(),
		"server", o.v.GetString("server"),
		"grpc_addr", o.v.GetString("grpc-addr"))
	return nil
}

// checkOutput validates an --output value.
func checkOutput(format string) error {
	switch format {
	case "text", "json":
		return nil
	}
	return fmt.Errorf("unknown output format %q (want text or json)", format)
}
