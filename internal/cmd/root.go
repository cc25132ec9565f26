package cmd

import (
	"context"
	"crypto/x509"
	"fmt"
	"path/filepath"
	"strings"

	"certtrust/internal/keychain"
	"certtrust/internal/logging"
	"certtrust/internal/trust"

	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Store is what the commands need from the keychain.
type Store interface {
	trust.Store
	Import(ctx context.Context, der []byte) (*x509.Certificate, error)
	IsInstalled(ctx context.Context, cert *x509.Certificate) (bool, error)
}

// openStore is a var so tests can swap the keychain for an in-memory store.
var openStore = func(path string) (Store, error) {
	kc, err := keychain.New(path)
	if err != nil {
		return nil, err
	}
	return kc, nil
}

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "certtrust",
	Short: "Import certificates into the keychain and manage their per-policy trust settings.",
	Long: `certtrust adds certificates to the login keychain and sets, changes or
removes their user-domain trust settings policy by policy. Settings for
policies that are not named on the command line are left alone.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.SetLevel(viper.GetString("log-level"))
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.certtrust.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("keychain", "", "keychain to import into (default login keychain)")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("keychain", rootCmd.PersistentFlags().Lookup("keychain"))

	viper.SetDefault("default-policies", []string{"ssl", "basic"})
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := homedir.Dir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigName(".certtrust")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CERTTRUST")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			log.Warn().Err(err).Msg("Unable to read config file")
		}
		return
	}
	log.Debug().Str("file", filepath.Clean(viper.ConfigFileUsed())).Msg("Using config file")
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func parseActions(policies []string, action trust.Action) ([]trust.PolicyAction, error) {
	if len(policies) == 0 {
		return nil, fmt.Errorf("no policies given")
	}
	actions := make([]trust.PolicyAction, 0, len(policies))
	for _, s := range policies {
		p, err := trust.ParsePolicy(s)
		if err != nil {
			return nil, err
		}
		actions = append(actions, trust.PolicyAction{Policy: p, Action: action})
	}
	return actions, nil
}

func reconcile(cmd *cobra.Command, store Store, cert *x509.Certificate, actions []trust.PolicyAction) error {
	var target trust.Store = store
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if dryRun {
		snap, err := trust.Snapshot(contextOf(cmd), store, cert)
		if err != nil {
			return fmt.Errorf("unable to read trust settings for %s: %w", cert.Subject.CommonName, err)
		}
		target = snap
	}

	out, err := trust.Reconcile(contextOf(cmd), target, cert, actions)
	if err != nil {
		return fmt.Errorf("unable to set trust settings for %s: %w", cert.Subject.CommonName, err)
	}

	for _, pa := range actions {
		log.Info().
			Str("policy", pa.Policy.String()).
			Stringer("action", pa.Action).
			Bool("handled", pa.Handled).
			Msg("Policy")
	}
	switch {
	case dryRun:
		log.Info().Str("subject", cert.Subject.CommonName).Bool("changes", out.Written).Msg("Dry run, trust settings not written")
		return writeSettings(cmd.OutOrStdout(), "text", out.Settings)
	case out.Written:
		log.Info().Str("subject", cert.Subject.CommonName).Int("entries", len(out.Settings)).Msg("Trust settings updated")
	default:
		log.Info().Str("subject", cert.Subject.CommonName).Msg("Trust settings unchanged")
	}
	return nil
}

func addDryRunFlag(c *cobra.Command) {
	c.Flags().Bool("dry-run", false, "print the resulting trust settings without writing them")
}
