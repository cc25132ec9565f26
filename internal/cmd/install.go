package cmd

import (
	"crypto/x509"
	"fmt"

	"certtrust/internal/certfile"
	"certtrust/internal/trust"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var importCmd = &cobra.Command{
	Use:   "import <cert-file>",
	Short: "Add the certificate to the keychain. Already present is not an error.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(viper.GetString("keychain"))
		if err != nil {
			return err
		}
		_, err = importFile(cmd, store, args[0])
		return err
	},
}

var installCmd = &cobra.Command{
	Use:   "install <cert-file>",
	Short: "Import the certificate and trust it for the default policies.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actions, err := parseActions(viper.GetStringSlice("default-policies"), trust.Trust)
		if err != nil {
			return err
		}
		store, err := openStore(viper.GetString("keychain"))
		if err != nil {
			return err
		}

		var cert *x509.Certificate
		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			cert, err = certfile.Load(args[0])
		} else {
			cert, err = importFile(cmd, store, args[0])
		}
		if err != nil {
			return err
		}
		return reconcile(cmd, store, cert, actions)
	},
}

var installedCmd = &cobra.Command{
	Use:   "installed <cert-file>",
	Short: "Exit with status 0 if and only if the certificate is in the keychain.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cert, err := certfile.Load(args[0])
		if err != nil {
			return err
		}
		store, err := openStore(viper.GetString("keychain"))
		if err != nil {
			return err
		}
		ok, err := store.IsInstalled(contextOf(cmd), cert)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s is not installed", cert.Subject.CommonName)
		}
		log.Info().Str("subject", cert.Subject.CommonName).Msg("Certificate is installed")
		return nil
	},
}

func importFile(cmd *cobra.Command, store Store, path string) (*x509.Certificate, error) {
	der, err := certfile.Read(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read certificate file %s: %w", path, err)
	}
	cert, err := store.Import(contextOf(cmd), der)
	if err != nil {
		return nil, fmt.Errorf("unable to add certificate to keychain: %w", err)
	}
	log.Info().Str("subject", cert.Subject.CommonName).Msg("Certificate imported")
	return cert, nil
}

func init() {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(installCmd)
	addDryRunFlag(installCmd)
	rootCmd.AddCommand(installedCmd)
}
