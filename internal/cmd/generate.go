package cmd

import (
	"fmt"
	"time"

	"certtrust/internal/certfile"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate <common-name>",
	Short: "Create an RSA key and a certificate for it.",
	Long: `generate writes a new RSA key and a certificate for it. The certificate is
self-signed unless --issuer-cert and --issuer-key name the CA that signs it.
The written certificate can be passed to install.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		org, _ := flags.GetString("org")
		sans, _ := flags.GetStringSlice("san")
		isCA, _ := flags.GetBool("ca")
		validFor, _ := flags.GetDuration("valid-for")
		bits, _ := flags.GetInt("bits")
		keyOut, _ := flags.GetString("key-out")
		certOut, _ := flags.GetString("cert-out")
		der, _ := flags.GetBool("der")
		issuerCert, _ := flags.GetString("issuer-cert")
		issuerKey, _ := flags.GetString("issuer-key")

		if validFor <= 0 {
			return fmt.Errorf("--valid-for must be positive")
		}
		issuer, err := loadIssuer(issuerCert, issuerKey)
		if err != nil {
			return err
		}

		key, err := certfile.GenerateKey(bits)
		if err != nil {
			return err
		}
		cert, err := key.TLSCertificateFor(time.Now().Add(validFor), isCA, issuer, org, args[0], sans...)
		if err != nil {
			return err
		}

		if err := key.WriteFile(keyOut); err != nil {
			return err
		}
		if der {
			err = cert.WriteDERFile(certOut)
		} else {
			err = cert.WriteFile(certOut)
		}
		if err != nil {
			return err
		}

		log.Info().
			Str("subject", cert.X509().Subject.CommonName).
			Str("issuer", cert.X509().Issuer.CommonName).
			Time("notAfter", cert.X509().NotAfter).
			Str("key", keyOut).
			Str("cert", certOut).
			Msg("Certificate generated")
		return nil
	},
}

func loadIssuer(certPath, keyPath string) (*certfile.Issuer, error) {
	if certPath == "" && keyPath == "" {
		return nil, nil
	}
	if certPath == "" || keyPath == "" {
		return nil, fmt.Errorf("--issuer-cert and --issuer-key go together")
	}
	cert, err := certfile.LoadCertificate(certPath)
	if err != nil {
		return nil, err
	}
	key, err := certfile.LoadKey(keyPath)
	if err != nil {
		return nil, err
	}
	return &certfile.Issuer{Cert: cert, Key: key}, nil
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().String("org", "certtrust", "organization of the subject")
	generateCmd.Flags().StringSlice("san", nil, "extra DNS name or IP address, repeatable")
	generateCmd.Flags().Bool("ca", false, "allow the certificate to sign other certificates")
	generateCmd.Flags().Duration("valid-for", 365*24*time.Hour, "validity period")
	generateCmd.Flags().Int("bits", 2048, "RSA key size")
	generateCmd.Flags().String("key-out", "key.pem", "where to write the private key")
	generateCmd.Flags().String("cert-out", "cert.pem", "where to write the certificate")
	generateCmd.Flags().Bool("der", false, "write the certificate as DER instead of PEM")
	generateCmd.Flags().String("issuer-cert", "", "certificate of the signing CA")
	generateCmd.Flags().String("issuer-key", "", "private key of the signing CA")
}
