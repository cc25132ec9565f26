package cmd

import (
	"fmt"

	"certtrust/internal/certfile"
	"certtrust/internal/trust"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newPolicyCmd(action trust.Action, short string) *cobra.Command {
	c := &cobra.Command{
		Use:   action.String() + " <cert-file>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policies, _ := cmd.Flags().GetStringSlice("policy")
			if !cmd.Flags().Changed("policy") {
				policies = viper.GetStringSlice("default-policies")
			}
			actions, err := parseActions(policies, action)
			if err != nil {
				return err
			}
			return runActions(cmd, args[0], actions)
		},
	}
	c.Flags().StringSlice("policy", nil, "policy name or OID, repeatable (default from config: ssl, basic)")
	addDryRunFlag(c)
	return c
}

func runActions(cmd *cobra.Command, certPath string, actions []trust.PolicyAction) error {
	cert, err := certfile.Load(certPath)
	if err != nil {
		return err
	}
	store, err := openStore(viper.GetString("keychain"))
	if err != nil {
		return err
	}
	return reconcile(cmd, store, cert, actions)
}

type actionConfig struct {
	Policy string `mapstructure:"policy"`
	Action string `mapstructure:"action"`
}

func configuredActions() ([]trust.PolicyAction, error) {
	var cfgs []actionConfig
	if err := viper.UnmarshalKey("actions", &cfgs); err != nil {
		return nil, fmt.Errorf("invalid actions in config: %w", err)
	}
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("no actions configured")
	}

	actions := make([]trust.PolicyAction, 0, len(cfgs))
	for i, c := range cfgs {
		p, err := trust.ParsePolicy(c.Policy)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		a, err := trust.ParseAction(c.Action)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		actions = append(actions, trust.PolicyAction{Policy: p, Action: a})
	}
	return actions, nil
}

var applyCmd = &cobra.Command{
	Use:   "apply <cert-file>",
	Short: "Apply the policy actions listed under 'actions' in the config file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actions, err := configuredActions()
		if err != nil {
			return err
		}
		return runActions(cmd, args[0], actions)
	},
}

func init() {
	rootCmd.AddCommand(newPolicyCmd(trust.Trust, "Trust the certificate for the given policies."))
	rootCmd.AddCommand(newPolicyCmd(trust.Deny, "Deny the certificate for the given policies."))
	rootCmd.AddCommand(newPolicyCmd(trust.Remove, "Remove the certificate's trust settings for the given policies."))
	rootCmd.AddCommand(applyCmd)
	addDryRunFlag(applyCmd)
}
