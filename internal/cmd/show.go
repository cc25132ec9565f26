package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"certtrust/internal/certfile"
	"certtrust/internal/trust"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type settingView struct {
	Policy string         `json:"policy,omitempty" yaml:"policy,omitempty"`
	OID    string         `json:"oid,omitempty" yaml:"oid,omitempty"`
	Result string         `json:"result,omitempty" yaml:"result,omitempty"`
	Extra  map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

func viewOf(s trust.Settings) []settingView {
	views := make([]settingView, 0, len(s))
	for _, e := range s {
		var v settingView
		if p, ok := e.Policy(); ok {
			v.Policy = p.String()
			if oid, err := p.OID(); err == nil {
				v.OID = oid.String()
			}
		}
		if r, ok := e.Result(); ok {
			v.Result = r.String()
		}
		for k, val := range e {
			if k == trust.KeyPolicy || k == trust.KeyResult || k == trust.KeyPolicyName {
				continue
			}
			if v.Extra == nil {
				v.Extra = map[string]any{}
			}
			v.Extra[k] = val
		}
		views = append(views, v)
	}
	return views
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

func colorResult(r string) string {
	switch r {
	case trust.ResultConfirm.String(), trust.ResultTrustRoot.String():
		return green(r)
	case trust.ResultDeny.String():
		return red(r)
	case "":
		return yellow("(none)")
	}
	return yellow(r)
}

func writeSettings(w io.Writer, format string, s trust.Settings) error {
	views := viewOf(s)
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		if len(views) == 0 {
			_, err := fmt.Fprintln(w, "no trust settings")
			return err
		}
		for _, v := range views {
			policy := v.Policy
			if policy == "" {
				policy = "(any policy)"
			}
			if _, err := fmt.Fprintf(w, "%-16s %-28s %s\n", policy, v.OID, colorResult(v.Result)); err != nil {
				return err
			}
			keys := make([]string, 0, len(v.Extra))
			for k := range v.Extra {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if _, err := fmt.Fprintf(w, "    %s: %v\n", k, v.Extra[k]); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}

var showCmd = &cobra.Command{
	Use:   "show <cert-file>",
	Short: "Print the certificate's user-domain trust settings.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")
		cert, err := certfile.Load(args[0])
		if err != nil {
			return err
		}
		store, err := openStore(viper.GetString("keychain"))
		if err != nil {
			return err
		}
		s, err := store.Settings(contextOf(cmd), cert)
		if err != nil && !errors.Is(err, trust.ErrNotFound) {
			return err
		}
		return writeSettings(cmd.OutOrStdout(), format, s)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().StringP("output", "o", "text", "output format: text, yaml or json")
}
