package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rathix/devproxy/internal/config"
	"github.com/rathix/devproxy/internal/proxy"
	"github.com/rathix/devproxy/internal/server"
)

const resolveLongDesc string = `Print the API base URL the frontend will use.

VITE_API_URL from the environment wins, then the env section of the config
file. When neither sets a non-empty value the base URL is /api.`

func newResolveCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Print the resolved API base URL",
		Long:  resolveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfigFile(o.ConfigFile)
			if err != nil {
				return err
			}
			var b apiBaseSource
			b.Set(cfg)
			fmt.Fprintln(cmd.OutOrStdout(), b.URL())
			return nil
		},
	}
}

// errCheckFailed reports that check found problems it already printed.
var errCheckFailed = errors.New("config check failed")

const checkLongDesc string = `Validate the config file and print the rules that would be mounted.

Exits non-zero when the file cannot be parsed, when any entry is invalid,
or when the selected rules cannot be served.`

func newCheckCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config file",
		Long:  checkLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.OutOrStdout(), cmd.ErrOrStderr(), o)
		},
	}
	bindRuleFlags(cmd, o)
	return cmd
}

func runCheck(stdout, stderr io.Writer, o *options) error {
	cfg, warnings, err := loadConfigFile(o.ConfigFile)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintf(stderr, "invalid: %v\n", w)
	}

	rules, profile, err := selectRules(o, cfg)
	if err != nil {
		return err
	}
	s, err := resolveSettings(o, cfg)
	if err != nil {
		return err
	}
	// Building the router catches reserved prefixes and a missing static dir.
	routes, err := server.NewRoutes(server.Deps{Rules: rules, Server: s.Server})
	if err != nil {
		return err
	}
	routes.Close()

	if profile != "" {
		fmt.Fprintf(stdout, "profile: %s\n", profile)
	}
	writeRules(stdout, rules)
	var b apiBaseSource
	b.Set(cfg)
	fmt.Fprintf(stdout, "api base url: %s\n", b.URL())

	if len(warnings) > 0 {
		return fmt.Errorf("%w: %d invalid entries", errCheckFailed, len(warnings))
	}
	return nil
}

func newProfilesCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List built-in and config file profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfigFile(o.ConfigFile)
			if err != nil {
				return err
			}
			return writeProfiles(cmd.OutOrStdout(), cfg, o.Profile)
		},
	}
	cmd.Flags().StringVarP(&o.Profile, "profile", "p", o.Profile, "mark this profile as selected")
	return cmd
}

// writeProfiles lists every profile, marking the one serve would select.
func writeProfiles(w io.Writer, cfg *config.Config, selected string) error {
	if selected == "" {
		selected = cfg.Profile
	}
	if selected == "" {
		selected = config.DefaultProfile
	}
	for _, name := range config.ProfileNames(cfg) {
		rules, err := config.ResolveRules(&config.Config{Profiles: cfg.Profiles}, name)
		if err != nil {
			return err
		}
		marker := " "
		if name == selected {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s\n", marker, name)
		writeRules(w, rules)
	}
	if len(cfg.Rules) > 0 {
		fmt.Fprintln(w, "note: the config file's rules list overrides every profile")
	}
	return nil
}

// writeRules prints one line per rule with an example of the forwarded path.
func writeRules(w io.Writer, rules []config.ProxyRule) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range rules {
		example := r.Prefix + "/recette"
		if r.Prefix == "/" {
			example = "/recette"
		}
		mode := "keep prefix"
		if r.Rewrite {
			mode = "strip prefix"
		}
		fmt.Fprintf(tw, "    %s\t%s\t-> %s\t(%s: %s -> %s)\n",
			r.Name, r.Prefix, r.Target, mode, example, proxy.RewritePath(example, r.Prefix, r.Rewrite))
	}
	tw.Flush()
}
