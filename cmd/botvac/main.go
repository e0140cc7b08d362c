// Command botvac drives robots of a Neato or Vorwerk account from the shell.
package main

import (
	"fmt"
	"os"
	"time"

	"botvac-bridge/internal/utils"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// skipCredentials marks commands that run before any account login exists.
const skipCredentials = "skip-credentials"

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	utils.Logger.SetLevel(logrus.WarnLevel)
	if err := newRootCmd(newApp(os.Stdout)).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "botvac",
		Short:        "Control Botvac robots through the vendor cloud",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.verbose {
				utils.Logger.SetLevel(logrus.DebugLevel)
			}
			if a.creds().Empty() && cmd.Annotations[skipCredentials] == "" {
				return fmt.Errorf("missing credentials: use --token or --email and --password (env BOTVAC_TOKEN, BOTVAC_EMAIL, BOTVAC_PASSWORD)")
			}
			if a.format != "text" && a.format != "json" {
				return fmt.Errorf("--out must be text or json")
			}
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.email, "email", envOr("BOTVAC_EMAIL", ""), "account email (env BOTVAC_EMAIL)")
	f.StringVar(&a.password, "password", envOr("BOTVAC_PASSWORD", ""), "account password (env BOTVAC_PASSWORD)")
	f.StringVar(&a.token, "token", envOr("BOTVAC_TOKEN", ""), "OAuth or passwordless token (env BOTVAC_TOKEN)")
	f.StringVar(&a.vendorName, "vendor", envOr("BOTVAC_VENDOR", "neato"), "neato|vorwerk")
	f.StringVar(&a.certPath, "cert", envOr("BOTVAC_CERT_PATH", ""), "vendor CA bundle for the robot relay")
	f.StringVar(&a.format, "out", "text", "output format: text|json")
	f.DurationVar(&a.timeout, "timeout", 30*time.Second, "overall timeout")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		robotsCmd(a),
		stateCmd(a),
		cleanCmd(a),
		dockCmd(a),
		scheduleCmd(a),
		mapsCmd(a),
		loginCmd(a),
	)
	return root
}
