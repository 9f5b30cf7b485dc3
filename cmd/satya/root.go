package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"satya/go-core/internal/api"
	"satya/go-core/internal/config"
	"satya/go-core/internal/platform/privacylog"
	"satya/go-core/internal/vaulterr"
)

const envDeviceID = "SATYA_DEVICE_ID"

// cli carries the flags and the service shared by every subcommand of one
// invocation.
type cli struct {
	configPath string
	root       string
	device     string
	verbose    bool

	cfg config.Config
	svc *api.Service
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "satya",
		Short: "Satya - a local identity vault that signs payment intents.",
		Long: `Satya keeps identities and their signing keys in a PIN-protected vault
bound to this device, and turns UPI payment links into signed intent envelopes
that can be relayed to other parties.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  c.setup,
		PersistentPostRunE: c.teardown,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to satya.yaml (optional)")
	flags.StringVar(&c.root, "root", "", "vault storage root (overrides config)")
	flags.StringVar(&c.device, "device", "", "device id the vault is bound to (default $"+envDeviceID+" or hostname)")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "log operations to stderr")

	root.AddCommand(
		newInitCmd(c),
		newIdentityCmd(c),
		newScanCmd(c),
		newSignCmd(c),
		newPublishCmd(c),
		newFetchCmd(c),
		newWatchCmd(c),
		newResetCmd(c),
		newDoctorCmd(c),
		newVersionCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if r := strings.TrimSpace(c.root); r != "" {
		cfg.StorageRoot = r
	}
	c.cfg = cfg
	if cmd.Name() == "doctor" {
		return nil
	}
	level := cfg.Log.Level
	if !c.verbose {
		level = "warn"
	}
	svc, err := api.NewServiceWithOptions(api.Options{
		Config: cfg,
		Logger: privacylog.NewLogger(cmd.ErrOrStderr(), level, cfg.Log.Format),
	})
	if err != nil {
		return err
	}
	c.svc = svc
	return nil
}

func (c *cli) teardown(*cobra.Command, []string) error {
	if c.svc == nil {
		return nil
	}
	return c.svc.Close()
}

func (c *cli) deviceID() string {
	if d := strings.TrimSpace(c.device); d != "" {
		return d
	}
	if d := strings.TrimSpace(os.Getenv(envDeviceID)); d != "" {
		return d
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "satya-cli"
	}
	return host
}

// unlock prompts for the PIN and opens the vault for this invocation.
func (c *cli) unlock(cmd *cobra.Command) error {
	pin, err := readPIN(cmd, "Vault PIN: ")
	if err != nil {
		return err
	}
	_, err = c.svc.InitializeVault(pin, c.deviceID(), "")
	return err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var kerr *vaulterr.Error
	if !errors.As(err, &kerr) {
		return 1
	}
	switch kerr.Kind {
	case vaulterr.KindInvalidInput, vaulterr.KindSerialization:
		return 2
	case vaulterr.KindAuthenticationFailure, vaulterr.KindKdfFailure:
		return 3
	case vaulterr.KindThrottled:
		return 4
	case vaulterr.KindNetworkTimeout, vaulterr.KindNetworkUnavailable:
		return 5
	default:
		return 1
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "satya version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		},
	}
}
