// Command ccrctl is the marketplace's command-line client. It keeps its
// session in a local state file and its tokens in the system keychain.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/api"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/cliconfig"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/identity"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/keychain"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/localstate"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/session"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/vehiclestore"
)

const version = "0.1.0"

// keychainFactory allows injecting a mock keychain in tests
var keychainFactory = func() keychain.Keychain {
	return keychain.NewSystem()
}

var configPath string

var rootCmd = &cobra.Command{
	Use:           "ccrctl",
	Short:         "Command-line client for the vehicle rental marketplace",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.ccr/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app wires the client packages for one command invocation.
type app struct {
	cfg      *cliconfig.Config
	log      *logrus.Logger
	state    localstate.Store
	client   *api.Client
	identity *identity.Provider
	session  *session.Cache
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := cliconfig.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(lvl)
	}

	state, err := localstate.OpenFile(cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local state: %w", err)
	}

	base := api.NewClient(cfg.Server.URL, cfg.Server.Timeout, nil)
	provider := identity.New(base, keychainFactory(), log)
	cache := session.New(session.Options{
		State:         state,
		Provider:      provider,
		Navigator:     navigatorFor(cmd),
		SpecialAdmins: cfg.Admin.SpecialEmails,
		Log:           log,
	})
	cache.Init()
	provider.Start()

	return &app{
		cfg:      cfg,
		log:      log,
		state:    state,
		client:   base.WithTokens(provider),
		identity: provider,
		session:  cache,
	}, nil
}

func (a *app) close() { a.session.Teardown() }

// navigatorFor prints redirects to stderr.
func navigatorFor(cmd *cobra.Command) session.Navigator {
	return session.NavigatorFunc(func(target string) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Redirecting to %s\n", target)
	})
}

// vehicles returns a vehicle store over the app's state. The retry loop is
// not started; `vehicles sync` retries queued deletes.
func (a *app) vehicles() *vehiclestore.Store {
	s := vehiclestore.New(vehiclestore.Options{
		Remote:        a.client,
		Identity:      a.session,
		State:         a.state,
		Log:           a.log,
		Cooldown:      a.cfg.Store.Cooldown,
		RetryInterval: a.cfg.Store.RetryInterval,
		OnDegraded: func(d vehiclestore.Degradation) {
			a.log.WithField("op", d.Op).Debug("served from local cache")
		},
	})
	s.Load()
	return s
}

// withApp adapts a command body that needs the wired client.
func withApp(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return run(cmd, a, args)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("ccrctl version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
