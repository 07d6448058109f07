package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/jake-scott/nuki-checkin/internal/pkg/logging"
	"github.com/jake-scott/nuki-checkin/internal/pkg/nukiapi"
)

var _rootCmdOpts struct {
	cfgFile       string
	debug         bool
	output        string
	apiKey        string
	apiURL        string
	apiTimeout    time.Duration
	authScheme    string
	rateLimit     float64
	rateBurst     int
	maxConcurrent int
	logPayloads   bool
}

var rootCmd = &cobra.Command{
	Use:   "nuki-checkin",
	Short: "Manage check-in keypad codes on Nuki smart locks",

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _rootCmdOpts.debug {
			logrus.SetLevel(logrus.DebugLevel)
		}

		return logging.Configure(viper.GetViper())
	},
}

// Execute runs the command line
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	viper.SetDefault("nuki.api-url", nukiapi.DefaultAPIURL)
	viper.SetDefault("nuki.auth-scheme", "raw")
	viper.SetDefault("output", "text")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&_rootCmdOpts.cfgFile, "config", "", "config file (default is $HOME/.nuki-checkin.yaml)")
	pf.BoolVarP(&_rootCmdOpts.debug, "debug", "d", false, "enable debug logging")
	pf.StringVarP(&_rootCmdOpts.output, "output", "o", "text", "output format: text, json or yaml")
	pf.StringVar(&_rootCmdOpts.apiKey, "api-key", "", "Nuki Web API token")
	pf.StringVar(&_rootCmdOpts.apiURL, "api-url", nukiapi.DefaultAPIURL, "Nuki Web API base URL")
	pf.DurationVar(&_rootCmdOpts.apiTimeout, "api-timeout", time.Second*15, "maximum duration of a Web API call, eg. 1m or 10s")
	pf.StringVar(&_rootCmdOpts.authScheme, "auth-scheme", "raw", "how the token is sent: raw (Authorization: <token>) or bearer")
	pf.Float64Var(&_rootCmdOpts.rateLimit, "rate-limit", 0, "maximum Web API requests per second, 0 for no limit")
	pf.IntVar(&_rootCmdOpts.rateBurst, "rate-burst", 1, "requests allowed in a burst above the rate limit")
	pf.IntVar(&_rootCmdOpts.maxConcurrent, "max-concurrent", 4, "maximum concurrent Web API calls when reading many locks")
	pf.BoolVar(&_rootCmdOpts.logPayloads, "log-payloads", false, "log Web API request and response bodies (only in debug mode)")

	errPanic(viper.GetViper().BindPFlag("output", pf.Lookup("output")))
	errPanic(viper.GetViper().BindPFlag("nuki.api-key", pf.Lookup("api-key")))
	errPanic(viper.GetViper().BindPFlag("nuki.api-url", pf.Lookup("api-url")))
	errPanic(viper.GetViper().BindPFlag("nuki.timeout", pf.Lookup("api-timeout")))
	errPanic(viper.GetViper().BindPFlag("nuki.auth-scheme", pf.Lookup("auth-scheme")))
	errPanic(viper.GetViper().BindPFlag("nuki.rate-limit", pf.Lookup("rate-limit")))
	errPanic(viper.GetViper().BindPFlag("nuki.rate-burst", pf.Lookup("rate-burst")))
	errPanic(viper.GetViper().BindPFlag("nuki.max-concurrent", pf.Lookup("max-concurrent")))
	errPanic(viper.GetViper().BindPFlag("logging.log-payloads", pf.Lookup("log-payloads")))
}

func initConfig() {
	// A .env file next to the binary is the usual home of the API token
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logging.Logger(nil).WithError(err).Warn("loading .env")
	}

	if _rootCmdOpts.cfgFile != "" {
		viper.SetConfigFile(_rootCmdOpts.cfgFile)
	} else {
		home, err := homedir.Dir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".nuki-checkin")
	}

	// nuki.api-key -> NUKI_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logging.Logger(nil).WithError(err).Warn("reading config file")
		}
		return
	}

	logging.Logger(nil).Debugf("using config file %s", viper.ConfigFileUsed())
}

func errPanic(err error) {
	if err != nil {
		panic(err)
	}
}

func checkRequiredFlags(needFlags ...string) error {
	missingFlags := []string{}

	for _, f := range needFlags {
		if viper.GetString(f) == "" {
			missingFlags = append(missingFlags, f)
		}
	}

	if len(missingFlags) > 0 {
		itemPlural := "item"
		if len(missingFlags) > 1 {
			itemPlural = "items"
		}
		return fmt.Errorf("required config %s `%s` not set", itemPlural, strings.Join(missingFlags, "`, `"))
	}

	return nil
}

// newLiveClient builds a Web API client from the configuration
func newLiveClient() (*nukiapi.Live, error) {
	if err := checkRequiredFlags("nuki.api-key", "nuki.api-url"); err != nil {
		return nil, err
	}

	apiKey := viper.GetString("nuki.api-key")
	c := nukiapi.NewLiveClient(apiKey, viper.GetString("nuki.api-url"))

	switch scheme := viper.GetString("nuki.auth-scheme"); scheme {
	case "raw":
	case "bearer":
		c = c.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey}))
	default:
		return nil, fmt.Errorf("bad auth scheme: [%s]", scheme)
	}

	if limit := viper.GetFloat64("nuki.rate-limit"); limit > 0 {
		burst := viper.GetInt("nuki.rate-burst")
		if burst < 1 {
			burst = 1
		}
		c = c.WithRateLimit(rate.Limit(limit), burst)
	}

	if viper.GetBool("logging.log-payloads") {
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			c = c.WithLogPayloads()
		} else {
			logging.Logger(nil).Warn("log-payloads ignored when not in debug mode")
		}
	}

	return c, nil
}

// newAPIClient returns a client whose calls are cancelled by ctrl-c
func newAPIClient() (nukiapi.WebAPI, context.CancelFunc, error) {
	c, err := newLiveClient()
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	return c.WithContext(ctx).WithTimeout(viper.GetDuration("nuki.timeout")), cancel, nil
}
