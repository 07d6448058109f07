package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/nuki-checkin/internal/pkg/handlers"
	"github.com/jake-scott/nuki-checkin/internal/pkg/logging"
	"github.com/jake-scott/nuki-checkin/pkg/middlewares"
)

var _serverCmdOpts struct {
	port            uint16
	tlsCertPath     string
	tlsKeyPath      string
	corsOrigins     []string
	gracefulTimeout time.Duration
	readTimeout     time.Duration
	writeTimeout    time.Duration
	logRequests     bool
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve the lock and PIN operations over HTTP",

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doServer(); err != nil {
			return err
		}

		return nil
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := checkRequiredFlags("nuki.api-key"); err != nil {
			return err
		}

		// TLS needs both halves or neither
		if (viper.GetString("http.cert") == "") != (viper.GetString("http.key") == "") {
			return fmt.Errorf("http.cert and http.key must be set together")
		}

		return nil
	},
}

func init() {
	serverCmd.Flags().Uint16Var(&_serverCmdOpts.port, "port", 8080, "HTTP port number")
	serverCmd.Flags().StringVar(&_serverCmdOpts.tlsCertPath, "tls-cert", "", "TLS certificate file, serve plain HTTP if not set")
	serverCmd.Flags().StringVar(&_serverCmdOpts.tlsKeyPath, "tls-key", "", "TLS key file")
	serverCmd.Flags().StringSliceVar(&_serverCmdOpts.corsOrigins, "cors-origin", nil, "browser origins allowed to call the API (repeatable)")
	serverCmd.Flags().DurationVar(&_serverCmdOpts.gracefulTimeout, "graceful-timeout", time.Second*15, "duration to wait for server to finish, eg. 1m or 10s")
	serverCmd.Flags().DurationVar(&_serverCmdOpts.readTimeout, "read-timeout", time.Second*15, "duration to wait for request read, eg. 1m or 10s")
	serverCmd.Flags().DurationVar(&_serverCmdOpts.writeTimeout, "write-timeout", time.Second*60, "duration to wait for request write, eg. 1m or 10s")
	serverCmd.Flags().BoolVar(&_serverCmdOpts.logRequests, "log-requests", false, "log requests and responses (only in debug mode)")

	errPanic(viper.GetViper().BindPFlag("http.port", serverCmd.Flags().Lookup("port")))
	errPanic(viper.GetViper().BindPFlag("http.cert", serverCmd.Flags().Lookup("tls-cert")))
	errPanic(viper.GetViper().BindPFlag("http.key", serverCmd.Flags().Lookup("tls-key")))
	errPanic(viper.GetViper().BindPFlag("http.cors-origins", serverCmd.Flags().Lookup("cors-origin")))
	errPanic(viper.GetViper().BindPFlag("http.graceful-timeout", serverCmd.Flags().Lookup("graceful-timeout")))
	errPanic(viper.GetViper().BindPFlag("http.read-timeout", serverCmd.Flags().Lookup("read-timeout")))
	errPanic(viper.GetViper().BindPFlag("http.write-timeout", serverCmd.Flags().Lookup("write-timeout")))
	errPanic(viper.GetViper().BindPFlag("logging.log-requests", serverCmd.Flags().Lookup("log-requests")))

	rootCmd.AddCommand(serverCmd)
}

func newRouter(lh *handlers.LockHandler, logRequests bool, corsOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.Use(middlewares.NewLoggingMw(logRequests))
	r.Use(middlewares.NewRecoveryMw())
	r.Use(middlewares.NewCorrelationMw("X-Correlation-ID"))
	lh.Register(r)

	if len(corsOrigins) == 0 {
		return r
	}

	// wraps the router so preflight requests never reach the method matcher
	return middlewares.NewCorsMw(middlewares.CorsOptions(corsOrigins))(r)
}

func doServer() error {
	wait := viper.GetDuration("http.graceful-timeout")
	port := viper.GetUint("http.port")
	certFile := viper.GetString("http.cert")
	keyFile := viper.GetString("http.key")

	var logRequests bool
	if viper.GetBool("logging.log-requests") {
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			logRequests = true
		} else {
			logging.Logger(nil).Warn("log-requests ignored when not in debug mode")
		}
	}

	api, err := newLiveClient()
	if err != nil {
		return err
	}

	lh := handlers.NewLockHandler(api.WithTimeout(viper.GetDuration("nuki.timeout")), viper.GetInt("nuki.max-concurrent"))

	s := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		ReadTimeout:  viper.GetDuration("http.read-timeout"),
		WriteTimeout: viper.GetDuration("http.write-timeout"),
		IdleTimeout:  time.Second * 60,
		Handler:      newRouter(&lh, logRequests, viper.GetStringSlice("http.cors-origins")),
	}

	logging.Logger(nil).WithField("tls", certFile != "").Infof("Serving on port %d", port)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	defer signal.Stop(c)

	return runServer(s, certFile, keyFile, c, wait)
}

// runServer serves until a signal arrives on stop, or the listener fails
func runServer(s *http.Server, certFile, keyFile string, stop <-chan os.Signal, wait time.Duration) error {
	errc := make(chan error, 1)
	go func() {
		if certFile != "" {
			errc <- s.ListenAndServeTLS(certFile, keyFile)
		} else {
			errc <- s.ListenAndServe()
		}
	}()

	select {
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		logging.Logger(nil).WithError(err).Error("running server")
		return errors.Wrap(err, "running server")
	case <-stop:
	}

	// Create a deadline to wait for.
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	logging.Logger(nil).Info("shutting down")
	if err := s.Shutdown(ctx); err != nil {
		logging.Logger(nil).WithError(err).Errorf("shutting down")
	}
	logging.Logger(nil).Info("exiting")
	return nil
}
