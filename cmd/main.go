package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"geovisit/pkg/database"
	"geovisit/pkg/geoip"
	"geovisit/pkg/models"
	"geovisit/pkg/publicip"
	"geovisit/pkg/recorder"
	"geovisit/pkg/resolver"
	"geovisit/pkg/stats"
	"geovisit/pkg/web"
)

var (
	debugFlag bool
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "geovisit",
	Short: "IP-geolocation lookup and visit-logging service",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var logLevel slog.Level
		if debugFlag {
			logLevel = slog.LevelDebug
		} else {
			logLevel = slog.LevelInfo
		}

		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := initDB()
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		handler := web.NewHandler(
			db,
			newResolver(),
			geoip.FromViper(),
			recorder.New(db, recorderConfig(), logger),
			stats.NewService(db, logger),
			logger,
		)
		auth := web.NewTokenAuth(viper.GetString("api.token"), logger)

		srv := &http.Server{
			Addr:              viper.GetString("server.listen_addr"),
			Handler:           handler.Routes(auth),
			ReadHeaderTimeout: 5 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		go func() {
			logger.Info("Server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Server failed", "error", err)
				stop()
			}
		}()

		<-ctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", "error", err)
		}
	},
}

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the visits schema",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := initDB()
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		logger.Info("Schema initialized")
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print aggregate visit statistics",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := initDB()
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		snapshot := stats.NewService(db, logger).SafeSnapshot(context.Background())
		fmt.Printf("Total visits:       %d\n", snapshot.TotalVisits)
		fmt.Printf("Distinct countries: %d\n", snapshot.DistinctCountries)
		fmt.Printf("Active last 24h:    %d\n", snapshot.ActiveLast24h)
		fmt.Printf("Computed at:        %s\n", snapshot.ComputedAt.Format(time.RFC3339))
	},
}

var recordCmd = &cobra.Command{
	Use:   "record [ip]",
	Short: "Look up one IP address and record the visit",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ip := args[0]

		db, err := initDB()
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		ctx := context.Background()
		lookupIP := newResolver().LookupAddress(ip)
		payload, err := geoip.FromViper().Lookup(ctx, lookupIP)
		if err != nil {
			logger.Error("Error fetching geolocation data", "ip", lookupIP, "error", err)
			os.Exit(1)
		}

		result := recorder.New(db, recorderConfig(), logger).Record(ctx, ip, payload)
		if result.Outcome == models.OutcomeRejected {
			logger.Error("Visit rejected", "ip", ip, "reason", result.Reason)
			os.Exit(1)
		}
		logger.Info("Visit processed",
			"ip", ip,
			"outcome", result.Outcome,
			"visitID", result.Visit.ID,
			"country", result.Visit.Country)
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune [days]",
	Short: "Delete visits older than the given number of days",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		days, err := strconv.Atoi(args[0])
		if err != nil || days < 1 {
			logger.Error("Invalid days value", "value", args[0])
			os.Exit(1)
		}

		db, err := initDB()
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		cutoff := time.Now().AddDate(0, 0, -days)
		deleted, err := db.DeleteVisitsBefore(context.Background(), cutoff)
		if err != nil {
			logger.Error("Error pruning visits", "error", err)
			os.Exit(1)
		}
		logger.Info("Visits pruned", "deleted", deleted, "cutoff", cutoff)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initDBCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(pruneCmd)
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.geovisit")
	viper.AddConfigPath("/etc/geovisit/")

	viper.SetDefault("server.listen_addr", ":8080")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("provider.endpoint",
		"http://ip-api.com/json/%s?fields=status,message,continent,country,countryCode,region,regionName,city,zip,lat,lon,timezone,isp,org,as,query,proxy,mobile,hosting")
	viper.SetDefault("provider.timeout", 8*time.Second)
	viper.SetDefault("publicip.endpoint", "https://api.ipify.org?format=json")
	viper.SetDefault("publicip.timeout", 3*time.Second)
	viper.SetDefault("resolver.sentinel_ip", "8.8.8.8")
	viper.SetDefault("recorder.window", 24*time.Hour)
	viper.SetDefault("recorder.strict_window", false)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Printf("Error reading config file: %v\n", err)
			os.Exit(1)
		}
		// No config file is fine; defaults plus environment cover everything
		// but the database credentials.
	}

	viper.SetEnvPrefix("GEOVISIT")
	viper.AutomaticEnv()
}

func initDB() (*database.DB, error) {
	db, err := database.NewDB()
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %v", err)
	}

	err = db.InitSchema(context.Background(), viper.GetBool("recorder.strict_window"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return db, nil
}

func newResolver() *resolver.Resolver {
	return resolver.New(
		resolver.Config{SentinelIP: viper.GetString("resolver.sentinel_ip")},
		publicip.FromViper(),
		logger,
	)
}

func recorderConfig() recorder.Config {
	return recorder.Config{
		Window:       viper.GetDuration("recorder.window"),
		StrictWindow: viper.GetBool("recorder.strict_window"),
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
