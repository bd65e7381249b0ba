package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/AgendaBarber/AgendaFlow/internal/api"
	"github.com/AgendaBarber/AgendaFlow/internal/calendar"
	"github.com/AgendaBarber/AgendaFlow/internal/flow"
	"github.com/AgendaBarber/AgendaFlow/internal/messaging"
	"github.com/AgendaBarber/AgendaFlow/internal/store"
	"github.com/AgendaBarber/AgendaFlow/internal/util"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	storeOpts := buildStoreOptions(flags)
	calOpts := buildCalendarOptions(config, flags)
	flowOpts := buildFlowOptions(flags)
	apiOpts, err := buildAPIOptions(config, flags)
	if err != nil {
		slog.Error("Failed to build API options", "error", err)
		os.Exit(1)
	}
	messenger := buildMessagingService(config)

	slog.Info("Bootstrapping AgendaFlow with configured modules")
	slog.Debug("Module options counts", "store", len(storeOpts), "calendar", len(calOpts), "flow", len(flowOpts), "api", len(apiOpts))
	if err := api.Run(storeOpts, calOpts, flowOpts, messenger, apiOpts); err != nil {
		slog.Error("AgendaFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("AgendaFlow exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	CalendarURL     string
	CalendarAPIKey  string
	APIAddr         string
	VerifyToken     string
	AppSecret       string
	PrivateKey      string
	PrivateKeyFile  string
	Passphrase      string
	AccessToken     string
	PhoneNumberID   string
	FlowID          string
	TestPhoneNumber string
	TwilioSID       string
	TwilioToken     string
	TwilioFrom      string
}

// Flags holds command line flag values
type Flags struct {
	dbDSN       *string
	calendarURL *string
	apiAddr     *string
	horizonDays *int
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	return Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		CalendarURL:     os.Getenv("CALENDAR_API_URL"),
		CalendarAPIKey:  os.Getenv("CALENDAR_API_KEY"),
		APIAddr:         os.Getenv("API_ADDR"),
		VerifyToken:     os.Getenv("WEBHOOK_VERIFY_TOKEN"),
		AppSecret:       os.Getenv("APP_SECRET"),
		PrivateKey:      os.Getenv("PRIVATE_KEY"),
		PrivateKeyFile:  os.Getenv("PRIVATE_KEY_FILE"),
		Passphrase:      os.Getenv("PASSPHRASE"),
		AccessToken:     os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		PhoneNumberID:   os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		FlowID:          os.Getenv("WHATSAPP_FLOW_ID"),
		TestPhoneNumber: os.Getenv("TEST_PHONE_NUMBER"),
		TwilioSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:     os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:      os.Getenv("TWILIO_WHATSAPP_FROM"),
	}
}

// parseCommandLineFlags parses command line flags with environment fallbacks
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "Database connection string (overrides DATABASE_URL)"),
		calendarURL: flag.String("calendar-url", config.CalendarURL, "Calendar API base URL (overrides CALENDAR_API_URL)"),
		apiAddr:     flag.String("addr", config.APIAddr, "HTTP listen address (overrides API_ADDR)"),
		horizonDays: flag.Int("horizon-days", util.ParseIntEnv("BOOKING_HORIZON_DAYS", 0), "Booking horizon in days"),
	}
	flag.Parse()
	return flags
}

func buildStoreOptions(flags Flags) []store.Option {
	var opts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			opts = append(opts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			opts = append(opts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	}
	return opts
}

func buildFlowOptions(flags Flags) []flow.Option {
	var opts []flow.Option
	if *flags.horizonDays > 0 {
		opts = append(opts, flow.WithHorizonDays(*flags.horizonDays))
	}
	return opts
}

func buildCalendarOptions(config Config, flags Flags) []calendar.Option {
	var opts []calendar.Option
	if *flags.calendarURL != "" {
		opts = append(opts, calendar.WithBaseURL(*flags.calendarURL))
	}
	if config.CalendarAPIKey != "" {
		opts = append(opts, calendar.WithAPIKey(config.CalendarAPIKey))
	}
	return opts
}

func buildAPIOptions(config Config, flags Flags) ([]api.Option, error) {
	var opts []api.Option
	if *flags.apiAddr != "" {
		opts = append(opts, api.WithAddr(*flags.apiAddr))
	}
	if config.VerifyToken != "" {
		opts = append(opts, api.WithVerifyToken(config.VerifyToken))
	}
	if config.AppSecret != "" {
		opts = append(opts, api.WithAppSecret(config.AppSecret))
	}
	if util.ParseBoolEnv("ALLOW_INVALID_SIGNATURE", false) {
		opts = append(opts, api.WithAllowInvalidSignature(true))
	}
	if config.TestPhoneNumber != "" {
		opts = append(opts, api.WithTestPhoneNumber(config.TestPhoneNumber))
	}
	if origins := util.SplitListEnv("ALLOWED_ORIGINS"); len(origins) > 0 {
		opts = append(opts, api.WithAllowedOrigins(origins))
	}

	pemData, err := loadPrivateKeyPEM(config)
	if err != nil {
		return nil, err
	}
	if len(pemData) > 0 {
		opts = append(opts, api.WithPrivateKeyPEM(pemData, config.Passphrase))
	}
	return opts, nil
}

// loadPrivateKeyPEM reads the RSA private key from PRIVATE_KEY or, when
// unset, from the file named by PRIVATE_KEY_FILE.
func loadPrivateKeyPEM(config Config) ([]byte, error) {
	if config.PrivateKey != "" {
		return []byte(config.PrivateKey), nil
	}
	if config.PrivateKeyFile == "" {
		return nil, nil
	}
	pemData, err := os.ReadFile(config.PrivateKeyFile)
	if err != nil {
		return nil, err
	}
	return pemData, nil
}

// buildMessagingService picks the outbound WhatsApp channel: Cloud API when
// Graph credentials are present, Twilio as fallback, none otherwise.
func buildMessagingService(config Config) messaging.Service {
	if config.AccessToken != "" && config.PhoneNumberID != "" {
		svc, err := messaging.NewCloudAPIService(
			messaging.WithAccessToken(config.AccessToken),
			messaging.WithPhoneNumberID(config.PhoneNumberID),
			messaging.WithFlowID(config.FlowID),
		)
		if err != nil {
			slog.Error("Failed to initialize Cloud API messaging", "error", err)
			return nil
		}
		slog.Info("Messaging configured via WhatsApp Cloud API")
		return svc
	}
	if config.TwilioSID != "" && config.TwilioToken != "" {
		svc, err := messaging.NewTwilioService(
			messaging.WithAccountSID(config.TwilioSID),
			messaging.WithAuthToken(config.TwilioToken),
			messaging.WithFromWhats(config.TwilioFrom),
		)
		if err != nil {
			slog.Error("Failed to initialize Twilio messaging", "error", err)
			return nil
		}
		slog.Info("Messaging configured via Twilio")
		return svc
	}
	slog.Warn("No messaging credentials configured, outbound messages disabled")
	return nil
}
