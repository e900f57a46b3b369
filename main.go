package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spance/minicap-go/config"
	"github.com/spance/minicap-go/metrics"
	"github.com/spance/minicap-go/mirror"
	"github.com/spance/minicap-go/mirror/android"
	"github.com/spance/minicap-go/mirror/definitions"
	"github.com/spance/minicap-go/utils"
	"github.com/spf13/cobra"
)

// Flags holds the command line arguments. Flags that are set override the
// config file and the environment.
type Flags struct {
	ConfigPath  string
	ListDevices bool
	Connect     string
	Disconnect  string
	Probe       bool

	DeviceID    string
	Rotation    int
	Port        int
	Assets      string
	ADBPath     string
	ViewerAddr  string
	MetricsAddr string
	Debug       bool
	Quiet       bool
}

var (
	flags = &Flags{}
	cfg   *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "minicap-go",
	Short: "Mirror an Android device screen over adb",
	Long: `minicap-go deploys the minicap capture helper to an Android device,
forwards its socket over adb and streams the captured JPEG frames to a
browser viewer.`,
	Example: `  # Mirror the first connected device, view at http://localhost:8080
  minicap-go

  # Mirror a specific device in landscape
  minicap-go --device-id emulator-5554 --rotation 90

  # List connected devices
  minicap-go --list-devices

  # Connect to a remote device
  minicap-go --connect 192.168.1.100:5555

  # Print the device capabilities as JSON
  minicap-go --probe --device-id emulator-5554

  # Expose Prometheus metrics
  minicap-go --metrics-addr :9100`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "minicap.yaml",
		"Config file (missing file uses defaults)")

	// Device options
	rootCmd.PersistentFlags().BoolVar(&flags.ListDevices, "list-devices", false,
		"List connected devices and exit")

	rootCmd.PersistentFlags().StringVarP(&flags.Connect, "connect", "c", "",
		"Connect to remote device (e.g., 192.168.1.100:5555)")

	rootCmd.PersistentFlags().StringVar(&flags.Disconnect, "disconnect", "",
		"Disconnect from remote device (or 'all' to disconnect all)")

	rootCmd.PersistentFlags().BoolVar(&flags.Probe, "probe", false,
		"Print device capabilities as JSON and exit")

	rootCmd.PersistentFlags().StringVarP(&flags.DeviceID, "device-id", "d", "",
		"ADB device ID (default: first connected device)")

	rootCmd.PersistentFlags().StringVar(&flags.ADBPath, "adb", "",
		"Path to the adb binary (default: $ANDROID_HOME/platform-tools/adb or adb)")

	// Capture options
	rootCmd.PersistentFlags().IntVarP(&flags.Rotation, "rotation", "r", 0,
		"Capture rotation in degrees: 0, 90, 180 or 270")

	rootCmd.PersistentFlags().IntVarP(&flags.Port, "port", "p", 0,
		"Local port forwarded to the helper socket (default: 1313)")

	rootCmd.PersistentFlags().StringVar(&flags.Assets, "assets", "",
		"Directory with the prebuilt helper binaries (default: assets)")

	// Serving options
	rootCmd.PersistentFlags().StringVar(&flags.ViewerAddr, "viewer-addr", "",
		"Listen address of the browser viewer (default: :8080)")

	rootCmd.PersistentFlags().StringVar(&flags.MetricsAddr, "metrics-addr", "",
		"Listen address of the Prometheus metrics endpoint (disabled when empty)")

	// Other options
	rootCmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false,
		"Only log warnings and errors")

	rootCmd.PersistentFlags().BoolVar(&flags.Debug, "debug", false,
		"Enable debug logging (default: false)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(flags.ConfigPath)
	if err != nil {
		return err
	}

	changed := cmd.Flags().Changed
	if changed("device-id") {
		loaded.DeviceID = flags.DeviceID
	}
	if changed("adb") {
		loaded.ADBPath = flags.ADBPath
	}
	if changed("rotation") {
		loaded.Rotation = flags.Rotation
	}
	if changed("port") {
		loaded.LocalPort = flags.Port
	}
	if changed("assets") {
		loaded.AssetDir = flags.Assets
	}
	if changed("viewer-addr") {
		loaded.ViewerAddr = flags.ViewerAddr
	}
	if changed("metrics-addr") {
		loaded.MetricsAddr = flags.MetricsAddr
	}
	if changed("debug") {
		loaded.Debug = flags.Debug
	}
	if changed("quiet") {
		loaded.Quiet = flags.Quiet
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if loaded.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if loaded.Quiet {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	cfg = loaded
	log.Debug().Str("config", utils.JsonString(cfg)).Msg("[Config] loaded")
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	executor := android.NewADBExecutor(cfg.ADBPath, cfg.CommandTimeout)
	defer executor.Close()
	device := android.NewADBDevice(executor)

	if handled, err := handleDeviceCommands(ctx, device); handled {
		return err
	}

	serial, err := resolveDevice(ctx, device)
	if err != nil {
		return err
	}

	if flags.Probe {
		prober := android.NewProber(executor, serial, cfg.CommandTimeout)
		caps, err := prober.Capabilities(ctx)
		if err != nil {
			return err
		}
		if caps.Props, err = prober.Props(ctx); err != nil {
			log.Warn().Err(err).Msg("[Probe] props unavailable")
		}
		fmt.Println(utils.JsonIndent(caps))
		return nil
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		go serveMetrics(ctx, cfg.MetricsAddr, reg)
	}

	log.Info().Str("device", serial).Str("viewer", cfg.ViewerAddr).Int("rotation", cfg.Rotation).Msg("Starting mirror")
	mir := mirror.New(executor, serial, mirror.Options{
		ViewerAddr: cfg.ViewerAddr,
		Session:    cfg.SessionOptions(),
		Metrics:    m,
	})
	if err := mir.Run(ctx); err != nil {
		log.Error().Err(err).Msg("❌ mirror failed")
		return err
	}
	return nil
}

func handleDeviceCommands(ctx context.Context, device mirror.DeviceManager) (bool, error) {
	if flags.ListDevices {
		devices, err := device.ListDevices(ctx)
		if err != nil {
			return true, err
		}
		if len(devices) == 0 {
			log.Info().Msg("No devices connected.")
			return true, nil
		}
		log.Info().Msg("Connected devices:")
		log.Info().Msg(strings.Repeat("-", 60))
		for _, d := range devices {
			modelInfo := ""
			if d.Model != "" {
				modelInfo = fmt.Sprintf(" (%s)", d.Model)
			}
			log.Info().Str("device", fmt.Sprintf("  ✅ %-30s [%s]%s", d.DeviceID, d.ConnectionType, modelInfo)).Msg("")
		}
		return true, nil
	}

	if flags.Connect != "" {
		log.Info().Msgf("Connecting to %s...", flags.Connect)
		message, err := device.Connect(ctx, flags.Connect)
		if err != nil {
			log.Error().Str("msg", message).Msg("❌")
			return true, err
		}
		log.Info().Str("msg", message).Msg("✅")
		return true, nil
	}

	if flags.Disconnect != "" {
		address := flags.Disconnect
		if address == "all" {
			address = ""
		}
		message, err := device.Disconnect(ctx, address)
		if err != nil {
			log.Error().Str("msg", message).Msg("❌")
			return true, err
		}
		log.Info().Str("msg", message).Msg("✅")
		return true, nil
	}
	return false, nil
}

func resolveDevice(ctx context.Context, device mirror.DeviceManager) (string, error) {
	devices, err := device.ListDevices(ctx)
	if err != nil {
		return "", fmt.Errorf("list devices: %w", err)
	}
	if cfg.DeviceID != "" {
		if !lo.ContainsBy(devices, func(d definitions.DeviceInfo) bool { return d.DeviceID == cfg.DeviceID }) {
			return "", fmt.Errorf("device %s is not connected", cfg.DeviceID)
		}
		return cfg.DeviceID, nil
	}
	if len(devices) == 0 {
		return "", errors.New("no devices connected")
	}
	if len(devices) > 1 {
		log.Warn().Strs("devices", lo.Map(devices, func(d definitions.DeviceInfo, _ int) string { return d.DeviceID })).
			Msg("Several devices connected, using the first; pass --device-id to choose")
	}
	return devices[0].DeviceID, nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	log.Info().Str("addr", addr).Msg("[Metrics] listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("[Metrics] server failed")
	}
}
