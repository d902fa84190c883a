// Command rdp-gateway serves a WebSocket endpoint that bridges browser
// clients to RDP servers through the sans-I/O connection core.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/rcarmo/rdp-core/internal/config"
	"github.com/rcarmo/rdp-core/internal/connector"
	"github.com/rcarmo/rdp-core/internal/credssp"
	"github.com/rcarmo/rdp-core/internal/drdynvc"
	"github.com/rcarmo/rdp-core/internal/logging"
	"github.com/rcarmo/rdp-core/internal/protocol/fastpath"
	"github.com/rcarmo/rdp-core/internal/protocol/x224"
	"github.com/rcarmo/rdp-core/internal/rdp"
)

var appVersion = "dev" // injected at build time via -ldflags

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := config.LoadOptions{}

	cmd := &cobra.Command{
		Use:     "rdp-gateway",
		Short:   "WebSocket to RDP bridge",
		Version: appVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithOverrides(opts)
			if err != nil {
				return err
			}

			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Host, "host", "", "gateway listen host")
	flags.StringVar(&opts.Port, "port", "", "gateway listen port")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.SkipTLS, "tls-skip-verify", false, "skip TLS certificate validation")
	flags.StringVar(&opts.ServerName, "tls-server-name", "", "override TLS server name")
	flags.BoolVar(&opts.NoCredssp, "no-credssp", false, "disable CredSSP authentication")

	return cmd
}

func run(cfg *config.Config) error {
	logging.SetLevelFromString(cfg.Logging.Level)

	mux := http.NewServeMux()
	mux.HandleFunc("/connect", connectHandler(cfg))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logging.Info("gateway: listening on %s", addr)

	return server.ListenAndServe()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func connectHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		hostname := query.Get("host")
		if hostname == "" {
			http.Error(w, "missing host", http.StatusBadRequest)
			return
		}

		width := queryInt(query.Get("width"), cfg.RDP.DesktopWidth)
		height := queryInt(query.Get("height"), cfg.RDP.DesktopHeight)

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warn("gateway: websocket upgrade: %v", err)
			return
		}
		defer ws.Close()

		protocols := x224.ProtocolSSL
		if cfg.Security.EnableCredssp {
			protocols |= x224.ProtocolHybrid
		}

		conn := connector.NewClientConnector(connector.Config{
			Credentials: credssp.Credentials{
				Username: query.Get("username"),
				Password: query.Get("password"),
				Domain:   query.Get("domain"),
			},
			DesktopSize: connector.DesktopSize{
				Width:  uint16(width),
				Height: uint16(height),
			},
			DesktopScaleFactor: uint32(cfg.RDP.DesktopScaleFactor),
			KeyboardLayout:     0x0409, // US
			KeyboardType:       0x04,   // IBM enhanced
			KeyboardFunctionKey: 12,
			ClientBuild:        3790,
			ClientName:         "rdp-gateway",
			SecurityProtocol:   protocols,
		})

		conn.WithStaticChannel(drdynvc.NewClient())

		client, err := rdp.NewClient(hostname, conn)
		if err != nil {
			writeClose(ws, err)
			return
		}
		defer client.Close()

		client.SetTLSConfig(cfg.Security.SkipTLSValidation, cfg.Security.TLSServerName)

		if err := client.Connect(); err != nil {
			logging.Warn("gateway: connect %s: %v", hostname, err)
			writeClose(ws, err)
			return
		}

		logging.Info("gateway: session to %s established", hostname)

		if err := client.StartChannels(); err != nil {
			writeClose(ws, err)
			return
		}

		err = client.Run(func(header fastpath.Header, payload []byte) error {
			return ws.WriteMessage(websocket.BinaryMessage, payload)
		})
		if err != nil {
			logging.Info("gateway: session to %s ended: %v", hostname, err)
		}
	}
}

func queryInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}

	return parsed
}

func writeClose(ws *websocket.Conn, err error) {
	deadline := time.Now().Add(time.Second)
	message := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error())
	_ = ws.WriteControl(websocket.CloseMessage, message, deadline)
}
