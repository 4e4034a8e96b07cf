/*
 * stream-share is a project to efficiently share the use of an IPTV service.
 * Copyright (C) 2025  Lucas Duport
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SaohTG/Nova-Stream-sub000/pkg/config"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/server"
	"github.com/SaohTG/Nova-Stream-sub000/pkg/utils"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nova-stream",
	Short: "Authenticated HLS proxy in front of an Xtream Codes panel",
	Long: `Nova Stream hides an Xtream Codes panel behind authenticated
playback endpoints.

It supports:
- HLS manifest rewriting, nested playlists included
- Range aware byte proxying of segments and files
- TMDB metadata matching with a persistent cache
- Stream lookup by TMDB id or by season and episode
- Local, LDAP and per user linked panel accounts`,

	RunE: func(cmd *cobra.Command, args []string) error {
		conf := loadConfig()
		srv, err := server.NewServer(conf)
		if err != nil {
			return err
		}
		defer srv.Close()
		defer utils.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Serve(ctx)
	},
}

var linkAccountCmd = &cobra.Command{
	Use:   "link-account <user-id> <base-url> <username> <password>",
	Short: "Store an encrypted panel account for a user",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := server.NewServer(loadConfig())
		if err != nil {
			return err
		}
		defer srv.Close()

		if err := srv.LinkAccount(cmd.Context(), args[0], args[1], args[2], args[3]); err != nil {
			return err
		}
		fmt.Printf("Linked %s@%s for user %s\n", args[2], utils.MaskURL(args[1]), args[0])
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig configures logging and builds the proxy configuration from
// viper.
func loadConfig() *config.ProxyConfig {
	utils.Configure(utils.LogOptions{
		Level:        viper.GetString("log-level"),
		Debug:        viper.GetBool("debug-logging"),
		FilePath:     viper.GetString("log-file"),
		MaxSizeMB:    viper.GetInt("log-max-size"),
		MaxBackups:   viper.GetInt("log-max-backups"),
		MaxAgeDays:   viper.GetInt("log-max-age"),
		CompressLogs: viper.GetBool("log-compress"),
	})
	if level := viper.GetString("error-detail-level"); level != "" {
		utils.SetErrorDetailLevel(level)
	}

	return &config.ProxyConfig{
		HostConfig: &config.HostConfiguration{
			Hostname: viper.GetString("hostname"),
			Port:     viper.GetInt("port"),
		},
		AdvertisedPort: viper.GetInt("advertised-port"),
		HTTPS:          viper.GetBool("https"),

		XtreamUser:     config.CredentialString(viper.GetString("xtream-user")),
		XtreamPassword: config.CredentialString(viper.GetString("xtream-password")),
		XtreamBaseURL:  viper.GetString("xtream-base-url"),

		User:     config.CredentialString(viper.GetString("user")),
		Password: config.CredentialString(viper.GetString("password")),
		LDAP: config.LDAPConfig{
			Enabled:        viper.GetBool("ldap-enabled"),
			Server:         viper.GetString("ldap-server"),
			BaseDN:         viper.GetString("ldap-base-dn"),
			BindDN:         viper.GetString("ldap-bind-dn"),
			BindPassword:   viper.GetString("ldap-bind-password"),
			UserAttribute:  viper.GetString("ldap-user-attribute"),
			GroupAttribute: viper.GetString("ldap-group-attribute"),
			RequiredGroup:  viper.GetString("ldap-required-group"),
		},

		UserAgent:    viper.GetString("user-agent"),
		AllowedHosts: config.ParseAllowedHosts(viper.GetString("allowed-hosts")),

		DBDriver: viper.GetString("db-driver"),
		DBDSN:    viper.GetString("db-dsn"),

		TMDB: config.TMDBConfig{
			APIKey:           viper.GetString("tmdb-api-key"),
			BaseURL:          viper.GetString("tmdb-base-url"),
			Language:         viper.GetString("tmdb-language"),
			FallbackLanguage: viper.GetString("tmdb-fallback-language"),
			RequestsPerSec:   viper.GetInt("tmdb-rps"),
			Retries:          viper.GetUint("tmdb-retries"),
		},
		MetadataTTL: viper.GetDuration("metadata-ttl"),
		Timeouts: config.Timeouts{
			Probe:    viper.GetDuration("probe-timeout"),
			Manifest: viper.GetDuration("manifest-timeout"),
			Segment:  viper.GetDuration("segment-timeout"),
			Provider: viper.GetDuration("provider-timeout"),
		},

		PlaybackSecret:   viper.GetString("playback-secret"),
		PlaybackTokenTTL: viper.GetDuration("playback-token-ttl"),
		CredentialKey:    viper.GetString("credential-key"),
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Config file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default is $HOME/.nova-stream.yaml)")

	flags := rootCmd.PersistentFlags()

	// Server flags
	flags.Int("port", 8080, "Listening port")
	flags.Int("advertised-port", 0, "Port to use in generated URLs (for reverse proxy)")
	flags.String("hostname", "", "Hostname to use in generated URLs (default is the request host)")
	flags.Bool("https", false, "Use HTTPS for generated URLs")

	// Upstream panel flags
	flags.String("xtream-user", "", "Xtream API username of the shared account")
	flags.String("xtream-password", "", "Xtream API password of the shared account")
	flags.String("xtream-base-url", "", "Xtream API base URL of the shared account")
	flags.String("user-agent", "IPTVSmartersPro", "User-Agent sent to the panel")
	flags.String("allowed-hosts", "", "Comma separated extra hosts the byte proxy may fetch (panel CDNs)")

	// Authentication flags
	flags.String("user", "", "Local username (empty disables local auth)")
	flags.String("password", "", "Local password, plain or bcrypt hash")
	flags.Bool("ldap-enabled", false, "Enable LDAP authentication")
	flags.String("ldap-server", "", "LDAP server URL")
	flags.String("ldap-base-dn", "", "LDAP base DN")
	flags.String("ldap-bind-dn", "", "LDAP bind DN")
	flags.String("ldap-bind-password", "", "LDAP bind password")
	flags.String("ldap-user-attribute", "uid", "LDAP username attribute")
	flags.String("ldap-group-attribute", "memberOf", "LDAP group attribute")
	flags.String("ldap-required-group", "", "Required LDAP group")

	// Storage flags
	flags.String("db-driver", "postgres", "Database driver: postgres or sqlite")
	flags.String("db-dsn", "", "Database DSN (sqlite file path or postgres URL)")
	flags.String("credential-key", "", "Hex encoded 32 byte key sealing linked account passwords")

	// Metadata flags
	flags.String("tmdb-api-key", "", "TMDB API key (v3 key or v4 bearer token)")
	flags.String("tmdb-base-url", "", "TMDB API base URL")
	flags.String("tmdb-language", "fr-FR", "Preferred metadata language")
	flags.String("tmdb-fallback-language", "en-US", "Fallback metadata language")
	flags.Int("tmdb-rps", 20, "TMDB requests per second")
	flags.Uint("tmdb-retries", 1, "TMDB attempts per call")
	flags.Duration("metadata-ttl", config.DefaultMetadataTTL, "Metadata cache lifetime")

	// Timeouts
	flags.Duration("probe-timeout", config.DefaultProbeTimeout, "Reachability probe timeout")
	flags.Duration("manifest-timeout", config.DefaultManifestTimeout, "Manifest and panel API timeout")
	flags.Duration("segment-timeout", config.DefaultSegmentTimeout, "Byte proxy response header timeout")
	flags.Duration("provider-timeout", config.DefaultProviderTimeout, "TMDB call timeout")

	// Playback tokens
	flags.String("playback-secret", "", "HMAC secret of playback tokens (random when empty)")
	flags.Duration("playback-token-ttl", config.DefaultPlaybackTokenTTL, "Playback token lifetime")

	// Logging flags
	flags.Bool("debug-logging", false, "Enable debug logging")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-file", "", "Also write logs to this rotating file")
	flags.Int("log-max-size", 50, "Log file size in MB before rotation")
	flags.Int("log-max-backups", 5, "Rotated log files to keep")
	flags.Int("log-max-age", 14, "Days to keep rotated log files")
	flags.Bool("log-compress", false, "Compress rotated log files")
	flags.String("error-detail-level", "", "Error location detail: none, simple or full")

	rootCmd.AddCommand(linkAccountCmd)

	// Bind all flags to viper
	if err := viper.BindPFlags(flags); err != nil {
		fmt.Println("Error binding PFlags to viper")
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory and current directory
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".nova-stream")
	}

	// Replace hyphens with underscores in environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Read environment variables
	viper.AutomaticEnv()

	// Read in config file if found
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}
