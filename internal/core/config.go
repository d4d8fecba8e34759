package core

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to any of the
// proxy's components.
type Config struct {
	// Hostname or IP address on which the servers will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// Whether the proxy itself verifies client identities. When false the
	// frontend trusts usernames alone.
	OnlineMode bool `mapstructure:"online_mode"`

	Logging struct {
		// Full path to file to which logs will be written. Blank will write to stdout.
		LogFilePath string `mapstructure:"log_file_path"`
		// Minimum level of a log required to be written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"logging"`

	Server struct {
		// Port on which the game listener accepts clients.
		Port int `mapstructure:"port"`
		// Game version name advertised in the server list.
		VersionName string `mapstructure:"version_name"`
		// Protocol number this proxy declares.
		ProtocolVersion int32 `mapstructure:"protocol_version"`
		// Reject clients whose protocol number differs from ours.
		EnforceVersion bool `mapstructure:"enforce_version"`
		// Minimum milliseconds between login handshakes from one address.
		ConnectionThrottleMs int `mapstructure:"connection_throttle_ms"`
		// Maximum simultaneous sessions per address.
		ConnectionsPerIP int `mapstructure:"connections_per_ip"`
		// Server list descriptions, picked at random per ping.
		Motds []string `mapstructure:"motds"`
		// Alternative descriptions shown to addresses that have logged in before.
		KnownMotds []string `mapstructure:"known_motds"`
		// Include player counts in the server list response.
		ShowPlayerCount      bool `mapstructure:"show_player_count"`
		KnownShowPlayerCount bool `mapstructure:"known_show_player_count"`
		// Count queued players in the advertised player count.
		QueueInPlayerCount bool `mapstructure:"queue_in_player_count"`
	} `mapstructure:"server"`

	Backend struct {
		// Address of the server being fronted.
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
		// Whether the backend verifies sessions. When true the relay injects
		// credentials pointing at the embedded session service.
		OnlineMode bool `mapstructure:"online_mode"`
		// Number of players allowed on the backend before queueing starts.
		MaxPlayers int `mapstructure:"max_players"`
	} `mapstructure:"backend"`

	Queue struct {
		// When disabled, logins over capacity are rejected outright.
		Enabled bool `mapstructure:"enabled"`
		// Milliseconds between promotion ticks.
		PromotionIntervalMs int `mapstructure:"promotion_interval_ms"`
		// Milliseconds between the "joining" notice and the actual handoff.
		JoinNoticeDelayMs int `mapstructure:"join_notice_delay_ms"`
		// Time of day shown in the limbo world.
		WorldTime int64 `mapstructure:"world_time"`
	} `mapstructure:"queue"`

	Whitelist struct {
		Enabled bool `mapstructure:"enabled"`
		// Path to the flat JSON whitelist file.
		FilePath string `mapstructure:"file_path"`
		// Seconds between periodic re-reads of the file.
		ReloadIntervalSec int `mapstructure:"reload_interval_sec"`
	} `mapstructure:"whitelist"`

	DomainWhitelist struct {
		Enabled bool `mapstructure:"enabled"`
		// Virtual hosts clients are allowed to connect through.
		Domains []string `mapstructure:"domains"`
	} `mapstructure:"domain_whitelist"`

	SessionServer struct {
		// Port on which the embedded session HTTP service listens.
		Port int `mapstructure:"port"`
	} `mapstructure:"session_server"`

	Messages struct {
		Throttled          string `mapstructure:"throttled"`
		UnsupportedVersion string `mapstructure:"unsupported_version"`
		ServerFull         string `mapstructure:"server_full"`
		AlreadyConnected   string `mapstructure:"already_connected"`
		TooManyConnections string `mapstructure:"too_many_connections"`
		NotWhitelisted     string `mapstructure:"not_whitelisted"`
		WrongDomain        string `mapstructure:"wrong_domain"`
		Disconnected       string `mapstructure:"disconnected"`
		DisconnectedColor  string `mapstructure:"disconnected_color"`
		Joining            string `mapstructure:"joining"`
		JoiningColor       string `mapstructure:"joining_color"`
		QueuePosition      string `mapstructure:"queue_position"`
		QueueColor         string `mapstructure:"queue_color"`
		// Description override injected into backend server metadata.
		MotdOverride string `mapstructure:"motd_override"`
	} `mapstructure:"messages"`

	Database struct {
		// Database engine for the profile store ("sqlite" or "postgres").
		Engine string `mapstructure:"engine"`
		// Database file path when the engine is sqlite.
		Filename string `mapstructure:"filename"`
		// Connection settings when the engine is postgres.
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Name     string `mapstructure:"name"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Debugging struct {
		// Enable extra info-providing mechanisms for the server.
		PprofEnabled bool `mapstructure:"pprof_enabled"`
		// Port on which a pprof server will be started if debug mode is enabled.
		PprofPort int `mapstructure:"pprof_port"`
		// Log decoded packets to stdout.
		PacketLoggingEnabled bool `mapstructure:"packet_logging_enabled"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "QUEUEGATE"

// LoadConfig initializes Viper with the contents of the config file under configPath.
func LoadConfig(configPath string) *Config {
	viper.AddConfigPath(configPath)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix(envVarPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if errors.Is(err, viper.ConfigFileNotFoundError{}) {
			fmt.Printf("error reading config file: no config file in path %s", configPath)
		} else {
			fmt.Printf("error reading config file: %v", err)
		}
		os.Exit(1)
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, backend.host can be set using: <envVarPrefix>_BACKEND_HOST
	for _, k := range viper.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := viper.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			fmt.Printf("error binding %s to %s", k, envVarPrefix+"_"+envVar)
			os.Exit(1)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		fmt.Printf("error unmarshaling config object: %v", err)
		os.Exit(1)
	}
	return config
}

// ListenAddress returns the address the game listener binds to.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%v", c.Hostname, c.Server.Port)
}

// BackendAddress returns the fully qualified address of the fronted server.
func (c *Config) BackendAddress() string {
	return fmt.Sprintf("%s:%v", c.Backend.Host, c.Backend.Port)
}

// SessionServiceURL returns the base URL the relay points backend session
// verification at.
func (c *Config) SessionServiceURL() string {
	return fmt.Sprintf("http://localhost:%d", c.SessionServer.Port)
}

const databaseURITemplate = "host=%s port=%d dbname=%s user=%s password=%s sslmode=%s"

// DatabaseURL returns a database URL generated from the provided config values.
// For the sqlite engine this is just the file path.
func (c *Config) DatabaseURL() string {
	if c.Database.Engine != "postgres" {
		return c.Database.Filename
	}
	return fmt.Sprintf(
		databaseURITemplate,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Username,
		c.Database.Password,
		c.Database.SSLMode,
	)
}

func (c *Config) ConnectionThrottle() time.Duration {
	return time.Duration(c.Server.ConnectionThrottleMs) * time.Millisecond
}

func (c *Config) PromotionInterval() time.Duration {
	if c.Queue.PromotionIntervalMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Queue.PromotionIntervalMs) * time.Millisecond
}

func (c *Config) JoinNoticeDelay() time.Duration {
	if c.Queue.JoinNoticeDelayMs <= 0 {
		return time.Second
	}
	return time.Duration(c.Queue.JoinNoticeDelayMs) * time.Millisecond
}

func (c *Config) WhitelistReloadInterval() time.Duration {
	if c.Whitelist.ReloadIntervalSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Whitelist.ReloadIntervalSec) * time.Second
}
