package util

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rlink-io/rlink/rlink/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupNodeFlags adds the configuration flags shared by actor and learner
// commands
func SetupNodeFlags(cmd *cobra.Command) {
	key := "reliable"
	cmd.PersistentFlags().Bool(key, false, WrapString("Enable the reliability layer: every payload is acknowledged and retried up to retry-attempts times before it is reported as failed"))

	key = "retry-attempts"
	cmd.PersistentFlags().Int(key, common.DefaultRetryAttempts, WrapString("How many times to resend an unacknowledged payload (reliable mode only)"))

	key = "ack-timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultAckTimeout, WrapString("How long to wait for an acknowledgment before a resend is scheduled (reliable mode only)"))

	key = "heartbeat-interval"
	cmd.PersistentFlags().Duration(key, common.DefaultHeartbeatInterval, WrapString("Interval between liveness probes; a peer that does not answer within one interval is treated as disconnected"))

	key = "connect-timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultConnectTimeout, WrapString("Timeout for establishing a connection"))

	key = "max-frame-size"
	cmd.PersistentFlags().Uint32(key, common.DefaultMaxFrameSize, WrapString("Frames larger than this (in bytes) are rejected as malformed and close the connection"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("The level at which logs will be output (debug, info, warn, error)"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY on established connections"))

	key = "tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval in seconds (0 disables)"))

	key = "tcp-write-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket write buffer in KB (0 keeps the OS default)"))

	key = "tcp-read-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket read buffer in KB (0 keeps the OS default)"))
}

// InitNodeConfig initializes configuration from environment variables. The
// format of the environment variables is RLINK_<flag> with dashes replaced
// by underscores (e.g. RLINK_ACK_TIMEOUT=500ms)
func InitNodeConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("rlink")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetNodeConfig reads the shared node configuration from viper
func GetNodeConfig() common.NodeConfig {
	conf := common.DefaultNodeConfig()

	conf.Reliable = viper.GetBool("reliable")
	conf.RetryAttempts = viper.GetInt("retry-attempts")
	conf.AckTimeout = viper.GetDuration("ack-timeout")
	conf.HeartbeatInterval = viper.GetDuration("heartbeat-interval")
	conf.ConnectTimeout = viper.GetDuration("connect-timeout")
	conf.MaxFrameSize = viper.GetUint32("max-frame-size")
	conf.LogLevel = viper.GetString("log-level")
	conf.TCP = common.TCPConf{
		NoDelay:         viper.GetBool("tcp-nodelay"),
		KeepAliveSec:    viper.GetInt("tcp-keepalive"),
		WriteBufferSize: viper.GetInt("tcp-write-buffer") * 1024,
		ReadBufferSize:  viper.GetInt("tcp-read-buffer") * 1024,
	}

	return conf
}
