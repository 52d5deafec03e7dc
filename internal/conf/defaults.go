// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/skinscan/skinscan/internal/logger"
)

// Default limits applied when the config file does not override them.
const (
	DefaultMaxUploadBytes = 10 << 20
	DefaultMaxPixels      = 40_000_000
	DefaultPort           = "5000"
)

// setDefaultConfig registers default values with viper.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "SkinScan")

	viper.SetDefault("model.runtime", RuntimeTFLite)
	viper.SetDefault("model.path", "")
	viper.SetDefault("model.version", "skin_disease_model")
	viper.SetDefault("model.threads", 0)
	viper.SetDefault("model.usexnnpack", true)
	viper.SetDefault("model.onnxlibrarypath", "")
	viper.SetDefault("model.inputname", "input")
	viper.SetDefault("model.outputname", "output")

	viper.SetDefault("decoder.maxuploadbytes", DefaultMaxUploadBytes)
	viper.SetDefault("decoder.maxpixels", DefaultMaxPixels)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.host", "")
	viper.SetDefault("webserver.port", DefaultPort)
	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.corsorigins", []string{"http://localhost:3000"})
	viper.SetDefault("webserver.requesttimeout", 30*time.Second)
	viper.SetDefault("webserver.ratelimit.enabled", true)
	viper.SetDefault("webserver.ratelimit.requestspersecond", 2.0)
	viper.SetDefault("webserver.ratelimit.burst", 10)

	viper.SetDefault("history.enabled", true)
	viper.SetDefault("history.cachettl", 30*time.Second)
	viper.SetDefault("history.sqlite.enabled", true)
	viper.SetDefault("history.sqlite.path", "skinscan.db")
	viper.SetDefault("history.mysql.enabled", false)
	viper.SetDefault("history.mysql.username", "skinscan")
	viper.SetDefault("history.mysql.password", "")
	viper.SetDefault("history.mysql.passwordfile", "")
	viper.SetDefault("history.mysql.database", "skinscan")
	viper.SetDefault("history.mysql.host", "localhost")
	viper.SetDefault("history.mysql.port", "3306")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "skinscan/classifications")
	viper.SetDefault("mqtt.clientid", "skinscan")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.passwordfile", "")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.dsnfile", "")
	viper.SetDefault("sentry.environment", "production")
	viper.SetDefault("sentry.samplerate", 1.0)

	viper.SetDefault("logging.defaultlevel", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.fileoutput.enabled", false)
	viper.SetDefault("logging.fileoutput.path", logger.DefaultLogPath)
	viper.SetDefault("logging.fileoutput.level", logger.DefaultLogLevel)
}
