package bootstrap

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/thuinanutshell/ux-interviewer/config"
)

// InitLogger initializes the zap logger with colored console output.
// Debug enables debug-level entries.
func InitLogger(debug bool) (*zap.Logger, *zap.SugaredLogger, error) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(
		consoleEncoder,
		zapcore.AddSync(os.Stdout),
		level,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// LogConfig records the resolved settings without revealing secrets.
func LogConfig(cfg *config.Config, sugar *zap.SugaredLogger) {
	sugar.Infow("Config loaded",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"database_uri", cfg.DatabaseURI,
		"instance_dir", cfg.InstanceDir,
		"base_url", cfg.BaseURL,
		"insecure_transport", cfg.InsecureTransport)
	sugar.Infow("Optional integrations",
		"google_oauth", cfg.GoogleClientID != nil && cfg.GoogleClientSecret != nil,
		"email", cfg.SenderEmail != nil && cfg.SendGridAPIKey != nil,
		"openai", cfg.OpenAIAPIKey != nil,
		"gemini", cfg.GeminiAPIKey != nil)
}
