package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thuinanutshell/ux-interviewer/bootstrap"
	"github.com/thuinanutshell/ux-interviewer/config"
)

var recognizedEnv = []string{
	"DEBUG", "TESTING", "APP_ENV", "FLASK_ENV", "DATABASE_URI", "INSTANCE_DIR",
	"SECRET_KEY", "JWT_SECRET_KEY", "JWT_REFRESH_SECRET", "JWT_ACCESS_TTL", "JWT_REFRESH_TTL",
	"SWAGGER_URL", "SWAGGER_FILE", "SENDER_EMAIL", "SENDGRID_API_KEY", "SUPPORT_EMAIL",
	"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "OPENAI_API_KEY", "GEMINI_API_KEY",
	"PORT", "BASE_URL", "MESSAGE_QUEUE_URL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"SECRETS_PROVIDER", "VAULT_ADDR", "VAULT_TOKEN", "VAULT_SECRET_PATH",
	"AWS_REGION", "AWS_SECRET_ID", "AWS_ENDPOINT_URL",
}

// setupEnv blanks the recognized variables and points the instance dir at a temp dir.
func setupEnv(t *testing.T) string {
	t.Helper()
	for _, key := range recognizedEnv {
		t.Setenv(key, "")
	}
	instance := filepath.Join(t.TempDir(), "instance")
	t.Setenv("INSTANCE_DIR", instance)
	t.Setenv("DEBUG", "false")
	return instance
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--no-color"}, args...))
	err := root.Execute()
	return out.String(), err
}

func findCommand(root *cobra.Command, name string) *cobra.Command {
	for _, c := range root.Commands() {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

func TestNewRootCmd(t *testing.T) {
	root := NewRootCmd()

	assert.Equal(t, "ux-interviewer", root.Use)
	assert.NotNil(t, root.RunE, "root should serve when no subcommand is given")
	assert.NotNil(t, root.PersistentFlags().Lookup("no-color"))

	serve := findCommand(root, "serve")
	require.NotNil(t, serve)
	assert.NotNil(t, serve.RunE)

	reset := findCommand(root, "reset-db")
	require.NotNil(t, reset)
	assert.NotNil(t, reset.Flags().Lookup("yes"))
	assert.NotNil(t, reset.Flags().Lookup("force"))
	assert.Equal(t, "y", reset.Flags().Lookup("yes").Shorthand)
}

func TestResetDBCmd_RequiresConfirmation(t *testing.T) {
	instance := setupEnv(t)
	t.Setenv("SECRET_KEY", "s3cret")

	out, err := execute(t, "reset-db")

	require.ErrorIs(t, err, bootstrap.ErrResetNotConfirmed)
	assert.Contains(t, out, "--yes")
	_, statErr := os.Stat(instance)
	assert.True(t, os.IsNotExist(statErr), "instance dir must not be touched")
}

func TestResetDBCmd_ProductionNeedsForce(t *testing.T) {
	instance := setupEnv(t)
	t.Setenv("SECRET_KEY", "s3cret")
	t.Setenv("APP_ENV", "production")
	require.NoError(t, os.MkdirAll(instance, 0o755))
	marker := filepath.Join(instance, "keep.txt")
	require.NoError(t, os.WriteFile(marker, []byte("data"), 0o600))

	out, err := execute(t, "reset-db", "--yes")

	require.ErrorIs(t, err, bootstrap.ErrResetInProduction)
	assert.Contains(t, out, "--force")
	assert.FileExists(t, marker)
}

func TestResetDBCmd_MissingSecretKey(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "reset-db", "--yes")

	require.ErrorIs(t, err, config.ErrMissingSecretKey)
}

func TestResetDBCmd_Success(t *testing.T) {
	instance := setupEnv(t)
	t.Setenv("SECRET_KEY", "s3cret")
	require.NoError(t, os.MkdirAll(instance, 0o755))
	stale := filepath.Join(instance, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o600))

	out, err := execute(t, "reset-db", "--yes")

	require.NoError(t, err)
	assert.Contains(t, out, "Database setup completed successfully")
	assert.NoFileExists(t, stale)
	assert.FileExists(t, filepath.Join(instance, "app.db"))
}

func TestServeCmd_MissingSecretKey(t *testing.T) {
	setupEnv(t)

	_, err := execute(t)

	require.ErrorIs(t, err, config.ErrMissingSecretKey)
}
