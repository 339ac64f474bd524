package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"syscall"
)

// ClassifyBrokerError explains a failure to reach the message queue.
func ClassifyBrokerError(err error, url string) string {
	if err == nil {
		return ""
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("Connection to message queue at %s timed out.\n"+
			"  Remediation:\n"+
			"  - Check that Redis is running and reachable\n"+
			"  - Verify network connectivity and firewall rules", url)
	}

	if errors.Is(err, syscall.ECONNREFUSED) || containsIgnoreCase(err.Error(), "connection refused") {
		return fmt.Sprintf("Connection refused by message queue at %s.\n"+
			"  This usually means Redis is not running.\n"+
			"  Remediation:\n"+
			"  - Start Redis: docker run -d -p 6379:6379 redis\n"+
			"  - Or set MESSAGE_QUEUE_URL=local to run a single process without fan-out", url)
	}

	if containsIgnoreCase(err.Error(), "NOAUTH") || containsIgnoreCase(err.Error(), "WRONGPASS") {
		return fmt.Sprintf("Authentication failed for message queue at %s.\n"+
			"  Remediation:\n"+
			"  - Include the password in MESSAGE_QUEUE_URL: redis://:password@host:6379/0", url)
	}

	return fmt.Sprintf("Failed to connect to message queue at %s: %v", url, err)
}

// ClassifySQLiteError provides specific error messages based on the type of SQLite failure.
func ClassifySQLiteError(err error, dbPath string) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()
	absPath, _ := filepath.Abs(dbPath)
	parentDir := filepath.Dir(absPath)

	switch {
	case containsIgnoreCase(errStr, "permission denied"):
		return fmt.Sprintf("Permission denied accessing SQLite database at %s.\n"+
			"  Remediation:\n"+
			"  - Check permissions of %s and its directory %s", absPath, absPath, parentDir)
	case containsIgnoreCase(errStr, "database is locked") || containsIgnoreCase(errStr, "SQLITE_BUSY"):
		return fmt.Sprintf("SQLite database at %s is locked by another process.\n"+
			"  Remediation:\n"+
			"  - Stop other server processes using the instance directory", absPath)
	case containsIgnoreCase(errStr, "corrupt") || containsIgnoreCase(errStr, "malformed"):
		return fmt.Sprintf("SQLite database at %s appears to be corrupted.\n"+
			"  Remediation:\n"+
			"  - Back up the file, then run the reset-db command to recreate it", absPath)
	case containsIgnoreCase(errStr, "read-only"):
		return fmt.Sprintf("SQLite database location is on a read-only file system: %s.\n"+
			"  Remediation:\n"+
			"  - Point INSTANCE_DIR or DATABASE_URI at a writable location", absPath)
	}

	return fmt.Sprintf("Failed to initialize SQLite database at %s: %v\n"+
		"  Remediation:\n"+
		"  - Ensure the directory %s exists and is writable", absPath, err, parentDir)
}

// containsIgnoreCase checks if a string contains a substring (case-insensitive).
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
