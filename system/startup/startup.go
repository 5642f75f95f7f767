package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ServiceOptions describe how systemd launches the daemon.
type ServiceOptions struct {
	User       string
	WorkDir    string
	Binary     string
	ConfigFile string
	DBPath     string
	Port       int
}

// ServiceUnit renders the systemd unit for the mixvalve daemon.
func ServiceUnit(o ServiceOptions) string {
	args := []string{
		o.Binary,
		"-config-file", o.ConfigFile,
		"-db", o.DBPath,
		"-port", fmt.Sprint(o.Port),
	}

	return fmt.Sprintf(`[Unit]
Description=Mixing valve controller
After=network.target

[Service]
Type=simple
User=%s
WorkingDirectory=%s
ExecStart=%s
Restart=on-failure
RestartSec=5s
KillSignal=SIGTERM

[Install]
WantedBy=multi-user.target
`, o.User, o.WorkDir, strings.Join(args, " "))
}

// InstallService writes the unit to path. Relative paths in o are resolved
// against o.WorkDir.
func InstallService(path string, o ServiceOptions) error {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(o.WorkDir, p)
	}
	o.Binary = abs(o.Binary)
	o.ConfigFile = abs(o.ConfigFile)
	o.DBPath = abs(o.DBPath)

	if err := os.WriteFile(path, []byte(ServiceUnit(o)), 0644); err != nil {
		return fmt.Errorf("failed to write service unit: %w", err)
	}
	return nil
}
