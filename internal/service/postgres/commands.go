package postgres

import (
	"strconv"

	"github.com/oshokin/pg-embed/internal/service/cache"
)

// initDBArgs is the initdb command line for a fresh cluster.
func initDBArgs(s Settings, p cache.Paths) []string {
	return []string{
		"-A", s.AuthMethod.InitDBArg(),
		"-U", s.User,
		"-E=UTF8",
		"-D", p.DatabaseDir,
		"--pwfile=" + p.PasswordFile,
	}
}

// startArgs is the pg_ctl command line that starts the server and waits for it.
func startArgs(s Settings, p cache.Paths) []string {
	return []string{
		"-o", "-F -p " + strconv.Itoa(int(s.Port)),
		"start",
		"-w",
		"-D", p.DatabaseDir,
	}
}

// stopArgs is the pg_ctl command line that stops the server and waits for it.
func stopArgs(p cache.Paths) []string {
	return []string{"stop", "-w", "-D", p.DatabaseDir}
}
