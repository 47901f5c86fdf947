package install

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/bundle-updater/internal/errs"
	"github.com/oshokin/bundle-updater/internal/logger"
)

const (
	// markerFilename marks that an install is running right now so
	// mutations of the installed executable stay serialized.
	markerFilename = "bundle-updater-install-marker.bin"

	// markerLifetime is the period after which a marker left behind
	// by a crashed run may be reclaimed.
	markerLifetime = 10 * time.Minute
)

// markerPath returns the marker location inside the OS temp directory.
func markerPath() string {
	return filepath.Join(os.TempDir(), markerFilename)
}

// acquireGuard claims the install marker and returns a release
// function. A fresh marker from another run is a hard failure; a
// stale one is reclaimed only when no other updater process is alive.
func acquireGuard(ctx context.Context) (func(), error) {
	path := markerPath()

	if info, err := os.Stat(path); err == nil {
		if time.Since(info.ModTime()) <= markerLifetime {
			return nil, errs.New(errs.KindIo, "another install is already in progress")
		}

		logger.Info(ctx, "Install marker is stale, checking for a live updater process")

		alive, err := otherUpdaterAlive()
		if err != nil {
			return nil, errs.Wrap(errs.KindIo, "inspect process table", err)
		}

		if alive {
			return nil, errs.New(errs.KindIo, "another install is already in progress")
		}

		if err = os.Remove(path); err != nil {
			return nil, errs.Wrap(errs.KindIo, "reclaim stale install marker", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, errs.Wrap(errs.KindIo, "read install marker", err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return nil, errs.Wrap(errs.KindIo, "create install marker", err)
	}

	return func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf(ctx, "Unable to remove install marker: %v", err)
		}
	}, nil
}

// otherUpdaterAlive reports whether a process with our executable
// name other than ourselves shows up in the process table.
func otherUpdaterAlive() (bool, error) {
	executable, err := os.Executable()
	if err != nil {
		return false, err
	}

	selfName := filepath.Base(executable)
	selfPid := os.Getpid()

	processes, err := ps.Processes()
	if err != nil {
		return false, err
	}

	for _, process := range processes {
		if process.Pid() == selfPid {
			continue
		}

		if process.Executable() == selfName {
			return true, nil
		}
	}

	return false, nil
}
