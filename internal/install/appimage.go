package install

import (
	"bytes"
	"context"
	"os"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/bundle-updater/internal/errs"
	"github.com/oshokin/bundle-updater/internal/logger"
)

// appImageMode is the executable bit pattern AppImages require.
const appImageMode os.FileMode = 0o755

// installAppImage replaces the running AppImage. The artifact is a
// gzip-tar containing the single new .AppImage file; the apply
// library stages it next to the target so the final rename is atomic
// on one filesystem.
func installAppImage(ctx context.Context, req *Request) error {
	content, err := extractTarGzSingle(req.Artifact, ".AppImage")
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Replacing AppImage", "path", req.ExecutablePath)

	options := goupdate.Options{
		TargetPath: req.ExecutablePath,
		TargetMode: appImageMode,
	}

	if err = goupdate.Apply(bytes.NewReader(content), options); err != nil {
		return errs.Wrap(errs.KindIo, "apply AppImage update", err)
	}

	// The apply library parks the previous binary next to the target.
	oldPath := req.ExecutablePath + ".old"
	if _, err = os.Stat(oldPath); err == nil {
		_ = os.Remove(oldPath)
	}

	if req.Relaunch {
		logger.Info(ctx, "Replacing process with the new version")

		if err = relaunchExec(req.ExecutablePath); err != nil {
			return errs.Wrap(errs.KindSpawn, "relaunch "+req.ExecutablePath, err)
		}
	}

	return nil
}
