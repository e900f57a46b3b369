package minicap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spance/minicap-go/constants"
	"github.com/spance/minicap-go/mirror/android"
	"github.com/spance/minicap-go/mirror/definitions"
	"github.com/spance/minicap-go/mirror/helper"
)

// AssetPaths returns the local files to push for a device, laid out as
// bin/<abi>/minicap, bin/<abi>/minicap-nopie (API < 16 only) and
// shared/android-<sdk>/<abi>/minicap.so.
func AssetPaths(assetDir string, caps *definitions.Capabilities) []string {
	bin := filepath.Join(assetDir, "bin", caps.Abi)
	paths := []string{filepath.Join(bin, constants.HelperName)}
	if caps.APILevel < constants.MinPIEAPILevel {
		paths = append(paths, filepath.Join(bin, constants.HelperNoPIEName))
	}
	paths = append(paths, filepath.Join(assetDir, "shared", "android-"+strconv.Itoa(caps.APILevel), caps.Abi, constants.HelperLibrary))
	return paths
}

// deploy pushes the helper when more than one required file is missing from
// the remote directory. A stale helper with all files present is not
// detected.
func (s *Session) deploy(ctx context.Context, caps *definitions.Capabilities) error {
	dir := s.opts.RemoteDir
	installed, err := s.prober.InstalledFiles(ctx, dir)
	if err != nil {
		return err
	}
	missing := helper.MissingFiles(constants.RequiredFiles, installed)
	if len(missing) <= 1 {
		log.Debug().Str("serial", s.serial).Strs("missing", missing).Msg("[Deploy] helper already installed")
		return nil
	}

	assets := AssetPaths(s.opts.AssetDir, caps)
	for _, path := range assets {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: local asset: %w", definitions.ErrDeploymentIncomplete, err)
		}
	}

	log.Info().Str("serial", s.serial).Str("abi", caps.Abi).Int("sdk", caps.APILevel).
		Strs("missing", missing).Msg("[Deploy] pushing helper")
	for _, path := range assets {
		if _, err := s.executor.Execute(ctx, s.serial, s.opts.PushTimeout, "push", path, dir+"/"); err != nil {
			return fmt.Errorf("push %s: %w", filepath.Base(path), err)
		}
	}

	// freshly pushed files are not executable right away
	if err := sleep(ctx, s.opts.SettleDelay); err != nil {
		return err
	}
	if _, err := android.Shell(ctx, s.executor, s.serial, s.opts.CommandTimeout, constants.ChmodCommand(dir)); err != nil {
		return fmt.Errorf("chmod helper: %w", err)
	}
	if err := sleep(ctx, s.opts.SettleDelay); err != nil {
		return err
	}

	installed, err = s.prober.InstalledFiles(ctx, dir)
	if err != nil {
		return err
	}
	if helper.NeedsDeployment(constants.RequiredFiles, installed) {
		return fmt.Errorf("%w: missing %v after push", definitions.ErrDeploymentIncomplete,
			helper.MissingFiles(constants.RequiredFiles, installed))
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
