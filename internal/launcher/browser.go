// Carryall - Portable Analytics Launcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carryall

package launcher

import (
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/pkg/browser"
)

// ErrNoBrowser is returned when no URL opener exists on this system.
var ErrNoBrowser = errors.New("no browser opener found")

func init() {
	// The opener's own chatter would land in the launcher's console.
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
}

// OpenBrowser opens url with the platform's default handler.
func OpenBrowser(url string) error {
	return openerError(browser.OpenURL(url))
}

// openerError maps a missing opener binary to ErrNoBrowser.
func openerError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNoBrowser, err)
	}
	return fmt.Errorf("open browser: %w", err)
}
