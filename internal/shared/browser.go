package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

// BrowserOpener launches url in the user's browser.
type BrowserOpener func(url string) error

// browserCommand returns the launcher argv for goos, or nil when goos has none.
func browserCommand(goos, url string) []string {
	switch goos {
	case "darwin":
		return []string{"open", url}
	case "linux", "freebsd", "openbsd":
		return []string{"xdg-open", url}
	case "windows":
		return []string{"rundll32", "url.dll,FileProtocolHandler", url}
	default:
		return nil
	}
}

// OpenBrowser opens url with the platform's default handler without waiting for it to exit.
func OpenBrowser(url string) error {
	argv := browserCommand(runtime.GOOS, url)
	if argv == nil {
		return fmt.Errorf("%w: no browser launcher for %s", ErrNotImplemented, runtime.GOOS)
	}

	if err := exec.Command(argv[0], argv[1:]...).Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
