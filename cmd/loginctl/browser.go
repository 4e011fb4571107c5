package main

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/foundrynet/telegram-login-service/loginclient"
)

// systemBrowser opens URLs with the platform launcher, the desktop
// analog of the browser popup.
func systemBrowser() loginclient.BrowserOpener {
	return loginclient.BrowserOpenerFunc(func(url string) error {
		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "darwin":
			cmd = exec.Command("open", url)
		case "windows":
			cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
		default:
			cmd = exec.Command("xdg-open", url)
		}
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		return nil
	})
}
