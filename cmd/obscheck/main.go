package main

import (
	"os"

	"github.com/foundrynet/telegram-login-service/internal/tools/common"
	"github.com/foundrynet/telegram-login-service/internal/tools/obscheck"
)

func main() {
	_ = common.LoadEnvFile(".env")
	if err := obscheck.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
