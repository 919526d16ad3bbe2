// cmd/walletctl/main.go
package main

import (
	"os"

	"chatpay-wallet/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
