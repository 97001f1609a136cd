// lintgate CLI — отправка trigger'ов и просмотр runs через HTTP API.
//
// Использование:
//
//	lintgate [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	trigger   Отправить push или pull_request trigger
//	run       Просмотр runs и отчёт о результате job
//	workflow  Просмотр и проверка workflow
package main

import (
	"fmt"
	"os"

	"github.com/shaiso/lintgate/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
