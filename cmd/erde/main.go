// Command erde runs the Epoch Reward Distribution Engine CLI.
package main

import "github.com/paimon-protocol/erde/internal/cli"

func main() {
	cli.Execute()
}
