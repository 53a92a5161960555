// Command rustaceans-sync runs reconciliations from the command line, manages
// the database schema and prepares admin credentials.
//
//	rustaceans-sync sync user alice bob --pr 42
//	rustaceans-sync sync pr 42
//	rustaceans-sync sync all
//	rustaceans-sync migrate
//	rustaceans-sync hash-password < password.txt
//	rustaceans-sync serve
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
