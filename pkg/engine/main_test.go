package engine_test

import (
	"flag"
	"fmt"
	"log"
	"os"
	"testing"
	"time"
)

var (
	verbose = flag.Bool("verbose", false, "Enable verbose test output")

	testStartTime time.Time
)

// TestMain is used to set up environment before running tests
func TestMain(m *testing.M) {
	flag.Parse()

	fmt.Println("Setting up test environment...")
	testStartTime = time.Now()
	if *verbose {
		log.Println("Verbose testing enabled")
	}

	fmt.Printf("Running tests in package: github.com/keygate-hq/keygate-signer/pkg/engine\n")
	exitCode := m.Run()

	fmt.Printf("Tests completed in %v\n", time.Since(testStartTime))
	os.Exit(exitCode)
}
