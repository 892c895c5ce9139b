// Command pine is a terminal client for the Pine query compiler. It edits
// Pine expressions, shows the SQL and table graph the compiler derives from
// them, and evaluates them on the server or on a local database.
//
// Configuration (flags > env vars > pine.yaml > defaults):
//
//	--server, PINE_SERVER          compiler URL (default http://localhost:33333)
//	--database-url, DATABASE_URL   run compiled SQL locally instead of on the server
//	--engine, PINE_ENGINE          postgres|mysql|sqlite (guessed from the DSN)
//	--debounce, PINE_DEBOUNCE      quiet period before a build (default 200ms)
//
// Usage:
//
//	pine                           # interactive REPL
//	pine build 'company | employee'
//	pine eval --csv 'company | where: id = 1'
//	pine graph 'company | employee' > graph.dot
//	pine watch query.pine
//	pine prefs theme dark
package main

import (
	"fmt"
	"os"
)

// version is set via ldflags: -ldflags="-X main.version=v1.0.0"
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
