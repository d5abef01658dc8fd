// Package hostenv wires the core VM to the process it runs in: the
// structured logger every package logs through, the Java system
// properties the JDK class library reads at startup, and the
// classpath assembled from JAVA_HOME and -cp.
package hostenv

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide structured logger. Class loading, linking,
// and initialization transitions log at Debug; a fatal VM-internal
// fault logs at Error immediately before cmd/jvm aborts the process.
var Log = logrus.New()

func init() {
	Log.SetOutput(os.Stderr)
	Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: false})
}

// SetVerbose raises Log to Debug level, for a CLI --verbose flag.
func SetVerbose(verbose bool) {
	if verbose {
		Log.SetLevel(logrus.DebugLevel)
		return
	}
	Log.SetLevel(logrus.InfoLevel)
}
