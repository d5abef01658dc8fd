package hostenv

import (
	"os"
	"runtime"
)

// Classpath is the resolved, colon-joined (on POSIX) -cp value, set by
// cmd/jvm before the boot sequence runs and read back by Properties
// to populate java.class.path.
var Classpath string

// JavaHome is the JAVA_HOME the bootstrap class loader was built
// against, read back into java.home.
var JavaHome string

// Properties returns the Java system properties a freshly booted VM
// exposes through System.getProperty, keyed exactly as the JDK names
// them. TEST_SRC, when set, is forwarded as test.src — many JDK
// regression-test harnesses read it to locate fixture files.
func Properties() map[string]string {
	home, _ := os.UserHomeDir()
	wd, _ := os.Getwd()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}

	props := map[string]string{
		"file.encoding":               "UTF-8",
		"file.separator":              string(os.PathSeparator),
		"line.separator":              lineSeparator(),
		"path.separator":              string(os.PathListSeparator),
		"os.arch":                     runtime.GOARCH,
		"os.name":                     osName(),
		"os.version":                  "",
		"user.home":                   home,
		"user.dir":                    wd,
		"user.name":                   user,
		"java.home":                   JavaHome,
		"java.io.tmpdir":              os.TempDir(),
		"java.class.path":             Classpath,
		"java.class.version":          "52.0",
		"java.specification.version":  "1.8",
		"java.vendor":                 "corvus",
		"sun.arch.data.model":         "64",
		"sun.cpu.endian":              "little",
	}

	if testSrc := os.Getenv("TEST_SRC"); testSrc != "" {
		props["test.src"] = testSrc
	}

	return props
}

func lineSeparator() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

func osName() string {
	switch runtime.GOOS {
	case "darwin":
		return "Mac OS X"
	case "windows":
		return "Windows"
	default:
		return "Linux"
	}
}
