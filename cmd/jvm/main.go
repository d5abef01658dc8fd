// Command jvm loads a compiled Java class from JAVA_HOME plus an
// optional classpath and runs its public static void main(String[]).
package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/corvusvm/corvus/internal/classpath"
	"github.com/corvusvm/corvus/internal/hostenv"
	"github.com/corvusvm/corvus/pkg/classloader"
	"github.com/corvusvm/corvus/pkg/natives"
	"github.com/corvusvm/corvus/pkg/oop"
	"github.com/corvusvm/corvus/pkg/reflectutil"
	"github.com/corvusvm/corvus/pkg/runtime"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	classpathFlag string
	verboseFlag   bool
)

func main() {
	root := &cobra.Command{
		Use:           "jvm [flags] <main-class> [args...]",
		Short:         "run a compiled Java class's main method",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runMain,
	}
	root.Flags().StringVar(&classpathFlag, "classpath", "", "classpath entries, separated by "+string(os.PathListSeparator))
	root.Flags().StringVar(&classpathFlag, "cp", "", "alias for --classpath")
	root.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "log class loading/linking/initialization at debug level")

	if err := root.Execute(); err != nil {
		hostenv.Log.WithError(err).Error("fatal")
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) error {
	hostenv.SetVerbose(verboseFlag)

	javaHome := os.Getenv("JAVA_HOME")
	if javaHome == "" {
		return errors.New("JAVA_HOME is not set")
	}
	hostenv.JavaHome = javaHome
	hostenv.Classpath = classpathFlag

	bootReader, err := classpath.NewJmodReader(filepath.Join(javaHome, "jmods", "java.base.jmod"))
	if err != nil {
		return errors.Wrap(err, "opening java.base.jmod")
	}

	dict := classloader.NewDictionary()
	engine := runtime.NewEngine(nil, dict)
	boot := classloader.NewBootstrapLoader(bootReader, dict, engine.MethodInvoker)
	engine.Boot = boot

	natives.Register(engine)
	reflectutil.Register(engine)

	userLoader := classloader.NewUserLoader("app", userClasspathReader(classpathFlag), boot)

	mainClassName := strings.ReplaceAll(args[0], ".", "/")
	javaArgs := args[1:]

	th := engine.NewThread(nil)
	defer engine.RetireThread(th)

	klass, err := userLoader.Require(th.ID, mainClassName)
	if err != nil {
		return errors.Wrapf(err, "loading %s", args[0])
	}
	if err := userLoader.EnsureInitialized(th.ID, klass); err != nil {
		return reportIfUncaught(engine, th, err)
	}

	method := klass.LookupMethod("main", "([Ljava/lang/String;)V")
	if method == nil || !method.IsStatic() {
		return errors.Errorf("%s has no static void main(String[])", args[0])
	}

	argv, err := stringArray(engine, th, javaArgs)
	if err != nil {
		return errors.Wrap(err, "building argv")
	}

	if _, err := engine.Invoke(th, method, []oop.Oop{argv}, true); err != nil {
		return reportIfUncaught(engine, th, err)
	}
	return nil
}

// reportIfUncaught dispatches a Java exception through the thread's
// uncaught-exception machinery and exits non-zero, or propagates any
// other (VM-internal) error as-is for main's fatal-abort logging.
func reportIfUncaught(e *runtime.Engine, t *runtime.Thread, err error) error {
	if texc, ok := err.(*runtime.ThrownException); ok {
		e.DispatchUncaughtException(t, texc.Exception)
		os.Exit(1)
	}
	return err
}

// userClasspathReader builds the -cp chain: one DirReader or
// ZipReader per path.separator-delimited entry, in order, falling
// back to the current directory when no entry was given.
func userClasspathReader(cp string) classpath.Reader {
	entries := strings.Split(cp, string(os.PathListSeparator))
	var readers []classpath.Reader
	for _, entry := range entries {
		if entry == "" {
			continue
		}
		if strings.HasSuffix(entry, ".jar") {
			if r, err := classpath.NewJarReader(entry); err == nil {
				readers = append(readers, r)
				continue
			}
		}
		readers = append(readers, classpath.NewDirReader(entry))
	}
	if len(readers) == 0 {
		readers = append(readers, classpath.NewDirReader("."))
	}
	return &classpath.ChainReader{Readers: readers}
}

// stringArray builds a java.lang.String[] holding argv, the shape
// main(String[]) expects.
func stringArray(e *runtime.Engine, t *runtime.Thread, argv []string) (oop.Oop, error) {
	klass, err := e.Boot.Require(t.ID, "[Ljava/lang/String;")
	if err != nil {
		return oop.Oop{}, err
	}
	elements := make([]oop.Oop, len(argv))
	for i, s := range argv {
		ref, err := e.NewJavaString(t, s)
		if err != nil {
			return oop.Oop{}, err
		}
		elements[i] = oop.FromRef(ref)
	}
	return oop.FromRef(oop.NewReference(&oop.ObjectArrayData{Klass: klass, Elements: elements})), nil
}
