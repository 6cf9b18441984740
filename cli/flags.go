package cli

import (
	"fmt"
	"os"
	"path"
	"reflect"
	"strings"

	"github.com/coreos/go-semver/semver"
	"github.com/thought-machine/go-flags"
)

// ParseFlags parses the app's flags and returns the parser, any extra
// arguments, and any error encountered. It may exit if certain options are
// encountered (eg. --help).
func ParseFlags(appname string, data interface{}, args []string) (*flags.Parser, []string, error) {
	parser := flags.NewNamedParser(path.Base(args[0]), flags.HelpFlag|flags.PassDoubleDash)
	parser.AddGroup(appname+" options", "", data)
	extraArgs, err := parser.ParseArgs(args[1:])
	if err != nil && err.(*flags.Error).Type == flags.ErrHelp {
		writeUsage(data)
		fmt.Printf("%s\n", err)
		os.Exit(0)
	}
	return parser, extraArgs, err
}

// ParseFlagsOrDie parses the app's flags and dies if unsuccessful. The
// remaining positional arguments are returned for the caller (the targets
// to build).
func ParseFlagsOrDie(appname, version string, data interface{}) []string {
	parser, extraArgs, err := ParseFlags(appname, data, os.Args)
	if err != nil {
		writeUsage(data)
		parser.WriteHelp(os.Stderr)
		fmt.Printf("\n%s\n", err)
		os.Exit(2)
	}
	_ = version
	return extraArgs
}

// writeUsage prints any usage specified on the flag struct.
func writeUsage(opts interface{}) {
	if field, present := reflect.TypeOf(opts).Elem().FieldByName("Usage"); present {
		if s := strings.TrimSpace(field.Tag.Get("usage")); s != "" {
			fmt.Println(s)
			fmt.Println("")
		}
	}
}

// A Version is a semantic version usable as a flag value.
type Version struct {
	semver.Version
}

// UnmarshalFlag implements the flags.Unmarshaler interface.
func (v *Version) UnmarshalFlag(in string) error {
	in = strings.TrimPrefix(in, "v")
	ver, err := semver.NewVersion(in)
	if err != nil {
		return &flags.Error{Type: flags.ErrMarshal, Message: err.Error()}
	}
	v.Version = *ver
	return nil
}

// CheckMinVersion warns when the running binary is older than the minimum
// version a config file demands.
func CheckMinVersion(current, min string) {
	if min == "" {
		return
	}
	cur, err := semver.NewVersion(strings.TrimPrefix(current, "v"))
	if err != nil {
		return
	}
	want, err := semver.NewVersion(strings.TrimPrefix(min, "v"))
	if err != nil {
		log.Warning("invalid minversion in config: %q", min)
		return
	}
	if cur.LessThan(*want) {
		log.Warning("this binary is version %s, but the config requires at least %s", cur, want)
	}
}
