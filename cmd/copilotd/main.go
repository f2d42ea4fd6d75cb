// copilotd - remaps the Copilot key to Right Meta
//
// Laptops with a Copilot key report it as Left Shift + Left Meta + F23. The
// daemon grabs the keyboard, collapses that chord into a single Right Meta
// and forwards everything else through a virtual keyboard. Right Alt + Num
// Lock disables and re-enables the keyboard.
//
//	copilotd [run]           Run the remapper (default)
//	copilotd devices         List input devices and the one auto selects
//	copilotd check-config    Validate a configuration file
//	copilotd version         Print the version
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"text/tabwriter"

	"copilotd/internal/config"
	"copilotd/internal/device"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "run":
		os.Exit(cmdRun(args))
	case "devices":
		os.Exit(cmdDevices(args))
	case "check-config":
		os.Exit(cmdCheckConfig(args))
	case "version":
		cmdVersion()
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println(`copilotd - Copilot key remapper

USAGE:
    copilotd [command] [options]

COMMANDS:
    run                 Grab the keyboard and remap (default)
    devices             List input devices
    check-config        Validate a configuration file
    version             Print version information
    help                Show this help message

RUN OPTIONS:
    -config <path>      Configuration file (default: $COPILOTD_CONFIG,
                        /etc/copilotd/config.toml as root, else
                        $XDG_CONFIG_HOME/copilotd/config.toml)
    -device <path>      Keyboard event node, overrides device.path
    -debug              Log at debug level

CHECK-CONFIG OPTIONS:
    -config <path>      Configuration file to validate
    -print              Print the effective configuration
    -format <fmt>       toml, json or yaml for -print
    -write <path>       Save the effective configuration, format by extension

KEYS:
    Copilot key             Sent as Right Meta
    Right Alt + Num Lock    Disable / enable the keyboard

SIGNALS:
    SIGINT, SIGTERM     Flush pending keys and exit
    SIGUSR1             Write metrics to the log

copilotd needs read access to the keyboard's /dev/input/event* node and
write access to /dev/uinput.`)
}

func cmdVersion() {
	fmt.Printf("copilotd %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func cmdDevices(args []string) int {
	fs := flag.NewFlagSet("devices", flag.ExitOnError)
	all := fs.Bool("all", false, "include devices that are not keyboards")
	configPath := fs.String("config", "", "configuration file, for the virtual device name")
	fs.Parse(args)

	exclude := config.DefaultConfig().Device.VirtualName
	if cfg, err := config.Load(pathOrDefault(*configPath)); err == nil {
		exclude = cfg.Device.VirtualName
	}

	cands, err := device.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	chosen, err := device.Discover(exclude)
	if err != nil && !errors.Is(err, device.ErrNoKeyboard) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tPATH\tNAME\tKEYBOARD\tCOPILOT")
	for _, c := range cands {
		if !*all && !c.Keyboard {
			continue
		}
		mark := ""
		if c.Path == chosen {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", mark, c.Path, c.Name, yesNo(c.Keyboard), yesNo(c.Copilot))
	}
	w.Flush()

	if chosen == "" {
		fmt.Println("\nNo keyboard found. Is the user in the input group?")
		return 1
	}
	fmt.Printf("\n* selected by device.path = %q\n", config.AutoDevice)
	return 0
}

func cmdCheckConfig(args []string) int {
	fs := flag.NewFlagSet("check-config", flag.ExitOnError)
	configPath := fs.String("config", "", "configuration file")
	printCfg := fs.Bool("print", false, "print the effective configuration")
	format := fs.String("format", "toml", "output format for -print: toml, json or yaml")
	write := fs.String("write", "", "write the effective configuration to this file")
	fs.Parse(args)

	path := pathOrDefault(*configPath)
	cfg, err := config.Load(path)
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			fmt.Fprintf(os.Stderr, "%s: %d problem(s)\n", path, len(verrs))
			for _, e := range verrs {
				fmt.Fprintf(os.Stderr, "  %s\n", e.Error())
			}
			return 1
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		return 1
	}

	if *write != "" {
		if err := config.SaveConfig(cfg, *write); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("wrote %s\n", *write)
		return 0
	}

	if *printCfg {
		if err := config.Encode(os.Stdout, cfg, *format); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding config: %v\n", err)
			return 1
		}
		return 0
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("%s: not found, defaults apply\n", path)
		return 0
	}
	fmt.Printf("%s: ok\n", path)
	return 0
}

func pathOrDefault(path string) string {
	if path != "" {
		return path
	}
	return config.DefaultPath()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
