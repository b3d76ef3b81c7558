package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"

	"swiftlet-vm/internal/bundle"
	"swiftlet-vm/internal/compiler"
	"swiftlet-vm/internal/config"
	"swiftlet-vm/internal/native"
	"swiftlet-vm/internal/plugin"
	"swiftlet-vm/internal/runtime"
	"swiftlet-vm/internal/value"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCmd(os.Args[2:])
	case "compile":
		compileCmd(os.Args[2:])
	case "run-bundle":
		runBundleCmd(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  swiftlet run <script> [-entry name] [-gas n] [-strict] [-stats] [-disasm] [-v n]
  swiftlet compile <script> -o <out> [-sign-key <hex>] [-strict] [-v n]
  swiftlet run-bundle <bundle> [-key <hex>] [-entry name] [-gas n] [-stats] [-v n]
`)
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	entry := fs.String("entry", runtime.DefaultEntry, "entry function")
	gas := fs.Uint64("gas", 0, "gas limit override (instructions)")
	strict := fs.Bool("strict", false, "reject top-level statements outside any func")
	stats := fs.Bool("stats", false, "print executed instruction count")
	disasm := fs.Bool("disasm", false, "print disassembly before running")
	verbosity := fs.Int("v", 0, "log verbosity")
	fs.Parse(args)

	if fs.NArg() != 1 {
		usage()
		os.Exit(1)
	}
	path := fs.Arg(0)
	commonlog.Configure(*verbosity, nil)

	content, err := os.ReadFile(path)
	if err != nil {
		fatal(fmt.Errorf("reading %s: %w", path, err))
	}

	cfg, err := config.Load(filepath.Dir(path))
	if err != nil {
		fatal(err)
	}

	reg := native.Builtins()
	for _, pc := range cfg.Plugins {
		client, err := plugin.Load(pc.Name, pc.Exec)
		if err != nil {
			fatal(err)
		}
		defer client.Close()
		for _, m := range pc.Methods {
			reg.Register(client.Native(m.Name, m.Arity))
		}
	}

	rt := runtime.New(reg)
	rt.Strict = *strict || cfg.Strict
	rt.GasLimit = cfg.GasLimit
	if *gas > 0 {
		rt.GasLimit = *gas
	}

	if *disasm {
		prog, err := rt.Compile(string(content))
		if err != nil {
			fatal(err)
		}
		fmt.Print(prog.Disassemble())
	}

	result, err := rt.RunSourceEntry(string(content), *entry)
	if err != nil {
		fatal(err)
	}
	if result.Type != value.VAL_NULL {
		fmt.Println(result.String())
	}
	if *stats {
		fmt.Fprintf(os.Stderr, "%s instruction(s) executed\n", humanize.Comma(int64(rt.Steps())))
	}
}

func compileCmd(args []string) {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	out := fs.String("o", "", "output bundle path")
	signKey := fs.String("sign-key", "", "hex-encoded signing key")
	strict := fs.Bool("strict", false, "reject top-level statements outside any func")
	verbosity := fs.Int("v", 0, "log verbosity")
	fs.Parse(args)

	if fs.NArg() != 1 || *out == "" {
		usage()
		os.Exit(1)
	}
	path := fs.Arg(0)
	commonlog.Configure(*verbosity, nil)

	content, err := os.ReadFile(path)
	if err != nil {
		fatal(fmt.Errorf("reading %s: %w", path, err))
	}

	key, err := parseHexKey(*signKey)
	if err != nil {
		fatal(err)
	}

	c := compiler.New()
	c.Strict = *strict
	prog, err := c.Compile(string(content))
	if err != nil {
		fatal(err)
	}

	data, err := bundle.Encode(prog, key)
	if err != nil {
		fatal(err)
	}
	if err := os.WriteFile(*out, data, 0644); err != nil {
		fatal(err)
	}
}

func runBundleCmd(args []string) {
	fs := flag.NewFlagSet("run-bundle", flag.ExitOnError)
	keyHex := fs.String("key", "", "hex-encoded verification key")
	entry := fs.String("entry", runtime.DefaultEntry, "entry function")
	gas := fs.Uint64("gas", 0, "gas limit override (instructions)")
	stats := fs.Bool("stats", false, "print executed instruction count")
	verbosity := fs.Int("v", 0, "log verbosity")
	fs.Parse(args)

	if fs.NArg() != 1 {
		usage()
		os.Exit(1)
	}
	path := fs.Arg(0)
	commonlog.Configure(*verbosity, nil)

	data, err := os.ReadFile(path)
	if err != nil {
		fatal(fmt.Errorf("reading %s: %w", path, err))
	}

	key, err := parseHexKey(*keyHex)
	if err != nil {
		fatal(err)
	}

	rt := runtime.New(nil)
	rt.GasLimit = *gas

	result, err := rt.RunBundleEntry(data, key, *entry)
	if err != nil {
		fatal(err)
	}
	if result.Type != value.VAL_NULL {
		fmt.Println(result.String())
	}
	if *stats {
		fmt.Fprintf(os.Stderr, "%s instruction(s) executed\n", humanize.Comma(int64(rt.Steps())))
	}
}

func parseHexKey(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex key: %w", err)
	}
	return key, nil
}

func fatal(err error) {
	msg := err.Error()
	if isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintf(os.Stderr, "\x1b[31m%s\x1b[0m\n", msg)
	} else {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(1)
}
