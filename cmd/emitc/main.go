// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

// Command emitc is the emission core's standalone driver, mirroring
// probe-lang/cmd/probec: a thin CLI around the library packages, useful
// for manually driving new_sub/emit/end_sub during development without a
// real VM host.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/probeum/emitcore/pkg/artifact"
	"github.com/probeum/emitcore/pkg/config"
	"github.com/probeum/emitcore/pkg/constant"
	"github.com/probeum/emitcore/pkg/emitlog"
	"github.com/probeum/emitcore/pkg/orchestrator"
	"github.com/probeum/emitcore/pkg/vmhost"
)

const (
	version       = "0.1.0"
	findNameOpnum = 128
	expectedKeys  = 1024
)

func main() {
	app := cli.NewApp()
	app.Name = "emitc"
	app.Usage = "bytecode emission core driver"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "TOML configuration file"},
	}
	app.Commands = []cli.Command{
		emitCommand,
		dumpCommand,
		replCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(ctx *cli.Context) (config.Config, error) {
	if file := ctx.GlobalString("config"); file != "" {
		return config.Load(file)
	}
	return config.Default, nil
}

var emitCommand = cli.Command{
	Name:      "emit",
	Usage:     "compile a pseudo-assembly file and write a packfile",
	ArgsUsage: "<source.asm>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "o", Usage: "output packfile path (default: <source>.emtc)"},
		cli.BoolFlag{Name: "pasm", Usage: "treat the source as a single raw PASM segment"},
		cli.StringFlag{Name: "remote-account", Usage: "also publish the artifact to this Azure storage account after writing it to local disk"},
		cli.StringFlag{Name: "remote-key", Usage: "access key for --remote-account"},
		cli.StringFlag{Name: "remote-container", Usage: "blob container for --remote-account"},
		cli.StringFlag{Name: "remote-blob", Usage: "blob name for --remote-account (default: output filename)"},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 1 {
			return fmt.Errorf("usage: emitc emit [flags] <source.asm>")
		}
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		src := ctx.Args().Get(0)
		f, err := os.Open(src)
		if err != nil {
			return err
		}
		defer f.Close()

		units, err := parseAsm(f)
		if err != nil {
			return err
		}

		host := vmhost.NewFake(nil)
		orch := orchestrator.New(host, findNameOpnum, expectedKeys)
		if cfg.DebugLevel > 0 {
			orch.SetLogger(emitlog.New(nil, emitlog.LevelTrace))
		}
		if err := orch.Open(ctx.Bool("pasm")); err != nil {
			return err
		}
		for _, u := range units {
			if err := orch.NewSub(u, ""); err != nil {
				return err
			}
			for i := range u.Instructions {
				if err := orch.Emit(&u.Instructions[i]); err != nil {
					return err
				}
			}
			if err := orch.EndSub(nil); err != nil {
				return err
			}
		}

		seg := orch.CurrentSegment()
		if err := orch.Close(); err != nil {
			return err
		}

		var consts []constant.Constant
		for i := 0; ; i++ {
			c, ok := seg.Emitter.Pool.At(i)
			if !ok {
				break
			}
			consts = append(consts, c)
		}
		pack := &artifact.Pack{
			Code:     seg.Emitter.Code,
			PicIndex: seg.Emitter.PicIndex,
			Consts:   consts,
			Subs:     seg.Emitter.Subs.All(),
			Debug:    seg.Emitter.Debug,
		}
		data, err := artifact.Encode(pack)
		if err != nil {
			return err
		}

		out := ctx.String("o")
		if out == "" {
			out = strings.TrimSuffix(src, ".asm") + ".emtc"
		}
		if err := artifact.WriteFile(out, data); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d subs, %d code words)\n", out, len(pack.Subs), len(pack.Code))
		for i, c := range consts {
			if c.Kind == constant.KindKey {
				fmt.Printf("  const %d: key %s\n", i, constant.KeyDigestHex(c.KeyWords))
			}
		}

		if account := ctx.String("remote-account"); account != "" {
			blobName := ctx.String("remote-blob")
			if blobName == "" {
				blobName = filepath.Base(out)
			}
			if err := artifact.UploadRemote(context.Background(), account, ctx.String("remote-key"), ctx.String("remote-container"), blobName, data); err != nil {
				return err
			}
			fmt.Printf("published %s to %s/%s\n", blobName, account, ctx.String("remote-container"))
		}
		return nil
	},
}

var dumpCommand = cli.Command{
	Name:      "dump",
	Usage:     "print a compiled packfile's size and magic header (sections are not decoded)",
	ArgsUsage: "<packfile>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 1 {
			return fmt.Errorf("usage: emitc dump <packfile>")
		}
		m, f, err := artifact.Open(ctx.Args().Get(0))
		if err != nil {
			return err
		}
		defer f.Close()
		defer m.Unmap()

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"field", "value"})
		table.Append([]string{"packfile size", fmt.Sprintf("%d bytes", len(m))})
		table.Append([]string{"magic", string(m[:4])})
		table.Render()
		return nil
	},
}

// replCommand reads one line per prompt and collects lines until one reads
// "endsub"; the collected "sub ... endsub" block then goes through the
// same asm parser the `emit` subcommand drives from a file, and is
// immediately driven through new_sub/emit/end_sub against a fresh fake host.
var replCommand = cli.Command{
	Name:  "repl",
	Usage: "paste a 'sub ... endsub' block and drive new_sub/emit/end_sub against a fake host",
	Action: func(ctx *cli.Context) error {
		host := vmhost.NewFake(nil)
		orch := orchestrator.New(host, findNameOpnum, expectedKeys)
		if err := orch.Open(false); err != nil {
			return err
		}

		line := liner.NewLiner()
		defer line.Close()
		line.SetCtrlCAborts(true)

		fmt.Println("emitc repl — paste a 'sub <name> ... endsub' block, or 'quit' to exit")
		var block strings.Builder
		for {
			input, err := line.Prompt("emitc> ")
			if err != nil {
				if err == liner.ErrPromptAborted {
					return nil
				}
				return err
			}
			line.AppendHistory(input)

			if strings.TrimSpace(input) == "quit" {
				return orch.Close()
			}
			block.WriteString(input)
			block.WriteByte('\n')
			if strings.TrimSpace(input) != "endsub" {
				continue
			}
			err = replEval(orch, block.String())
			block.Reset()
			if err != nil {
				fmt.Println("error:", err)
			}
		}
	},
}

func replEval(orch *orchestrator.Orchestrator, block string) error {
	units, err := parseAsm(strings.NewReader(block))
	if err != nil {
		return err
	}
	for _, u := range units {
		if err := orch.NewSub(u, ""); err != nil {
			return err
		}
		for i := range u.Instructions {
			if err := orch.Emit(&u.Instructions[i]); err != nil {
				return err
			}
		}
		if err := orch.EndSub(nil); err != nil {
			return err
		}
		fmt.Printf("sub %q emitted\n", u.Name)
	}
	return nil
}
