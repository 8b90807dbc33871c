// Command hivectl is a read-only operator tool: it inspects a running
// node's block contents (exists, read, get) over the Block Manager's RPC
// surface (spec §6 external interfaces). It has no task or node listing.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/internal/blockmgr"
	"github.com/ShisoftResearch/hivemind-go/internal/blockstore"
	"github.com/ShisoftResearch/hivemind-go/internal/blocksvc"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:0", "node RPC address")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	tp := blockmgr.RPCTransport{}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	var err error
	switch cmd {
	case "exists":
		err = cmdExists(tp, *addr, args)
	case "read":
		err = cmdRead(tp, *addr, args)
	case "get":
		err = cmdGet(tp, *addr, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "hivectl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: hivectl -addr <host:port> <command> [args]

commands:
  exists <task> <block>          report whether a (task, block) pair exists
  read   <task> <block>          read every record of a block from offset 0
  get    <task> <block> <key>    fetch one key from a block's KV index`)
}

func parseUUID(s string) (cos.UUID, error) {
	id, err := cos.ParseUUID(s)
	if err != nil {
		return cos.UUID{}, fmt.Errorf("invalid uuid %q: %w", s, err)
	}
	return id, nil
}

func cmdExists(tp blockmgr.RPCTransport, addr string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("exists requires <task> <block>")
	}
	task, err := parseUUID(args[0])
	if err != nil {
		return err
	}
	block, err := parseUUID(args[1])
	if err != nil {
		return err
	}
	exists, err := tp.Exists(addr, blocksvc.ExistsArgs{Task: task, Block: block})
	if err != nil {
		return err
	}
	fmt.Println(exists)
	return nil
}

func cmdRead(tp blockmgr.RPCTransport, addr string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("read requires <task> <block>")
	}
	task, err := parseUUID(args[0])
	if err != nil {
		return err
	}
	block, err := parseUUID(args[1])
	if err != nil {
		return err
	}
	cur := blockstore.Cursor{Limit: blockstore.Items(1 << 20)}
	reply, err := tp.Read(addr, blocksvc.ReadArgs{Task: task, Block: block, Cursor: cur})
	if err != nil {
		return err
	}
	for i, rec := range reply.Records {
		fmt.Printf("%d: %q\n", i, rec)
	}
	return nil
}

func cmdGet(tp blockmgr.RPCTransport, addr string, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("get requires <task> <block> <key>")
	}
	task, err := parseUUID(args[0])
	if err != nil {
		return err
	}
	block, err := parseUUID(args[1])
	if err != nil {
		return err
	}
	key, err := parseUUID(args[2])
	if err != nil {
		return err
	}
	val, err := tp.Get(addr, blocksvc.KeyArgs{Task: task, Block: block, Key: key})
	if err != nil {
		return err
	}
	fmt.Printf("%q\n", val)
	return nil
}
