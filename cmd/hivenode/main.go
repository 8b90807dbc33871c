// Command hivenode bootstraps one node of the compute engine: it loads
// config, reconciles the on-disk spill directory, wires the Local Block
// Engine through the Block Service and Block Manager, layers the
// Immutable Manager, Global Store and Resource Manager on top, and blocks
// serving RPCs (spec §4, §6).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/karrick/godirwalk"
	shortid "github.com/teris-io/shortid"
	"golang.org/x/sync/errgroup"

	"github.com/ShisoftResearch/hivemind-go/cmn/config"
	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
	"github.com/ShisoftResearch/hivemind-go/cmn/nlog"
	"github.com/ShisoftResearch/hivemind-go/internal/blockmgr"
	"github.com/ShisoftResearch/hivemind-go/internal/blockstore"
	"github.com/ShisoftResearch/hivemind-go/internal/blocksvc"
	"github.com/ShisoftResearch/hivemind-go/internal/gstore"
	"github.com/ShisoftResearch/hivemind-go/internal/immutable"
	"github.com/ShisoftResearch/hivemind-go/internal/membership"
	"github.com/ShisoftResearch/hivemind-go/internal/resmgr"
)

func main() {
	cfgPath := flag.String("config", "hivenode.json", "path to node config")
	kube := flag.Bool("kube", false, "resolve meta_members via Kubernetes EndpointSlices instead of the static config list")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		nlog.Errorf("hivenode: config: %v", err)
		os.Exit(1)
	}
	cfg.KubeDiscovery = cfg.KubeDiscovery || *kube

	sid, err := shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		nlog.Errorf("hivenode: shortid: %v", err)
		os.Exit(1)
	}
	corrID, _ := sid.Generate()
	nlog.Infof("hivenode[%s]: starting, storage=%s address=%s", corrID, cfg.Storage, cfg.Address)

	localID := cos.NewUUID()

	if err := reconcileStorage(cfg, localID); err != nil {
		nlog.Errorf("hivenode[%s]: storage reconcile: %v", corrID, err)
		os.Exit(1)
	}

	members := membership.New()
	if cfg.KubeDiscovery {
		addrs, err := discoverKubeMembers(cfg)
		if err != nil {
			nlog.Warningf("hivenode[%s]: kube discovery failed, falling back to static meta_members: %v", corrID, err)
			addrs = cfg.MetaMembers
		}
		cfg.MetaMembers = addrs
	}
	for _, addr := range cfg.MetaMembers {
		members.Apply(membership.Event{Kind: membership.Joined, NodeID: cos.NewUUID(), Address: addr})
	}
	members.Apply(membership.Event{Kind: membership.Joined, NodeID: localID, Address: cfg.Address})

	engine := blockstore.NewEngine(blockstore.DefaultBufCap, func(_, block cos.UUID) string {
		return cfg.SpillPath(block)
	})
	svc := blocksvc.New(engine, int(cfg.Processors))
	defer svc.Close()

	bm := blockmgr.New(localID, svc, members, nil)
	reg := immutable.NewRegistry()
	imm := immutable.New(localID, bm, reg)

	gsm, err := gstore.New(filepath.Join(cfg.Storage, "gstore.db"))
	if err != nil {
		nlog.Errorf("hivenode[%s]: gstore: %v", corrID, err)
		os.Exit(1)
	}
	gclient := gstore.NewClient(gsm)

	rm := resmgr.New(members)
	if err := rm.RegisterNode(resmgr.ComputeNode{
		NodeID: localID, Address: cfg.Address, Online: true,
	}); err != nil {
		nlog.Errorf("hivenode[%s]: register local node: %v", corrID, err)
		os.Exit(1)
	}

	nlog.Infof("hivenode[%s]: node %s ready (imm=%p gstore=%p)", corrID, localID, imm, gclient)

	listener := blocksvc.NewHTTPListener(svc)
	go func() {
		if err := listener.ListenAndServe(cfg.Address); err != nil {
			nlog.Errorf("hivenode[%s]: listener stopped: %v", corrID, err)
		}
	}()

	waitForShutdown(corrID)
}

// reconcileStorage walks cfg.Storage with godirwalk on startup and logs how
// many *.bin spill files it found. If cfg.ECEnabled, every such file is
// additionally erasure-coded with the configured shard counts, fanned out
// across an errgroup so a storage directory full of spill files doesn't
// serialize startup behind one shard encode at a time; the shards are not
// kept. Every encode runs to completion, and the first error returned
// aborts the boot.
func reconcileStorage(cfg *config.Config, localID cos.UUID) error {
	var paths []string
	err := godirwalk.Walk(cfg.Storage, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if !de.IsDir() && strings.HasSuffix(path, ".bin") {
				paths = append(paths, path)
			}
			return nil
		},
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return cos.ErrIOf("reconcileStorage", err)
	}

	if cfg.ECEnabled() {
		g, _ := errgroup.WithContext(context.Background())
		for _, path := range paths {
			path := path
			g.Go(func() error { return ecVerify(cfg, path) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	nlog.Infof("hivenode: node %s found %d spill files under %s on startup", localID, len(paths), cfg.Storage)
	return nil
}

func ecVerify(cfg *config.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return cos.ErrIOf("ecVerify: read "+path, err)
	}
	shards, err := blockstore.ECEncode(data, cfg.ECDataShards, cfg.ECParityShards)
	if err != nil {
		return err
	}
	nlog.Infof("hivenode: ec-verified %s into %d shards", path, len(shards))
	return nil
}

func waitForShutdown(corrID string) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	nlog.Infof("hivenode[%s]: received %v, shutting down", corrID, sig)
}
