/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/ShisoftResearch/hivemind-go/cmn/config"
)

// discoverKubeMembers resolves meta_members from a headless Service's
// EndpointSlices, the teacher's own target/proxy discovery model
// transplanted to this engine's node bootstrap (SPEC_FULL §3). Only used
// when cfg.KubeDiscovery is set; the reference implementation otherwise
// relies on the static meta_members list.
func discoverKubeMembers(cfg *config.Config) ([]string, error) {
	rc, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("in-cluster config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(rc)
	if err != nil {
		return nil, fmt.Errorf("clientset: %w", err)
	}

	ns := cfg.KubeNamespace
	if ns == "" {
		ns = "default"
	}
	opts := metav1.ListOptions{}
	if cfg.KubeServiceLabel != "" {
		opts.LabelSelector = fmt.Sprintf("kubernetes.io/service-name=%s", cfg.KubeServiceLabel)
	}

	slices, err := clientset.DiscoveryV1().EndpointSlices(ns).List(context.Background(), opts)
	if err != nil {
		return nil, fmt.Errorf("list endpointslices: %w", err)
	}

	var addrs []string
	for _, s := range slices.Items {
		port := int32(0)
		if len(s.Ports) > 0 && s.Ports[0].Port != nil {
			port = *s.Ports[0].Port
		}
		for _, ep := range s.Endpoints {
			for _, a := range ep.Addresses {
				addrs = append(addrs, fmt.Sprintf("%s:%d", a, port))
			}
		}
	}
	return addrs, nil
}
