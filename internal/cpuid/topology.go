// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package cpuid

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// ReadCpuInfo populates ids, one entry per logical CPU, and returns the
// hardware name when requested (or when needed as a fallback).
//
// Unless ignoreOffline is set, every core is first woken by a hard-affined
// identification worker (see identifyAllCores); the workers hold their cores
// online until both the topology synthesis and any /proc/cpuinfo read have
// completed. With ignoreOffline, cores are probed synchronously and offline
// cores simply yield empty properties.
//
// Identity resolution: /proc/cpuinfo is only consulted when some core's MIDR
// could not be read or the hardware name is wanted, and its values are
// written first. MIDR values read directly from each core then replace them.
// Finally, cores still unknown that have a known cluster take the cluster's
// identity when exactly one identity was observed on it; a core already
// identified from cpuinfo keeps that identity.
func (ident *Identifier) ReadCpuInfo(ignoreOffline bool, wantsHardwareName bool, ids []ID) (hardwareName string, err error) {
	cpuToCluster := make(map[int]int)
	clusterToIDs := make(map[int]mapset.Set[ID])
	cpuToID := make(map[int]ID)

	var collected map[int]CoreProperties
	if !ignoreOffline {
		var release func()
		collected, release = ident.identifyAllCores(len(ids))
		// the workers keep the cores online until after cpuinfo is read
		defer release()
	} else {
		collected = make(map[int]CoreProperties, len(ids))
		for cpu := range len(ids) {
			collected[cpu] = ident.DetectFor(cpu)
		}
	}

	for _, cpu := range slices.Sorted(maps.Keys(collected)) {
		props := collected[cpu]
		id := MakeID(props.MIDR)

		// store the cluster / core mappings to allow gaps to be filled by
		// assuming the same core type per cluster
		if props.Cluster != InvalidPackageID {
			cpuToCluster[cpu] = props.Cluster

			if props.HasMIDR {
				set, ok := clusterToIDs[props.Cluster]
				if !ok {
					set = mapset.NewSet[ID]()
					clusterToIDs[props.Cluster] = set
				}
				set.Add(id)
			}

			for _, sibling := range props.Siblings {
				if _, ok := cpuToCluster[sibling]; !ok {
					cpuToCluster[sibling] = props.Cluster
				}
			}
		}

		if props.HasMIDR {
			cpuToID[cpu] = id
		}
	}

	for _, cpu := range slices.Sorted(maps.Keys(cpuToID)) {
		slog.Debug("read CPUID from MIDR_EL1", slog.Int("cpu", cpu),
			slog.String("cpuid", fmt.Sprintf("0x%05x", int(cpuToID[cpu]))))
	}
	for _, cpu := range slices.Sorted(maps.Keys(cpuToCluster)) {
		slog.Debug("read cluster", slog.Int("cpu", cpu), slog.Int("cluster", cpuToCluster[cpu]))
	}

	// did we successfully read the MIDR of every core?
	knowAllMidrValues := len(cpuToID) == len(ids)

	if wantsHardwareName || !knowAllMidrValues {
		hardwareName, err = parseProcCpuInfo(ident.procCpuInfo(), knowAllMidrValues, ids)
		if err != nil {
			return
		}
	}

	// Update from the MIDR map and topology information. MIDR values
	// override anything read from /proc/cpuinfo; the cluster fill only
	// touches cores that are still unknown.
	updateIDsFromTopology(ids, cpuToID, cpuToCluster, clusterToIDs)
	return
}

// updateIDsFromTopology writes directly-observed identities into ids, then
// fills cores that have a known cluster but no identity, provided exactly one
// distinct identity was observed on that cluster.
func updateIDsFromTopology(ids []ID, cpuToID map[int]ID, cpuToCluster map[int]int, clusterToIDs map[int]mapset.Set[ID]) {
	for cpu, id := range cpuToID {
		if cpu < len(ids) {
			ids[cpu] = id
		}
	}
	for cpu, cluster := range cpuToCluster {
		if cpu >= len(ids) || ids[cpu] != UnknownID {
			continue
		}
		set, ok := clusterToIDs[cluster]
		if !ok || set.Cardinality() != 1 {
			continue
		}
		id := set.ToSlice()[0]
		slog.Debug("assuming CPUID from cluster siblings", slog.Int("cpu", cpu),
			slog.String("cpuid", fmt.Sprintf("0x%05x", int(id))))
		ids[cpu] = id
	}
}
