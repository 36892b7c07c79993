// Package daemon implements the daemon command. It identifies the CPU
// topology of the target, probes the kernel's perf capabilities, and builds
// the perf event groups for a capture session.
package daemon

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v2"

	"github.com/RufUsul/gator/internal/common"
	"github.com/RufUsul/gator/internal/cpuid"
	"github.com/RufUsul/gator/internal/cpus"
	"github.com/RufUsul/gator/internal/metrics"
	"github.com/RufUsul/gator/internal/perf"
)

const cmdName = "daemon"

var examples = []string{
	fmt.Sprintf("  Configure a system-wide capture:             $ %s %s", common.AppName, cmdName),
	fmt.Sprintf("  Include SPE sampling where available:        $ %s %s --spe", common.AppName, cmdName),
	fmt.Sprintf("  Expose configuration health to prometheus:   $ %s %s --metrics-addr :9090", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Identifies the CPU topology and configures the capture's perf event groups",
	Example:       "",
	RunE:          runCmd,
	SilenceErrors: true,
}

var (
	flagConfigFile       string
	flagSystemWide       bool
	flagSampleRate       int
	flagBacktraceDepth   int
	flagPeriodicSampling bool
	flagExcludeKernel    bool
	flagDataBufferSize   uint64
	flagAuxBufferSize    uint64
	flagSpe              bool
	flagIgnoreOffline    bool
	flagMetricsAddr      string
)

const (
	flagConfigFileName       = "config"
	flagSystemWideName       = "system-wide"
	flagSampleRateName       = "sample-rate"
	flagBacktraceDepthName   = "backtrace-depth"
	flagPeriodicSamplingName = "periodic-sampling"
	flagExcludeKernelName    = "exclude-kernel"
	flagDataBufferSizeName   = "data-buffer-size"
	flagAuxBufferSizeName    = "aux-buffer-size"
	flagSpeName              = "spe"
	flagIgnoreOfflineName    = "ignore-offline"
	flagMetricsAddrName      = "metrics-addr"
)

func init() {
	Cmd.Example = examples[0] + "\n" + examples[1] + "\n" + examples[2]
	Cmd.Flags().StringVar(&flagConfigFile, flagConfigFileName, "", "path to a capture configuration yaml file")
	Cmd.Flags().BoolVar(&flagSystemWide, flagSystemWideName, true, "capture all processes on all CPUs")
	Cmd.Flags().IntVar(&flagSampleRate, flagSampleRateName, 1000, "program counter sample rate in Hz, 0 to disable")
	Cmd.Flags().IntVar(&flagBacktraceDepth, flagBacktraceDepthName, 0, "call chain depth, 0 to disable unwinding")
	Cmd.Flags().BoolVar(&flagPeriodicSampling, flagPeriodicSamplingName, true, "drive periodic program counter sampling")
	Cmd.Flags().BoolVar(&flagExcludeKernel, flagExcludeKernelName, false, "exclude kernel-mode samples from the capture")
	Cmd.Flags().Uint64Var(&flagDataBufferSize, flagDataBufferSizeName, 4*1024*1024, "per-event data ring size in bytes")
	Cmd.Flags().Uint64Var(&flagAuxBufferSize, flagAuxBufferSizeName, 16*1024*1024, "per-event aux ring size in bytes (SPE)")
	Cmd.Flags().BoolVar(&flagSpe, flagSpeName, false, "configure statistical profiling extension sampling")
	Cmd.Flags().BoolVar(&flagIgnoreOffline, flagIgnoreOfflineName, false, "do not wake offline cores during identification")
	Cmd.Flags().StringVar(&flagMetricsAddr, flagMetricsAddrName, "", "listen address for the prometheus endpoint")
}

// captureConfig mirrors the command's flags in the configuration file.
// Values from the file apply only where the flag was not given on the
// command line.
type captureConfig struct {
	SystemWide       *bool   `yaml:"system_wide"`
	SampleRate       *int    `yaml:"sample_rate"`
	BacktraceDepth   *int    `yaml:"backtrace_depth"`
	PeriodicSampling *bool   `yaml:"periodic_sampling"`
	ExcludeKernel    *bool   `yaml:"exclude_kernel"`
	DataBufferSize   *uint64 `yaml:"data_buffer_size"`
	AuxBufferSize    *uint64 `yaml:"aux_buffer_size"`
	Spe              *bool   `yaml:"spe"`
	MetricsAddr      *string `yaml:"metrics_addr"`
}

func applyConfigFile(cmd *cobra.Command, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read configuration file: %v", err)
	}
	var fileConfig captureConfig
	if err := yaml.UnmarshalStrict(raw, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse configuration file %s: %v", path, err)
	}
	setBool := func(name string, flag *bool, value *bool) {
		if value != nil && !cmd.Flags().Changed(name) {
			*flag = *value
		}
	}
	setInt := func(name string, flag *int, value *int) {
		if value != nil && !cmd.Flags().Changed(name) {
			*flag = *value
		}
	}
	setUint64 := func(name string, flag *uint64, value *uint64) {
		if value != nil && !cmd.Flags().Changed(name) {
			*flag = *value
		}
	}
	setBool(flagSystemWideName, &flagSystemWide, fileConfig.SystemWide)
	setInt(flagSampleRateName, &flagSampleRate, fileConfig.SampleRate)
	setInt(flagBacktraceDepthName, &flagBacktraceDepth, fileConfig.BacktraceDepth)
	setBool(flagPeriodicSamplingName, &flagPeriodicSampling, fileConfig.PeriodicSampling)
	setBool(flagExcludeKernelName, &flagExcludeKernel, fileConfig.ExcludeKernel)
	setUint64(flagDataBufferSizeName, &flagDataBufferSize, fileConfig.DataBufferSize)
	setUint64(flagAuxBufferSizeName, &flagAuxBufferSize, fileConfig.AuxBufferSize)
	setBool(flagSpeName, &flagSpe, fileConfig.Spe)
	if fileConfig.MetricsAddr != nil && !cmd.Flags().Changed(flagMetricsAddrName) {
		flagMetricsAddr = *fileConfig.MetricsAddr
	}
	return nil
}

// fanoutSink delivers each key→attribute mapping to every sink, so the
// tracker and the attributes frame stay in step.
type fanoutSink []perf.AttrKeySink

func (s fanoutSink) MapKeyToAttr(key int, attr *unix.PerfEventAttr) {
	for _, sink := range s {
		sink.MapKeyToAttr(key, attr)
	}
}

func runCmd(cmd *cobra.Command, args []string) error {
	if flagConfigFile != "" {
		if err := applyConfigFile(cmd, flagConfigFile); err != nil {
			return err
		}
	}
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		slog.Debug("effective option", slog.String("name", flag.Name), slog.String("value", flag.Value.String()))
	})

	// CPU identification
	maxCores, err := cpuid.GetMaxCoreCount(cpuid.DefaultSysCpuDir)
	if err != nil {
		slog.Error("CPU enumeration failed", slog.String("error", err.Error()))
		return err
	}
	ids := cpuid.NewIDVector(maxCores)
	ident := &cpuid.Identifier{}
	hardwareName, err := ident.ReadCpuInfo(flagIgnoreOffline, true, ids)
	if err != nil {
		slog.Error("CPU identification failed", slog.String("error", err.Error()))
		return err
	}
	identified := 0
	for _, id := range ids {
		if id != cpuid.UnknownID {
			identified++
		}
	}
	metrics.SetCoreCounts(identified, maxCores)

	// perf capability probing
	prober := &perf.Prober{}
	perfConfig := prober.Probe(flagSystemWide)
	configurerConfig := &perf.ConfigurerConfig{
		PerfConfig: perfConfig,
		Ringbuffer: perf.RingbufferConfig{
			DataBufferSize: flagDataBufferSize,
			AuxBufferSize:  flagAuxBufferSize,
		},
		ExcludeKernelEvents:    flagExcludeKernel,
		BacktraceDepth:         flagBacktraceDepth,
		SampleRate:             flagSampleRate,
		EnablePeriodicSampling: flagPeriodicSampling,
		SchedSwitchID:          prober.SchedSwitchID(),
		SchedSwitchKey:         0,
		DummyKeyCounter:        -1,
	}

	tracker := perf.NewAttrsKeyTracker()
	attrsFrame := perf.NewAttrsFrameBuilder(0)
	sink := fanoutSink{tracker, attrsFrame}

	// one CPU group per distinct core type (cluster)
	var clusters []cpuid.ID
	for _, id := range ids {
		if !slices.Contains(clusters, id) {
			clusters = append(clusters, id)
		}
	}
	var groups []*perf.EventGroupConfigurer
	for index, id := range clusters {
		group := perf.NewEventGroupConfigurer(configurerConfig, perf.PerClusterCpuGroup(index))
		if err := group.CreateGroupLeader(sink); err != nil {
			slog.Error("failed to configure CPU group", slog.String("cluster", cpus.CoreName(int(id))),
				slog.String("error", err.Error()))
			return err
		}
		groups = append(groups, group)
	}

	// uncore PMUs
	pmus, err := perf.DiscoverPMUs(perf.DefaultPMUDeviceDir)
	if err != nil {
		slog.Debug("uncore PMU discovery failed", slog.String("error", err.Error()))
	}
	var spePMU *perf.PMU
	for _, pmu := range pmus {
		if pmu.Name == "arm_spe" {
			spePMU = &pmu
			continue
		}
		if !pmu.IsUncore() {
			continue
		}
		group := perf.NewEventGroupConfigurer(configurerConfig, perf.UncorePmuGroup(pmu.Name, pmu.Instance))
		if err := group.CreateGroupLeader(sink); err != nil {
			slog.Error("failed to configure uncore group", slog.String("pmu", pmu.RawName),
				slog.String("error", err.Error()))
			return err
		}
		groups = append(groups, group)
	}

	// SPE sampling, one aux stream per core
	if flagSpe {
		if spePMU == nil {
			slog.Warn("SPE requested but no arm_spe device was found")
		} else {
			for cpu := range maxCores {
				group := perf.NewEventGroupConfigurer(configurerConfig, perf.SpeGroup(cpu))
				speAttr := perf.Attr{
					Type:         spePMU.Type,
					PeriodOrFreq: 1024,
					SampleType:   unix.PERF_SAMPLE_TID,
				}
				if err := group.AddEvent(false, sink, 1+cpu, speAttr, true); err != nil {
					slog.Error("failed to configure SPE", slog.Int("cpu", cpu), slog.String("error", err.Error()))
					return err
				}
				groups = append(groups, group)
			}
		}
	}

	totalEvents := 0
	for _, group := range groups {
		metrics.SetGroupEvents(group.Identifier().String(), len(group.Events()))
		totalEvents += len(group.Events())
	}
	metrics.SetGroupCount(len(groups))

	printer := message.NewPrinter(language.English)
	if hardwareName == "" {
		hardwareName = "unknown"
	}
	printer.Printf("Hardware: %s\n", hardwareName)
	printer.Printf("Identified %d of %d cores\n", identified, maxCores)
	for index, id := range clusters {
		printer.Printf("  cluster %d: %s (0x%05x)\n", index, cpus.CoreName(int(id)), int(id))
	}
	printer.Printf("Configured %d events in %d groups (%d attribute bytes)\n",
		totalEvents, len(groups), attrsFrame.Len())

	if flagMetricsAddr != "" {
		metrics.StartServer(flagMetricsAddr)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		slog.Info("shutting down")
	}
	return nil
}
