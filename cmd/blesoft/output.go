package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/srg/blesoft/internal/bledb"
	"github.com/srg/blesoft/internal/decoder"
	"github.com/srg/blesoft/internal/device"
	"github.com/srg/blesoft/internal/extractor"
	"github.com/srg/blesoft/internal/session"
	"github.com/srg/blesoft/pkg/softener"
)

const missing = "-"

var (
	labelColor = color.New(color.Bold).SprintFunc()
	okColor    = color.New(color.FgGreen).SprintFunc()
	warnColor  = color.New(color.FgYellow).SprintFunc()
	errColor   = color.New(color.FgRed).SprintFunc()
)

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func validateFormat(format string) error {
	switch format {
	case "table", "json":
		return nil
	}
	return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func strOrMissing(s *string) string {
	if s == nil || *s == "" {
		return missing
	}
	return *s
}

func displayDevices(w io.Writer, devices []device.DeviceDescriptor) error {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices discovered")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tRSSI")
	for _, d := range devices {
		name := d.DisplayName()
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		rssi := missing
		if d.RSSI != nil {
			rssi = fmt.Sprintf("%d dBm", *d.RSSI)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, d.Address, rssi)
	}
	return tw.Flush()
}

func displayDeviceInfo(w io.Writer, info session.DeviceInfo) {
	fmt.Fprintf(w, "%s %s\n", labelColor("Device:      "), info.Address)
	if info.Name != nil {
		fmt.Fprintf(w, "%s %s\n", labelColor("Name:        "), *info.Name)
	}
	fmt.Fprintf(w, "%s %s\n", labelColor("Manufacturer:"), strOrMissing(info.Manufacturer))
	fmt.Fprintf(w, "%s %s\n", labelColor("Model:       "), strOrMissing(info.Model))
	if info.Serial != nil {
		fmt.Fprintf(w, "%s %s\n", labelColor("Serial:      "), *info.Serial)
	}
	if info.Firmware != nil {
		fmt.Fprintf(w, "%s %s\n", labelColor("Firmware:    "), *info.Firmware)
	}
	if info.BatteryLevel != nil {
		fmt.Fprintf(w, "%s %d%%\n", labelColor("Battery:     "), *info.BatteryLevel)
	}
}

// displaySnapshot prints one row per metric slot, unknown slots as "-".
func displaySnapshot(w io.Writer, s extractor.Snapshot) error {
	source := func(metric string) string {
		if uuid, ok := s.Sources[metric]; ok {
			return uuid
		}
		return missing
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tVALUE\tUNIT\tSOURCE")
	for _, g := range s.Gauges() {
		value := missing
		if g.Value != nil {
			value = formatFloat(*g.Value)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", g.Name, value, g.Unit, source(g.Name))
	}

	lastRegen := missing
	if s.LastRegeneration != nil {
		lastRegen = s.LastRegeneration.Format(time.RFC3339)
	}
	fmt.Fprintf(tw, "%s\t%s\t\t%s\n", extractor.MetricRegenerationStatus, strOrMissing(s.RegenerationStatus), source(extractor.MetricRegenerationStatus))
	fmt.Fprintf(tw, "%s\t%s\t\t%s\n", extractor.MetricSystemStatus, strOrMissing(s.SystemStatus), source(extractor.MetricSystemStatus))
	fmt.Fprintf(tw, "%s\t%s\t\t%s\n", extractor.MetricLastRegeneration, lastRegen, source(extractor.MetricLastRegeneration))
	return tw.Flush()
}

// displayReadings prints the raw diagnostics behind a snapshot.
func displayReadings(w io.Writer, readings []softener.Reading) error {
	if len(readings) == 0 {
		fmt.Fprintln(w, "No readable characteristics returned data")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tUUID\tNAME\tLEN\tHEX\tCANDIDATES")
	for _, r := range readings {
		name := r.Name
		if name == "" {
			name = missing
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", serviceLabel(r.Service), r.UUID, name, r.Length, r.Hex, formatCandidates(r.Candidates))
	}
	return tw.Flush()
}

// serviceLabel names standard services and falls back to the UUID for vendor ones.
func serviceLabel(uuid string) string {
	if name := bledb.LookupService(uuid); name != "" {
		return name
	}
	if uuid == "" {
		return missing
	}
	return uuid
}

// formatCandidates renders the surviving interpretations as sorted key=value pairs.
func formatCandidates(c decoder.Candidates) string {
	raw, err := json.Marshal(c)
	if err != nil {
		return missing
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || len(m) == 0 {
		return missing
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, _ := json.Marshal(m[k])
		parts = append(parts, k+"="+string(v))
	}
	return strings.Join(parts, " ")
}

func stateLabel(state session.State) string {
	switch state {
	case session.Connected:
		return okColor(state.String())
	case session.Connecting, session.Disconnecting:
		return warnColor(state.String())
	default:
		return errColor(state.String())
	}
}
