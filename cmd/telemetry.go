package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/TerriaJS/terriajs-sub017/internal/telemetry"
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "View JSONL load events",
	Long: `Reads and formats the JSONL load-event file written while loading
items. The file comes from telemetry.path unless --file is given.

With --follow (-f), watches the file for new events (like tail -f).`,
	RunE: runTelemetry,
}

func init() {
	telemetryCmd.Flags().String("file", "", "event file to view (default: telemetry.path)")
	telemetryCmd.Flags().BoolP("follow", "f", false, "follow the file for new events")
	rootCmd.AddCommand(telemetryCmd)
}

func runTelemetry(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")
	follow, _ := cmd.Flags().GetBool("follow")

	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Telemetry.Path
	}
	if path == "" {
		return errNoTelemetry
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		printEvent(cmd.OutOrStdout(), line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("telemetry: read %s: %w", path, err)
	}

	if !follow {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return tailFollow(ctx, cmd.OutOrStdout(), f, path)
}

// tailFollow prints events appended to f until ctx is done. A line is
// printed only once its newline has been written.
func tailFollow(ctx context.Context, w io.Writer, f *os.File, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("telemetry: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("telemetry: watch %s: %w", path, err)
	}

	reader := bufio.NewReader(f)
	var partial strings.Builder
	drain := func() {
		for {
			chunk, err := reader.ReadString('\n')
			partial.WriteString(chunk)
			if err != nil {
				return
			}
			if line := strings.TrimSpace(partial.String()); line != "" {
				printEvent(w, line)
			}
			partial.Reset()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Write) {
				drain()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("telemetry: watch %s: %w", path, err)
		}
	}
}

// printEvent decodes a JSONL line and prints a human-readable representation.
func printEvent(w io.Writer, line string) {
	var evt telemetry.Event
	if err := json.Unmarshal([]byte(line), &evt); err != nil {
		fmt.Fprintf(w, "??? %s\n", line)
		return
	}

	ts := evt.Timestamp.Format(time.TimeOnly)
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", ts))
	parts = append(parts, kindStyle(evt.Kind).Render(evt.Kind))

	if evt.ItemID != "" {
		parts = append(parts, fmt.Sprintf("item=%s", evt.ItemID))
	}
	if evt.ItemType != "" {
		parts = append(parts, fmt.Sprintf("type=%s", evt.ItemType))
	}
	if evt.Track != "" {
		parts = append(parts, fmt.Sprintf("track=%s", evt.Track))
	}
	if evt.Duration > 0 {
		parts = append(parts, fmt.Sprintf("took=%s", time.Duration(evt.Duration*float64(time.Millisecond)).Round(time.Millisecond)))
	}
	if evt.Error != "" {
		parts = append(parts, fmt.Sprintf("error=%q", evt.Error))
	}
	if evt.Data != nil {
		if m, ok := evt.Data.(map[string]any); ok {
			parts = append(parts, formatDataMap(m))
		} else {
			data, _ := json.Marshal(evt.Data)
			parts = append(parts, string(data))
		}
	}

	fmt.Fprintln(w, strings.Join(parts, " "))
}

// formatDataMap formats a data map as key=value pairs sorted by key.
func formatDataMap(m map[string]any) string {
	pairs := make([]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(pairs, " ")
}

func kindStyle(kind string) lipgloss.Style {
	switch kind {
	case telemetry.KindLoadDone:
		return styleOK
	case telemetry.KindLoadFailed:
		return styleFailed
	case telemetry.KindCatalogLoaded, telemetry.KindCatalogReload:
		return styleTitle
	}
	return styleMuted
}

// errNoTelemetry is returned when no event file is configured.
var errNoTelemetry = errors.New("no telemetry file; set telemetry.path or --file")
