package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/AshkanYarmoradi/go-behave/adapters"
	"github.com/AshkanYarmoradi/go-behave/cli/styles"
	"github.com/AshkanYarmoradi/go-behave/cli/ui"
	"github.com/spf13/cobra"
)

// exportBatchLimit caps how many events a single export reads.
const exportBatchLimit = 10000

// NewStreamCommand builds the stream inspection command tree.
func NewStreamCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Inspect journal streams",
		Long: `Inspect journal streams, page through recorded events, and export
stream contents as JSON.

  behave stream ls
  behave stream events invoice-204
  behave stream export invoice-204 -o invoice-204.json
  behave stream stats`,
	}

	for _, sub := range []*cobra.Command{
		newStreamListCmd(),
		newStreamEventsCmd(),
		newStreamExportCmd(),
		newStreamStatsCmd(),
	} {
		cmd.AddCommand(sub)
	}

	return cmd
}

func newStreamListCmd() *cobra.Command {
	var (
		prefix string
		limit  int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List journal streams",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStreams(cmd, prefix, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Most streams to list")
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "Keep only stream IDs with this prefix")

	return cmd
}

func showStreams(cmd *cobra.Command, prefix string, limit int) error {
	ctx := cmd.Context()

	adapter, cleanup, err := openAdapter(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	streams, err := adapter.ListStreams(ctx, prefix, limit)
	if err != nil {
		return err
	}
	if len(streams) == 0 {
		fmt.Println(styles.FormatInfo("The journal has no streams yet"))
		return nil
	}

	fmt.Println()
	fmt.Println(styles.Title.Render(styles.IconStream + " Journal Streams"))
	fmt.Println()

	table := ui.NewTable("Stream", "Events", "Last Event", "Updated")
	for _, s := range streams {
		table.AddRow(s.StreamID, strconv.FormatInt(s.EventCount, 10), s.LastEventType, s.LastUpdated.Format(time.DateTime))
	}
	fmt.Println(table.Render())
	fmt.Printf("\n%d streams listed\n", len(streams))

	return nil
}

func newStreamEventsCmd() *cobra.Command {
	var (
		from  int64
		limit int
	)

	cmd := &cobra.Command{
		Use:   "events <stream-id>",
		Short: "Print the events in a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStreamEvents(cmd, args[0], from, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Most events to print")
	cmd.Flags().Int64VarP(&from, "from", "f", 0, "Skip events up to this version")

	return cmd
}

func showStreamEvents(cmd *cobra.Command, streamID string, from int64, limit int) error {
	ctx := cmd.Context()

	adapter, cleanup, err := openAdapter(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	stored, err := adapter.GetStreamEvents(ctx, streamID, from, limit)
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		fmt.Println(styles.FormatInfo(fmt.Sprintf("Stream %q has no events", streamID)))
		return nil
	}

	fmt.Println()
	fmt.Println(styles.Title.Render(styles.IconStream + " Stream " + streamID))
	fmt.Println()

	for _, e := range stored {
		printStoredEvent(e)
	}

	return nil
}

// printStoredEvent renders one event header followed by its indented payload.
func printStoredEvent(e adapters.StoredEvent) {
	fmt.Println(styles.Subtitle.Render(fmt.Sprintf("#%d %s", e.Version, e.Type)))
	fmt.Println(styles.Muted.Render("  ID: " + e.ID))
	fmt.Println(styles.Muted.Render("  Time: " + e.Timestamp.Format(time.RFC3339)))
	fmt.Println()
	fmt.Println(styles.Code.Render("  " + prettyJSON(e.Data)))
	fmt.Println()
	fmt.Println(ui.Divider(56))
	fmt.Println()
}

// prettyJSON indents raw JSON for display. Payloads that do not parse come
// back unchanged.
func prettyJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "  ", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func newStreamExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <stream-id>",
		Short: "Write a stream's events to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return exportStream(cmd, args[0], output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (default: <stream-id>.json)")

	return cmd
}

func exportStream(cmd *cobra.Command, streamID, output string) error {
	ctx := cmd.Context()

	adapter, cleanup, err := openAdapter(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	stored, err := adapter.GetStreamEvents(ctx, streamID, 0, exportBatchLimit)
	if err != nil {
		return err
	}

	events := make([]StreamEvent, 0, len(stored))
	for _, e := range stored {
		events = append(events, toStreamEvent(e))
	}

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return err
	}

	if output == "" {
		output = streamID + ".json"
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return err
	}

	fmt.Println(styles.FormatSuccess(fmt.Sprintf("Wrote %d events to %s", len(events), output)))
	return nil
}

func newStreamStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show journal statistics",
		RunE:  showJournalStats,
	}
}

func showJournalStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	adapter, cleanup, err := openAdapter(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := adapter.GetJournalStats(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(styles.Title.Render(styles.IconChart + " Journal Statistics"))
	fmt.Println()

	rows := [][2]string{
		{"Total events", strconv.FormatInt(stats.TotalEvents, 10)},
		{"Total streams", strconv.FormatInt(stats.TotalStreams, 10)},
		{"Event types", strconv.FormatInt(stats.EventTypes, 10)},
		{"Avg per stream", fmt.Sprintf("%.1f events", stats.AvgEventsPerStream)},
	}
	for _, row := range rows {
		fmt.Println("  " + styles.Normal.Render(fmt.Sprintf("%-15s %s", row[0]+":", row[1])))
	}

	if len(stats.TopEventTypes) > 0 {
		fmt.Println()
		fmt.Println(styles.Subtitle.Render("  Top event types:"))
		for i, t := range stats.TopEventTypes {
			fmt.Printf("    %2d. %-24s %d\n", i+1, t.Type, t.Count)
		}
	}

	return nil
}

// StreamEvent is the JSON shape used when exporting journal events.
type StreamEvent struct {
	ID             string            `json:"id"`
	StreamID       string            `json:"stream_id"`
	Version        int64             `json:"version"`
	GlobalPosition uint64            `json:"global_position"`
	Type           string            `json:"type"`
	Data           json.RawMessage   `json:"data"`
	Metadata       adapters.Metadata `json:"metadata"`
	Timestamp      time.Time         `json:"timestamp"`
}

func toStreamEvent(e adapters.StoredEvent) StreamEvent {
	return StreamEvent{
		ID:             e.ID,
		StreamID:       e.StreamID,
		Version:        e.Version,
		GlobalPosition: e.GlobalPosition,
		Type:           e.Type,
		Data:           json.RawMessage(e.Data),
		Metadata:       e.Metadata,
		Timestamp:      e.Timestamp,
	}
}
