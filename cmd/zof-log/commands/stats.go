package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/zofgo/zof/pkg/log"
)

// Stats holds aggregate statistics about a trace file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	MessagesByType    map[string]int
	Connections       map[uint64]*ConnectionStats
	Errors            int
	Failed            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single OpenFlow connection.
type ConnectionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	DatapathID string
}

// Collect reads every event of path.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		MessagesByType:    make(map[string]int),
		Connections:       make(map[uint64]*ConnectionStats),
	}

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if msg := event.Message; msg != nil {
		if msg.OFType != "" {
			s.MessagesByType[msg.OFType]++
		}
		if msg.Failed {
			s.Failed++
		}
	}
	if event.Error != nil {
		s.Errors++
	}

	if event.ConnID == 0 {
		return
	}
	conn, ok := s.Connections[event.ConnID]
	if !ok {
		conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Connections[event.ConnID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if event.DatapathID != "" && conn.DatapathID == "" {
		conn.DatapathID = event.DatapathID
	}
}

// RunStats analyzes the trace file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== OpenFlow Protocol Trace Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerRPC, log.LayerController} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}

	if len(stats.MessagesByType) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Messages by Type:")
		types := make([]string, 0, len(stats.MessagesByType))
		for t := range stats.MessagesByType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(w, "  %-20s %d\n", t+":", stats.MessagesByType[t])
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		ids := make([]uint64, 0, len(stats.Connections))
		for id := range stats.Connections {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return stats.Connections[ids[i]].FirstSeen.Before(stats.Connections[ids[j]].FirstSeen)
		})

		fmt.Fprintln(w)
		for _, id := range ids {
			c := stats.Connections[id]
			fmt.Fprintf(w, "  [conn:%d] %d events, duration %s\n", id, c.Events, c.LastSeen.Sub(c.FirstSeen).Round(time.Millisecond))
			if c.DatapathID != "" {
				fmt.Fprintf(w, "           Datapath: %s\n", c.DatapathID)
			}
		}
	}

	if stats.Failed > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Failed Replies: %d\n", stats.Failed)
	}
	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
