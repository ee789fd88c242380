// Package ui renders remote participants as tiles in the terminal.
package ui

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"

	"github.com/1ureka/meshcall/internal/protocol"
	"github.com/1ureka/meshcall/internal/util"
)

const refreshInterval = time.Second

var palette = []pterm.Color{
	pterm.FgCyan,
	pterm.FgGreen,
	pterm.FgYellow,
	pterm.FgMagenta,
	pterm.FgBlue,
	pterm.FgLightRed,
}

type tile struct {
	id    protocol.ParticipantID
	state string
	sinks []*sink
}

// TileInfo is a snapshot of one tile.
type TileInfo struct {
	ID      protocol.ParticipantID
	State   string
	Tracks  int
	Packets uint64
	Bitrate float64 // bytes per second
}

// Grid holds one tile per remote participant. When recordDir is set,
// remote VP8 and Opus tracks are written to <recordDir>/<id>.ivf|.ogg.
type Grid struct {
	recordDir string

	mu    sync.Mutex
	tiles map[protocol.ParticipantID]*tile
}

func NewGrid(recordDir string) *Grid {
	return &Grid{
		recordDir: recordDir,
		tiles:     make(map[protocol.ParticipantID]*tile),
	}
}

// AddTile creates an empty tile for id. Existing tiles are kept.
func (g *Grid) AddTile(id protocol.ParticipantID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.tiles[id]; ok {
		return
	}
	g.tiles[id] = &tile{id: id, state: "new"}
}

// RemoveTile drops the tile and finalizes its recordings. Removing an
// unknown tile is a no-op.
func (g *Grid) RemoveTile(id protocol.ParticipantID) {
	g.mu.Lock()
	t, ok := g.tiles[id]
	delete(g.tiles, id)
	g.mu.Unlock()

	if !ok {
		return
	}
	for _, s := range t.sinks {
		s.stop()
	}
}

// SetState updates the label shown on the tile.
func (g *Grid) SetState(id protocol.ParticipantID, state string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.tiles[id]; ok {
		t.state = state
	}
}

// Attach starts consuming a remote track on id's tile.
func (g *Grid) Attach(id protocol.ParticipantID, track *webrtc.TrackRemote) {
	if track == nil {
		return
	}
	g.attach(id, track.Kind().String(), track.Codec().MimeType, track)
}

func (g *Grid) attach(id protocol.ParticipantID, kind, mime string, r rtpReader) *sink {
	log := util.With("peer", string(id), "track", kind)

	g.mu.Lock()
	t, ok := g.tiles[id]
	if !ok {
		g.mu.Unlock()
		log.Debug("no tile, ignoring track")
		return nil
	}
	s := newSink(kind, mime)
	t.sinks = append(t.sinks, s)
	g.mu.Unlock()

	if g.recordDir != "" {
		if path, err := s.record(g.recordDir, id); err != nil {
			log.Warning("not recording: %v", err)
		} else {
			log.Info("Recording to %s", path)
		}
	}

	go s.run(r, log)
	return s
}

// Tiles returns a snapshot sorted by participant.
func (g *Grid) Tiles() []TileInfo {
	now := time.Now()

	g.mu.Lock()
	out := make([]TileInfo, 0, len(g.tiles))
	for _, t := range g.tiles {
		info := TileInfo{ID: t.id, State: t.state, Tracks: len(t.sinks)}
		for _, s := range t.sinks {
			info.Packets += s.packets.Load()
			info.Bitrate += s.bitrate(now)
		}
		out = append(out, info)
	}
	g.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Render draws the grid as a table.
func (g *Grid) Render() string {
	tiles := g.Tiles()
	if len(tiles) == 0 {
		return pterm.Gray("Waiting for participants...")
	}

	data := pterm.TableData{{"Participant", "State", "Tracks", "Packets", "Rate"}}
	for _, t := range tiles {
		data = append(data, []string{
			colorFor(t.ID).Sprint(string(t.ID)),
			t.State,
			fmt.Sprintf("%d", t.Tracks),
			fmt.Sprintf("%d", t.Packets),
			util.FormatBytes(t.Bitrate) + "/s",
		})
	}

	out, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return err.Error()
	}
	return out
}

// Run keeps the rendered grid on screen until ctx is cancelled.
func (g *Grid) Run(ctx context.Context) {
	area, err := pterm.DefaultArea.Start(g.Render())
	if err != nil {
		util.LogWarning("grid disabled: %v", err)
		return
	}
	defer area.Stop()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			area.Update(g.Render())
		}
	}
}

// colorFor gives each participant a stable colour.
func colorFor(id protocol.ParticipantID) pterm.Color {
	return palette[util.HashID(string(id))%uint32(len(palette))]
}
