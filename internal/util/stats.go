package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide call counter set.
var Stats = &stats{}

type stats struct {
	PeersUp       atomic.Int64 // cumulative count of peer connections created
	PeersDown     atomic.Int64 // cumulative count of peer connections torn down
	EnvelopesSent atomic.Int64 // signaling envelopes written to the channel
	EnvelopesRecv atomic.Int64 // signaling envelopes read from the channel
	MediaBytesIn  atomic.Int64 // RTP payload bytes received from remote tracks
	RTCPIn        atomic.Int64 // RTCP packets received on local senders
}

func (s *stats) AddPeer()         { s.PeersUp.Add(1) }
func (s *stats) RemovePeer()      { s.PeersDown.Add(1) }
func (s *stats) AddSent()         { s.EnvelopesSent.Add(1) }
func (s *stats) AddRecv()         { s.EnvelopesRecv.Add(1) }
func (s *stats) AddMediaIn(n int) { s.MediaBytesIn.Add(int64(n)) }
func (s *stats) AddRTCP(n int)    { s.RTCPIn.Add(int64(n)) }

// Active returns the number of peer connections currently alive.
func (s *stats) Active() int64 {
	return s.PeersUp.Load() - s.PeersDown.Load()
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// reportInterval is how often StartStatsReporter samples the counters.
const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs call statistics
// every 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		var prevIn, prevSent, prevRecv, prevRTCP int64
		for {
			select {
			case <-ticker.C:
				in := Stats.MediaBytesIn.Load()
				sent := Stats.EnvelopesSent.Load()
				recv := Stats.EnvelopesRecv.Load()
				rtcp := Stats.RTCPIn.Load()

				rate := float64(in-prevIn) / reportInterval.Seconds()
				sig := (sent - prevSent) + (recv - prevRecv)

				if rate > 10 || sig > 0 {
					pterm.DefaultLogger.Info(formatStats(Stats.Active(), rate, sig, rtcp-prevRTCP))
				}

				prevIn = in
				prevSent = sent
				prevRecv = recv
				prevRTCP = rtcp

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// FormatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func FormatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(peers int64, inS float64, signals, rtcp int64) string {
	return fmt.Sprintf("Peers: %2d | Media in: %s/s | Signaling: %3d msgs | RTCP: %4d pkts",
		peers,
		FormatBytes(inS),
		signals,
		rtcp,
	)
}
