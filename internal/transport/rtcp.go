package transport

import (
	"context"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/meshcall/internal/util"
)

// drainRTCP reads the feedback sent back for one local track. Reading is
// required for interceptors (NACK, reports) to work; the packets are also
// counted for the stats reporter.
func drainRTCP(ctx context.Context, sender *webrtc.RTPSender, log util.Logger) {
	for {
		pkts, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		util.Stats.AddRTCP(len(pkts))
		for _, pkt := range pkts {
			switch p := pkt.(type) {
			case *rtcp.PictureLossIndication:
				log.Debug("keyframe requested (ssrc=%d)", p.MediaSSRC)
			case *rtcp.FullIntraRequest:
				log.Debug("full intra request (ssrc=%d)", p.MediaSSRC)
			case *rtcp.ReceiverEstimatedMaximumBitrate:
				log.Debug("remote bitrate estimate: %s/s", util.FormatBytes(float64(p.Bitrate)/8))
			}
		}
	}
}
