package linux

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"EnigmaNetz/Enigma-Wifi-Sensor/internal/capture"
)

// Decode extracts the frame type, transmitter MAC and radiotap signal from
// an 802.11 packet. Frames without a transmitter address are dropped.
func Decode(p gopacket.Packet) (capture.Packet, bool) {
	dot11, ok := p.Layer(layers.LayerTypeDot11).(*layers.Dot11)
	if !ok {
		return capture.Packet{}, false
	}
	rt, _ := p.Layer(layers.LayerTypeRadioTap).(*layers.RadioTap)
	out, ok := fromLayers(dot11, rt)
	if ok {
		out.Timestamp = p.Metadata().Timestamp
	}
	return out, ok
}

func fromLayers(dot11 *layers.Dot11, rt *layers.RadioTap) (capture.Packet, bool) {
	if len(dot11.Address2) == 0 {
		return capture.Packet{}, false
	}
	out := capture.Packet{
		Type:       FrameType(dot11.Type),
		MACAddress: dot11.Address2.String(),
	}
	if rt != nil && rt.Present.DBMAntennaSignal() {
		out.SignalStrength = int(rt.DBMAntennaSignal)
		out.HasSignal = true
	}
	return out, true
}

// FrameType names an 802.11 frame type
func FrameType(t layers.Dot11Type) string {
	switch t {
	case layers.Dot11TypeMgmtProbeReq:
		return capture.TypeProbeRequest
	case layers.Dot11TypeMgmtProbeResp:
		return capture.TypeProbeResponse
	case layers.Dot11TypeMgmtBeacon:
		return capture.TypeBeacon
	}
	if t.MainType() == layers.Dot11TypeData {
		return capture.TypeData
	}
	return capture.TypeOther
}
