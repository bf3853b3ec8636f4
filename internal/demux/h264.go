package demux

import "github.com/nareix/joy4/codec/h264parser"

// avcConfigDimensions returns the cropped picture size from the first SPS
// of an AVCDecoderConfigurationRecord.
func avcConfigDimensions(record []byte) (width, height int, ok bool) {
	if len(record) < 8 || record[0] != 1 {
		return 0, 0, false
	}
	cd, err := h264parser.NewCodecDataFromAVCDecoderConfRecord(record)
	if err != nil {
		return 0, 0, false
	}
	if w, h := cd.Width(), cd.Height(); w > 0 && h > 0 {
		return w, h, true
	}
	return 0, 0, false
}
