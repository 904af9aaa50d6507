/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"stash.kopano.io/kwm/kwmmse/internal/mse"
	"stash.kopano.io/kwm/kwmmse/internal/trackstate"
)

const tsSyncByte = 0x47

var (
	errMissingInitSegment = errors.New("media segment before initialization segment")
	errNotTransportStream = errors.New("data is not a transport stream")
)

// probe inspects appended data. It returns the tracks found and whether the
// data carried an initialization segment.
func probe(ct mse.ContentType, data []byte, initialized bool) ([]mse.TrackInfo, bool, error) {
	switch ct.Type {
	case "video/mp4", "audio/mp4":
		if isInitSegment(data) {
			tracks, err := probeFMP4(data)
			return tracks, err == nil, err
		}
		if !initialized {
			return nil, false, errMissingInitSegment
		}
		return nil, false, nil

	case "video/mp2t":
		if len(data) == 0 || data[0] != tsSyncByte {
			return nil, false, errNotTransportStream
		}
		if initialized {
			return nil, false, nil
		}
		tracks, err := probeMPEGTS(data)
		if err != nil {
			// Tables can span appends, try again with the next one.
			return nil, false, nil
		}
		return tracks, true, nil

	default:
		if initialized {
			return nil, false, nil
		}
		return tracksFromCodecs(ct), true, nil
	}
}

func isInitSegment(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	switch string(data[4:8]) {
	case "ftyp", "moov":
		return true
	}
	return false
}

func probeFMP4(data []byte) ([]mse.TrackInfo, error) {
	var init fmp4.Init
	if err := init.Unmarshal(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("invalid initialization segment: %w", err)
	}

	var tracks []mse.TrackInfo
	for _, track := range init.Tracks {
		info := mse.TrackInfo{
			ID:   strconv.Itoa(track.ID),
			Kind: trackstate.KindMain,
		}
		switch track.Codec.(type) {
		case *mp4.CodecH264:
			info.Type, info.Codec = trackstate.TypeVideo, "avc1"
		case *mp4.CodecH265:
			info.Type, info.Codec = trackstate.TypeVideo, "hvc1"
		case *mp4.CodecAV1:
			info.Type, info.Codec = trackstate.TypeVideo, "av01"
		case *mp4.CodecVP9:
			info.Type, info.Codec = trackstate.TypeVideo, "vp09"
		case *mp4.CodecMPEG4Audio:
			info.Type, info.Codec = trackstate.TypeAudio, "mp4a"
		case *mp4.CodecOpus:
			info.Type, info.Codec = trackstate.TypeAudio, "opus"
		case *mp4.CodecAC3:
			info.Type, info.Codec = trackstate.TypeAudio, "ac-3"
		case *mp4.CodecMPEG1Audio:
			info.Type, info.Codec = trackstate.TypeAudio, "mp3"
		default:
			continue
		}
		tracks = append(tracks, info)
	}

	return tracks, nil
}

func probeMPEGTS(data []byte) ([]mse.TrackInfo, error) {
	reader := &mpegts.Reader{R: bytes.NewReader(data)}
	if err := reader.Initialize(); err != nil {
		return nil, err
	}

	var tracks []mse.TrackInfo
	for _, track := range reader.Tracks() {
		info := mse.TrackInfo{
			ID:   strconv.Itoa(int(track.PID)),
			Kind: trackstate.KindMain,
		}
		switch track.Codec.(type) {
		case *mpegts.CodecH264:
			info.Type, info.Codec = trackstate.TypeVideo, "avc1"
		case *mpegts.CodecH265:
			info.Type, info.Codec = trackstate.TypeVideo, "hvc1"
		case *mpegts.CodecMPEG4Audio:
			info.Type, info.Codec = trackstate.TypeAudio, "mp4a"
		case *mpegts.CodecOpus:
			info.Type, info.Codec = trackstate.TypeAudio, "opus"
		case *mpegts.CodecAC3:
			info.Type, info.Codec = trackstate.TypeAudio, "ac-3"
		case *mpegts.CodecMPEG1Audio:
			info.Type, info.Codec = trackstate.TypeAudio, "mp3"
		default:
			continue
		}
		tracks = append(tracks, info)
	}

	return tracks, nil
}

var videoCodecs = []string{"avc1", "avc3", "hvc1", "hev1", "av01", "vp8", "vp9", "vp09"}

// tracksFromCodecs derives tracks from the codecs parameter for containers
// which are not probed.
func tracksFromCodecs(ct mse.ContentType) []mse.TrackInfo {
	if len(ct.Codecs) == 0 {
		info := mse.TrackInfo{
			ID:   "1",
			Kind: trackstate.KindMain,
			Type: trackstate.TypeAudio,
		}
		if strings.HasPrefix(ct.Type, "video/") {
			info.Type = trackstate.TypeVideo
		}
		return []mse.TrackInfo{info}
	}

	tracks := make([]mse.TrackInfo, 0, len(ct.Codecs))
	for idx, codec := range ct.Codecs {
		info := mse.TrackInfo{
			ID:    strconv.Itoa(idx + 1),
			Kind:  trackstate.KindMain,
			Type:  trackstate.TypeAudio,
			Codec: codec,
		}
		name := strings.ToLower(strings.SplitN(codec, ".", 2)[0])
		for _, video := range videoCodecs {
			if name == video {
				info.Type = trackstate.TypeVideo
				break
			}
		}
		tracks = append(tracks, info)
	}
	return tracks
}
