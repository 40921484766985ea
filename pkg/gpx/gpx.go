// Package gpx serializes mission logs as GPX 1.1 tracks.
package gpx

import (
	"errors"
	"fmt"
	"time"

	gpxgo "github.com/tkrajina/gpxgo/gpx"

	"fieldnav/pkg/trail"
)

// ErrEmptyTrack is returned when asked to encode a track without points.
var ErrEmptyTrack = errors.New("gpx: empty track")

// DefaultCreator is written to the creator attribute when none is configured.
const DefaultCreator = "fieldnav"

// Options controls document metadata.
type Options struct {
	Creator     string
	Name        string
	Description string
	Time        time.Time
}

// Encode writes points as one track with one segment, in input order.
// Elevation is emitted only for points with an altitude. Times are UTC, in whole seconds.
func Encode(points []trail.TrackPoint, opts Options) ([]byte, error) {
	if len(points) == 0 {
		return nil, ErrEmptyTrack
	}
	if opts.Creator == "" {
		opts.Creator = DefaultCreator
	}

	seg := gpxgo.GPXTrackSegment{
		Points: make([]gpxgo.GPXPoint, 0, len(points)),
	}
	for _, p := range points {
		pt := gpxgo.GPXPoint{
			Point: gpxgo.Point{
				Latitude:  p.Lat,
				Longitude: p.Lng,
			},
		}
		if p.Altitude != nil {
			pt.Elevation = *gpxgo.NewNullableFloat64(*p.Altitude)
		}
		if !p.Timestamp.IsZero() {
			pt.Timestamp = p.Timestamp.UTC().Truncate(trail.TimeResolution)
		}
		seg.Points = append(seg.Points, pt)
	}

	doc := &gpxgo.GPX{
		Version:     "1.1",
		Creator:     opts.Creator,
		Name:        opts.Name,
		Description: opts.Description,
		Tracks: []gpxgo.GPXTrack{{
			Name:     opts.Name,
			Segments: []gpxgo.GPXTrackSegment{seg},
		}},
	}
	if !opts.Time.IsZero() {
		t := opts.Time.UTC()
		doc.Time = &t
	}

	data, err := doc.ToXml(gpxgo.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, fmt.Errorf("gpx: encode: %w", err)
	}
	return data, nil
}

// Decode reads every track point of a GPX document, across all tracks and segments, in order.
func Decode(data []byte) ([]trail.TrackPoint, error) {
	doc, err := gpxgo.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("gpx: decode: %w", err)
	}
	return fromDoc(doc), nil
}

// DecodeFile reads every track point of a GPX file.
func DecodeFile(path string) ([]trail.TrackPoint, error) {
	doc, err := gpxgo.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("gpx: decode %s: %w", path, err)
	}
	return fromDoc(doc), nil
}

func fromDoc(doc *gpxgo.GPX) []trail.TrackPoint {
	var out []trail.TrackPoint
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for _, pt := range seg.Points {
				tp := trail.TrackPoint{
					Lat:       pt.Latitude,
					Lng:       pt.Longitude,
					Timestamp: pt.Timestamp,
				}
				if pt.Elevation.NotNull() {
					alt := pt.Elevation.Value()
					tp.Altitude = &alt
				}
				out = append(out, tp)
			}
		}
	}
	return out
}
