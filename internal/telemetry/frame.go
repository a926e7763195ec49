// Package telemetry encodes the pose and event frames peers exchange over
// the session data channel:
//
//	"<x> <y> <z>;<rx> <ry> <rz>[;event]..."
//
// Positions are in scene units, rotations in degrees on the wire and in
// radians locally, all with five fractional digits.
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/BioHazard786/solfa/internal/avatar"
)

const (
	fieldSep = ";"
	radToDeg = 180 / math.Pi
	degToRad = math.Pi / 180
)

var ErrMalformedFrame = errors.New("malformed telemetry frame")

// Pose is a position and a rotation in radians.
type Pose struct {
	Position avatar.Vec3
	Rotation avatar.Vec3
}

// Frame is a decoded telemetry frame.
type Frame struct {
	Pose   Pose
	Events []string
}

// Encode renders a frame. Events containing the field separator are split
// by the receiver, so callers keep event names free of ';'.
func Encode(p Pose, events []string) string {
	var b strings.Builder
	writeVec(&b, p.Position, 1)
	b.WriteString(fieldSep)
	writeVec(&b, p.Rotation, radToDeg)
	for _, ev := range events {
		b.WriteString(fieldSep)
		b.WriteString(ev)
	}
	return b.String()
}

func writeVec(b *strings.Builder, v avatar.Vec3, scale float64) {
	for i, n := range [3]float64{v.X, v.Y, v.Z} {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(fixed(n * scale))
	}
}

func fixed(n float64) string {
	s := strconv.FormatFloat(n, 'f', 5, 64)
	if s == "-0.00000" {
		return "0.00000"
	}
	return s
}

// Decode parses a frame. Fields are trimmed; empty event fields are
// skipped.
func Decode(frame string) (Frame, error) {
	fields := strings.Split(frame, fieldSep)
	if len(fields) < 2 {
		return Frame{}, fmt.Errorf("%w: %q", ErrMalformedFrame, frame)
	}

	pos, err := parseVec(fields[0], 1)
	if err != nil {
		return Frame{}, fmt.Errorf("position: %w", err)
	}
	rot, err := parseVec(fields[1], degToRad)
	if err != nil {
		return Frame{}, fmt.Errorf("rotation: %w", err)
	}

	f := Frame{Pose: Pose{Position: pos, Rotation: rot}}
	for _, ev := range fields[2:] {
		if ev = strings.TrimSpace(ev); ev != "" {
			f.Events = append(f.Events, ev)
		}
	}
	return f, nil
}

func parseVec(field string, scale float64) (avatar.Vec3, error) {
	parts := strings.Fields(field)
	if len(parts) != 3 {
		return avatar.Vec3{}, fmt.Errorf("%w: want 3 numbers in %q", ErrMalformedFrame, field)
	}
	var n [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return avatar.Vec3{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		n[i] = v * scale
	}
	return avatar.Vec3{X: n[0], Y: n[1], Z: n[2]}, nil
}

// Dispatch decodes a received frame onto the peer's avatar: the pose is
// applied, then every event is dispatched once, in order.
func Dispatch(frame string, a avatar.Avatar) error {
	f, err := Decode(frame)
	if err != nil {
		return err
	}
	a.SetPose(f.Pose.Position, f.Pose.Rotation)
	for _, ev := range f.Events {
		a.Dispatch(ev)
	}
	return nil
}
