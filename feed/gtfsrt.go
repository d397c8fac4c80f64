package feed

import (
	"fmt"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
	"github.com/theoremus-urban-solutions/surveyor-tracking/utils"
)

const gtfsRealtimeVersion = "2.0"

// BuildVehiclePositions builds a full-dataset FeedMessage stamped now.
// Fixes with unparseable timestamps are exported without a vehicle
// timestamp.
func BuildVehiclePositions(vehicles []Vehicle, now time.Time) *gtfsrtpb.FeedMessage {
	fm := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
	}
	for _, v := range vehicles {
		vp := &gtfsrtpb.VehiclePosition{
			Vehicle: &gtfsrtpb.VehicleDescriptor{
				Id: proto.String(v.Fix.SurveyorID),
			},
			Position: &gtfsrtpb.Position{
				Latitude:  proto.Float32(float32(v.Fix.Latitude)),
				Longitude: proto.Float32(float32(v.Fix.Longitude)),
			},
		}
		if v.Name != "" {
			vp.Vehicle.Label = proto.String(v.Name)
		}
		if v.Project != "" {
			vp.Trip = &gtfsrtpb.TripDescriptor{RouteId: proto.String(v.Project)}
		}
		if t, err := v.Fix.Time(); err == nil {
			vp.Timestamp = proto.Uint64(uint64(t.Unix()))
		}
		fm.Entity = append(fm.Entity, &gtfsrtpb.FeedEntity{
			Id:      proto.String(v.Fix.SurveyorID),
			Vehicle: vp,
		})
	}
	return fm
}

// EncodeVehiclePositions is BuildVehiclePositions followed by protobuf
// marshalling.
func EncodeVehiclePositions(vehicles []Vehicle, now time.Time) ([]byte, error) {
	data, err := proto.Marshal(BuildVehiclePositions(vehicles, now))
	if err != nil {
		return nil, fmt.Errorf("encoding vehicle positions: %w", err)
	}
	return data, nil
}

// ParseVehiclePositions decodes a VehiclePositions feed back into fixes.
// Entities without a vehicle id or position are skipped.
func ParseVehiclePositions(data []byte) ([]model.LocationFix, error) {
	var fm gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(data, &fm); err != nil {
		return nil, fmt.Errorf("decoding vehicle positions: %w", err)
	}

	var headerTS int64
	if fm.Header != nil && fm.Header.Timestamp != nil {
		headerTS = int64(*fm.Header.Timestamp)
	}

	fixes := make([]model.LocationFix, 0, len(fm.Entity))
	for _, e := range fm.Entity {
		if e.Vehicle == nil || e.Vehicle.Position == nil {
			continue
		}
		id := ""
		if e.Vehicle.Vehicle != nil && e.Vehicle.Vehicle.Id != nil {
			id = *e.Vehicle.Vehicle.Id
		} else if e.Id != nil {
			id = *e.Id
		}
		pos := e.Vehicle.Position
		if id == "" || pos.Latitude == nil || pos.Longitude == nil {
			continue
		}
		ts := headerTS
		if e.Vehicle.Timestamp != nil {
			ts = int64(*e.Vehicle.Timestamp)
		}
		fixes = append(fixes, model.LocationFix{
			SurveyorID: id,
			Latitude:   float64(*pos.Latitude),
			Longitude:  float64(*pos.Longitude),
			Timestamp:  utils.FormatFixTimestamp(time.Unix(ts, 0)),
		})
	}
	return fixes, nil
}
