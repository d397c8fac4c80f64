package feed

import (
	"encoding/json"
	"encoding/xml"
	"time"

	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
	"github.com/theoremus-urban-solutions/surveyor-tracking/utils"
)

const siriNamespace = "http://www.siri.org.uk/siri"

// SiriResponse is the JSON envelope {"Siri": {...}}.
type SiriResponse struct {
	Siri Siri `json:"Siri"`
}

// Siri is the document root.
type Siri struct {
	XMLName         xml.Name        `json:"-" xml:"Siri"`
	Namespace       string          `json:"-" xml:"xmlns,attr"`
	ServiceDelivery ServiceDelivery `json:"ServiceDelivery" xml:"ServiceDelivery"`
}

// ServiceDelivery carries the deliveries of one response.
type ServiceDelivery struct {
	ResponseTimestamp         string              `json:"ResponseTimestamp" xml:"ResponseTimestamp"`
	ProducerRef               string              `json:"ProducerRef,omitempty" xml:"ProducerRef,omitempty"`
	VehicleMonitoringDelivery []VehicleMonitoring `json:"VehicleMonitoringDelivery" xml:"VehicleMonitoringDelivery"`
}

// VehicleMonitoring represents the VehicleMonitoring delivery
type VehicleMonitoring struct {
	ResponseTimestamp string                 `json:"ResponseTimestamp" xml:"ResponseTimestamp"`
	ValidUntil        string                 `json:"ValidUntil,omitempty" xml:"ValidUntil,omitempty"`
	VehicleActivity   []VehicleActivityEntry `json:"VehicleActivity" xml:"VehicleActivity"`
}

// VehicleActivityEntry represents a single surveyor's activity
type VehicleActivityEntry struct {
	RecordedAtTime          string                  `json:"RecordedAtTime" xml:"RecordedAtTime"`
	ValidUntilTime          string                  `json:"ValidUntilTime,omitempty" xml:"ValidUntilTime,omitempty"`
	MonitoredVehicleJourney MonitoredVehicleJourney `json:"MonitoredVehicleJourney" xml:"MonitoredVehicleJourney"`
}

// MonitoredVehicleJourney describes the surveyor as a monitored vehicle.
type MonitoredVehicleJourney struct {
	LineRef           string          `json:"LineRef,omitempty" xml:"LineRef,omitempty"`
	PublishedLineName string          `json:"PublishedLineName,omitempty" xml:"PublishedLineName,omitempty"`
	OperatorRef       string          `json:"OperatorRef,omitempty" xml:"OperatorRef,omitempty"`
	Monitored         bool            `json:"Monitored" xml:"Monitored"`
	DataSource        string          `json:"DataSource,omitempty" xml:"DataSource,omitempty"`
	VehicleLocation   VehicleLocation `json:"VehicleLocation" xml:"VehicleLocation"`
	VehicleStatus     string          `json:"VehicleStatus,omitempty" xml:"VehicleStatus,omitempty"`
	VehicleRef        string          `json:"VehicleRef" xml:"VehicleRef"`
	VehicleName       string          `json:"VehicleName,omitempty" xml:"VehicleName,omitempty"`
}

// VehicleLocation represents the geographical location of a surveyor
type VehicleLocation struct {
	Latitude  float64 `json:"Latitude" xml:"Latitude"`
	Longitude float64 `json:"Longitude" xml:"Longitude"`
}

// VMOptions controls BuildVehicleMonitoring.
type VMOptions struct {
	// AgencyID prefixes refs and fills OperatorRef and DataSource.
	AgencyID string
	// ReadInterval is how often consumers are expected to refresh; it sets
	// ValidUntil. Zero omits it.
	ReadInterval time.Duration
	Now          time.Time
}

// BuildVehicleMonitoring builds a SIRI VehicleMonitoring response. Only
// online surveyors are flagged Monitored.
func BuildVehicleMonitoring(vehicles []Vehicle, opts VMOptions) *SiriResponse {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	ts := now.UTC().Format(time.RFC3339)
	validUntil := utils.ValidUntilFrom(now.Unix(), int(opts.ReadInterval/time.Millisecond))

	activity := make([]VehicleActivityEntry, 0, len(vehicles))
	for _, v := range vehicles {
		recorded := v.Fix.Timestamp
		validUntilTime := ""
		if t, err := v.Fix.Time(); err == nil {
			recorded = t.Format(time.RFC3339)
			validUntilTime = utils.ValidUntilFrom(t.Unix(), int(opts.ReadInterval/time.Millisecond))
		}
		online := v.State == model.Online
		status := "completed"
		if online {
			status = "inProgress"
		}
		activity = append(activity, VehicleActivityEntry{
			RecordedAtTime: recorded,
			ValidUntilTime: validUntilTime,
			MonitoredVehicleJourney: MonitoredVehicleJourney{
				LineRef:           prefixed(opts.AgencyID, v.Project),
				PublishedLineName: v.Project,
				OperatorRef:       opts.AgencyID,
				Monitored:         online,
				DataSource:        opts.AgencyID,
				VehicleLocation:   VehicleLocation{Latitude: v.Fix.Latitude, Longitude: v.Fix.Longitude},
				VehicleStatus:     status,
				VehicleRef:        prefixed(opts.AgencyID, v.Fix.SurveyorID),
				VehicleName:       v.Name,
			},
		})
	}

	return &SiriResponse{Siri: Siri{
		Namespace: siriNamespace,
		ServiceDelivery: ServiceDelivery{
			ResponseTimestamp: ts,
			ProducerRef:       opts.AgencyID,
			VehicleMonitoringDelivery: []VehicleMonitoring{{
				ResponseTimestamp: ts,
				ValidUntil:        validUntil,
				VehicleActivity:   activity,
			}},
		},
	}}
}

// JSON renders the response.
func (r *SiriResponse) JSON() ([]byte, error) {
	return json.Marshal(r)
}

// XML renders the response with an XML declaration.
func (r *SiriResponse) XML() ([]byte, error) {
	body, err := xml.Marshal(r.Siri)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

func prefixed(agency, ref string) string {
	if agency == "" || ref == "" {
		return ref
	}
	return agency + "_" + ref
}
