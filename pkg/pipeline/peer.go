package pipeline

import "encoding/json"

// Peer is a data source/destination with an associated connector (ie ClickHouse, Kafka, MQTT, etc).
type Peer struct {
	ConnectorName string
	Name          string
	Config        json.RawMessage
}

func (p *Peer) Connector() Connector {
	return connectors[p.ConnectorName]
}
